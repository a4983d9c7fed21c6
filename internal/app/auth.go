package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"quizapp-service/internal/domain"
)

// SignUp is the registration payload.
type SignUp struct {
	Username             string `json:"username" validate:"required"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,max=72"`
	PasswordConfirmation string `json:"password_confirmation"`
	Language             string `json:"language" validate:"omitempty,len=2,alpha"`
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Username string `json:"username" validate:"required"`
	Language string `json:"language" validate:"omitempty,len=2,alpha"`
}

// Profile is the signed-in user's view of themselves.
type Profile struct {
	User      domain.User `json:"user"`
	BestScore *int        `json:"bestScore,omitempty"`
}

// AuthService registers users and binds them to browser sessions.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	attempts *AttemptService
	validate *validator.Validate
	cost     int
	now      func() time.Time
}

func NewAuthService(users UserStore, sessions SessionStore, attempts *AttemptService) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		attempts: attempts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.cost = cost
	return s
}

// Register creates a user and signs them into sessionID.
func (s *AuthService) Register(ctx context.Context, sessionID string, in SignUp) (domain.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)

	verr := s.check(in)
	if in.PasswordConfirmation != "" && in.PasswordConfirmation != in.Password {
		verr.Add("password_confirmation", "doesn't match password")
	}
	if !verr.Empty() {
		return domain.User{}, verr
	}

	digest, err := s.Hash(in.Password)
	if err != nil {
		return domain.User{}, err
	}
	now := s.now()
	user := domain.User{
		Username:       in.Username,
		Email:          in.Email,
		PasswordDigest: digest,
		Language:       in.Language,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return domain.User{}, err
		}
		return domain.User{}, persistence("create user", err)
	}
	if err := s.bind(ctx, sessionID, user.ID); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Hash returns the bcrypt digest of password.
func (s *AuthService) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Login verifies the credentials and starts a fresh session for the user.
func (s *AuthService) Login(ctx context.Context, sessionID, email, password string) (domain.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, persistence("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordDigest), []byte(password)) != nil {
		return domain.User{}, domain.ErrInvalidCredentials
	}
	if err := s.bind(ctx, sessionID, user.ID); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// Logout drops everything held for the session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Reset(ctx, sessionID); err != nil {
		return persistence("reset session", err)
	}
	return nil
}

// CurrentUser resolves the user signed into sessionID.
func (s *AuthService) CurrentUser(ctx context.Context, sessionID string) (domain.User, error) {
	id, ok, err := s.sessions.User(ctx, sessionID)
	if err != nil {
		return domain.User{}, persistence("load session user", err)
	}
	if !ok {
		return domain.User{}, domain.ErrUnauthenticated
	}
	user, err := s.users.Get(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, domain.ErrUnauthenticated
	}
	if err != nil {
		return domain.User{}, persistence("load user", err)
	}
	return user, nil
}

// Profile returns the user with their best completed score.
func (s *AuthService) Profile(ctx context.Context, user domain.User) (Profile, error) {
	best, ok, err := s.attempts.BestScore(ctx, user.ID)
	if err != nil {
		return Profile{}, err
	}
	p := Profile{User: user}
	if ok {
		p.BestScore = &best
	}
	return p, nil
}

// UpdateProfile changes the username and preferred language.
func (s *AuthService) UpdateProfile(ctx context.Context, user domain.User, in ProfileUpdate) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if verr := s.check(in); !verr.Empty() {
		return domain.User{}, verr
	}
	user.Username = in.Username
	user.Language = in.Language
	user.UpdatedAt = s.now()
	if err := s.users.Update(ctx, &user); err != nil {
		return domain.User{}, persistence("update user", err)
	}
	return user, nil
}

// bind resets the session so no state from a previous user survives, then records the user.
func (s *AuthService) bind(ctx context.Context, sessionID string, userID int64) error {
	if err := s.sessions.Reset(ctx, sessionID); err != nil {
		return persistence("reset session", err)
	}
	if err := s.sessions.SetUser(ctx, sessionID, userID); err != nil {
		return persistence("store session user", err)
	}
	return nil
}

func (s *AuthService) check(in any) *domain.ValidationError {
	verr := &domain.ValidationError{}
	err := s.validate.Struct(in)
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		for _, fe := range fields {
			verr.Add(fieldName(fe.Field()), tagMessage(fe.Tag()))
		}
	} else if err != nil {
		verr.Add("base", err.Error())
	}
	return verr
}

func fieldName(name string) string {
	switch name {
	case "PasswordConfirmation":
		return "password_confirmation"
	default:
		return strings.ToLower(name)
	}
}

func tagMessage(tag string) string {
	switch tag {
	case "required":
		return "can't be blank"
	case "email":
		return "is invalid"
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}
