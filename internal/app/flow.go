package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quizapp-service/internal/domain"
	"quizapp-service/internal/paramcodec"
)

// StateKind enumerates the positions of a quiz traversal.
type StateKind int

const (
	AwaitingStep StateKind = iota
	ReviewPending
	Completed
)

// State is a position in the traversal. Step is meaningful only for AwaitingStep.
type State struct {
	Kind StateKind
	Step int
}

func (s State) String() string {
	switch s.Kind {
	case AwaitingStep:
		return fmt.Sprintf("awaiting_step(%d)", s.Step)
	case ReviewPending:
		return "review_pending"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// Event drives a transition.
type Event int

const (
	EventSubmitValid Event = iota
	EventSubmitInvalid
	EventConfirm
)

func (e Event) String() string {
	switch e {
	case EventSubmitValid:
		return "submit_valid"
	case EventSubmitInvalid:
		return "submit_invalid"
	case EventConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

// ErrIllegalTransition is returned when an event does not apply to a state.
var ErrIllegalTransition = errors.New("illegal transition")

// Next is the traversal's transition function.
func Next(s State, ev Event) (State, error) {
	switch s.Kind {
	case AwaitingStep:
		if !domain.ValidStep(s.Step) {
			return s, domain.ErrStepNotFound
		}
		switch ev {
		case EventSubmitInvalid:
			return s, nil
		case EventSubmitValid:
			if s.Step < domain.TotalSteps {
				return State{Kind: AwaitingStep, Step: s.Step + 1}, nil
			}
			return State{Kind: ReviewPending}, nil
		}
	case ReviewPending:
		if ev == EventConfirm {
			return State{Kind: Completed}, nil
		}
	}
	return s, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, s)
}

// Visit identifies who is acting and through which browser session.
type Visit struct {
	SessionID string
	UserID    int64
	Locale    string
}

// StepView is what a step page renders.
type StepView struct {
	State      State             `json:"-"`
	Step       int               `json:"step"`
	TotalSteps int               `json:"totalSteps"`
	Previous   int               `json:"previousStep"`
	Answers    []string          `json:"answers"`
	Questions  []domain.Question `json:"questions"`
	Token      string            `json:"encodedParams"`
}

// Transition reports the outcome of a step submission.
type Transition struct {
	From    State
	To      State
	Form    StepForm
	Attempt domain.Attempt
	// Token carries the state for the page the client goes to next.
	Token string
}

// Review is the check-your-answers page.
type Review struct {
	Attempt        domain.Attempt   `json:"attempt"`
	ElapsedSeconds float64          `json:"elapsedSeconds"`
	Purged         int              `json:"-"`
	Answers        []QuestionResult `json:"answers"`
}

// Results is the final score page.
type Results struct {
	Attempt   domain.Attempt   `json:"attempt"`
	Score     ScoreResult      `json:"score"`
	Breakdown []QuestionResult `json:"breakdown"`
}

// FlowController drives a user through the quiz pages and into review and results.
type FlowController struct {
	attempts      *AttemptService
	sessions      SessionStore
	banks         QuestionBankRepository
	scoreboard    *ScoreboardService
	log           *zap.Logger
	metrics       FlowMetrics
	defaultLocale string
	now           func() time.Time
}

// FlowOption customizes a FlowController.
type FlowOption func(*FlowController)

func WithScoreboard(s *ScoreboardService) FlowOption {
	return func(c *FlowController) { c.scoreboard = s }
}

func WithMetrics(m FlowMetrics) FlowOption {
	return func(c *FlowController) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithDefaultLocale(locale string) FlowOption {
	return func(c *FlowController) { c.defaultLocale = locale }
}

// WithClock is test-only for deterministic timers.
func WithClock(now func() time.Time) FlowOption {
	return func(c *FlowController) { c.now = now }
}

func NewFlowController(attempts *AttemptService, sessions SessionStore, banks QuestionBankRepository, log *zap.Logger, opts ...FlowOption) *FlowController {
	if log == nil {
		log = zap.NewNop()
	}
	c := &FlowController{
		attempts:      attempts,
		sessions:      sessions,
		banks:         banks,
		log:           log,
		metrics:       noopMetrics{},
		defaultLocale: "en",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Show renders step for the visitor. Form state is layered: defaults, then the
// token, then the session snapshot. Entering step 1 without saved state starts the
// timer. Entering step 1 when the latest attempt cannot be resumed drops the old
// snapshots and restarts the timer.
func (c *FlowController) Show(ctx context.Context, v Visit, step int, token string) (StepView, error) {
	if !domain.ValidStep(step) {
		return StepView{}, domain.ErrStepNotFound
	}
	form := NewStepForm(step, v.UserID)
	fromToken := c.applyToken(&form, token, step)

	fresh := false
	if step == 1 {
		resumable, err := c.attempts.Resumable(ctx, v.UserID)
		if err != nil {
			return StepView{}, err
		}
		if !resumable {
			if err := c.sessions.ClearForms(ctx, v.SessionID); err != nil {
				return StepView{}, persistence("clear step snapshots", err)
			}
			fresh = true
		}
	}

	snap, saved, err := c.sessions.Form(ctx, v.SessionID, step)
	if err != nil {
		return StepView{}, persistence("load step snapshot", err)
	}

	if step == 1 && (fresh || (!fromToken && !saved)) {
		if err := c.sessions.StartTimer(ctx, v.SessionID, c.now()); err != nil {
			return StepView{}, persistence("start timer", err)
		}
		c.log.Debug("quiz timer started", zap.Int64("user_id", v.UserID))
	}
	if saved {
		form.Restore(snap)
	}
	return c.view(ctx, v, form)
}

// Edit reopens the latest attempt and renders step prefilled with answers, with
// the session snapshot taking precedence.
func (c *FlowController) Edit(ctx context.Context, v Visit, step int, answers []string) (StepView, error) {
	if !domain.ValidStep(step) {
		return StepView{}, domain.ErrStepNotFound
	}
	if err := c.attempts.Reopen(ctx, v.UserID); err != nil {
		return StepView{}, err
	}
	form := NewStepForm(step, v.UserID)
	form.SetAnswers(answers)

	snap, saved, err := c.sessions.Form(ctx, v.SessionID, step)
	if err != nil {
		return StepView{}, persistence("load step snapshot", err)
	}
	if saved {
		form.Restore(snap)
	}
	return c.view(ctx, v, form)
}

// Submit validates the step's answers, merges them into the attempt, snapshots the
// form in the session and advances. An invalid form returns a *domain.ValidationError
// together with a Transition that stays on the step.
func (c *FlowController) Submit(ctx context.Context, v Visit, step int, fields map[string]string, token string) (Transition, error) {
	from := State{Kind: AwaitingStep, Step: step}
	if !domain.ValidStep(step) {
		return Transition{From: from, To: from}, domain.ErrStepNotFound
	}

	form := NewStepForm(step, v.UserID)
	c.applyToken(&form, token, step)
	for key, value := range fields {
		field, ok := ParseField(key)
		if !ok || field == FieldCurrentStep {
			continue
		}
		if err := form.Set(field, value); err != nil {
			return Transition{From: from, To: from, Form: form}, err
		}
	}

	if err := form.Validate(); err != nil {
		c.metrics.StepSubmitted(step, "invalid")
		return Transition{From: from, To: from, Form: form}, err
	}

	attempt, created, err := c.attempts.Merge(ctx, form)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrValidation) {
			outcome = "invalid"
		}
		c.metrics.StepSubmitted(step, outcome)
		return Transition{From: from, To: from, Form: form}, err
	}

	if created {
		if err := c.sessions.ClearForms(ctx, v.SessionID); err != nil {
			return Transition{From: from, To: from, Form: form}, persistence("clear step snapshots", err)
		}
		c.log.Debug("quiz attempt started", zap.Int64("user_id", v.UserID), zap.Int64("attempt_id", attempt.ID))
	}
	if err := c.sessions.SaveForm(ctx, v.SessionID, form.Snapshot()); err != nil {
		return Transition{From: from, To: from, Form: form}, persistence("save step snapshot", err)
	}

	to, err := Next(from, EventSubmitValid)
	if err != nil {
		return Transition{From: from, To: from, Form: form}, err
	}
	c.metrics.StepSubmitted(step, "accepted")

	t := Transition{From: from, To: to, Form: form, Attempt: attempt}
	switch to.Kind {
	case AwaitingStep:
		nextForm := NewStepForm(to.Step, v.UserID)
		snap, ok, serr := c.sessions.Form(ctx, v.SessionID, to.Step)
		if serr != nil {
			return Transition{From: from, To: from, Form: form}, persistence("load step snapshot", serr)
		}
		if ok {
			nextForm.Restore(snap)
		}
		t.Token, err = paramcodec.Encode(nextForm.Params())
	case ReviewPending:
		t.Attempt, err = c.stopTimer(ctx, v, attempt)
		if err != nil {
			return t, err
		}
		t.Token, err = paramcodec.Encode(form.Params())
	}
	if err != nil {
		return t, fmt.Errorf("encode step token: %w", err)
	}

	c.log.Info("quiz step submitted",
		zap.Int64("user_id", v.UserID),
		zap.Int("step", step),
		zap.Int64("attempt_id", attempt.ID),
		zap.Stringer("next", to),
	)
	return t, nil
}

// Review completes the latest attempt, purges other unfinished ones and returns
// the answers for checking.
func (c *FlowController) Review(ctx context.Context, v Visit) (Review, error) {
	latest, err := c.attempts.Latest(ctx, v.UserID)
	if err != nil {
		return Review{}, err
	}
	if latest, err = c.stopTimer(ctx, v, latest); err != nil {
		return Review{}, err
	}

	attempt, purged, err := c.attempts.Complete(ctx, v.UserID)
	if err != nil {
		return Review{}, err
	}
	if purged > 0 {
		c.log.Info("purged unfinished attempts", zap.Int64("user_id", v.UserID), zap.Int("count", purged))
	}

	bank, err := c.bank(ctx, v.Locale)
	if err != nil {
		return Review{}, err
	}
	return Review{
		Attempt:        attempt,
		ElapsedSeconds: attempt.ElapsedSeconds,
		Purged:         purged,
		Answers:        Breakdown(attempt, bank),
	}, nil
}

// Results scores the completed attempt, stores the score, clears the visitor's
// step snapshots and refreshes the scoreboard.
func (c *FlowController) Results(ctx context.Context, v Visit) (Results, error) {
	attempt, _, err := c.attempts.Complete(ctx, v.UserID)
	if err != nil {
		return Results{}, err
	}
	bank, err := c.bank(ctx, v.Locale)
	if err != nil {
		return Results{}, err
	}

	score := Score(attempt, bank)
	attempt, err = c.attempts.RecordScore(ctx, attempt, score.Stored())
	if err != nil {
		return Results{}, err
	}
	if err := c.sessions.ClearForms(ctx, v.SessionID); err != nil {
		return Results{}, persistence("clear step snapshots", err)
	}

	c.metrics.QuizCompleted(score.Stored(), time.Duration(attempt.ElapsedSeconds*float64(time.Second)))
	c.log.Info("quiz scored",
		zap.Int64("user_id", v.UserID),
		zap.Int64("attempt_id", attempt.ID),
		zap.Float64("percentage", score.Percentage),
	)

	if c.scoreboard != nil {
		if _, err := c.scoreboard.Publish(ctx); err != nil {
			c.log.Warn("scoreboard publish failed", zap.Error(err))
		}
	}

	return Results{
		Attempt:   attempt,
		Score:     score,
		Breakdown: Breakdown(attempt, bank),
	}, nil
}

// Leave drops the visitor's step snapshots when they navigate away from the quiz.
func (c *FlowController) Leave(ctx context.Context, sessionID string) error {
	if err := c.sessions.ClearForms(ctx, sessionID); err != nil {
		return persistence("clear step snapshots", err)
	}
	return nil
}

// Bank returns the question bank for locale, falling back to the default locale.
func (c *FlowController) Bank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	return c.bank(ctx, locale)
}

func (c *FlowController) bank(ctx context.Context, locale string) (domain.QuestionBank, error) {
	if locale == "" {
		locale = c.defaultLocale
	}
	bank, err := c.banks.GetBank(ctx, locale)
	if errors.Is(err, domain.ErrQuestionBankNotFound) && locale != c.defaultLocale {
		c.log.Debug("question bank fallback", zap.String("locale", locale), zap.String("fallback", c.defaultLocale))
		bank, err = c.banks.GetBank(ctx, c.defaultLocale)
	}
	return bank, err
}

// stopTimer reads and clears the session timer, recording elapsed time on the attempt.
func (c *FlowController) stopTimer(ctx context.Context, v Visit, attempt domain.Attempt) (domain.Attempt, error) {
	started, ok, err := c.sessions.TakeTimer(ctx, v.SessionID)
	if err != nil {
		return attempt, persistence("stop timer", err)
	}
	if !ok {
		return attempt, nil
	}
	elapsed := c.now().Sub(started).Round(10 * time.Millisecond)
	if elapsed < 0 {
		elapsed = 0
	}
	updated, err := c.attempts.RecordElapsed(ctx, v.UserID, elapsed)
	if err != nil {
		return attempt, err
	}
	c.log.Debug("quiz timer stopped", zap.Int64("user_id", v.UserID), zap.Duration("elapsed", elapsed))
	return updated, nil
}

// applyToken layers token state onto form. A token for a different step, or one that
// fails to decode, is ignored.
func (c *FlowController) applyToken(form *StepForm, token string, step int) bool {
	if token == "" {
		return false
	}
	params, err := paramcodec.Decode(token)
	if err != nil {
		stage := "unknown"
		var derr *domain.DecodeError
		if errors.As(err, &derr) {
			stage = derr.Stage
		}
		c.metrics.TokenRejected(stage)
		c.log.Warn("ignoring undecodable step token", zap.Int("step", step), zap.Error(err))
		return false
	}
	if tokenStep, ok := stepOf(params); ok && tokenStep != step {
		c.metrics.TokenRejected("step")
		c.log.Warn("ignoring token for another step", zap.Int("step", step), zap.Int("token_step", tokenStep))
		return false
	}
	next := *form
	if err := next.ApplyParams(params); err != nil {
		c.metrics.TokenRejected("fields")
		c.log.Warn("ignoring malformed step token", zap.Int("step", step), zap.Error(err))
		return false
	}
	next.CurrentStep = step
	*form = next
	return true
}

func (c *FlowController) view(ctx context.Context, v Visit, form StepForm) (StepView, error) {
	bank, err := c.bank(ctx, v.Locale)
	if err != nil {
		return StepView{}, err
	}
	token, err := paramcodec.Encode(form.Params())
	if err != nil {
		return StepView{}, fmt.Errorf("encode step token: %w", err)
	}
	return StepView{
		State:      State{Kind: AwaitingStep, Step: form.CurrentStep},
		Step:       form.CurrentStep,
		TotalSteps: domain.TotalSteps,
		Previous:   form.PreviousStep(),
		Answers:    form.AnswerList(),
		Questions:  bank.Page(form.CurrentStep),
		Token:      token,
	}, nil
}
