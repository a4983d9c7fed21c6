package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// TotalSteps is the number of question pages in a quiz traversal.
	TotalSteps = 3
	// QuestionsPerPage is the fixed number of answer slots on every page.
	QuestionsPerPage = 5
	// NotApplicable marks free-text or unknown answers; it never scores.
	NotApplicable = "N/A"
	// ScoreboardSize caps the scoreboard listing.
	ScoreboardSize = 10
)

const pageKeyPrefix = "question_page_"

// PageKey returns the answer sheet key for a 1-based step.
func PageKey(step int) string {
	return pageKeyPrefix + strconv.Itoa(step)
}

// PageNumber extracts the step number from a page key.
func PageNumber(key string) (int, bool) {
	raw, ok := strings.CutPrefix(key, pageKeyPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ValidStep reports whether step addresses a quiz page.
func ValidStep(step int) bool {
	return step >= 1 && step <= TotalSteps
}

// AnswerSheet maps page keys to the per-question answers submitted on that page.
type AnswerSheet map[string][]string

// Pages returns the page keys ordered by page number.
func (s AnswerSheet) Pages() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, iok := PageNumber(keys[i])
		nj, jok := PageNumber(keys[j])
		if iok && jok && ni != nj {
			return ni < nj
		}
		if iok != jok {
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Clone returns a deep copy of the sheet.
func (s AnswerSheet) Clone() AnswerSheet {
	out := make(AnswerSheet, len(s))
	for k, v := range s {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// User is a registered quiz taker.
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	Language       string    `json:"language"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Attempt is one user's traversal of the quiz.
type Attempt struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"userId"`
	Answers        AnswerSheet `json:"answer"`
	DateAttempted  time.Time   `json:"dateAttempted"`
	Completed      bool        `json:"completed"`
	Score          *int        `json:"score,omitempty"`
	ElapsedSeconds float64     `json:"elapsedSeconds"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Validate checks the attempt's persistence invariants.
func (a Attempt) Validate() error {
	verr := &ValidationError{}
	if len(a.Answers) == 0 {
		verr.Add("answer", "can't be empty")
	}
	if a.DateAttempted.IsZero() {
		verr.Add("date_attempted", "can't be blank")
	}
	for _, page := range a.Answers.Pages() {
		if got := len(a.Answers[page]); got != QuestionsPerPage {
			verr.Add("answer", fmt.Sprintf("%s has %d answers, want %d", page, got, QuestionsPerPage))
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// Question is one entry in a question bank.
type Question struct {
	Text          string   `json:"question" yaml:"question"`
	CorrectAnswer string   `json:"correct_answer" yaml:"correct_answer"`
	Options       []string `json:"options,omitempty" yaml:"options,omitempty"`
}

// QuestionPage groups the questions shown on one step.
type QuestionPage struct {
	Questions []Question `json:"questions" yaml:"questions"`
}

// QuestionBank holds the questions and reference answers for one locale.
type QuestionBank struct {
	Locale string         `json:"locale" yaml:"locale"`
	Pages  []QuestionPage `json:"pages" yaml:"pages"`
}

// Question returns the question text for a 1-based page and 0-based index, or NotApplicable.
func (b QuestionBank) Question(page, index int) string {
	q, ok := b.lookup(page, index)
	if !ok || q.Text == "" {
		return NotApplicable
	}
	return q.Text
}

// CorrectAnswer returns the reference answer for a 1-based page and 0-based index, or NotApplicable.
func (b QuestionBank) CorrectAnswer(page, index int) string {
	q, ok := b.lookup(page, index)
	if !ok || q.CorrectAnswer == "" {
		return NotApplicable
	}
	return q.CorrectAnswer
}

// Page returns the questions for a 1-based page.
func (b QuestionBank) Page(page int) []Question {
	if page < 1 || page > len(b.Pages) {
		return nil
	}
	return b.Pages[page-1].Questions
}

// TotalQuestions is the fixed question count used as the scoring denominator.
func (b QuestionBank) TotalQuestions() int {
	total := 0
	for _, p := range b.Pages {
		total += len(p.Questions)
	}
	return total
}

func (b QuestionBank) lookup(page, index int) (Question, bool) {
	qs := b.Page(page)
	if index < 0 || index >= len(qs) {
		return Question{}, false
	}
	return qs[index], true
}

// ScoreboardEntry is one row of the top-scores listing.
type ScoreboardEntry struct {
	AttemptID     int64     `json:"attemptId"`
	UserID        int64     `json:"userId"`
	Username      string    `json:"username"`
	DateAttempted time.Time `json:"dateAttempted"`
	Score         int       `json:"score"`
}

// Scoreboard is the ordered list of top completed attempts.
type Scoreboard struct {
	Entries   []ScoreboardEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// FormSnapshot is the serialized state of one step form kept in the browser session.
type FormSnapshot struct {
	CurrentStep int      `json:"current_step"`
	UserID      int64    `json:"current_user_id"`
	Answers     []string `json:"answers"`
}
