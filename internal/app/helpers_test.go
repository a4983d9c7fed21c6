package app_test

import (
	"strconv"
	"testing"
	"time"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/memory"
)

type testEnv struct {
	now        time.Time
	attempts   *memory.AttemptStore
	users      *memory.UserStore
	sessions   *memory.SessionStore
	service    *app.AttemptService
	scoreboard *app.ScoreboardService
	flow       *app.FlowController
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		attempts: memory.NewAttemptStore(),
		users:    memory.NewUserStore(),
		sessions: memory.NewSessionStore(),
	}
	clock := func() time.Time { return env.now }
	env.service = app.NewAttemptServiceWithClock(env.attempts, time.UTC, clock)
	env.scoreboard = app.NewScoreboardServiceWithClock(env.attempts, env.users, clock)
	banks := memory.NewQuestionBankRepository(memory.NewStaticBankLoader(map[string]domain.QuestionBank{
		"en": testBank(),
	}), time.Minute)
	env.flow = app.NewFlowController(env.service, env.sessions, banks, nil,
		app.WithClock(clock),
		app.WithScoreboard(env.scoreboard),
	)
	return env
}

// testBank has reference answers "p.q" for page p and question q.
func testBank() domain.QuestionBank {
	bank := domain.QuestionBank{Locale: "en"}
	for p := 1; p <= domain.TotalSteps; p++ {
		page := domain.QuestionPage{}
		for q := 1; q <= domain.QuestionsPerPage; q++ {
			page.Questions = append(page.Questions, domain.Question{
				Text:          "question " + ref(p, q),
				CorrectAnswer: ref(p, q),
			})
		}
		bank.Pages = append(bank.Pages, page)
	}
	return bank
}

func ref(page, question int) string {
	return strconv.Itoa(page) + "." + strconv.Itoa(question)
}

// correctFields returns a fully correct submission for step.
func correctFields(step int) map[string]string {
	fields := map[string]string{}
	for q := 1; q <= domain.QuestionsPerPage; q++ {
		fields["answer_"+strconv.Itoa(q)] = ref(step, q)
	}
	return fields
}

func fullForm(step int, userID int64, answers ...string) app.StepForm {
	form := app.NewStepForm(step, userID)
	form.SetAnswers(answers)
	return form
}

func newServiceIn(env *testEnv, loc *time.Location) *app.AttemptService {
	return app.NewAttemptServiceWithClock(env.attempts, loc, func() time.Time { return env.now })
}
