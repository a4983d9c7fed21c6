package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/infra/memory"
	"quizapp-service/internal/paramcodec"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from app.State
		ev   app.Event
		want app.State
	}{
		{app.State{Kind: app.AwaitingStep, Step: 1}, app.EventSubmitValid, app.State{Kind: app.AwaitingStep, Step: 2}},
		{app.State{Kind: app.AwaitingStep, Step: 2}, app.EventSubmitInvalid, app.State{Kind: app.AwaitingStep, Step: 2}},
		{app.State{Kind: app.AwaitingStep, Step: 3}, app.EventSubmitValid, app.State{Kind: app.ReviewPending}},
		{app.State{Kind: app.ReviewPending}, app.EventConfirm, app.State{Kind: app.Completed}},
	}
	for _, tc := range cases {
		got, err := app.Next(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("%s on %s: %v", tc.ev, tc.from, err)
		}
		if got != tc.want {
			t.Fatalf("%s on %s: want %s, got %s", tc.ev, tc.from, tc.want, got)
		}
	}

	if _, err := app.Next(app.State{Kind: app.AwaitingStep, Step: 4}, app.EventSubmitValid); !errors.Is(err, domain.ErrStepNotFound) {
		t.Fatalf("expected step not found, got %v", err)
	}
	if _, err := app.Next(app.State{Kind: app.Completed}, app.EventSubmitValid); !errors.Is(err, app.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := app.Next(app.State{Kind: app.AwaitingStep, Step: 1}, app.EventConfirm); !errors.Is(err, app.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestFullTraversal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1, Locale: "en"}

	view, err := env.flow.Show(ctx, visit, 1, "")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(view.Questions) != domain.QuestionsPerPage || view.TotalSteps != domain.TotalSteps {
		t.Fatalf("unexpected view %+v", view)
	}

	var tr app.Transition
	for step := 1; step <= domain.TotalSteps; step++ {
		env.now = env.now.Add(30 * time.Second)
		tr, err = env.flow.Submit(ctx, visit, step, correctFields(step), "")
		if err != nil {
			t.Fatalf("submit step %d: %v", step, err)
		}
	}
	if tr.To.Kind != app.ReviewPending {
		t.Fatalf("expected review pending, got %s", tr.To)
	}
	if tr.Attempt.ElapsedSeconds != 90 {
		t.Fatalf("expected 90s elapsed, got %v", tr.Attempt.ElapsedSeconds)
	}

	review, err := env.flow.Review(ctx, visit)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !review.Attempt.Completed || len(review.Answers) != 15 || review.ElapsedSeconds != 90 {
		t.Fatalf("unexpected review %+v", review)
	}

	results, err := env.flow.Results(ctx, visit)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if results.Score.Percentage != 100 || results.Attempt.Score == nil || *results.Attempt.Score != 100 {
		t.Fatalf("unexpected results %+v", results.Score)
	}
	if _, ok, _ := env.sessions.Form(ctx, "sid", 1); ok {
		t.Fatalf("expected step snapshots cleared after results")
	}
}

func TestSubmitInvalidStaysOnStep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	tr, err := env.flow.Submit(ctx, visit, 2, map[string]string{"answer_2": "x", "answer_4": "y"}, "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 3 {
		t.Fatalf("expected 3 validation errors, got %v", err)
	}
	if tr.To != tr.From || tr.Form.Answers[1] != "x" {
		t.Fatalf("expected to stay on the step with answers kept, got %+v", tr)
	}
	if all, _ := env.attempts.ListByUser(ctx, 1); len(all) != 0 {
		t.Fatalf("invalid submissions must not persist")
	}
	if _, ok, _ := env.sessions.Form(ctx, "sid", 2); ok {
		t.Fatalf("invalid submissions must not be snapshotted")
	}
}

func TestSubmitUnknownStep(t *testing.T) {
	env := newTestEnv(t)
	for _, step := range []int{0, 4, -1} {
		if _, err := env.flow.Submit(context.Background(), app.Visit{SessionID: "sid", UserID: 1}, step, correctFields(1), ""); !errors.Is(err, domain.ErrStepNotFound) {
			t.Fatalf("step %d: expected not found, got %v", step, err)
		}
		if _, err := env.flow.Show(context.Background(), app.Visit{SessionID: "sid", UserID: 1}, step, ""); !errors.Is(err, domain.ErrStepNotFound) {
			t.Fatalf("show step %d: expected not found, got %v", step, err)
		}
	}
}

func TestResubmissionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	first, err := env.flow.Submit(ctx, visit, 1, correctFields(1), "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := env.flow.Submit(ctx, visit, 1, correctFields(1), "")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first.Attempt.ID != second.Attempt.ID || first.To != second.To {
		t.Fatalf("resubmission diverged: %+v vs %+v", first, second)
	}
	all, _ := env.attempts.ListByUser(ctx, 1)
	if len(all) != 1 {
		t.Fatalf("expected one attempt, got %d", len(all))
	}
}

func TestTokenAndSessionReconstructTheSameForm(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	if _, err := env.flow.Submit(ctx, visit, 1, correctFields(1), ""); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	if _, err := env.flow.Submit(ctx, visit, 2, correctFields(2), ""); err != nil {
		t.Fatalf("submit 2: %v", err)
	}

	// Going back to step 1 via the session snapshot.
	fromSession, err := env.flow.Show(ctx, visit, 1, "")
	if err != nil {
		t.Fatalf("show from session: %v", err)
	}

	// The same step rendered from its token alone, in a fresh session.
	fresh := app.Visit{SessionID: "other", UserID: 1}
	fromToken, err := env.flow.Show(ctx, fresh, 1, fromSession.Token)
	if err != nil {
		t.Fatalf("show from token: %v", err)
	}
	if !equalStrings(fromSession.Answers, fromToken.Answers) {
		t.Fatalf("token and session disagree: %v vs %v", fromSession.Answers, fromToken.Answers)
	}
	if fromToken.Answers[0] != ref(1, 1) {
		t.Fatalf("expected restored answers, got %v", fromToken.Answers)
	}
}

func TestSubmitTokenPointsAtNextStep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	tr, err := env.flow.Submit(ctx, visit, 1, correctFields(1), "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	params, err := paramcodec.Decode(tr.Token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if params.String("current_step") != "2" {
		t.Fatalf("expected token for step 2, got %v", params)
	}
}

func TestExplicitFieldsOverrideToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	token, err := paramcodec.Encode(paramcodec.Params{
		"answer":       []string{"t1", "t2", "t3", "t4", "t5"},
		"current_step": "1",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tr, err := env.flow.Submit(ctx, visit, 1, map[string]string{"answer_2": "explicit"}, token)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := [domain.QuestionsPerPage]string{"t1", "explicit", "t3", "t4", "t5"}
	if tr.Form.Answers != want {
		t.Fatalf("want %v, got %v", want, tr.Form.Answers)
	}
}

func TestBadTokensAreIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	view, err := env.flow.Show(ctx, visit, 2, "definitely-not-a-token")
	if err != nil {
		t.Fatalf("show with bad token: %v", err)
	}
	if view.Answers[0] != "" {
		t.Fatalf("expected an empty form, got %v", view.Answers)
	}

	otherStep, _ := paramcodec.Encode(paramcodec.Params{"answer": []string{"a", "b", "c", "d", "e"}, "current_step": "3"})
	view, err = env.flow.Show(ctx, visit, 2, otherStep)
	if err != nil {
		t.Fatalf("show with mismatched token: %v", err)
	}
	if view.Answers[0] != "" {
		t.Fatalf("token for another step must be ignored, got %v", view.Answers)
	}
}

func TestTimerStartsOnlyOnFreshFirstStep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	if _, err := env.flow.Show(ctx, visit, 2, ""); err != nil {
		t.Fatalf("show 2: %v", err)
	}
	if _, ok, _ := env.sessions.TakeTimer(ctx, "sid"); ok {
		t.Fatalf("timer must not start on step 2")
	}

	if _, err := env.flow.Show(ctx, visit, 1, ""); err != nil {
		t.Fatalf("show 1: %v", err)
	}
	started, ok, _ := env.sessions.TakeTimer(ctx, "sid")
	if !ok || !started.Equal(env.now) {
		t.Fatalf("expected timer started at %v, got %v ok=%v", env.now, started, ok)
	}

	if _, err := env.flow.Submit(ctx, visit, 1, correctFields(1), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.flow.Show(ctx, visit, 1, ""); err != nil {
		t.Fatalf("revisit 1: %v", err)
	}
	if _, ok, _ := env.sessions.TakeTimer(ctx, "sid"); ok {
		t.Fatalf("revisiting a saved step 1 must not restart the timer")
	}
}

func TestNewAttemptStartsFromACleanSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	// Day one: two steps answered, then abandoned.
	if _, err := env.flow.Show(ctx, visit, 1, ""); err != nil {
		t.Fatalf("show 1: %v", err)
	}
	var first app.Transition
	for step := 1; step <= 2; step++ {
		tr, err := env.flow.Submit(ctx, visit, step, map[string]string{
			"answer_1": "old", "answer_2": "old", "answer_3": "old", "answer_4": "old", "answer_5": "old",
		}, "")
		if err != nil {
			t.Fatalf("day one step %d: %v", step, err)
		}
		first = tr
	}

	env.now = env.now.Add(24 * time.Hour)
	view, err := env.flow.Show(ctx, visit, 1, "")
	if err != nil {
		t.Fatalf("show 1 next day: %v", err)
	}
	if view.Answers[0] != "" {
		t.Fatalf("step 1 must not carry yesterday's answers, got %v", view.Answers)
	}

	var tr app.Transition
	for step := 1; step <= domain.TotalSteps; step++ {
		env.now = env.now.Add(time.Minute)
		if step == 2 {
			view, err := env.flow.Show(ctx, visit, 2, "")
			if err != nil {
				t.Fatalf("show 2: %v", err)
			}
			if view.Answers[0] != "" {
				t.Fatalf("step 2 must not carry yesterday's answers, got %v", view.Answers)
			}
		}
		tr, err = env.flow.Submit(ctx, visit, step, correctFields(step), "")
		if err != nil {
			t.Fatalf("submit %d: %v", step, err)
		}
	}
	if tr.Attempt.ID == first.Attempt.ID {
		t.Fatalf("expected a second attempt")
	}
	if !tr.Attempt.DateAttempted.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", tr.Attempt.DateAttempted)
	}
	if tr.Attempt.ElapsedSeconds != 180 {
		t.Fatalf("expected 180s elapsed on the new attempt, got %v", tr.Attempt.ElapsedSeconds)
	}
}

func TestSubmitWithoutShowDropsStaleSnapshots(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	for step := 1; step <= 2; step++ {
		if _, err := env.flow.Submit(ctx, visit, step, correctFields(step), ""); err != nil {
			t.Fatalf("submit %d: %v", step, err)
		}
	}
	env.now = env.now.Add(24 * time.Hour)

	tr, err := env.flow.Submit(ctx, visit, 1, correctFields(1), "")
	if err != nil {
		t.Fatalf("submit next day: %v", err)
	}
	if _, ok, _ := env.sessions.Form(ctx, "sid", 2); ok {
		t.Fatalf("a new attempt must not keep the old step 2 snapshot")
	}
	params, err := paramcodec.Decode(tr.Token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answers := params.Strings("answer"); len(answers) != 0 && answers[0] != "" {
		t.Fatalf("next step token must be empty, got %v", answers)
	}
}

// brokenSnapshots fails every snapshot read after step 1.
type brokenSnapshots struct {
	*memory.SessionStore
}

func (b brokenSnapshots) Form(ctx context.Context, sessionID string, step int) (domain.FormSnapshot, bool, error) {
	if step > 1 {
		return domain.FormSnapshot{}, false, errors.New("connection reset")
	}
	return b.SessionStore.Form(ctx, sessionID, step)
}

func TestSubmitFailsWhenSnapshotsCannotBeRead(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	banks := memory.NewQuestionBankRepository(memory.NewStaticBankLoader(map[string]domain.QuestionBank{
		"en": testBank(),
	}), time.Minute)
	flow := app.NewFlowController(env.service, brokenSnapshots{env.sessions}, banks, nil)

	_, err := flow.Submit(ctx, app.Visit{SessionID: "sid", UserID: 1}, 1, correctFields(1), "")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected a persistence error, got %v", err)
	}
}

func TestEditReopensAndPrefills(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}

	for step := 1; step <= domain.TotalSteps; step++ {
		if _, err := env.flow.Submit(ctx, visit, step, correctFields(step), ""); err != nil {
			t.Fatalf("submit %d: %v", step, err)
		}
	}
	if _, err := env.flow.Review(ctx, visit); err != nil {
		t.Fatalf("review: %v", err)
	}

	view, err := env.flow.Edit(ctx, app.Visit{SessionID: "fresh", UserID: 1}, 2, []string{"p", "q", "r", "s", "t"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if view.Answers[0] != "p" {
		t.Fatalf("expected answers prefilled from the request, got %v", view.Answers)
	}
	latest, _ := env.service.Latest(ctx, 1)
	if latest.Completed {
		t.Fatalf("expected latest attempt reopened")
	}

	view, err = env.flow.Edit(ctx, visit, 2, []string{"p", "q", "r", "s", "t"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if view.Answers[0] != ref(2, 1) {
		t.Fatalf("session snapshot must win over request answers, got %v", view.Answers)
	}
}

func TestReviewWithoutAttempt(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.flow.Review(context.Background(), app.Visit{SessionID: "sid", UserID: 1}); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestLeaveClearsSnapshotsOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	visit := app.Visit{SessionID: "sid", UserID: 1}
	if err := env.sessions.SetUser(ctx, "sid", 1); err != nil {
		t.Fatalf("set user: %v", err)
	}
	if _, err := env.flow.Submit(ctx, visit, 1, correctFields(1), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.flow.Leave(ctx, "sid"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, ok, _ := env.sessions.Form(ctx, "sid", 1); ok {
		t.Fatalf("expected snapshots cleared")
	}
	if _, ok, _ := env.sessions.User(ctx, "sid"); !ok {
		t.Fatalf("leaving the quiz must not sign the user out")
	}
}

func TestBankFallsBackToDefaultLocale(t *testing.T) {
	env := newTestEnv(t)
	bank, err := env.flow.Bank(context.Background(), "fr")
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	if bank.Locale != "en" {
		t.Fatalf("expected fallback to en, got %q", bank.Locale)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
