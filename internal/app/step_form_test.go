package app_test

import (
	"errors"
	"testing"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/paramcodec"
)

func TestValidateReportsEveryBlankSlot(t *testing.T) {
	form := fullForm(1, 1, "", "x", "", "y", "   ")

	err := form.Validate()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 errors, got %+v", verr.Fields)
	}
	want := []string{"answer_1", "answer_3", "answer_5"}
	for i, f := range verr.Fields {
		if f.Field != want[i] || f.Message != "blank" {
			t.Fatalf("unexpected error %d: %+v", i, f)
		}
	}

	if err := fullForm(1, 1, "a", "b", "c", "d", "e").Validate(); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
}

func TestSetField(t *testing.T) {
	form := app.NewStepForm(1, 1)
	field, ok := app.ParseField("answer_4")
	if !ok {
		t.Fatalf("expected answer_4 to be a field")
	}
	if err := form.Set(field, "Everest"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if form.Answers[3] != "Everest" {
		t.Fatalf("expected slot 4 set, got %+v", form.Answers)
	}
	if _, ok := app.ParseField("current_user_id"); ok {
		t.Fatalf("the owning user must not be assignable")
	}
	if err := form.Set(app.FieldCurrentStep, "two"); err == nil {
		t.Fatalf("expected error for non-numeric step")
	}
}

func TestApplyParamsAcceptsBothLayouts(t *testing.T) {
	form := app.NewStepForm(1, 1)
	err := form.ApplyParams(paramcodec.Params{"quiz_form": paramcodec.Params{
		"answer_1":     "apples",
		"answer_2":     "bananas",
		"current_step": "1",
	}})
	if err != nil {
		t.Fatalf("apply nested: %v", err)
	}
	if form.Answers[0] != "apples" || form.Answers[1] != "bananas" {
		t.Fatalf("unexpected answers %+v", form.Answers)
	}

	form = app.NewStepForm(2, 1)
	if err := form.ApplyParams(paramcodec.Params{"answer": []string{"a", "b", "c", "d", "e", "ignored"}}); err != nil {
		t.Fatalf("apply array: %v", err)
	}
	if form.Answers != [domain.QuestionsPerPage]string{"a", "b", "c", "d", "e"} {
		t.Fatalf("unexpected answers %+v", form.Answers)
	}
}

func TestSnapshotRestore(t *testing.T) {
	form := fullForm(2, 9, "a", "b", "c", "d", "e")
	snap := form.Snapshot()
	if snap.CurrentStep != 2 || snap.UserID != 9 || len(snap.Answers) != domain.QuestionsPerPage {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	restored := fullForm(2, 9, "x", "x", "x", "x", "x")
	restored.Restore(snap)
	if restored != form {
		t.Fatalf("restore mismatch: %+v vs %+v", restored, form)
	}
	if form.PreviousStep() != 1 || app.NewStepForm(1, 9).PreviousStep() != 1 {
		t.Fatalf("unexpected previous step")
	}
}
