package app

import (
	"fmt"
	"strconv"
	"strings"

	"quizapp-service/internal/domain"
	"quizapp-service/internal/paramcodec"
)

// Field names one assignable attribute of a StepForm.
type Field int

const (
	FieldAnswer1 Field = iota
	FieldAnswer2
	FieldAnswer3
	FieldAnswer4
	FieldAnswer5
	FieldCurrentStep
)

var fieldNames = map[string]Field{
	"answer_1":     FieldAnswer1,
	"answer_2":     FieldAnswer2,
	"answer_3":     FieldAnswer3,
	"answer_4":     FieldAnswer4,
	"answer_5":     FieldAnswer5,
	"current_step": FieldCurrentStep,
}

// ParseField maps a form key to its Field. The owning user is never assignable from input.
func ParseField(key string) (Field, bool) {
	f, ok := fieldNames[key]
	return f, ok
}

// StepForm holds one page of answers for a user. An empty slot is an unanswered question.
type StepForm struct {
	CurrentStep int
	UserID      int64
	Answers     [domain.QuestionsPerPage]string
}

// NewStepForm returns an empty form for step.
func NewStepForm(step int, userID int64) StepForm {
	return StepForm{CurrentStep: step, UserID: userID}
}

// Set assigns a single field.
func (f *StepForm) Set(field Field, value string) error {
	switch field {
	case FieldAnswer1, FieldAnswer2, FieldAnswer3, FieldAnswer4, FieldAnswer5:
		f.Answers[int(field-FieldAnswer1)] = value
	case FieldCurrentStep:
		step, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("current_step %q: %w", value, err)
		}
		f.CurrentStep = step
	default:
		return fmt.Errorf("unknown field %d", field)
	}
	return nil
}

// SetAnswers copies answers positionally into the slots; extra values are ignored.
func (f *StepForm) SetAnswers(answers []string) {
	for i := 0; i < len(answers) && i < domain.QuestionsPerPage; i++ {
		f.Answers[i] = answers[i]
	}
}

// Validate reports every blank slot.
func (f StepForm) Validate() error {
	verr := &domain.ValidationError{}
	for i, answer := range f.Answers {
		if strings.TrimSpace(answer) == "" {
			verr.Add("answer_"+strconv.Itoa(i+1), "blank")
		}
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

// AnswerList returns the slots as a slice in question order.
func (f StepForm) AnswerList() []string {
	return append([]string(nil), f.Answers[:]...)
}

// PreviousStep is the step a back link should point to.
func (f StepForm) PreviousStep() int {
	if f.CurrentStep > 1 {
		return f.CurrentStep - 1
	}
	return f.CurrentStep
}

// Snapshot captures the form for the session tracker.
func (f StepForm) Snapshot() domain.FormSnapshot {
	return domain.FormSnapshot{
		CurrentStep: f.CurrentStep,
		UserID:      f.UserID,
		Answers:     f.AnswerList(),
	}
}

// Restore overlays a saved snapshot's answers onto the form.
func (f *StepForm) Restore(snap domain.FormSnapshot) {
	f.Answers = [domain.QuestionsPerPage]string{}
	f.SetAnswers(snap.Answers)
}

// Params renders the form as token parameters.
func (f StepForm) Params() paramcodec.Params {
	return paramcodec.Params{
		"answer":       f.AnswerList(),
		"current_step": strconv.Itoa(f.CurrentStep),
	}
}

// ApplyParams assigns the recognised keys of decoded token parameters. It accepts
// the answer array layout as well as answer_N keys, optionally nested under quiz_form.
func (f *StepForm) ApplyParams(params paramcodec.Params) error {
	if nested := params.Map("quiz_form"); nested != nil {
		if err := f.ApplyParams(nested); err != nil {
			return err
		}
	}
	if answers := params.Strings("answer"); answers != nil {
		f.SetAnswers(answers)
	}
	for key, value := range params {
		field, ok := ParseField(key)
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok {
			continue
		}
		if err := f.Set(field, s); err != nil {
			return err
		}
	}
	return nil
}

// stepOf returns the current_step carried by params, if any.
func stepOf(params paramcodec.Params) (int, bool) {
	raw := params.String("current_step")
	if raw == "" {
		if nested := params.Map("quiz_form"); nested != nil {
			raw = nested.String("current_step")
		}
	}
	if raw == "" {
		return 0, false
	}
	step, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return step, true
}
