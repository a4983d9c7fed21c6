package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
	"quizapp-service/internal/paramcodec"
)

const maxFormBytes = 64 << 10

type submitResponse struct {
	Next          string         `json:"next"`
	EncodedParams string         `json:"encodedParams"`
	Attempt       domain.Attempt `json:"attempt"`
}

type invalidStepResponse struct {
	Error   string              `json:"error"`
	Errors  []domain.FieldError `json:"errors"`
	Step    int                 `json:"step"`
	Answers []string            `json:"answers"`
}

func visitOf(r *http.Request) app.Visit {
	user := currentUser(r)
	return app.Visit{SessionID: sessionID(r), UserID: user.ID, Locale: user.Language}
}

func stepParam(r *http.Request) (int, error) {
	step, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || !domain.ValidStep(step) {
		return 0, domain.ErrStepNotFound
	}
	return step, nil
}

func (h *handler) showStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	view, err := h.flow.Show(r.Context(), visitOf(r), step, r.URL.Query().Get("encoded_params"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// editStep takes prefilled answers as answer[question_N][]=... query parameters.
func (h *handler) editStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var answers []string
	if params, err := paramcodec.ParseQuery(r.URL.RawQuery); err == nil {
		answers = params.Map("answer").Strings(fmt.Sprintf("question_%d", step))
	}
	view, err := h.flow.Edit(r.Context(), visitOf(r), step, answers)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *handler) submitStep(w http.ResponseWriter, r *http.Request) {
	step, err := stepParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	fields, token, err := readSubmission(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	t, err := h.flow.Submit(r.Context(), visitOf(r), step, fields, token)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, invalidStepResponse{
			Error:   domain.ErrValidation.Error(),
			Errors:  verr.Fields,
			Step:    step,
			Answers: t.Form.AnswerList(),
		})
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	next := "/steps/check_your_answers"
	if t.To.Kind == app.AwaitingStep {
		next = fmt.Sprintf("/steps/%d", t.To.Step)
	}
	next += "?encoded_params=" + url.QueryEscape(t.Token)
	w.Header().Set("Location", next)
	writeJSON(w, http.StatusSeeOther, submitResponse{Next: next, EncodedParams: t.Token, Attempt: t.Attempt})
}

// readSubmission accepts either a JSON object or a urlencoded body. Answer fields may
// be top level (answer_1) or nested (quiz_form[answer_1]); encoded_params may come from
// the body or the query string.
func readSubmission(r *http.Request) (map[string]string, string, error) {
	token := r.URL.Query().Get("encoded_params")
	fields := map[string]string{}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return fields, token, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, "", fmt.Errorf("decode json body: %w", err)
		}
		collectStrings(fields, body)
		if nested, ok := body["quiz_form"].(map[string]any); ok {
			collectStrings(fields, nested)
		}
		if s, ok := body["encoded_params"].(string); ok && s != "" {
			token = s
		}
		return fields, token, nil
	}

	params, err := paramcodec.ParseQuery(string(raw))
	if err != nil {
		return nil, "", fmt.Errorf("decode form body: %w", err)
	}
	collectParams(fields, params)
	if nested := params.Map("quiz_form"); nested != nil {
		collectParams(fields, nested)
	}
	if s := params.String("encoded_params"); s != "" {
		token = s
	}
	return fields, token, nil
}

func collectStrings(dst map[string]string, src map[string]any) {
	for k, v := range src {
		if _, ok := app.ParseField(k); !ok {
			continue
		}
		if s, ok := v.(string); ok {
			dst[k] = s
		}
	}
}

func collectParams(dst map[string]string, src paramcodec.Params) {
	for k := range src {
		if _, ok := app.ParseField(k); ok {
			dst[k] = src.String(k)
		}
	}
}

func (h *handler) review(w http.ResponseWriter, r *http.Request) {
	review, err := h.flow.Review(r.Context(), visitOf(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

func (h *handler) results(w http.ResponseWriter, r *http.Request) {
	results, err := h.flow.Results(r.Context(), visitOf(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}
