package http

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quizapp-service/internal/app"
	"quizapp-service/internal/domain"
)

const csvDateLayout = "January 02, 2006"

func (h *handler) showScoreboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.scoreboard.Top(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, board)
		return
	}

	rows := [][]string{{"Quiz", "Username", "Date", "Score"}}
	for _, e := range board.Entries {
		rows = append(rows, []string{
			strconv.FormatInt(e.AttemptID, 10),
			e.Username,
			e.DateAttempted.Format(csvDateLayout),
			fmt.Sprintf("%d%%", e.Score),
		})
	}
	h.writeCSV(w, "top_scores.csv", rows)
}

// download exports one scored attempt with its per-question breakdown.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, h.log, domain.ErrAttemptNotFound)
		return
	}
	attempt, err := h.attempts.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !attempt.Completed || attempt.Score == nil {
		writeError(w, h.log, domain.ErrAttemptNotFound)
		return
	}

	username := ""
	owner, err := h.users.Get(r.Context(), attempt.UserID)
	switch {
	case err == nil:
		username = owner.Username
	case errors.Is(err, domain.ErrUserNotFound):
	default:
		writeError(w, h.log, fmt.Errorf("%w: load attempt owner: %v", domain.ErrPersistence, err))
		return
	}

	bank, err := h.flow.Bank(r.Context(), currentUser(r).Language)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	rows := [][]string{{"Quiz_ID", "Username", "Date_Attempted", "Overall_Score", "Question", "Given_Answer", "Correct_Answer"}}
	for _, q := range app.Breakdown(attempt, bank) {
		rows = append(rows, []string{
			strconv.FormatInt(attempt.ID, 10),
			username,
			attempt.DateAttempted.Format(csvDateLayout),
			fmt.Sprintf("%d%%", *attempt.Score),
			q.Question,
			q.GivenAnswer,
			q.CorrectAnswer,
		})
	}
	h.writeCSV(w, fmt.Sprintf("quiz_%d_results.csv", attempt.ID), rows)
}

func (h *handler) writeCSV(w http.ResponseWriter, filename string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		h.log.Warn("write csv", zap.String("file", filename), zap.Error(err))
	}
}
