package app

import (
	"math"
	"strings"

	"quizapp-service/internal/domain"
)

// ScoreResult summarizes a scored attempt.
type ScoreResult struct {
	Percentage float64 `json:"percentage"`
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
}

// Stored is the integer score persisted on the attempt (truncated).
func (r ScoreResult) Stored() int {
	return int(r.Percentage)
}

// QuestionResult is one line of the per-question breakdown.
type QuestionResult struct {
	Page          int    `json:"page"`
	Index         int    `json:"index"`
	Question      string `json:"question"`
	GivenAnswer   string `json:"givenAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

// Breakdown lists every answered question of the attempt in page order.
func Breakdown(attempt domain.Attempt, bank domain.QuestionBank) []QuestionResult {
	var out []QuestionResult
	for i, key := range attempt.Answers.Pages() {
		page, ok := domain.PageNumber(key)
		if !ok {
			page = i + 1
		}
		for idx, given := range attempt.Answers[key] {
			reference := bank.CorrectAnswer(page, idx)
			out = append(out, QuestionResult{
				Page:          page,
				Index:         idx,
				Question:      bank.Question(page, idx),
				GivenAnswer:   given,
				CorrectAnswer: reference,
				Correct:       answerMatches(given, reference),
			})
		}
	}
	return out
}

// Score compares the attempt with the bank's reference answers. The denominator is the
// bank's fixed question count, not the number of questions answered.
func Score(attempt domain.Attempt, bank domain.QuestionBank) ScoreResult {
	correct := 0
	for _, r := range Breakdown(attempt, bank) {
		if r.Correct {
			correct++
		}
	}
	total := bank.TotalQuestions()
	result := ScoreResult{Correct: correct, Total: total}
	if total > 0 {
		result.Percentage = math.Round(float64(correct)/float64(total)*100*100) / 100
	}
	return result
}

// answerMatches is a trimmed, case-insensitive comparison. N/A never matches.
func answerMatches(given, reference string) bool {
	given = strings.TrimSpace(given)
	reference = strings.TrimSpace(reference)
	if given == "" || reference == domain.NotApplicable || given == domain.NotApplicable {
		return false
	}
	return strings.EqualFold(given, reference)
}
