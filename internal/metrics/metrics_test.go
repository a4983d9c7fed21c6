package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFlowCounters(t *testing.T) {
	c := New()
	c.StepSubmitted(1, "valid")
	c.StepSubmitted(1, "valid")
	c.StepSubmitted(2, "invalid")
	c.TokenRejected("show")
	c.QuizCompleted(80, 90*time.Second)

	if got := testutil.ToFloat64(c.stepsSubmitted.WithLabelValues("1", "valid")); got != 2 {
		t.Fatalf("expected 2 valid step 1 submissions, got %v", got)
	}
	if got := testutil.ToFloat64(c.stepsSubmitted.WithLabelValues("2", "invalid")); got != 1 {
		t.Fatalf("expected 1 invalid step 2 submission, got %v", got)
	}
	if got := testutil.ToFloat64(c.tokensRejected.WithLabelValues("show")); got != 1 {
		t.Fatalf("expected 1 rejected token, got %v", got)
	}
	if got := testutil.ToFloat64(c.quizzesDone); got != 1 {
		t.Fatalf("expected 1 completed quiz, got %v", got)
	}
}

func TestHandlerExposesRequests(t *testing.T) {
	c := New()
	c.ObserveRequest(http.MethodGet, "/steps/{id}", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `http_requests_total{method="GET",route="/steps/{id}",status="200"} 1`) {
		t.Fatalf("expected request counter in output:\n%s", body)
	}
}
