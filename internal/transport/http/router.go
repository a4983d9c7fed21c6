// Package http exposes the quiz flow over HTTP: chi routes, session cookies and the live scoreboard feed.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"quizapp-service/internal/app"
	"quizapp-service/internal/metrics"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Flow       *app.FlowController
	Auth       *app.AuthService
	Attempts   *app.AttemptService
	Scoreboard *app.ScoreboardService
	Users      app.UserStore
	Metrics    *metrics.Collectors
	Log        *zap.Logger
	Cookie     CookieConfig
}

// CookieConfig controls the browser session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

type handler struct {
	flow       *app.FlowController
	auth       *app.AuthService
	attempts   *app.AttemptService
	scoreboard *app.ScoreboardService
	users      app.UserStore
	log        *zap.Logger
}

// NewRouter mounts every route of the service.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Cookie.Name == "" {
		d.Cookie.Name = "_quizapp_session"
	}
	h := &handler{
		flow:       d.Flow,
		auth:       d.Auth,
		attempts:   d.Attempts,
		scoreboard: d.Scoreboard,
		users:      d.Users,
		log:        d.Log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(observe(d.Metrics))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	r.Get("/ws/scoreboard", NewWSHandler(d.Scoreboard, d.Log).ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(sessions(d.Cookie))

		// Anything outside /steps leaves the quiz and drops its progress.
		r.Group(func(r chi.Router) {
			r.Use(leaveQuiz(d.Flow, d.Log))
			r.Post("/sign_up", h.signUp)
			r.Post("/login", h.login)
			r.Delete("/logout", h.logout)

			r.Group(func(r chi.Router) {
				r.Use(requireUser(d.Auth, d.Log))
				r.Get("/user", h.showProfile)
				r.Patch("/user", h.updateProfile)
			})
		})

		r.Route("/steps", func(r chi.Router) {
			r.Use(requireUser(d.Auth, d.Log))
			r.Get("/check_your_answers", h.review)
			r.Get("/stop", h.review)
			r.Get("/results", h.results)
			r.Get("/scoreboard", h.showScoreboard)
			r.Get("/download", h.download)
			r.Get("/{id}", h.showStep)
			r.Get("/{id}/edit", h.editStep)
			r.Patch("/{id}", h.submitStep)
			r.Post("/{id}", h.submitStep)
		})
	})
	return r
}
