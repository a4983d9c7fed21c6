package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizapp-service/internal/app"
	"quizapp-service/internal/metrics"
	transport "quizapp-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	st, err := buildStack(ctx, cfg, log)
	if err != nil {
		log.Error("storage setup failed", zap.Error(err))
		return err
	}
	defer st.Close()

	collectors := metrics.New()
	attempts := app.NewAttemptService(st.attempts, cfg.Location())
	scoreboard := app.NewScoreboardService(st.attempts, st.users)
	flow := app.NewFlowController(attempts, st.sessions, st.banks, log.Named("flow"),
		app.WithScoreboard(scoreboard),
		app.WithMetrics(collectors),
		app.WithDefaultLocale(cfg.Quiz.DefaultLocale),
	)
	auth := app.NewAuthService(st.users, st.sessions, attempts)

	router := transport.NewRouter(transport.Deps{
		Flow:       flow,
		Auth:       auth,
		Attempts:   attempts,
		Scoreboard: scoreboard,
		Users:      st.users,
		Metrics:    collectors,
		Log:        log.Named("http"),
		Cookie: transport.CookieConfig{
			Name:   cfg.Server.CookieName,
			Secure: cfg.Server.CookieSecure,
		},
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
