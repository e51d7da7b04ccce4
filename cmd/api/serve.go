package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wiki-mailauth/internal/application/auth"
	"github.com/wiki-mailauth/internal/application/verification"
	"github.com/wiki-mailauth/internal/config"
	"github.com/wiki-mailauth/internal/infrastructure/memory"
	"github.com/wiki-mailauth/internal/infrastructure/metrics"
	"github.com/wiki-mailauth/internal/infrastructure/smtp"
	"github.com/wiki-mailauth/internal/pkg/emailaddr"
	"github.com/wiki-mailauth/internal/pkg/logger"
	transporthttp "github.com/wiki-mailauth/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	cfg     *config.Config
	store   *memory.VerificationStore
	metrics *metrics.Metrics
	auth    auth.Service
}

// setup loads configuration and wires every component of the service.
func setup() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	var m *metrics.Metrics
	store := memory.NewVerificationStore(memory.WithSweepHook(func(n int) { m.Swept(n) }))
	m = metrics.New(store.Len)

	codes := verification.NewManager(store, verification.Policy{
		CodeLength:  cfg.Policy.CodeLength,
		MaxAttempts: cfg.Policy.MaxAttempts,
	}, verification.WithMetrics(m))

	classifier := emailaddr.NewClassifier(emailaddr.Policy{
		MinLength:      cfg.Policy.EmailMinLength,
		MaxLength:      cfg.Policy.EmailMaxLength,
		AllowedDomains: cfg.Policy.AllowedDomains,
	})

	mailer, err := smtp.NewMailer(cfg.SMTP)
	if err != nil {
		slog.Warn("email delivery disabled", "err", err)
		mailer = smtp.Unconfigured(err)
	}

	svc := auth.NewService(auth.ServiceDeps{
		Codes:      codes,
		Classifier: classifier,
		Mailer:     mailer,
		Metrics:    m,
		Policy: auth.Policy{
			SiteName:                  cfg.SiteName,
			CodeTTL:                   cfg.Policy.CodeTTL,
			ResendInterval:            cfg.Policy.ResendInterval,
			RollbackOnDeliveryFailure: cfg.Policy.RollbackOnDeliveryFailure,
		},
	})

	return &app{cfg: cfg, store: store, metrics: m, auth: svc}, nil
}

func runServe(ctx context.Context, _ *cli.Command) error {
	a, err := setup()
	if err != nil {
		return err
	}
	cfg := a.cfg

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.store.RunSweeper(ctx, cfg.Policy.SweepInterval)

	// A failing mail server should not keep the API down.
	go func() {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.SMTP.Timeout+5*time.Second)
		defer cancel()
		if err := a.auth.CheckDelivery(checkCtx); err != nil {
			slog.Warn("SMTP connectivity check failed", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port, "err", err)
			return
		}
		slog.Info("SMTP connectivity check passed", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	}()

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		AuthService: a.auth,
		Metrics:     a.metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"port", cfg.AppPort,
			"env", cfg.AppEnv,
			"allowed_domains", cfg.Policy.AllowedDomains,
			"code_ttl", cfg.Policy.CodeTTL,
			"resend_interval", cfg.Policy.ResendInterval,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
