package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/echocoach/echo/internal/accounts"
	"github.com/echocoach/echo/internal/appstate"
	"github.com/echocoach/echo/internal/auth"
	"github.com/echocoach/echo/internal/config"
	"github.com/echocoach/echo/internal/httpapi"
	"github.com/echocoach/echo/internal/observability"
	"github.com/echocoach/echo/internal/reports"
	"github.com/echocoach/echo/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Reports  reports.Store
	Accounts accounts.Store
	States   appstate.Store

	// Cleanup should be called on shutdown to release external resources (DB handles, state file).
	Cleanup func() error
}

// Build wires stores, auth and the HTTP API from cfg. Every store that was opened is closed
// again when a later step fails.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	reportStore, err := reports.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("report store init failed: %w", err)
	}

	accountStore, err := accounts.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = reportStore.Close()
		return nil, fmt.Errorf("account store init failed: %w", err)
	}

	states, err := openStateStore(ctx, cfg.StatePath)
	if err != nil {
		_ = reportStore.Close()
		_ = accountStore.Close()
		return nil, fmt.Errorf("state store init failed: %w", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		_ = reportStore.Close()
		_ = accountStore.Close()
		_ = states.Close()
		return nil, fmt.Errorf("token issuer init failed: %w", err)
	}
	authService := auth.NewService(accountStore, issuer, cfg.BcryptCost)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.ObserveSessionEvent("expired")
		log.WithField("session_id", s.ID).Info("session expired after inactivity")
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:     sessions,
		Auth:         authService,
		Reports:      reportStore,
		AccountsMode: accountStore.Mode(),
		States:       states,
		Metrics:      metrics,
		Logger:       log,
	})

	cleanup := func() error {
		var errs []string
		if err := states.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := accountStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := reportStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Metrics:  metrics,
		Reports:  reportStore,
		Accounts: accountStore,
		States:   states,
		Cleanup:  cleanup,
	}, nil
}

// openStateStore keeps per-user practice state in SQLite when a path is configured and in
// memory otherwise.
func openStateStore(ctx context.Context, path string) (appstate.Store, error) {
	if strings.TrimSpace(path) == "" {
		return appstate.NewMemoryStore(), nil
	}
	return appstate.OpenSQLite(ctx, path)
}
