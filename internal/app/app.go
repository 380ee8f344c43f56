// Package app wires configuration into a ready-to-use backend: the local
// database, the signed-in session, the remote store and the reconciler.
package app

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/digitaldrywood/shopbook/internal/config"
	"github.com/digitaldrywood/shopbook/internal/database"
	"github.com/digitaldrywood/shopbook/internal/google"
	"github.com/digitaldrywood/shopbook/internal/graph"
	"github.com/digitaldrywood/shopbook/internal/inventory"
	"github.com/digitaldrywood/shopbook/internal/manifest"
	"github.com/digitaldrywood/shopbook/internal/reconcile"
	"github.com/digitaldrywood/shopbook/internal/session"
	"github.com/digitaldrywood/shopbook/internal/store"
	"github.com/digitaldrywood/shopbook/internal/xlsx"
)

type App struct {
	Config   *config.Config
	DB       *database.DB
	Manifest *manifest.Manifest
	Session  *session.OAuthProvider
	Store    store.Store

	// Graph is set only for the graph backend.
	Graph *graph.Client
}

// LoadManifest reads the configured manifest, or the embedded default.
// A configured document name overrides the one in the manifest.
func LoadManifest(cfg *config.Config) (*manifest.Manifest, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if cfg.ManifestPath != "" {
		m, err = manifest.Load(cfg.ManifestPath)
	} else {
		m, err = manifest.Default()
	}
	if err != nil {
		return nil, err
	}
	if cfg.DocumentName != "" {
		m.DocumentName = cfg.DocumentName
	}
	return m, nil
}

// OAuthConfig returns the OAuth client for the configured backend.
func OAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		return google.OAuthConfig(cfg.CredentialsPath, cfg.OAuthRedirectURL)
	case config.BackendGraph:
		return session.MicrosoftConfig(cfg.ClientID, cfg.Tenant, cfg.OAuthRedirectURL), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Open builds everything a command needs. Callers must Close the App.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	m, err := LoadManifest(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	oauthCfg, err := OAuthConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger := log.StandardLogger()
	a := &App{
		Config:   cfg,
		DB:       db,
		Manifest: m,
		Session:  session.NewOAuthProvider(cfg.Backend, oauthCfg, db, session.WithLogger(logger)),
	}

	switch cfg.Backend {
	case config.BackendSheets:
		s, err := google.NewSheetsStore(ctx, a.Session, google.Config{
			Document: m.DocumentName,
			Timeout:  cfg.RequestTimeout,
			Logger:   logger,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Store = s
	default:
		a.Graph = graph.NewClient(a.Session, m.DocumentName,
			graph.WithBaseURL(cfg.GraphBaseURL),
			graph.WithTimeout(cfg.RequestTimeout),
			graph.WithLogger(logger),
		)
		a.Store = a.Graph
	}

	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Reconciler builds a reconciler honouring the retry and strategy settings.
func (a *App) Reconciler() *reconcile.Reconciler {
	opts := reconcile.Options{
		Logger: log.StandardLogger(),
	}
	if a.Config.FailFast {
		opts.Strategy = reconcile.FailFast
	}
	if a.Config.Retries > 0 {
		retries, backoff := uint64(a.Config.Retries), a.Config.RetryBackoff
		opts.RetryPolicy = func() retry.Backoff {
			return retry.WithMaxRetries(retries, retry.NewExponential(backoff))
		}
	}
	return reconcile.New(a.Store, a.Manifest, xlsx.Assets{TemplatePath: a.Config.TemplatePath}, opts)
}

func (a *App) Inventory() *inventory.Inventory {
	return inventory.New(a.Store, a.Manifest)
}

// RecordRun stores res so the status command can report it later.
func (a *App) RecordRun(ctx context.Context, res *reconcile.Result) error {
	run := &database.Run{
		ID:         res.RunID,
		Document:   res.Document,
		Backend:    a.Config.Backend,
		State:      res.State.String(),
		Outcome:    res.Outcome.String(),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if len(res.Warnings) > 0 {
		run.Warning = res.Warnings[0].String()
	}
	for _, f := range res.Failures {
		run.Failures = append(run.Failures, database.RunFailure{
			Table: f.Table,
			Step:  string(f.Step),
			Error: f.Err.Error(),
		})
	}
	return a.DB.RecordRun(ctx, run)
}
