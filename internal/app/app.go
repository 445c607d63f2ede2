// Package app wires the configuration, local store, remote client, identity
// session, entity modules and orchestrator into one application instance.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"cookbooksync/backend"
	"cookbooksync/backend/remote"
	"cookbooksync/backend/store"
	"cookbooksync/internal/config"
	"cookbooksync/internal/credentials"
	"cookbooksync/internal/entity"
	"cookbooksync/internal/identity"
	"cookbooksync/internal/sync"
	"cookbooksync/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// App holds the application state
type App struct {
	config       *config.Config
	store        store.Store
	closer       io.Closer
	remote       sync.Remote
	resolver     *credentials.Resolver
	session      *identity.Session
	migration    *sync.MigrationRunner
	orchestrator *sync.Orchestrator
	unwatch      func()

	Cookbooks   *sync.Module[entity.Cookbook]
	Recipes     *sync.Module[entity.Recipe]
	Preferences *sync.Module[entity.Preferences]
}

// Report is the combined view printed by the status command
type Report struct {
	User        *identity.User `json:"user" yaml:"user"`
	Remote      string         `json:"remote" yaml:"remote"`
	Store       string         `json:"store" yaml:"store"`
	Sync        sync.Status    `json:"sync" yaml:"sync"`
	Entities    []sync.Stats   `json:"entities" yaml:"entities"`
	MigrationOK bool           `json:"migrationDone" yaml:"migrationDone"`
}

// unconfiguredRemote fails every call until a base URL is configured
type unconfiguredRemote struct{}

func (unconfiguredRemote) Pull(context.Context, string, string) ([]json.RawMessage, error) {
	return nil, utils.ErrRemoteNotConfigured()
}

func (unconfiguredRemote) Push(context.Context, string, string, any) error {
	return utils.ErrRemoteNotConfigured()
}

// NewApp opens the SQLite store named by cfg and builds the application on it
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := store.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	app, err := NewWithStore(ctx, cfg, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	app.closer = st
	return app, nil
}

// NewWithStore builds the application on an already open store
func NewWithStore(ctx context.Context, cfg *config.Config, st store.Store) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	session, err := identity.OpenSession(ctx, st)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   cfg,
		store:    st,
		session:  session,
		resolver: credentials.NewResolver(cfg.Remote.BaseURL),
	}

	if cfg.Remote.BaseURL == "" {
		a.remote = unconfiguredRemote{}
	} else {
		a.remote = remote.NewClient(cfg.Remote.BaseURL, cfg.RequestTimeout(), a.resolver.Token)
	}

	a.Cookbooks = sync.NewCookbookModule(st, a.remote)
	a.Recipes = sync.NewRecipeModule(st, a.remote)
	a.Preferences = sync.NewPreferencesModule(st, a.remote)
	a.migration = sync.NewMigrationRunner(st)

	a.orchestrator = sync.NewOrchestrator(sync.OrchestratorConfig{
		MinInterval: cfg.MinInterval(),
		StepTimeout: cfg.RequestTimeout(),
		State:       st,
	}, a.migration, a.Cookbooks, a.Recipes, a.Preferences)

	if err := a.orchestrator.LoadState(ctx); err != nil {
		utils.Warnf("Could not restore last sync time: %v", err)
	}
	a.unwatch = a.orchestrator.Watch(session)

	return a, nil
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Session() *identity.Session {
	return a.session
}

func (a *App) Orchestrator() *sync.Orchestrator {
	return a.orchestrator
}

func (a *App) Store() store.Store {
	return a.store
}

func (a *App) Migration() *sync.MigrationRunner {
	return a.migration
}

// Resolver returns the API token resolver scoped to the configured server
func (a *App) Resolver() *credentials.Resolver {
	return a.resolver
}

// RemoteConfigured reports whether a sync server base URL is set
func (a *App) RemoteConfigured() bool {
	return a.config.Remote.BaseURL != ""
}

// Modules returns the entity modules in sync order
func (a *App) Modules() []sync.EntitySyncer {
	return []sync.EntitySyncer{a.Cookbooks, a.Recipes, a.Preferences}
}

// Sync runs the orchestrator for reason. force ignores the throttle.
func (a *App) Sync(ctx context.Context, reason sync.Reason, force bool) (sync.Outcome, error) {
	if !a.RemoteConfigured() {
		return sync.OutcomeDropped, utils.ErrRemoteNotConfigured()
	}
	if force {
		return a.orchestrator.ForceSyncNow(ctx, reason)
	}
	return a.orchestrator.SyncAll(ctx, reason, sync.Options{})
}

// Mutated is called after a local write. With auto sync on it requests a
// mutation run; failures never reach the caller.
func (a *App) Mutated(ctx context.Context) {
	if !a.config.Sync.AutoSync || !a.RemoteConfigured() || a.session.UID() == "" {
		return
	}
	if out, err := a.orchestrator.SyncAll(ctx, sync.ReasonMutation, sync.Options{}); err != nil {
		utils.Warnf("Background sync after mutation failed: %v", err)
	} else {
		utils.Debugf("Mutation sync %s", out)
	}
}

// Explain turns a sync failure into an error carrying a suggestion when the
// cause is recognisable. Other errors are returned unchanged.
func Explain(err error) error {
	var be *backend.BackendError
	if !errors.As(err, &be) {
		return err
	}
	switch {
	case be.IsUnauthorized():
		return utils.ErrAuthenticationFailed(err)
	case be.IsNetwork():
		reason := be.Message
		if be.Err != nil {
			reason = be.Err.Error()
		}
		return utils.ErrRemoteOffline(reason)
	}
	return err
}

// Report gathers everything the status command shows
func (a *App) Report(ctx context.Context) (*Report, error) {
	r := &Report{
		User:   a.session.CurrentUser(),
		Remote: a.config.Remote.BaseURL,
		Sync:   a.orchestrator.Status(),
	}
	if sq, ok := a.store.(*store.SQLiteStore); ok {
		if stats, err := sq.Stats(); err == nil {
			r.Store = fmt.Sprintf("%s (%s)", sq.Path(), stats)
		}
	} else {
		r.Store = "memory"
	}

	for _, m := range a.Modules() {
		stats, err := m.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s stats: %w", m.Name(), err)
		}
		r.Entities = append(r.Entities, stats)
	}

	done, err := a.migration.Done(ctx)
	if err != nil {
		return nil, err
	}
	r.MigrationOK = done
	return r, nil
}

// Close stops watching identity changes, waits for pending runs and closes the store
func (a *App) Close() error {
	if a.unwatch != nil {
		a.unwatch()
	}
	err := a.orchestrator.Shutdown(shutdownTimeout)
	if a.closer != nil {
		if cerr := a.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
