package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/randalmurphal/tasksync/internal/auth"
	"github.com/randalmurphal/tasksync/internal/config"
	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/store"
)

// app bundles what every command needs: config, the open store, and the
// plugin env.
type app struct {
	cfg   *config.Config
	store *store.Store
	env   *plugin.Env
}

// openApp loads the config, opens the store, and syncs the store's source
// table with the config file.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Options{
		Dialect: cfg.Store.Dialect,
		DSN:     cfg.Store.DSN,
		DataDir: cfg.Store.Dir,
		Logger:  slog.Default(),
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:   cfg,
		store: st,
		env: &plugin.Env{
			Store:     st,
			Tokens:    tokenProvider(cfg),
			Logger:    slog.Default(),
			Lookbacks: lookbacks(cfg),
		},
	}
	if err := a.saveSources(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// tokenProvider builds the token chain: refreshing OAuth clients first, then
// the static token map.
func tokenProvider(cfg *config.Config) plugin.TokenProvider {
	chain := auth.Chain{auth.Static(cfg.Tokens)}
	if len(cfg.OAuth) == 0 {
		return chain
	}

	oa := auth.NewOAuth()
	for id, oc := range cfg.OAuth {
		oa.Bind(id, &oauth2.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: oc.TokenURL},
		}, &oauth2.Token{RefreshToken: oc.RefreshToken})
	}
	return append(auth.Chain{oa}, chain...)
}

// lookbacks collects the per-source sync window overrides.
func lookbacks(cfg *config.Config) map[string]time.Duration {
	m := map[string]time.Duration{}
	for _, sc := range cfg.Sources {
		if sc.SyncWindow > 0 {
			m[sc.ID] = sc.SyncWindow
		}
	}
	return m
}

func (a *app) close() {
	_ = a.store.Close()
}

// saveSources upserts the config file's sources into the store, preserving
// each existing source's last_synced_at.
func (a *app) saveSources(ctx context.Context) error {
	for _, sc := range a.cfg.Sources {
		src := &plugin.TaskSource{
			ID:     sc.ID,
			Name:   sc.Name,
			Plugin: sc.Plugin,
			Config: plugin.Config(sc.Config),
		}
		if src.Name == "" {
			src.Name = sc.ID
		}

		existing, err := a.store.GetTaskSource(ctx, sc.ID)
		if err != nil && !errors.Is(err, plugin.ErrNotConfigured) {
			return err
		}
		if existing != nil {
			src.LastSyncedAt = existing.LastSyncedAt
		}
		if err := a.store.SaveTaskSource(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

// newPlugin looks up a source's plugin implementation.
func newPlugin(src *plugin.TaskSource) (plugin.Plugin, error) {
	p, err := plugin.New(plugin.Kind(src.Plugin))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	return p, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
