// ABOUTME: Wires configuration into stores, the outbox, guidance and the sync engine
// ABOUTME: Shared by the CLI, the MCP server and the HTTP server
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/harper/om/internal/charm"
	"github.com/harper/om/internal/config"
	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/guidance"
	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/outbox"
	"github.com/harper/om/internal/remote"
	"github.com/harper/om/internal/remote/postgrest"
	"github.com/harper/om/internal/remote/sqlstore"
	"github.com/harper/om/internal/storage/sqlite"
)

// App holds the wired engine and the stores behind it
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Local    localstore.Store
	Remote   remote.Store
	Engine   *core.Engine
	Sessions *core.Sessions
	// Charm is set only for the charm local driver
	Charm *charm.Client

	closers []io.Closer
}

// Open builds an App from cfg. Close must be called to drain queued remote writes.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if err := a.openLocal(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	ob := outbox.New(outbox.Config{
		Shards:      cfg.OutboxShards,
		QueueSize:   cfg.OutboxQueueSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		BaseBackoff: cfg.OutboxBaseBackoff,
	}, log)
	// the outbox stops first so queued writes still have open stores
	a.closers = append([]io.Closer{ob}, a.closers...)

	a.Engine = core.New(a.Local, a.Remote,
		core.WithLogger(log),
		core.WithOutbox(ob),
		core.WithHistoryLimit(cfg.HistoryLimit),
		core.WithResponder(a.responder()),
	)
	a.Sessions = core.NewSessions(a.Engine)
	return a, nil
}

func (a *App) openLocal() error {
	switch a.Config.LocalDriver {
	case config.LocalMemory:
		a.Local = localstore.NewMemory()
	case config.LocalCharm:
		client, err := charm.NewClient(&charm.Config{
			Host:     a.Config.CharmHost,
			DBName:   a.Config.CharmDBName,
			AutoSync: a.Config.AutoSync,
		})
		if err != nil {
			return fmt.Errorf("failed to open charm store: %w", err)
		}
		a.Charm = client
		a.Local = client
		a.closers = append(a.closers, client)
	default:
		if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		db, err := sqlite.Open(a.Config.LocalDBPath())
		if err != nil {
			return err
		}
		kv, err := sqlite.NewKV(db)
		if err != nil {
			_ = db.Close()
			return err
		}
		a.Local = kv
		a.closers = append(a.closers, db)
	}
	return nil
}

func (a *App) openRemote(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.Config.RemoteTimeout)
	defer cancel()

	switch a.Config.RemoteDriver {
	case config.RemoteOffline:
		a.Remote = remote.Offline{}
	case config.RemotePostgREST:
		a.Remote = postgrest.New(a.Config.RemoteURL, a.Config.RemoteAPIKey, a.Config.RemoteTimeout, nil)
	case config.RemotePostgres:
		store, err := sqlstore.OpenPostgres(ctx, a.Config.RemoteDSN, sqlstore.WithTimeout(a.Config.RemoteTimeout))
		if err != nil {
			// an unreachable remote must not stop local reads and writes
			a.Log.Warn().Err(err).Msg("remote store unavailable, running offline")
			a.Remote = remote.Offline{}
			return nil
		}
		a.Remote = store
		a.closers = append(a.closers, store)
	default:
		path := a.Config.RemoteDBPath()
		if path != ":memory:" {
			if err := os.MkdirAll(a.Config.DataDir, 0o755); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		store, err := sqlstore.OpenSQLite(ctx, path, sqlstore.WithTimeout(a.Config.RemoteTimeout))
		if err != nil {
			return err
		}
		a.Remote = store
		a.closers = append(a.closers, store)
	}
	return nil
}

// responder prefers OpenAI when a key is configured and always falls back to the scripture table
func (a *App) responder() core.Responder {
	table := guidance.DefaultTable()
	if a.Config.OpenAIKey == "" {
		return table
	}
	ai, err := guidance.NewOpenAIResponder(guidance.OpenAIConfig{
		APIKey:     a.Config.OpenAIKey,
		Model:      a.Config.ChatModel,
		MaxRetries: a.Config.MaxRetries,
		RetryDelay: a.Config.RetryDelay,
	}, table)
	if err != nil {
		a.Log.Warn().Err(err).Msg("OpenAI responder disabled")
		return table
	}
	return guidance.NewChain(a.Log, ai, table)
}

// Ping checks remote connectivity. Stores without a health check report ok=false.
func (a *App) Ping(ctx context.Context) (ok bool, err error) {
	p, isPinger := a.Remote.(interface{ Ping(context.Context) error })
	if !isPinger {
		return false, nil
	}
	return true, p.Ping(ctx)
}

// Close stops the outbox (running queued writes once) and then closes the stores
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
