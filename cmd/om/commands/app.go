// ABOUTME: Opens the shared om wiring for a subcommand
// ABOUTME: Applies the --verbose/--quiet log level and resolves the active user
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harper/om/internal/app"
	"github.com/harper/om/internal/config"
	"github.com/harper/om/internal/core"
	"github.com/harper/om/internal/logger"
)

// cliApp is the wired engine plus CLI user resolution. Close drains queued remote writes.
type cliApp struct {
	*app.App
}

func openApp(cmd *cobra.Command) (*cliApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	log := logger.New(logger.Config{Level: level, Pretty: cfg.LogPretty, Output: cmd.ErrOrStderr()})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &cliApp{App: a}, nil
}

// session resolves --user, then OM_USER_ID
func (a *cliApp) session() (*core.Session, error) {
	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		userID = a.Config.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("no user: pass --user or set OM_USER_ID")
	}
	return a.Sessions.Get(userID)
}
