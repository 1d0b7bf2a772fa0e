// ABOUTME: Sync commands report and flush remote write-back
// ABOUTME: Also triggers Charm cloud sync when the charm local driver is in use
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harper/om/internal/config"
	"github.com/harper/om/internal/localstore"
)

// NewSyncCmd creates the sync command group
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and flush synchronization with the remote store",
		Long: `Inspect and flush synchronization with the remote store.

Writes always land on this device first. Remote copies are written in
the background and retried while the remote is unreachable.`,
	}

	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncFlushCmd())
	cmd.AddCommand(newSyncNowCmd())

	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store drivers and remote connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status := map[string]interface{}{
				"local_driver":  a.Config.LocalDriver,
				"remote_driver": a.Config.RemoteDriver,
			}

			remoteStatus := "offline"
			ctx, cancel := context.WithTimeout(cmd.Context(), a.Config.RemoteTimeout)
			if ok, err := a.Ping(ctx); err != nil {
				remoteStatus = "unreachable: " + err.Error()
			} else if ok {
				remoteStatus = "connected"
			} else if a.Config.RemoteDriver != config.RemoteOffline {
				remoteStatus = "unknown"
			}
			cancel()
			status["remote"] = remoteStatus

			users, err := localstore.CachedUsers(a.Local)
			if err != nil {
				return fmt.Errorf("failed to list cached users: %w", err)
			}
			if users != nil {
				status["cached_users"] = users
			}

			if a.Charm != nil {
				if id, err := a.Charm.ID(); err == nil {
					status["charm_id"] = id
				} else {
					status["charm_id"] = "not linked"
				}
			}

			if jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Local:  %s\n", a.Config.LocalDriver)
			fmt.Fprintf(out, "Remote: %s (%s)\n", a.Config.RemoteDriver, remoteStatus)
			if users != nil {
				fmt.Fprintf(out, "Cached: %d user(s)\n", len(users))
			}
			if id, ok := status["charm_id"]; ok {
				fmt.Fprintf(out, "Charm:  %s\n", id)
			}
			return nil
		},
	}
}

func newSyncFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Reconcile everything and wait for remote writes to finish",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.session()
			if err != nil {
				return err
			}
			if err := a.Engine.Warm(cmd.Context(), sess); err != nil {
				return fmt.Errorf("reconciling: %w", err)
			}
			if err := a.Engine.Flush(cmd.Context(), sess); err != nil {
				return fmt.Errorf("flushing: %w", err)
			}

			stats := a.Engine.OutboxStats()
			if jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Flushed: %d written, %d dropped, %d pending\n",
					stats.Completed, stats.Dropped, stats.Pending)
			}
			return nil
		},
	}
}

func newSyncNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Force immediate Charm cloud sync of the local store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Charm == nil {
				return fmt.Errorf("charm sync needs OM_LOCAL_DRIVER=charm (current: %s)", a.Config.LocalDriver)
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Syncing...")
			}
			if err := a.Charm.Sync(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), "Sync complete")
			}
			return nil
		},
	}
}
