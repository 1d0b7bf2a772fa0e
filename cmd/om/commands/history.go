// ABOUTME: History commands list and delete guidance conversation turns
// ABOUTME: Listing merges the remote copy once; --local shows this device only
package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/om/internal/models"
)

var historyLocal bool

// NewHistoryCmd creates the history command group
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show your guidance conversation",
		Long: `Show your guidance conversation, oldest first.

The first listing merges the most recent exchanges stored remotely
without duplicating turns already on this device.

Examples:
  om history
  om history --local
  om history --format json
  om history delete guidance_0f8c...`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}
	cmd.Flags().BoolVar(&historyLocal, "local", false, "Show this device's copy without contacting the remote")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a turn (a guidance reply takes its question with it)",
		Long: `Delete a history entry.

Deleting a guidance reply also deletes the question it answered. The
remote copy is deleted by message text, so identical questions asked at
different times are removed remotely together.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryDelete,
	})

	return cmd
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}

	var entries []models.Entry
	if historyLocal {
		entries, err = a.Engine.LocalHistory(sess)
	} else {
		entries, err = a.Engine.LoadHistory(cmd.Context(), sess)
	}
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No conversation yet. Start one with: om ask \"your question\"\n")
		}
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tWHO\tWHEN\tTEXT\n")
	fmt.Fprintf(w, "--\t---\t----\t----\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Kind, formatTime(e.Timestamp, now), truncate(oneLine(e.Text), 60))
	}
	w.Flush()

	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d entries\n", len(entries))
	}
	return nil
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}
	removed, err := a.Engine.DeleteEntry(cmd.Context(), sess, args[0])
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), removed)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", len(removed))
	}
	return nil
}

func oneLine(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '\n' || r == '\r' {
			out[i] = ' '
		}
	}
	return string(out)
}
