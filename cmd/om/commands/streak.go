// ABOUTME: Streak command shows the consecutive-day practice count
// ABOUTME: Running it counts today as a visit
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStreakCmd creates the streak command
func NewStreakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streak",
		Short: "Show your daily practice streak",
		Long: `Show your consecutive-day practice streak.

Each calendar day you check in extends the streak by one. Missing a day
starts it again at 1. Checking more than once a day never double counts.`,
		Args: cobra.NoArgs,
		RunE: runStreak,
	}
}

func runStreak(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}
	count, err := a.Engine.GetStreak(cmd.Context(), sess)
	if err != nil {
		return fmt.Errorf("getting streak: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"user_id": sess.UserID(), "streak": count})
	}
	if quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", count)
		return nil
	}
	days := "days"
	if count == 1 {
		days = "day"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🔥 %d %s\n", count, days)
	return nil
}
