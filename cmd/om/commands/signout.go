// ABOUTME: Sign-out command clears this device's copy of a user's data
// ABOUTME: Pending remote writes are flushed first so nothing is lost
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSignOutCmd creates the signout command
func NewSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Clear this device's copy of your data",
		Long: `Sign out on this device.

Queued remote writes are sent first, then the local profile, streak and
history for the user are deleted. The remote copy is kept and will be
merged back on the next sign-in.`,
		Args: cobra.NoArgs,
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
			if err := a.Sessions.SignOut(cmd.Context(), sess.UserID()); err != nil {
				return fmt.Errorf("signing out: %w", err)
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed out %s\n", sess.UserID())
			}
			return nil
		},
	}
}
