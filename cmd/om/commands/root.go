// ABOUTME: Root command and global flags for the om CLI
// ABOUTME: Loads .env before any subcommand runs and validates flag combinations
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	userFlag     string
	verbose      bool
	quiet        bool
	outputFormat string
)

const banner = `
 ██████╗ ███╗   ███╗
██╔═══██╗████╗ ████║
██║   ██║██╔████╔██║
██║   ██║██║╚██╔╝██║
╚██████╔╝██║ ╚═╝ ██║
 ╚═════╝ ╚═╝     ╚═╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "om",
		Short: "Local-first streaks, profile and guidance history",
		Long: banner + `

om keeps your daily practice streak, onboarding profile and guidance
conversation on this device first, and reconciles them with a remote
store when it is reachable. Everything keeps working offline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose && quiet {
				return fmt.Errorf("--verbose and --quiet are mutually exclusive")
			}
			switch outputFormat {
			case "auto", "table", "json":
			default:
				return fmt.Errorf("--format must be auto, table or json, got %q", outputFormat)
			}
			// .env is optional
			_ = godotenv.Load()
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID (default: $OM_USER_ID)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table, json")

	cmd.AddCommand(NewStreakCmd())
	cmd.AddCommand(NewProfileCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewSignOutCmd())
	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewMCPCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func jsonOutput() bool {
	return outputFormat == "json"
}
