// ABOUTME: CLI command to view and complete the onboarding profile
// ABOUTME: Fields are free-form key=value attributes merged into the stored profile
package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harper/om/internal/models"
)

var (
	profileRefresh bool
	profileFields  []string
)

// NewProfileCmd creates profile command
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View and complete your onboarding profile",
		Long: `View and complete your onboarding profile.

The profile stores your onboarding answers. It is read from this device
first; --refresh reconciles with the remote copy and keeps whichever
was updated last.

Examples:
  om profile
  om profile --refresh --format json
  om profile complete --set deity=Krishna --set path=bhakti`,
		Args: cobra.NoArgs,
		RunE: runProfileShow,
	}
	cmd.Flags().BoolVar(&profileRefresh, "refresh", false, "Reconcile with the remote copy")

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Merge onboarding answers into the profile",
		Long: `Merge onboarding answers into the profile.

Fields you do not pass are kept.

Examples:
  om profile complete --set deity=Shiva
  om profile complete --set name="Asha" --set goal="daily meditation"`,
		Args: cobra.NoArgs,
		RunE: runProfileComplete,
	}
	completeCmd.Flags().StringArrayVar(&profileFields, "set", nil, "Set a field as key=value (can be repeated)")

	cmd.AddCommand(completeCmd)
	return cmd
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}

	var profile *models.Profile
	if profileRefresh {
		profile, err = a.Engine.RefreshProfile(cmd.Context(), sess)
	} else {
		profile, err = a.Engine.LoadProfile(cmd.Context(), sess)
	}
	if err != nil {
		return fmt.Errorf("getting profile: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
			"user_id":   sess.UserID(),
			"onboarded": profile != nil,
			"profile":   profile,
		})
	}

	if profile == nil {
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "No profile found. Complete onboarding with: om profile complete --set key=value\n")
		}
		return nil
	}
	printProfile(cmd, profile)
	return nil
}

func runProfileComplete(cmd *cobra.Command, args []string) error {
	if len(profileFields) == 0 {
		return fmt.Errorf("no fields specified. Use --set key=value")
	}
	fields, err := parseAssignments(profileFields)
	if err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}
	profile, err := a.Engine.CompleteProfile(cmd.Context(), sess, fields)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), profile)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Profile updated successfully\n")
	}
	return nil
}

func printProfile(cmd *cobra.Command, profile *models.Profile) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "FIELD\tVALUE\n")
	fmt.Fprintf(w, "-----\t-----\n")

	keys := make([]string, 0, len(profile.Attributes))
	for k := range profile.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\n", k, truncate(profile.Attributes[k], 60))
	}
	fmt.Fprintf(w, "Last Updated\t%s\n", formatTime(profile.UpdatedAt, time.Now()))
	w.Flush()
}
