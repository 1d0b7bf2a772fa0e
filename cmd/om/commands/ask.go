// ABOUTME: Ask command records a question and prints the guidance reply
// ABOUTME: The question is saved before guidance is requested
package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewAskCmd creates the ask command
func NewAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask for guidance",
		Long: `Ask for spiritual guidance.

Your question and the reply are added to your history. Replies come from
OpenAI when OPENAI_API_KEY is set, otherwise from a built-in table of
scripture passages.`,
		Example: `  om ask "How do I stay calm at work?"
  om ask what does the gita say about duty`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session()
	if err != nil {
		return err
	}
	exchange, err := a.Engine.Ask(cmd.Context(), sess, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("asking: %w", err)
	}

	if jsonOutput() {
		return writeJSON(cmd.OutOrStdout(), exchange)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", exchange.Guidance.Text)
	return nil
}
