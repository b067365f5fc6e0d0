// Command concierge runs one triage step inside a GitHub Actions job and
// offers offline helpers for spec pack authors.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	specDir    string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "concierge",
		Short: "Issue triage concierge for GitHub and GitLab",
		Long: `concierge asks issue authors for missing details until a report is
actionable, then posts a brief for maintainers.

Examples:
  concierge run                          # Handle $GITHUB_EVENT_PATH in an Actions job
  concierge score issue.md               # Score a markdown issue against the spec pack
  concierge state decode comment.md      # Print the state embedded in a bot comment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.specDir, "spec-dir", "", "Spec pack directory (default $SUPPORTBOT_SPEC_DIR or .supportbot)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newScoreCmd(opts))
	root.AddCommand(newStateCmd(opts))
	return root
}

func (o *rootOptions) resolveSpecDir() string {
	if o.specDir != "" {
		return o.specDir
	}
	if dir := os.Getenv("SUPPORTBOT_SPEC_DIR"); dir != "" {
		return dir
	}
	return ".supportbot"
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
