package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"basegraph.app/concierge/internal/parser"
	"basegraph.app/concierge/internal/redact"
	"basegraph.app/concierge/internal/scoring"
	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/triage"
	"basegraph.app/concierge/internal/validate"
)

type scoreReport struct {
	Category string          `json:"category"`
	Source   string          `json:"category_source"`
	Result   *scoring.Result `json:"result,omitempty"`
	Redacted int             `json:"redacted_secrets"`
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	var (
		title    string
		category string
	)

	cmd := &cobra.Command{
		Use:   "score <issue.md>",
		Short: "Score a markdown issue against the spec pack",
		Long: `Scores an issue body using only deterministic parsing: form sections and
"key: value" lines. No model is called, so fields a person would infer from
prose are reported missing.

Examples:
  concierge score issue.md
  concierge score --title "Build fails on arm64" issue.md
  concierge score --category runtime --json issue.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading issue: %w", err)
			}
			pack, err := specpack.Load(root.resolveSpecDir())
			if err != nil {
				return err
			}

			report, err := scoreIssue(pack, title, string(body), category)
			if err != nil {
				return err
			}
			return printReport(cmd, report, root.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Issue title (defaults to the first markdown heading)")
	cmd.Flags().StringVar(&category, "category", "", "Skip classification and score against this category")
	return cmd
}

func scoreIssue(pack *specpack.Pack, title, body, category string) (*scoreReport, error) {
	redactor, err := redact.New(pack.Validators.SecretPatterns)
	if err != nil {
		return nil, fmt.Errorf("compiling secret patterns: %w", err)
	}
	validator, err := validate.New(pack.Validators)
	if err != nil {
		return nil, fmt.Errorf("compiling validators: %w", err)
	}

	redacted := redactor.Redact(body)
	clean := redacted.Text
	if title == "" {
		title = firstHeading(clean)
	}

	report := &scoreReport{Category: category, Source: "flag", Redacted: len(redacted.Findings)}
	if category == "" {
		resolved, source, ok := triage.ResolveCategory(pack, title, clean)
		if !ok {
			return nil, fmt.Errorf("could not classify the issue without a model; pass --category")
		}
		report.Category = resolved
		report.Source = string(source)
	}
	if triage.IsOffTopic(report.Category) {
		return report, nil
	}

	checklist, ok := pack.Checklist(report.Category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", triage.ErrChecklistMissing, report.Category)
	}

	fields := parser.Merge(parser.ParseSections(clean), parser.ExtractKeyValueLines(clean))
	res := scoring.New(validator).Score(fields, checklist)
	report.Result = &res
	return report, nil
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}

func printReport(cmd *cobra.Command, report *scoreReport, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "category: %s (%s)\n", report.Category, report.Source)
	if report.Redacted > 0 {
		fmt.Fprintf(out, "redacted: %d secret(s)\n", report.Redacted)
	}
	if report.Result == nil {
		fmt.Fprintln(out, "off-topic: not scored")
		return nil
	}

	res := report.Result
	verdict := "needs info"
	if res.Actionable {
		verdict = "actionable"
	}
	fmt.Fprintf(out, "score: %d/%d (%s)\n", res.Score, res.Threshold, verdict)
	if len(res.Missing) > 0 {
		fmt.Fprintf(out, "missing: %s\n", strings.Join(res.Missing, ", "))
	}
	if len(res.Invalid) > 0 {
		fmt.Fprintf(out, "invalid: %s\n", strings.Join(res.Invalid, ", "))
	}
	for _, issue := range res.Issues {
		fmt.Fprintf(out, "issue: %s\n", issue)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	return nil
}
