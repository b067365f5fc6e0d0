// Package compose renders the markdown comments the bot posts.
package compose

import (
	"encoding/json"
	"fmt"
	"strings"

	"basegraph.app/concierge/internal/agent"
	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/scoring"
)

const RevisedBriefPrefix = "Thanks for the clarification! Here's a revised approach:\n\n"

const quickCommands = "### 📝 Quick Commands\n" +
	"- **`/stop`** - Stop asking me questions on this issue (opt-out)\n" +
	"- **`/diagnose`** - Activate the bot for your specific sub-issue or different problem (for other users in this thread)\n"

// FollowUp renders a round of questions. round is the 1-based loop number.
func FollowUp(questions []agent.FollowUp, round, maxRounds int, mention string) string {
	var sb strings.Builder
	writeMention(&sb, mention)

	sb.WriteString("👋 Hi! I need a bit more information to help route this issue effectively.\n\n")
	for i, q := range questions {
		fmt.Fprintf(&sb, "**%d. %s**\n", i+1, q.Question)
		if q.WhyNeeded != "" {
			fmt.Fprintf(&sb, "   _%s_\n", q.WhyNeeded)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "_This is follow-up round %d of %d. Please provide as much detail as possible._\n\n", round, maxRounds)
	sb.WriteString(quickCommands)
	return sb.String()
}

// Brief renders the engineer brief with its case packet and completeness line.
func Brief(brief agent.Brief, result scoring.Result, fields model.Fields, secretWarnings []string, mention string) string {
	var sb strings.Builder
	writeMention(&sb, mention)

	fmt.Fprintf(&sb, "**Summary:** %s\n\n", brief.Summary)

	if len(brief.Symptoms) > 0 {
		sb.WriteString("### 🔍 Symptoms\n")
		writeBullets(&sb, brief.Symptoms)
		sb.WriteString("\n")
	}

	if len(brief.Environment) > 0 {
		sb.WriteString("### 💻 Environment\n")
		for _, e := range brief.Environment {
			fmt.Fprintf(&sb, "- **%s:** %s\n", e.Key, e.Value)
		}
		sb.WriteString("\n")
	}

	if len(brief.ReproSteps) > 0 {
		sb.WriteString("### 🔄 Reproduction Steps\n")
		for i, step := range brief.ReproSteps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
		sb.WriteString("\n")
	}

	if len(brief.KeyEvidence) > 0 {
		sb.WriteString("### 📊 Key Evidence\n```\n")
		for _, e := range brief.KeyEvidence {
			sb.WriteString(e)
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}

	if len(result.Warnings) > 0 || len(secretWarnings) > 0 {
		sb.WriteString("### ⚠️ Warnings\n")
		writeBullets(&sb, result.Warnings)
		for _, w := range secretWarnings {
			fmt.Fprintf(&sb, "- 🔒 %s\n", w)
		}
		sb.WriteString("\n")
	}

	if len(brief.NextSteps) > 0 {
		sb.WriteString("### ✅ Suggested Next Steps\n")
		writeBullets(&sb, brief.NextSteps)
		sb.WriteString("\n")
	}

	if len(brief.ValidationConfirmations) > 0 {
		sb.WriteString("### ❓ Please Confirm\n")
		sb.WriteString("Before proceeding with the steps above, please confirm:\n")
		writeBullets(&sb, brief.ValidationConfirmations)
		sb.WriteString("\n")
	}

	if len(brief.PossibleDuplicates) > 0 {
		sb.WriteString("### 🔗 Possibly Related Issues\n")
		for _, d := range brief.PossibleDuplicates {
			fmt.Fprintf(&sb, "- #%d: %s\n", d.IssueNumber, d.SimilarityReason)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(quickCommands)
	sb.WriteString("\nIf this brief doesn't fit, reply with 'I disagree' or similar and I'll re-iterate once before escalating.\n\n")

	sb.WriteString("---\n<details>\n<summary>📦 Case Packet (JSON)</summary>\n\n```json\n")
	sb.WriteString(casePacket(fields))
	sb.WriteString("\n```\n</details>\n\n")
	fmt.Fprintf(&sb, "**Completeness Score:** %d/100 (threshold: %d)\n", result.Score, result.Threshold)
	return sb.String()
}

// RevisedBrief prefixes a regenerated brief.
func RevisedBrief(body string) string {
	return RevisedBriefPrefix + body
}

// Escalation is posted when the follow-up rounds ran out without an actionable report.
func Escalation(result scoring.Result, mentions []string, rounds int) string {
	var sb strings.Builder
	sb.WriteString("## ⚠️ Escalation Notice\n\n")
	fmt.Fprintf(&sb, "After %d rounds of follow-up questions, this issue still doesn't have enough information to be actionable.\n\n", rounds)

	sb.WriteString("### ❌ Still Missing\n")
	writeBullets(&sb, result.Missing)
	sb.WriteString("\n")

	if len(result.Issues) > 0 {
		sb.WriteString("### 🔍 Issues Identified\n")
		writeBullets(&sb, result.Issues)
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "**Current Completeness Score:** %d/100 (needs %d)\n\n", result.Score, result.Threshold)
	fmt.Fprintf(&sb, "Tagging for manual review: %s\n", strings.Join(mentions, " "))
	return sb.String()
}

// RevisionEscalation is posted when a second disagreement exhausts the brief revisions.
func RevisionEscalation(mentions []string) string {
	return "I've attempted to provide guidance twice, but it seems we're not addressing your specific situation yet. \n\n" +
		"This issue may benefit from human review. I'm adding the escalation label for a maintainer to take a closer look.\n\n" +
		strings.Join(mentions, " ")
}

func OffTopic(mention string) string {
	var sb strings.Builder
	writeMention(&sb, mention)
	sb.WriteString("Thanks for reaching out! This doesn't look like a bug report or support request I can help triage, ")
	sb.WriteString("so I won't ask any follow-up questions here.\n\n")
	sb.WriteString("If you are running into a problem, please open a new issue describing what you expected, ")
	sb.WriteString("what happened instead and any error messages you saw. A maintainer may still reply to this thread.\n")
	return sb.String()
}

func OptOut(mention string) string {
	return fmt.Sprintf("@%s\n\nYou've opted out with /stop. I won't ask further questions on this issue. "+
		"If you need to restart, comment with /diagnose.", mention)
}

func writeMention(sb *strings.Builder, mention string) {
	if mention == "" {
		return
	}
	fmt.Fprintf(sb, "@%s\n\n", mention)
}

func writeBullets(sb *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func casePacket(fields model.Fields) string {
	if fields == nil {
		fields = model.Fields{}
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
