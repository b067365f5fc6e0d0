package agent

import (
	"fmt"
	"strings"

	"basegraph.app/concierge/internal/model"
)

const classifySystemPrompt = `You sort incoming support issues into the categories a project has configured.

Pick exactly one category from the list you are given. Base the choice on what the reporter
is asking for or struggling with, not on incidental words. When nothing fits well, pick the
closest category and lower your confidence.

Reply with the category name, a confidence between 0 and 1, and one sentence of reasoning.`

const extractSystemPrompt = `You extract structured facts from support issues.

Fill each requested field ONLY with information the reporter explicitly wrote in the issue
or their comments. Copy values verbatim where possible (versions, error text, commands).
Leave a field as an empty string when the text does not state it. Never guess, infer or
fill in typical values.`

const followUpSystemPrompt = `You are a support assistant asking a bug reporter for the details maintainers need.

## Rules

- Ask at most 3 questions, one per missing field, most important first.
- Each question targets exactly one of the listed missing fields and names it in "field".
- Be concrete: say what to run or where to look (e.g. "Run ` + "`node --version`" + ` and paste the output").
- Never ask again about a field listed as already asked.
- Never ask for passwords, tokens, API keys, private keys or other credentials. If logs may
  contain secrets, ask the reporter to remove them before pasting.
- Keep "why_needed" to one short sentence.`

const briefSystemPrompt = `You are a senior support engineer writing a brief that lets a maintainer act on an issue
without re-reading the thread.

## Rules

- Ground every statement in the issue, the extracted fields, the playbook or the project docs.
  Do not invent versions, errors or steps.
- "key_evidence" holds short verbatim excerpts of errors or logs.
- "next_steps" are concrete diagnostic or fix steps, preferring the playbook when it applies.
- "validation_confirmations" holds 2-3 yes/no checks the reporter can answer to confirm the
  diagnosis before following the steps.
- "possible_duplicates" lists only issues from the candidates you are given that look related.
- "environment" is a list of key/value pairs (OS, versions, tools).`

const reviseSystemPrompt = `You are a senior support engineer revising a brief after the reporter said it did not fit
their situation.

Take the feedback at face value. Drop suggestions the reporter already tried or ruled out,
address the specific mismatch they describe, and propose different next steps. Keep the same
output structure as the original brief, including 2-3 validation confirmations.`

func buildClassifyPrompt(title, body string, categories []string) string {
	var sb strings.Builder
	sb.WriteString("## Categories\n")
	for _, c := range categories {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\n## Title\n")
	sb.WriteString(title)
	sb.WriteString("\n\n## Body\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	return sb.String()
}

func buildExtractPrompt(body, comments string, fields []string) string {
	var sb strings.Builder
	sb.WriteString("## Fields to extract\n")
	sb.WriteString(strings.Join(fields, ", "))
	sb.WriteString("\n\n## Issue body\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	if strings.TrimSpace(comments) != "" {
		sb.WriteString("\n## Reporter comments\n")
		sb.WriteString(comments)
		sb.WriteString("\n")
	}
	return sb.String()
}

func buildFollowUpPrompt(body, category string, missing, asked []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Category\n%s\n\n", category)
	sb.WriteString("## Missing fields\n")
	writeList(&sb, missing)
	sb.WriteString("\n## Already asked\n")
	if len(asked) == 0 {
		sb.WriteString("(none)\n")
	} else {
		writeList(&sb, asked)
	}
	sb.WriteString("\n## Issue body\n")
	sb.WriteString(body)
	sb.WriteString("\n")
	return sb.String()
}

func buildBriefPrompt(in BriefInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Category\n%s\n\n", in.Category)
	sb.WriteString("## Extracted fields\n")
	writeFields(&sb, in.Fields)
	sb.WriteString("\n## Issue body\n")
	sb.WriteString(in.IssueBody)
	sb.WriteString("\n")
	if strings.TrimSpace(in.Comments) != "" {
		sb.WriteString("\n## Comments\n")
		sb.WriteString(in.Comments)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(in.Playbook) != "" {
		sb.WriteString("\n## Playbook\n")
		sb.WriteString(in.Playbook)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(in.RepoDocs) != "" {
		sb.WriteString("\n## Project docs\n")
		sb.WriteString(in.RepoDocs)
		sb.WriteString("\n")
	}
	if len(in.Duplicates) > 0 {
		sb.WriteString("\n## Candidate related issues\n")
		for _, d := range in.Duplicates {
			fmt.Fprintf(&sb, "#%d: %s\n", d.Number, d.Title)
		}
	}
	return sb.String()
}

func buildRevisePrompt(in RevisionInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Category\n%s\n\n", in.Category)
	sb.WriteString("## Reporter feedback\n")
	sb.WriteString(in.Feedback)
	sb.WriteString("\n\n## Extracted fields\n")
	writeFields(&sb, in.Fields)
	if strings.TrimSpace(in.PreviousBrief) != "" {
		sb.WriteString("\n## Previous brief\n")
		sb.WriteString(in.PreviousBrief)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(in.Playbook) != "" {
		sb.WriteString("\n## Playbook\n")
		sb.WriteString(in.Playbook)
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeList(sb *strings.Builder, items []string) {
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(item)
		sb.WriteString("\n")
	}
}

func writeFields(sb *strings.Builder, fields model.Fields) {
	if len(fields) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for _, k := range fields.Keys() {
		fmt.Fprintf(sb, "- %s: %s\n", k, fields[k])
	}
}
