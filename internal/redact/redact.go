// Package redact masks secrets in free text before it is scored, posted or
// sent to a model.
package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted match.
const Placeholder = "[REDACTED]"

const mask = "***"

var (
	base64Shape = regexp.MustCompile(`^[A-Za-z0-9+/]{40,}={0,2}$`)
	hexShape    = regexp.MustCompile(`^[0-9a-f]{32,}$`)
	labelPrefix = regexp.MustCompile(`(?i)^([a-z][a-z0-9_.-]*\s*[:=]\s*|bearer\s+)`)
)

type Redactor struct {
	patterns []*regexp.Regexp
}

type Result struct {
	Text     string
	Findings []string
}

// New compiles the configured secret patterns. Patterns match case-insensitively.
func New(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("secret pattern %d: %w", i, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Redact applies every pattern in order. Each match is recorded as a finding
// and all of its occurrences are replaced with Placeholder.
func (r *Redactor) Redact(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Text: text}
	}

	var findings []string
	redacted := text
	for _, re := range r.patterns {
		for _, match := range re.FindAllString(redacted, -1) {
			if strings.TrimSpace(match) == "" || match == Placeholder {
				continue
			}
			// an earlier identical match already replaced it
			if !strings.Contains(redacted, match) {
				continue
			}
			findings = append(findings, fmt.Sprintf("Found %s: %s", Classify(match), preview(match)))
			redacted = strings.ReplaceAll(redacted, match, Placeholder)
		}
	}

	return Result{Text: redacted, Findings: findings}
}

// Text is Redact without the findings.
func (r *Redactor) Text(text string) string {
	return r.Redact(text).Text
}

// Classify names the kind of secret a match looks like.
func Classify(match string) string {
	s := strings.ToLower(match)
	switch {
	case strings.TrimSpace(s) == "":
		return "unknown"
	case strings.Contains(s, "api") || strings.Contains(s, "key") || strings.Contains(s, "token"):
		return "API Key"
	case strings.Contains(s, "password") || strings.Contains(s, "passwd") || strings.Contains(s, "pwd"):
		return "Password"
	case strings.Contains(s, "secret"):
		return "Secret"
	case strings.Contains(s, "credential"):
		return "Credential"
	case strings.Contains(s, "bearer"):
		return "Bearer Token"
	case base64Shape.MatchString(s):
		return "Base64 Encoded Secret"
	case hexShape.MatchString(s):
		return "Hash/Token"
	}
	return "Sensitive Data"
}

// preview keeps the label of a "name: value" or "Bearer value" match and
// masks the value. Findings are posted publicly, so no character of the
// secret itself may survive.
func preview(s string) string {
	if label := labelPrefix.FindString(s); label != "" && len(label) < len(s) {
		return label + mask
	}
	return mask
}
