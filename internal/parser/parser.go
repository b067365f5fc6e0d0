// Package parser pulls deterministic fields out of issue-form markdown and
// "key: value" lines.
package parser

import (
	"regexp"
	"strings"

	"basegraph.app/concierge/internal/model"
)

var (
	headingPattern  = regexp.MustCompile(`^#+\s+(.+)$`)
	keyValuePattern = regexp.MustCompile(`^\s*([^:=]+)\s*[:=]\s*(.+)$`)
	nonWordPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spacePattern    = regexp.MustCompile(`\s+`)
)

// NormalizeKey turns a heading or label into a field name:
// "Operating System (OS)" becomes "operating_system_os".
func NormalizeKey(s string) string {
	s = nonWordPattern.ReplaceAllString(strings.TrimSpace(s), "")
	s = spacePattern.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// ParseSections collects the body under each markdown heading. Bodies are
// trimmed and empty sections are dropped. Text before the first heading is
// ignored.
func ParseSections(text string) model.Fields {
	fields := model.Fields{}
	if strings.TrimSpace(text) == "" {
		return fields
	}

	var (
		current string
		inField bool
		body    []string
	)
	flush := func() {
		if !inField {
			return
		}
		if content := strings.TrimSpace(strings.Join(body, "\n")); content != "" {
			fields.Set(NormalizeKey(current), content)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			flush()
			current = strings.TrimSpace(m[1])
			inField = true
			body = body[:0]
			continue
		}
		if inField {
			body = append(body, line)
		}
	}
	flush()

	return fields
}

// ExtractKeyValueLines reads "Key: value" and "Key = value" lines. Only the
// first separator splits; empty values are dropped.
func ExtractKeyValueLines(text string) model.Fields {
	fields := model.Fields{}
	if strings.TrimSpace(text) == "" {
		return fields
	}

	for _, line := range strings.Split(text, "\n") {
		m := keyValuePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}
		fields.Set(NormalizeKey(m[1]), value)
	}

	return fields
}

// Merge combines field maps left to right; later maps win.
func Merge(maps ...model.Fields) model.Fields {
	merged := model.Fields{}
	for _, m := range maps {
		for k, v := range m {
			merged.Set(k, v)
		}
	}
	return merged
}
