package triage

import (
	"strings"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/parser"
	"basegraph.app/concierge/internal/specpack"
)

const OffTopicCategory = "off_topic"

var problemTerms = []string{
	"error message", "exception", "fail", "failed", "failure", "crash", "crashed", "stack trace",
	"not working", "doesn't work", "doesnt work", "unable to", "cannot", "can't", "can not",
	"won't", "wont", "bug", "regression", "broken", "issue with", "problem with",
}

var negationTerms = []string{"no error", "no errors", "no exception", "no crash", "no fail"}

// CategorySource records which rule picked a category.
type CategorySource string

const (
	SourceState      CategorySource = "state"
	SourceFormField  CategorySource = "form_field"
	SourceOffTopic   CategorySource = "off_topic_heuristic"
	SourceKeywords   CategorySource = "keywords"
	SourceClassifier CategorySource = "classifier"
)

func IsOffTopic(category string) bool {
	return strings.EqualFold(category, OffTopicCategory)
}

// ResolveCategory applies the deterministic rules in order: an explicit
// issue_type/type form field naming a configured category, the off-topic
// heuristic, then the best keyword score (first configured category wins
// ties). ok is false when none of them decide and a classifier is needed.
func ResolveCategory(pack *specpack.Pack, title, body string) (string, CategorySource, bool) {
	fields := parser.ParseSections(body)
	if category, ok := explicitType(pack, fields); ok {
		return category, SourceFormField, true
	}

	text := strings.ToLower(title + " " + body)
	scores := make([]int, len(pack.Categories))
	offTopicScore := 0
	for i, c := range pack.Categories {
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				scores[i]++
			}
		}
		if IsOffTopic(c.Name) {
			offTopicScore = scores[i]
		}
	}

	if offTopicScore > 0 && (!containsAny(text, problemTerms) || containsAny(text, negationTerms)) {
		return OffTopicCategory, SourceOffTopic, true
	}

	best, bestScore := "", 0
	for i, c := range pack.Categories {
		if scores[i] > bestScore {
			best, bestScore = c.Name, scores[i]
		}
	}
	if bestScore > 0 {
		return best, SourceKeywords, true
	}
	return "", "", false
}

func explicitType(pack *specpack.Pack, fields model.Fields) (string, bool) {
	for _, key := range []string{"issue_type", "type"} {
		v, ok := fields.Get(key)
		if !ok {
			continue
		}
		normalized := strings.ToLower(strings.TrimSpace(v))
		if pack.HasCategory(normalized) {
			return normalized, true
		}
		// Only the first of issue_type/type present is considered.
		return "", false
	}
	return "", false
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
