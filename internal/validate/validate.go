// Package validate checks individual field values and cross-field consistency.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/specpack"
)

const (
	ConditionVersionMismatch = "version_mismatch"
	ConditionWindowsBash     = "windows_with_bash_native"
)

var firstNumber = regexp.MustCompile(`\d+`)

type formatRule struct {
	key     string
	lowered string
	re      *regexp.Regexp
}

type Validator struct {
	junk          []*regexp.Regexp
	formats       []formatRule
	contradiction []specpack.ContradictionRule
}

type Result struct {
	Field   string
	Valid   bool
	Message string
}

// New compiles the rule set. Junk patterns are case-insensitive; format
// patterns are used exactly as written and keep their configured order.
func New(rules specpack.ValidatorRules) (*Validator, error) {
	v := &Validator{contradiction: rules.ContradictionRules}

	for i, p := range rules.JunkPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("junk pattern %d: %w", i, err)
		}
		v.junk = append(v.junk, re)
	}

	for _, r := range rules.FormatValidators {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("format validator %q: %w", r.Key, err)
		}
		v.formats = append(v.formats, formatRule{key: r.Key, lowered: strings.ToLower(r.Key), re: re})
	}

	return v, nil
}

// IsJunk reports whether value is blank or a placeholder such as "N/A".
func (v *Validator) IsJunk(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return true
	}
	for _, re := range v.junk {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// Validate checks emptiness, then junk, then the first format rule whose key
// appears in the field name.
func (v *Validator) Validate(field, value string) Result {
	res := Result{Field: field, Valid: true}

	if strings.TrimSpace(value) == "" {
		res.Valid = false
		res.Message = "Field is empty"
		return res
	}

	if v.IsJunk(value) {
		res.Valid = false
		res.Message = "Field contains placeholder or junk value"
		return res
	}

	name := strings.ToLower(field)
	for _, rule := range v.formats {
		if !strings.Contains(name, rule.lowered) {
			continue
		}
		if !rule.re.MatchString(value) {
			res.Valid = false
			res.Message = fmt.Sprintf("Field does not match expected format for %s", rule.key)
		}
		break
	}

	return res
}

// CheckContradictions evaluates every configured pair rule whose two fields are
// present. Unknown conditions are skipped.
func (v *Validator) CheckContradictions(fields model.Fields) []string {
	var warnings []string

	for _, rule := range v.contradiction {
		raw1, ok1 := fields.Get(rule.Field1)
		raw2, ok2 := fields.Get(rule.Field2)
		if !ok1 || !ok2 {
			continue
		}
		value1 := strings.ToLower(raw1)
		value2 := strings.ToLower(raw2)

		switch strings.ToLower(rule.Condition) {
		case ConditionVersionMismatch:
			n1, ok1 := leadingVersion(value1)
			n2, ok2 := leadingVersion(value2)
			if ok1 && ok2 && abs(n1-n2) > 2 {
				warnings = append(warnings, fmt.Sprintf("%s: %s (%s) may be incompatible with %s (%s)",
					rule.Description, rule.Field1, value1, rule.Field2, value2))
			}
		case ConditionWindowsBash:
			if strings.Contains(value1, "windows") && strings.Contains(value2, "bash") && !strings.Contains(value2, "wsl") {
				warnings = append(warnings, fmt.Sprintf("%s: Windows typically requires WSL for bash", rule.Description))
			}
		}
	}

	return warnings
}

func leadingVersion(s string) (int, bool) {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
