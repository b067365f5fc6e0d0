// Package scoring computes how complete an issue report is against its
// category checklist.
package scoring

import (
	"fmt"
	"math"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/specpack"
	"basegraph.app/concierge/internal/validate"
)

type Result struct {
	Category   string   `json:"category"`
	Score      int      `json:"score"`
	Threshold  int      `json:"threshold"`
	Actionable bool     `json:"is_actionable"`
	Missing    []string `json:"missing_fields"`
	Invalid    []string `json:"invalid_fields"`
	Issues     []string `json:"issues"`
	Warnings   []string `json:"warnings"`
}

type Scorer struct {
	validator *validate.Validator
}

func New(v *validate.Validator) *Scorer {
	return &Scorer{validator: v}
}

// Score weighs each required field: full weight when present and valid, a
// third of it when present but invalid, nothing when missing. Optional fields
// count toward the total but never earn partial credit.
func (s *Scorer) Score(fields model.Fields, checklist specpack.Checklist) Result {
	res := Result{
		Category:  checklist.Category,
		Threshold: checklist.Threshold,
		Missing:   []string{},
		Invalid:   []string{},
		Issues:    []string{},
		Warnings:  []string{},
	}

	var total, earned float64
	for _, field := range checklist.RequiredFields {
		weight := float64(field.Weight)
		total += weight

		value, ok := Resolve(fields, field)
		if !ok {
			res.Missing = append(res.Missing, field.Name)
			if !field.Optional {
				res.Issues = append(res.Issues, fmt.Sprintf("Required field '%s' is missing", field.Name))
			}
			continue
		}

		check := s.validator.Validate(field.Name, value)
		if !check.Valid {
			res.Invalid = append(res.Invalid, field.Name)
			res.Issues = append(res.Issues, fmt.Sprintf("Field '%s': %s", field.Name, check.Message))
			if !field.Optional {
				earned += weight / 3
			}
			continue
		}

		earned += weight
	}

	if total > 0 {
		res.Score = int(math.Round(earned / total * 100))
	}
	res.Actionable = res.Score >= checklist.Threshold
	res.Warnings = append(res.Warnings, s.validator.CheckContradictions(fields)...)

	return res
}

// Resolve finds a field's value by its canonical name, then by each alias.
func Resolve(fields model.Fields, field specpack.RequiredField) (string, bool) {
	if v, ok := fields.Get(field.Name); ok {
		return v, true
	}
	for _, alias := range field.Aliases {
		if v, ok := fields.Get(alias); ok {
			return v, true
		}
	}
	return "", false
}
