// Package specpack loads the per-repository triage configuration: categories,
// checklists, validator rules, routing and playbooks.
package specpack

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("spec pack not found")

const (
	defaultThreshold = 70
	defaultWeight    = 10
)

type Category struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

type Checklist struct {
	Category       string          `yaml:"category"`
	Threshold      int             `yaml:"completeness_threshold"`
	RequiredFields []RequiredField `yaml:"required_fields"`
}

func (c *Checklist) UnmarshalYAML(node *yaml.Node) error {
	type plain Checklist
	raw := plain{Threshold: defaultThreshold}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*c = Checklist(raw)
	return nil
}

// FieldNames returns the canonical names of every required field, in order.
func (c Checklist) FieldNames() []string {
	names := make([]string, 0, len(c.RequiredFields))
	for _, f := range c.RequiredFields {
		names = append(names, f.Name)
	}
	return names
}

// Field looks up a required field by canonical name.
func (c Checklist) Field(name string) (RequiredField, bool) {
	for _, f := range c.RequiredFields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return RequiredField{}, false
}

type RequiredField struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Weight      int      `yaml:"weight"`
	Optional    bool     `yaml:"optional"`
	Aliases     []string `yaml:"aliases"`
}

func (f *RequiredField) UnmarshalYAML(node *yaml.Node) error {
	type plain RequiredField
	raw := plain{Weight: defaultWeight}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*f = RequiredField(raw)
	return nil
}

type ValidatorRules struct {
	JunkPatterns       []string            `yaml:"junk_patterns"`
	FormatValidators   FormatRules         `yaml:"format_validators"`
	SecretPatterns     []string            `yaml:"secret_patterns"`
	ContradictionRules []ContradictionRule `yaml:"contradiction_rules"`
}

// FormatRule pairs a field-name fragment with the pattern values of matching
// fields must satisfy.
type FormatRule struct {
	Key     string
	Pattern string
}

// FormatRules keeps format_validators in file order; the first rule whose key
// appears in a field name is the only one applied.
type FormatRules []FormatRule

func (r *FormatRules) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("format_validators: expected mapping, got %s", nodeKind(node))
	}
	rules := make(FormatRules, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key, pattern string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("format_validators key: %w", err)
		}
		if err := node.Content[i+1].Decode(&pattern); err != nil {
			return fmt.Errorf("format_validators[%s]: %w", key, err)
		}
		rules = append(rules, FormatRule{Key: key, Pattern: pattern})
	}
	*r = rules
	return nil
}

type ContradictionRule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Field1      string `yaml:"field1"`
	Field2      string `yaml:"field2"`
	Condition   string `yaml:"condition"`
}

type Route struct {
	Category  string   `yaml:"category"`
	Labels    []string `yaml:"labels"`
	Assignees []string `yaml:"assignees"`
}

type RoutingRules struct {
	Routes             []Route  `yaml:"routes"`
	EscalationMentions []string `yaml:"escalation_mentions"`
}

// Pack is the loaded configuration. It is treated as immutable for a run.
type Pack struct {
	Categories []Category
	Checklists map[string]Checklist
	Validators ValidatorRules
	Routing    RoutingRules
	Playbooks  map[string]string
}

// Checklist returns the checklist for a category, matching case-insensitively
// when there is no exact entry.
func (p *Pack) Checklist(category string) (Checklist, bool) {
	return lookupFold(p.Checklists, category)
}

// Route returns the routing entry for a category (case-insensitive).
func (p *Pack) Route(category string) (Route, bool) {
	for _, r := range p.Routing.Routes {
		if strings.EqualFold(r.Category, category) {
			return r, true
		}
	}
	return Route{}, false
}

// Playbook returns the playbook text for a category (case-insensitive).
func (p *Pack) Playbook(category string) string {
	text, _ := lookupFold(p.Playbooks, category)
	return text
}

// lookupFold prefers an exact key, then the first key in sorted order that
// matches case-insensitively.
func lookupFold[V any](m map[string]V, key string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for _, name := range slices.Sorted(maps.Keys(m)) {
		if strings.EqualFold(name, key) {
			return m[name], true
		}
	}
	var zero V
	return zero, false
}

func (p *Pack) HasCategory(name string) bool {
	for _, c := range p.Categories {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (p *Pack) CategoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, c.Name)
	}
	return names
}

// Load reads a spec pack directory. Missing files leave their section empty;
// a missing directory is ErrNotFound.
func Load(dir string) (*Pack, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, fmt.Errorf("stat spec dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotFound, dir)
	}

	pack := &Pack{
		Checklists: make(map[string]Checklist),
		Playbooks:  make(map[string]string),
	}

	var categories struct {
		Categories []Category `yaml:"categories"`
	}
	if err := readYAML(filepath.Join(dir, "categories.yaml"), &categories); err != nil {
		return nil, err
	}
	pack.Categories = categories.Categories

	var checklists struct {
		Checklists []Checklist `yaml:"checklists"`
	}
	if err := readYAML(filepath.Join(dir, "checklists.yaml"), &checklists); err != nil {
		return nil, err
	}
	for _, c := range checklists.Checklists {
		pack.Checklists[c.Category] = c
	}

	if err := readYAML(filepath.Join(dir, "validators.yaml"), &pack.Validators); err != nil {
		return nil, err
	}
	if err := readYAML(filepath.Join(dir, "routing.yaml"), &pack.Routing); err != nil {
		return nil, err
	}

	playbooks, err := filepath.Glob(filepath.Join(dir, "playbooks", "*.md"))
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	sort.Strings(playbooks)
	for _, path := range playbooks {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read playbook %s: %w", path, err)
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		pack.Playbooks[name] = string(content)
	}

	return pack, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func nodeKind(n *yaml.Node) string {
	switch n.Kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.DocumentNode:
		return "document"
	case yaml.AliasNode:
		return "alias"
	}
	return "mapping"
}
