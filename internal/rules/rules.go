// Package rules implements the versioned rule engine: a registry of pattern
// rules evaluated line-by-line against source files. Rules are upserted by
// ID; every registry mutation bumps a monotone version counter so consumers
// can detect drift without diffing definitions.
package rules

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hkjang/codelens/internal/analysis"
)

// ErrInvalidPattern marks a rule whose pattern does not compile.
var ErrInvalidPattern = errors.New("invalid rule pattern")

// ErrNotFound marks a lookup for an unregistered rule ID.
var ErrNotFound = errors.New("rule not found")

// Definition describes one pattern rule. Pattern is a Go regular expression
// applied per line. Languages restricts evaluation; empty means all.
type Definition struct {
	ID          string              `yaml:"id" json:"id"`
	Name        string              `yaml:"name" json:"name"`
	Description string              `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string              `yaml:"category" json:"category"`
	Severity    analysis.Severity   `yaml:"severity" json:"severity"`
	Pattern     string              `yaml:"pattern" json:"pattern"`
	Message     string              `yaml:"message,omitempty" json:"message,omitempty"`
	Suggestion  string              `yaml:"suggestion,omitempty" json:"suggestion,omitempty"`
	Languages   []analysis.Language `yaml:"languages,omitempty" json:"languages,omitempty"`
	Enabled     bool                `yaml:"-" json:"enabled"`
}

// Validate checks the definition for registration. The pattern itself is
// compiled separately by the engine.
func (d Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if d.Name == "" {
		return fmt.Errorf("rule %s: name is required", d.ID)
	}
	if d.Pattern == "" {
		return fmt.Errorf("rule %s: pattern is required", d.ID)
	}
	if d.Category == "" {
		return fmt.Errorf("rule %s: category is required", d.ID)
	}
	if _, err := analysis.ParseSeverity(string(d.Severity)); err != nil {
		return fmt.Errorf("rule %s: %w", d.ID, err)
	}
	return nil
}

// equal reports whether two definitions are identical, field by field.
// Re-registering an identical definition is a no-op in the engine.
func (d Definition) equal(o Definition) bool {
	return d.ID == o.ID &&
		d.Name == o.Name &&
		d.Description == o.Description &&
		d.Category == o.Category &&
		d.Severity == o.Severity &&
		d.Pattern == o.Pattern &&
		d.Message == o.Message &&
		d.Suggestion == o.Suggestion &&
		d.Enabled == o.Enabled &&
		slices.Equal(d.Languages, o.Languages)
}

// appliesTo reports whether the rule should run against lang.
func (d Definition) appliesTo(lang analysis.Language) bool {
	if len(d.Languages) == 0 {
		return true
	}
	return slices.Contains(d.Languages, lang)
}

// Filter narrows Rules listings. Zero values match everything.
type Filter struct {
	Category    string
	Severity    analysis.Severity
	EnabledOnly bool
}

func (f Filter) matches(d Definition) bool {
	if f.Category != "" && d.Category != f.Category {
		return false
	}
	if f.Severity != "" && d.Severity != f.Severity {
		return false
	}
	if f.EnabledOnly && !d.Enabled {
		return false
	}
	return true
}
