package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hkjang/codelens/internal/rules/ruledata"
)

// ruleFile is the YAML document shape for rulesets.
type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// ruleSpec is one YAML rule entry. Rules are enabled unless explicitly
// marked disabled.
type ruleSpec struct {
	Definition `yaml:",inline"`
	Disabled   bool `yaml:"disabled,omitempty"`
}

// ParseRuleSet decodes a YAML ruleset document into definitions.
func ParseRuleSet(data []byte) ([]Definition, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	defs := make([]Definition, 0, len(f.Rules))
	for _, spec := range f.Rules {
		def := spec.Definition
		def.Enabled = !spec.Disabled
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadBuiltin registers the embedded builtin ruleset into the engine.
func LoadBuiltin(e *Engine) error {
	data, err := ruledata.FS.ReadFile("rules.yaml")
	if err != nil {
		return fmt.Errorf("load builtin rules: %w", err)
	}
	return registerAll(e, data)
}

// LoadFile registers an extra YAML ruleset from disk, layered over whatever
// is already registered (upsert by ID).
func LoadFile(e *Engine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load ruleset %s: %w", path, err)
	}
	return registerAll(e, data)
}

func registerAll(e *Engine, data []byte) error {
	defs, err := ParseRuleSet(data)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := e.Register(def); err != nil {
			return err
		}
	}
	return nil
}
