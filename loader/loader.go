package loader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/c360/factflow/errors"
	"github.com/c360/factflow/fact"
	"github.com/c360/factflow/rule"
)

// Definition is the JSON shape of one declarative rule. Conditions name facts
// by their string identity; the loader allocates registry slots for every
// name it encounters, in order of first appearance.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`

	// Given is an OR of AND-clauses: the rule fires when any clause's facts
	// all hold. Empty means vacuously satisfied.
	Given [][]string `json:"given,omitempty"`

	// Unless blocks the rule while any of its clauses fully holds.
	Unless [][]string `json:"unless,omitempty"`

	// Remove and Add are the fixed delta the rule's action produces.
	Remove []string `json:"remove,omitempty"`
	Add    []string `json:"add,omitempty"`
}

// Loader reads rule definition files and materializes them against a fact
// registry.
type Loader struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With("component", "loader")}
}

// LoadFiles reads rule definitions from JSON files. Each file holds either a
// single definition or an array of definitions.
func (l *Loader) LoadFiles(paths []string) ([]Definition, error) {
	var all []Definition

	for _, path := range paths {
		l.logger.Debug("Loading rules from file", "path", path)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("read rules file %s: %w", path, err),
				"Loader", "LoadFiles", "read file")
		}

		defs, err := parseDefinitions(data)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("rules file %s: %w", path, err),
				"Loader", "LoadFiles", "parse file")
		}

		l.logger.Info("Loaded rule definitions from file", "path", path, "count", len(defs))
		all = append(all, defs...)
	}

	return all, nil
}

// parseDefinitions accepts both a JSON array and a single JSON object.
func parseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		var single Definition
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("%w: %v (also tried as single rule: %v)",
				errors.ErrParsingFailed, err, err2)
		}
		defs = []Definition{single}
	}
	return defs, nil
}

// Build materializes enabled definitions into rules, allocating every named
// fact in reg. A definition naming more distinct facts than the registry can
// hold fails the whole build; a disabled definition is skipped.
func (l *Loader) Build(reg *fact.Registry, defs []Definition) ([]rule.Rule, error) {
	var rules []rule.Rule

	for _, def := range defs {
		if !def.Enabled {
			l.logger.Debug("Skipping disabled rule", "rule_id", def.ID)
			continue
		}

		r, err := l.buildRule(reg, def)
		if err != nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("rule %s: %w", def.ID, err),
				"Loader", "Build", "build rule")
		}

		rules = append(rules, r)
		l.logger.Info("Loaded rule", "rule_id", def.ID, "rule_name", def.Name)
	}

	if len(rules) == 0 {
		l.logger.Warn("No rules configured, the engine will stall immediately")
	}

	return rules, nil
}

func (l *Loader) buildRule(reg *fact.Registry, def Definition) (rule.Rule, error) {
	b := rule.Always()

	for _, clause := range def.Given {
		facts, err := resolve(reg, clause)
		if err != nil {
			return nil, err
		}
		b = b.Or(facts...)
	}
	for _, clause := range def.Unless {
		facts, err := resolve(reg, clause)
		if err != nil {
			return nil, err
		}
		b = b.Unless(facts...)
	}

	remove, err := Facts(reg, def.Remove...)
	if err != nil {
		return nil, err
	}
	add, err := Facts(reg, def.Add...)
	if err != nil {
		return nil, err
	}

	name := def.Name
	if name == "" {
		name = def.ID
	}
	return rule.Named(name, b.ThenDelta(remove, add)), nil
}

// Facts resolves names to a vector, allocating any fact not yet registered.
func Facts(reg *fact.Registry, names ...string) (fact.Vector, error) {
	facts, err := resolve(reg, names)
	if err != nil {
		return fact.EmptyVector, err
	}
	return fact.VectorOf(facts...), nil
}

func resolve(reg *fact.Registry, names []string) ([]fact.Fact, error) {
	facts := make([]fact.Fact, 0, len(names))
	for _, name := range names {
		f, ok := reg.Lookup(name)
		if !ok {
			var err error
			f, err = reg.Allocate(name)
			if err != nil {
				return nil, err
			}
		}
		facts = append(facts, f)
	}
	return facts, nil
}
