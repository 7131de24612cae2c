package clientprofile

import (
	"fmt"
	"os"
	"sort"
	"time"

	"sigs.k8s.io/yaml"
)

// FileConfig is the on-disk form of a profile table. Profiles named in the
// file replace the built-in profile of the same name; a non-empty rule list
// replaces the built-in rules.
//
//	default: strict
//	profiles:
//	  - name: strict
//	    total_budget_ms: 20000
//	    safety_buffer_ms: 3000
//	    inter_request_delay_ms: 500
//	    max_pages: 3
//	rules:
//	  - profile: generous
//	    keywords: ["claude-code"]
type FileConfig struct {
	Default  string          `json:"default,omitempty"`
	Profiles []ProfileConfig `json:"profiles,omitempty"`
	Rules    []RuleConfig    `json:"rules,omitempty"`
}

// ProfileConfig is one profile entry with durations in milliseconds.
type ProfileConfig struct {
	Name                string `json:"name"`
	TotalBudgetMs       int64  `json:"total_budget_ms"`
	SafetyBufferMs      int64  `json:"safety_buffer_ms"`
	InterRequestDelayMs int64  `json:"inter_request_delay_ms"`
	MaxPages            int    `json:"max_pages"`
}

// RuleConfig is one matching rule.
type RuleConfig struct {
	Profile  string   `json:"profile"`
	Keywords []string `json:"keywords"`
}

// LoadFile reads a YAML profile table and merges it over DefaultTable.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read profiles file: %w", err)
	}
	return Parse(data)
}

// Parse merges a YAML (or JSON) profile table over DefaultTable.
func Parse(data []byte) (Table, error) {
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Table{}, fmt.Errorf("parse profiles: %w", err)
	}

	table := DefaultTable()
	for _, pc := range cfg.Profiles {
		p := Profile{
			Name:              pc.Name,
			TotalBudget:       time.Duration(pc.TotalBudgetMs) * time.Millisecond,
			SafetyBuffer:      time.Duration(pc.SafetyBufferMs) * time.Millisecond,
			InterRequestDelay: time.Duration(pc.InterRequestDelayMs) * time.Millisecond,
			MaxPages:          pc.MaxPages,
		}
		if err := validateProfile(p); err != nil {
			return Table{}, err
		}
		table.Profiles[p.Name] = p
	}

	if len(cfg.Rules) > 0 {
		table.Rules = make([]Rule, 0, len(cfg.Rules))
		for _, rc := range cfg.Rules {
			table.Rules = append(table.Rules, Rule{Profile: rc.Profile, Keywords: rc.Keywords})
		}
	}
	if cfg.Default != "" {
		table.Default = cfg.Default
	}

	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// FileConfig returns the on-disk form of t with profiles sorted by name.
func (t Table) FileConfig() FileConfig {
	names := make([]string, 0, len(t.Profiles))
	for name := range t.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := FileConfig{Default: t.Default}
	for _, name := range names {
		p := t.Profiles[name]
		cfg.Profiles = append(cfg.Profiles, ProfileConfig{
			Name:                p.Name,
			TotalBudgetMs:       p.TotalBudget.Milliseconds(),
			SafetyBufferMs:      p.SafetyBuffer.Milliseconds(),
			InterRequestDelayMs: p.InterRequestDelay.Milliseconds(),
			MaxPages:            p.MaxPages,
		})
	}
	for _, r := range t.Rules {
		cfg.Rules = append(cfg.Rules, RuleConfig{Profile: r.Profile, Keywords: r.Keywords})
	}
	return cfg
}

// Validate checks that rules and the fallback reference known profiles.
func (t Table) Validate() error {
	if _, ok := t.Profiles[t.Default]; !ok {
		return fmt.Errorf("default profile %q is not defined", t.Default)
	}
	for i, rule := range t.Rules {
		if _, ok := t.Profiles[rule.Profile]; !ok {
			return fmt.Errorf("rule %d references unknown profile %q", i, rule.Profile)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("rule %d has no keywords", i)
		}
	}
	for _, p := range t.Profiles {
		if err := validateProfile(p); err != nil {
			return err
		}
	}
	return nil
}

func validateProfile(p Profile) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("profile name is required")
	case p.TotalBudget <= 0:
		return fmt.Errorf("profile %q: total budget must be positive", p.Name)
	case p.SafetyBuffer < 0 || p.SafetyBuffer >= p.TotalBudget:
		return fmt.Errorf("profile %q: safety buffer must be within [0, total budget)", p.Name)
	case p.InterRequestDelay < 0:
		return fmt.Errorf("profile %q: inter-request delay must not be negative", p.Name)
	case p.MaxPages < 1:
		return fmt.Errorf("profile %q: max pages must be >= 1 (got %d)", p.Name, p.MaxPages)
	}
	return nil
}
