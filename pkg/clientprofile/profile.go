// Package clientprofile infers which tool-calling runtime drives the session
// and maps it to a time budget and page ceiling.
//
// Runtimes cancel in-flight tool calls past their own timeout and never tell
// the server what that timeout is. The detector therefore matches whatever
// identity signal is available (the declared MCP client name or a free-text
// agent string) against keyword rules, and falls back to the strict profile,
// which has the smallest budget of all, when nothing matches.
package clientprofile

import (
	"strings"
	"time"
)

// Names of the predefined profiles.
const (
	ProfileStrict   = "strict"
	ProfileModerate = "moderate"
	ProfileGenerous = "generous"
)

// Profile is the inferred budget of a calling runtime.
type Profile struct {
	Name              string
	TotalBudget       time.Duration
	SafetyBuffer      time.Duration
	InterRequestDelay time.Duration
	MaxPages          int
}

// UsableBudget is the part of the total budget a retrieval may spend.
func (p Profile) UsableBudget() time.Duration {
	usable := p.TotalBudget - p.SafetyBuffer
	if usable < 0 {
		return 0
	}
	return usable
}

// Rule maps keywords to a profile. Keywords match as case-insensitive
// substrings.
type Rule struct {
	Profile  string
	Keywords []string
}

func (r Rule) matches(signal string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(signal, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Table holds the profiles, the ordered matching rules and the fallback.
type Table struct {
	Profiles map[string]Profile
	Rules    []Rule
	Default  string
}

// DefaultTable returns the built-in profiles and rules.
func DefaultTable() Table {
	return Table{
		Profiles: map[string]Profile{
			ProfileStrict: {
				Name:              ProfileStrict,
				TotalBudget:       20 * time.Second,
				SafetyBuffer:      3 * time.Second,
				InterRequestDelay: 500 * time.Millisecond,
				MaxPages:          3,
			},
			ProfileModerate: {
				Name:              ProfileModerate,
				TotalBudget:       30 * time.Second,
				SafetyBuffer:      5 * time.Second,
				InterRequestDelay: 250 * time.Millisecond,
				MaxPages:          5,
			},
			ProfileGenerous: {
				Name:              ProfileGenerous,
				TotalBudget:       45 * time.Second,
				SafetyBuffer:      5 * time.Second,
				InterRequestDelay: 100 * time.Millisecond,
				MaxPages:          10,
			},
		},
		// Order matters: the first rule with a matching keyword wins.
		Rules: []Rule{
			{Profile: ProfileGenerous, Keywords: []string{"claude-code", "claude code", "claude-ai", "claude desktop", "mcp-inspector"}},
			{Profile: ProfileModerate, Keywords: []string{"cursor", "windsurf", "cline", "continue", "vscode", "copilot", "zed", "claude"}},
		},
		Default: ProfileStrict,
	}
}

// Fallback returns the profile used when no rule matches.
func (t Table) Fallback() Profile {
	return t.Profiles[t.Default]
}

// Detect resolves a profile from the declared client name first and the
// agent string second. The result depends only on its inputs.
func (t Table) Detect(declaredName, agentString string) Profile {
	for _, signal := range []string{declaredName, agentString} {
		signal = strings.ToLower(strings.TrimSpace(signal))
		if signal == "" {
			continue
		}
		if p, ok := t.match(signal); ok {
			return p
		}
	}
	return t.Fallback()
}

func (t Table) match(signal string) (Profile, bool) {
	for _, rule := range t.Rules {
		if !rule.matches(signal) {
			continue
		}
		if p, ok := t.Profiles[rule.Profile]; ok {
			return p, true
		}
	}
	return Profile{}, false
}

// Detect resolves a profile against the built-in table.
func Detect(declaredName, agentString string) Profile {
	return DefaultTable().Detect(declaredName, agentString)
}
