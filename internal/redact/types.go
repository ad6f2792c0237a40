package redact

import (
	"fmt"
	"regexp"
	"time"
)

// Level selects the intensity of masking applied to a match.
type Level string

const (
	// LevelFull replaces the whole match with a category tag
	LevelFull Level = "FULL"
	// LevelPartial keeps a masked but recognizable shape
	LevelPartial Level = "PARTIAL"
	// LevelHash replaces the match with a deterministic salted hash tag
	LevelHash Level = "HASH"
	// LevelNone passes the match through unchanged
	LevelNone Level = "NONE"
)

// ParseLevel parses a level name, reporting whether it is valid.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelFull, LevelPartial, LevelHash, LevelNone:
		return Level(s), true
	}
	return "", false
}

// Category classifies what kind of sensitive data a rule detects.
type Category string

const (
	CategoryPII        Category = "PII"
	CategoryIdentifier Category = "IDENTIFIER"
	CategoryContact    Category = "CONTACT"
	CategoryFinancial  Category = "FINANCIAL"
	CategoryLegal      Category = "LEGAL"
)

// Severity ranks how damaging a disclosure of the matched data would be.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Replacement produces the masked form of a single match.
type Replacement interface {
	Apply(match string) string
}

// Static is a fixed replacement string.
type Static string

// Apply returns the fixed string regardless of the match.
func (s Static) Apply(string) string { return string(s) }

// Func is a pure function replacement.
type Func func(match string) string

// Apply invokes the function on the match.
func (f Func) Apply(match string) string { return f(match) }

// Rule represents a single redaction rule. Rules are immutable once
// registered; only their enabled flag may change.
type Rule struct {
	ID       string
	Name     string
	Pattern  *regexp.Regexp
	Category Category
	Severity Severity
	// Tag is the short category tag used in FULL and HASH output, e.g. EMAIL.
	Tag     string
	Enabled bool
	// Replacements maps levels to masking strategies. HASH and NONE are
	// handled by the engine and need no entry here.
	Replacements map[Level]Replacement
	// Filter rejects false-positive candidates. Scanning resumes one byte
	// past a rejected candidate so overlapping real matches are still found.
	Filter func(match string) bool
}

// Policy controls how an effective redaction level is resolved.
type Policy struct {
	DefaultLevel  Level
	RoleLevels    map[string]Level
	EnvLevels     map[string]Level
	Environment   string
	ExemptFields  map[string]struct{}
	LogRedactions bool
}

// Position records one masked span. Offsets always reference the
// original text value.
type Position struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Original string `json:"-"`
	Redacted string `json:"redacted"`
}

// AppliedRule summarizes all matches of one rule within a single call.
type AppliedRule struct {
	RuleID     string     `json:"ruleId"`
	Category   Category   `json:"category"`
	Severity   Severity   `json:"severity"`
	MatchCount int        `json:"matchCount"`
	Positions  []Position `json:"positions"`
}

// Result contains the outcome of a redaction call.
type Result struct {
	Original  string        `json:"-"` // never serialize original text
	Redacted  string        `json:"redactedText"`
	Applied   []AppliedRule `json:"redactionsApplied"`
	Level     Level         `json:"level"`
	Timestamp time.Time     `json:"timestamp"`
}

// Detection is the read-only output of ContainsPII.
type Detection struct {
	HasPII      bool           `json:"hasPII"`
	Categories  []Category     `json:"categories"`
	Severities  []Severity     `json:"severities"`
	RuleMatches map[string]int `json:"ruleMatches"`
}

// Stats summarizes the registered rule set.
type Stats struct {
	Total      int              `json:"total"`
	Enabled    int              `json:"enabled"`
	ByCategory map[Category]int `json:"byCategory"`
	BySeverity map[Severity]int `json:"bySeverity"`
}

// Options carries per-call overrides for a redaction request.
type Options struct {
	Role         string
	Level        Level // empty means unset
	ExemptFields []string
}

// InvalidRuleError reports a malformed custom rule.
type InvalidRuleError struct {
	Reason string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid redaction rule: %s", e.Reason)
}

// DuplicateRuleError reports a rule id collision.
type DuplicateRuleError struct {
	ID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("redaction rule already exists: %s", e.ID)
}
