package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raeburnlaw/caseguard/internal/config"
	"github.com/raeburnlaw/caseguard/internal/logger"
	"go.uber.org/zap"
)

// Redactor holds the ordered rule list and the active policy. All
// redaction operations are pure with respect to their inputs; the rule
// list is the only shared mutable state and is guarded by mu.
type Redactor struct {
	mu     sync.RWMutex
	rules  []*Rule
	index  map[string]*Rule
	policy Policy
	salt   string
	logger *logger.Logger
}

// New creates a redactor with the built-in rule set configured from cfg.
func New(cfg config.RedactionConfig, log *logger.Logger) (*Redactor, error) {
	r := &Redactor{
		rules:  DefaultRules(),
		index:  make(map[string]*Rule),
		salt:   cfg.Salt,
		logger: log,
	}
	for _, rule := range r.rules {
		r.index[rule.ID] = rule
	}

	if err := r.ApplyConfig(cfg); err != nil {
		return nil, err
	}

	log.Info("Redactor initialized",
		zap.Int("total_rules", len(r.rules)),
		zap.Int("enabled_rules", r.Stats().Enabled),
		zap.String("default_level", string(r.policy.DefaultLevel)),
		zap.String("environment", r.policy.Environment),
	)

	return r, nil
}

// ApplyConfig swaps the policy and rule toggles at runtime, backing a
// config hot reload. Custom rules registered since startup are kept;
// the salt never changes, so hash tags stay correlatable.
func (r *Redactor) ApplyConfig(cfg config.RedactionConfig) error {
	policy, err := policyFromConfig(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.policy = policy
	r.mu.Unlock()

	for _, id := range cfg.EnabledRules {
		if !r.SetRuleStatus(id, true) {
			return fmt.Errorf("unknown redaction rule: %s", id)
		}
	}
	for _, id := range cfg.DisabledRules {
		if !r.SetRuleStatus(id, false) {
			return fmt.Errorf("unknown redaction rule: %s", id)
		}
	}
	return nil
}

func policyFromConfig(cfg config.RedactionConfig) (Policy, error) {
	policy := Policy{
		DefaultLevel:  LevelFull,
		RoleLevels:    make(map[string]Level),
		EnvLevels:     make(map[string]Level),
		Environment:   cfg.Environment,
		ExemptFields:  make(map[string]struct{}),
		LogRedactions: cfg.LogRedactions,
	}

	if cfg.DefaultLevel != "" {
		level, ok := ParseLevel(cfg.DefaultLevel)
		if !ok {
			return Policy{}, fmt.Errorf("invalid default redaction level: %s", cfg.DefaultLevel)
		}
		policy.DefaultLevel = level
	}
	for role, name := range cfg.RoleLevels {
		level, ok := ParseLevel(name)
		if !ok {
			return Policy{}, fmt.Errorf("invalid redaction level for role %s: %s", role, name)
		}
		policy.RoleLevels[role] = level
	}
	for env, name := range cfg.EnvLevels {
		level, ok := ParseLevel(name)
		if !ok {
			return Policy{}, fmt.Errorf("invalid redaction level for environment %s: %s", env, name)
		}
		policy.EnvLevels[env] = level
	}
	for _, field := range cfg.ExemptFields {
		policy.ExemptFields[field] = struct{}{}
	}

	return policy, nil
}

// ResolveLevel resolves the effective redaction level. Precedence:
// explicit caller level, environment override, role level, policy
// default. With no policy signal at all the result is FULL.
func (r *Redactor) ResolveLevel(role string, explicit Level) Level {
	if explicit != "" {
		if _, ok := ParseLevel(string(explicit)); ok {
			return explicit
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if level, ok := r.policy.EnvLevels[r.policy.Environment]; ok {
		return level
	}
	if role != "" {
		if level, ok := r.policy.RoleLevels[role]; ok {
			return level
		}
	}
	if r.policy.DefaultLevel != "" {
		return r.policy.DefaultLevel
	}
	return LevelFull
}

// candidate is one potential match of one rule against the original text.
type candidate struct {
	rule     *Rule
	priority int
	start    int
	end      int
}

// collectCandidates finds all filtered matches of every enabled,
// non-exempt rule against the original text.
func (r *Redactor) collectCandidates(text string, exempt map[string]struct{}) []candidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []candidate
	for priority, rule := range r.rules {
		if !rule.Enabled {
			continue
		}
		if _, ok := exempt[string(rule.Category)]; ok {
			continue
		}
		if _, ok := exempt[rule.ID]; ok {
			continue
		}

		offset := 0
		for offset < len(text) {
			loc := rule.Pattern.FindStringIndex(text[offset:])
			if loc == nil {
				break
			}
			start, end := offset+loc[0], offset+loc[1]
			if rule.Filter != nil && !rule.Filter(text[start:end]) {
				offset = start + 1
				continue
			}
			candidates = append(candidates, candidate{
				rule:     rule,
				priority: priority,
				start:    start,
				end:      end,
			})
			offset = end
		}
	}
	return candidates
}

// resolveOverlaps accepts candidates in rule registration order and
// drops any candidate overlapping an already accepted span. The result
// is sorted by start offset, ready for a single substitution pass.
func resolveOverlaps(candidates []candidate) []candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		if candidates[i].start != candidates[j].start {
			return candidates[i].start < candidates[j].start
		}
		return candidates[i].end > candidates[j].end
	})

	accepted := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		overlaps := false
		for _, a := range accepted {
			if c.start < a.end && a.start < c.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			accepted = append(accepted, c)
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].start < accepted[j].start
	})
	return accepted
}

// Redact masks all rule matches in text at the resolved level. It never
// fails: empty input yields an identity result with no redactions.
func (r *Redactor) Redact(text string, opts Options) Result {
	level := r.ResolveLevel(opts.Role, opts.Level)
	result := Result{
		Original:  text,
		Redacted:  text,
		Applied:   []AppliedRule{},
		Level:     level,
		Timestamp: time.Now().UTC(),
	}

	if text == "" || level == LevelNone {
		return result
	}

	exempt := r.exemptSet(opts.ExemptFields)
	matches := resolveOverlaps(r.collectCandidates(text, exempt))
	if len(matches) == 0 {
		return result
	}

	var out strings.Builder
	applied := make(map[string]*AppliedRule)
	order := make([]string, 0)
	last := 0
	for _, m := range matches {
		out.WriteString(text[last:m.start])
		original := text[m.start:m.end]
		redacted := r.replacementFor(m.rule, level, original)
		out.WriteString(redacted)
		last = m.end

		entry, ok := applied[m.rule.ID]
		if !ok {
			entry = &AppliedRule{
				RuleID:   m.rule.ID,
				Category: m.rule.Category,
				Severity: m.rule.Severity,
			}
			applied[m.rule.ID] = entry
			order = append(order, m.rule.ID)
		}
		entry.MatchCount++
		entry.Positions = append(entry.Positions, Position{
			Start:    m.start,
			End:      m.end,
			Original: original,
			Redacted: redacted,
		})
	}
	out.WriteString(text[last:])

	result.Redacted = out.String()
	for _, id := range order {
		result.Applied = append(result.Applied, *applied[id])
	}

	r.logRedactions(result)
	return result
}

// logRedactions emits a diagnostic record when the policy asks for one.
// This is a logging side effect only; it never touches the audit trail.
func (r *Redactor) logRedactions(result Result) {
	r.mu.RLock()
	enabled := r.policy.LogRedactions
	r.mu.RUnlock()
	if !enabled || len(result.Applied) == 0 {
		return
	}

	for _, a := range result.Applied {
		r.logger.Debug("Redaction applied",
			zap.String("rule_id", a.RuleID),
			zap.String("category", string(a.Category)),
			zap.String("severity", string(a.Severity)),
			zap.Int("match_count", a.MatchCount),
			zap.String("level", string(result.Level)),
		)
	}
}

func (r *Redactor) exemptSet(extra []string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exempt := make(map[string]struct{}, len(r.policy.ExemptFields)+len(extra))
	for field := range r.policy.ExemptFields {
		exempt[field] = struct{}{}
	}
	for _, field := range extra {
		exempt[field] = struct{}{}
	}
	return exempt
}

func (r *Redactor) replacementFor(rule *Rule, level Level, match string) string {
	switch level {
	case LevelNone:
		return match
	case LevelHash:
		return r.hashTag(rule.Tag, match)
	}
	if rep, ok := rule.Replacements[level]; ok {
		return rep.Apply(match)
	}
	// Unknown or unmapped level degrades to the full tag, never to
	// disclosure.
	return "[" + rule.Tag + "_REDACTED]"
}

// hashTag produces a deterministic salted digest tag, enabling
// correlation across records without disclosure.
func (r *Redactor) hashTag(tag, match string) string {
	sum := sha256.Sum256([]byte(r.salt + match))
	return "[" + tag + "#" + hex.EncodeToString(sum[:])[:12] + "]"
}

// RedactObject walks a nested record depth-first and redacts every
// string leaf. Keys listed as exempt pass through unchanged at any
// depth; arrays are processed element-wise preserving order and length.
func (r *Redactor) RedactObject(obj map[string]interface{}, opts Options) (map[string]interface{}, []Result) {
	if obj == nil {
		return nil, nil
	}
	exempt := r.exemptSet(opts.ExemptFields)
	var summary []Result
	redacted := r.walkMap(obj, exempt, opts, &summary)
	return redacted, summary
}

func (r *Redactor) walkMap(obj map[string]interface{}, exempt map[string]struct{}, opts Options, summary *[]Result) map[string]interface{} {
	out := make(map[string]interface{}, len(obj))
	for key, value := range obj {
		if _, ok := exempt[key]; ok {
			out[key] = value
			continue
		}
		out[key] = r.walkValue(value, exempt, opts, summary)
	}
	return out
}

func (r *Redactor) walkValue(value interface{}, exempt map[string]struct{}, opts Options, summary *[]Result) interface{} {
	switch v := value.(type) {
	case string:
		result := r.Redact(v, opts)
		if len(result.Applied) > 0 {
			*summary = append(*summary, result)
		}
		return result.Redacted
	case map[string]interface{}:
		return r.walkMap(v, exempt, opts, summary)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = r.walkValue(item, exempt, opts, summary)
		}
		return out
	default:
		return value
	}
}

// ContainsPII reports whether text matches any enabled rule, without
// mutating anything. Used for pre-flight checks before exports.
func (r *Redactor) ContainsPII(text string) Detection {
	detection := Detection{
		Categories:  []Category{},
		Severities:  []Severity{},
		RuleMatches: make(map[string]int),
	}
	if text == "" {
		return detection
	}

	matches := resolveOverlaps(r.collectCandidates(text, nil))
	seenCategory := make(map[Category]bool)
	seenSeverity := make(map[Severity]bool)
	for _, m := range matches {
		detection.HasPII = true
		detection.RuleMatches[m.rule.ID]++
		if !seenCategory[m.rule.Category] {
			seenCategory[m.rule.Category] = true
			detection.Categories = append(detection.Categories, m.rule.Category)
		}
		if !seenSeverity[m.rule.Severity] {
			seenSeverity[m.rule.Severity] = true
			detection.Severities = append(detection.Severities, m.rule.Severity)
		}
	}
	return detection
}

// AddRule registers a fully formed rule. The rule id must be unique.
func (r *Redactor) AddRule(rule *Rule) error {
	if rule == nil || rule.ID == "" || rule.Name == "" || rule.Pattern == nil {
		return &InvalidRuleError{Reason: "id, name and pattern are required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[rule.ID]; exists {
		return &DuplicateRuleError{ID: rule.ID}
	}
	r.rules = append(r.rules, rule)
	r.index[rule.ID] = rule

	r.logger.Info("Redaction rule added",
		zap.String("rule_id", rule.ID),
		zap.String("category", string(rule.Category)),
	)
	return nil
}

// AddCustomRule compiles and registers a rule from its parts. The rule
// masks with the category tag at FULL and with the salted hash at HASH;
// PARTIAL falls back to the full tag.
func (r *Redactor) AddCustomRule(id, name, pattern string, category Category, severity Severity, tag string) error {
	if id == "" || name == "" || pattern == "" {
		return &InvalidRuleError{Reason: "id, name and pattern are required"}
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return &InvalidRuleError{Reason: fmt.Sprintf("pattern does not compile: %v", err)}
	}
	if tag == "" {
		tag = strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
	}

	return r.AddRule(&Rule{
		ID:       id,
		Name:     name,
		Pattern:  compiled,
		Category: category,
		Severity: severity,
		Tag:      tag,
		Enabled:  true,
		Replacements: map[Level]Replacement{
			LevelFull: Static("[" + tag + "_REDACTED]"),
		},
	})
}

// SetRuleStatus enables or disables a rule, reporting whether the id
// was known. Rules are never deleted, only disabled.
func (r *Redactor) SetRuleStatus(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.index[id]
	if !ok {
		return false
	}
	rule.Enabled = enabled
	return true
}

// GetRule returns a copy of the rule with the given id.
func (r *Redactor) GetRule(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.index[id]
	if !ok {
		return Rule{}, false
	}
	return *rule, true
}

// Rules returns a defensive copy of the registered rule list.
func (r *Redactor) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Rule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = *rule
	}
	return out
}

// Stats summarizes the rule set by category and severity.
func (r *Redactor) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:      len(r.rules),
		ByCategory: make(map[Category]int),
		BySeverity: make(map[Severity]int),
	}
	for _, rule := range r.rules {
		stats.ByCategory[rule.Category]++
		stats.BySeverity[rule.Severity]++
		if rule.Enabled {
			stats.Enabled++
		}
	}
	return stats
}
