package guard

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMaxChars = 2000

const (
	ReasonEmpty    = "input must not be empty"
	ReasonTooLong  = "input is too long"
	ReasonRejected = "input contains a disallowed pattern"
)

//go:embed default_patterns.json
var defaultPatterns []byte

type Pattern struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

// PatternSet is the versioned list of injection patterns. Patterns are matched case
// insensitively.
type PatternSet struct {
	Version  string    `json:"version"`
	Patterns []Pattern `json:"patterns"`
}

func DefaultPatternSet() (*PatternSet, error) {
	return parsePatternSet(defaultPatterns)
}

func LoadPatternFile(path string) (*PatternSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return parsePatternSet(raw)
}

func parsePatternSet(raw []byte) (*PatternSet, error) {
	set := &PatternSet{}
	if err := json.Unmarshal(raw, set); err != nil {
		return nil, fmt.Errorf("decode pattern set: %w", err)
	}
	if len(set.Patterns) == 0 {
		return nil, fmt.Errorf("pattern set %q has no patterns", set.Version)
	}
	return set, nil
}

type rule struct {
	name string
	re   *regexp.Regexp
}

type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	// Rule names the pattern that rejected the input.
	Rule string `json:"rule,omitempty"`
}

// RejectedError carries a failed validation to the http layer.
type RejectedError struct {
	Result Result
}

func (e *RejectedError) Error() string {
	return e.Result.Reason
}

type Validator struct {
	version  string
	rules    []rule
	maxChars int
}

func New(set *PatternSet, maxChars int) (*Validator, error) {
	if set == nil {
		var err error
		if set, err = DefaultPatternSet(); err != nil {
			return nil, err
		}
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	rules := make([]rule, 0, len(set.Patterns))
	for _, p := range set.Patterns {
		expr := strings.TrimSpace(p.Expr)
		if expr == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p.Name, err)
		}
		rules = append(rules, rule{name: p.Name, re: re})
	}
	return &Validator{version: set.Version, rules: rules, maxChars: maxChars}, nil
}

func (v *Validator) Version() string {
	return v.version
}

// Validate checks, in order: blank input, length in characters, injection patterns.
func (v *Validator) Validate(input string) Result {
	if strings.TrimSpace(input) == "" {
		return Result{Reason: ReasonEmpty}
	}
	if utf8.RuneCountInString(input) > v.maxChars {
		return Result{Reason: fmt.Sprintf("%s (max %d characters)", ReasonTooLong, v.maxChars)}
	}
	for _, r := range v.rules {
		if r.re.MatchString(input) {
			return Result{Reason: ReasonRejected, Rule: r.name}
		}
	}
	return Result{Valid: true}
}

// CheckLength only applies the length limit; blank input passes.
func (v *Validator) CheckLength(input string) error {
	if utf8.RuneCountInString(input) <= v.maxChars {
		return nil
	}
	return &RejectedError{Result: Result{Reason: fmt.Sprintf("%s (max %d characters)", ReasonTooLong, v.maxChars)}}
}

// Check is Validate returning a *RejectedError for invalid input.
func (v *Validator) Check(input string) error {
	res := v.Validate(input)
	if res.Valid {
		return nil
	}
	return &RejectedError{Result: res}
}
