package password

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

var (
	// ErrInvalidPattern is returned when a rule pattern does not compile.
	ErrInvalidPattern = errors.New("invalid password rule pattern")
	// ErrMatchTimeout is returned when a rule pattern exceeds the match timeout.
	ErrMatchTimeout = errors.New("password rule match timed out")
)

// DefaultMatchTimeout bounds a single pattern match. Policy patterns are
// backtracking expressions supplied by configuration.
const DefaultMatchTimeout = 100 * time.Millisecond

// Rule is a single password constraint: a label shown to the user and the
// pattern that must match somewhere in the password.
type Rule struct {
	Label   string `json:"label" mapstructure:"label" yaml:"label"`
	Pattern string `json:"pattern" mapstructure:"pattern" yaml:"pattern"`
}

// RuleStatus is a rule together with whether the evaluated password satisfies it.
type RuleStatus struct {
	Label     string `json:"label"`
	Pattern   string `json:"pattern,omitempty"`
	Satisfied bool   `json:"satisfied"`
}

// Result is the outcome of evaluating one password against a policy.
// Rules keeps the order of the policy rules.
type Result struct {
	Rules        []RuleStatus `json:"rules"`
	AllSatisfied bool         `json:"valid"`
}

// Unsatisfied returns the labels of the rules the password does not meet.
func (r *Result) Unsatisfied() []string {
	labels := make([]string, 0)
	for _, s := range r.Rules {
		if !s.Satisfied {
			labels = append(labels, s.Label)
		}
	}
	return labels
}

// RuleError describes a rule that could not be compiled or evaluated.
type RuleError struct {
	Index int
	Rule  Rule
	Kind  error
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("password rule %d (%q, pattern %q): %v: %v", e.Index, e.Rule.Label, e.Rule.Pattern, e.Kind, e.Err)
}

func (e *RuleError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

type options struct {
	matchTimeout time.Duration
}

// Option configures policy compilation.
type Option func(*options)

// WithMatchTimeout sets the per-pattern match timeout. Zero or negative
// disables the timeout.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) {
		o.matchTimeout = d
	}
}

// Policy is an ordered, compiled set of rules. A Policy is immutable and safe
// for concurrent use.
type Policy struct {
	rules    []Rule
	patterns []*regexp2.Regexp
}

// Compile compiles every rule pattern. Patterns use ECMAScript syntax so
// lookahead rules such as "(?=.*[a-z])" behave as they do in a browser.
func Compile(rules []Rule, opts ...Option) (*Policy, error) {
	o := options{matchTimeout: DefaultMatchTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Policy{
		rules:    make([]Rule, len(rules)),
		patterns: make([]*regexp2.Regexp, len(rules)),
	}
	copy(p.rules, rules)

	for i, rule := range p.rules {
		re, err := regexp2.Compile(rule.Pattern, regexp2.ECMAScript)
		if err != nil {
			return nil, &RuleError{Index: i, Rule: rule, Kind: ErrInvalidPattern, Err: err}
		}
		if o.matchTimeout > 0 {
			re.MatchTimeout = o.matchTimeout
		}
		p.patterns[i] = re
	}

	return p, nil
}

// MustCompile is like Compile but panics on an invalid rule set.
func MustCompile(rules []Rule, opts ...Option) *Policy {
	p, err := Compile(rules, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// Rules returns a copy of the policy rules in order.
func (p *Policy) Rules() []Rule {
	rules := make([]Rule, len(p.rules))
	copy(rules, p.rules)
	return rules
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	return len(p.rules)
}

// Evaluate reports which rules the password satisfies. An empty policy is
// satisfied by every password.
func (p *Policy) Evaluate(password string) (*Result, error) {
	result := &Result{
		Rules:        make([]RuleStatus, 0, len(p.rules)),
		AllSatisfied: true,
	}

	for i, re := range p.patterns {
		ok, err := re.MatchString(password)
		if err != nil {
			return nil, &RuleError{Index: i, Rule: p.rules[i], Kind: ErrMatchTimeout, Err: err}
		}

		result.Rules = append(result.Rules, RuleStatus{
			Label:     p.rules[i].Label,
			Pattern:   p.rules[i].Pattern,
			Satisfied: ok,
		})
		result.AllSatisfied = result.AllSatisfied && ok
	}

	return result, nil
}

// Evaluate compiles rules and evaluates password against them.
func Evaluate(password string, rules []Rule, opts ...Option) (*Result, error) {
	p, err := Compile(rules, opts...)
	if err != nil {
		return nil, err
	}
	return p.Evaluate(password)
}
