// Package policy evaluates CEL rules over each payee line of a payroll batch.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// ErrRejected is returned when a batch line fails a rule.
var ErrRejected = errors.New("amount rejected by policy")

// Rule is a named CEL expression that must evaluate to true for every line.
// Available variables: amount (int), payee (string), index (int), batch_size (int).
type Rule struct {
	Name string `yaml:"name" json:"name"`
	Expr string `yaml:"expr" json:"expr"`
}

// DefaultRules rejects zero and negative amounts.
var DefaultRules = []Rule{{Name: "positive-amount", Expr: "amount > 0"}}

type compiledRule struct {
	Rule
	prg cel.Program
}

// AmountPolicy holds compiled rules. Safe for concurrent use.
type AmountPolicy struct {
	rules []compiledRule
}

// NewAmountPolicy compiles rules up front; an empty list selects DefaultRules.
func NewAmountPolicy(rules []Rule) (*AmountPolicy, error) {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.IntType),
		cel.Variable("payee", cel.StringType),
		cel.Variable("index", cel.IntType),
		cel.Variable("batch_size", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	p := &AmountPolicy{}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: compile: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %q: program: %w", r.Name, err)
		}
		p.rules = append(p.rules, compiledRule{Rule: r, prg: prg})
	}
	return p, nil
}

// Rules returns the active rule set.
func (p *AmountPolicy) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// CheckBatch evaluates every rule against every line, stopping at the first rejection.
// payees and amounts must already have equal length.
func (p *AmountPolicy) CheckBatch(ctx context.Context, payees []contracts.Identity, amounts []int64) error {
	for i := range amounts {
		vars := map[string]any{
			"amount":     amounts[i],
			"payee":      string(payees[i]),
			"index":      int64(i),
			"batch_size": int64(len(amounts)),
		}
		for _, r := range p.rules {
			out, _, err := r.prg.ContextEval(ctx, vars)
			if err != nil {
				return fmt.Errorf("rule %q: eval line %d: %w", r.Name, i, err)
			}
			allowed, ok := out.Value().(bool)
			if !ok {
				return fmt.Errorf("rule %q: result is %T, want bool", r.Name, out.Value())
			}
			if !allowed {
				return fmt.Errorf("%w: line %d (payee %s, amount %d) violates %q", ErrRejected, i, payees[i], amounts[i], r.Name)
			}
		}
	}
	return nil
}
