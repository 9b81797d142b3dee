// Package rules provides the CEL-Go based custom-exclusion rule engine.
//
// Custom rules sit on top of the built-in profiling rules: operators can veto
// debt lines that the fixed rule set would accept. A rule expression is
// evaluated once per line and must return bool; true means the line is
// excluded and the rule's reason is attached to the rejection report. With no
// rules loaded the overlay is a no-op.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/senna-project/senninha/internal/domain"
)

// Engine is the CEL-based custom rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RuleConfig
	Program cel.Program
}

// NewEngine creates a new custom rule engine.
func NewEngine() (*Engine, error) {
	// CEL environment with the per-line variables
	env, err := cel.NewEnv(
		cel.Variable("nif", cel.StringType),
		cel.Variable("instituicao", cel.StringType),
		cel.Variable("produto", cel.StringType),
		cel.Variable("categoria", cel.StringType),
		cel.Variable("litigio", cel.StringType),
		cel.Variable("banco", cel.StringType),
		cel.Variable("divida", cel.DoubleType),
		cel.Variable("parcela", cel.DoubleType),
		cel.Variable("garantias", cel.DoubleType),
		cel.Variable("total_banco", cel.DoubleType),
		cel.Variable("perfil_individual", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// EvaluateLine runs all loaded rules against one evaluated debt line and
// returns the hits. Evaluation errors count as non-hits: a broken custom rule
// must never disqualify a line on its own.
func (e *Engine) EvaluateLine(line *domain.DebtLine) []domain.RuleHit {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"nif":               line.TaxID,
		"instituicao":       line.Institution,
		"produto":           line.Product,
		"categoria":         line.ProductCategory,
		"litigio":           line.Litigation,
		"banco":             line.BankCanonical,
		"divida":            line.DebtTotal,
		"parcela":           line.Installment,
		"garantias":         line.GuaranteeValue,
		"total_banco":       line.BankAggregateDebt,
		"perfil_individual": line.IndividualEligible,
	}

	var hits []domain.RuleHit
	for _, rule := range rules {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			reason := rule.Config.Reason
			if reason == "" {
				reason = rule.Config.Name
			}
			hits = append(hits, domain.RuleHit{RuleID: rule.Config.ID, Reason: reason})
		}
	}

	return hits
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RuleConfig) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
