package domain

// RuleConfig defines an operator-supplied exclusion rule evaluated per debt
// line on top of the built-in profiling rules. The expression is CEL; a true
// result vetoes the line and contributes Reason to its rejection report.
// The built-in rules are not expressed this way: with no custom rules loaded
// the engine behaves exactly as the fixed rule set dictates.
type RuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression over the per-line variables (divida, garantias, litigio,
	// produto, categoria, instituicao, banco, total_banco, nif). Must return
	// bool.
	Expression string `json:"expression"`

	// Reason is the rejection-reason string recorded when the rule fires.
	Reason string `json:"reason"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}

// RuleHit records a custom rule that fired against a debt line.
type RuleHit struct {
	RuleID string `json:"ruleId"`
	Reason string `json:"reason"`
}
