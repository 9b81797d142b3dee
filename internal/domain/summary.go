package domain

import "time"

// ClientSummary is the per-client rollup computed after a batch is evaluated.
// The JSON keys match the "resumo" block of the per-client export files.
type ClientSummary struct {
	TaxID string `json:"nif"`

	// TotalEligibleDebt is the qualification input: the eligible-row debt sum
	// under the configured gate, rounded to 2 decimals.
	TotalEligibleDebt float64 `json:"divida_total_elegivel"`

	// Both gate variants are always exposed; which one feeds qualification is
	// a configuration decision (SumGate).
	EligibleByIndividual float64 `json:"divida_elegivel_individual"`
	EligibleByGroup      float64 `json:"divida_elegivel_grupo"`

	Qualifies    bool `json:"perfila"`
	HasPariPersi bool `json:"pari_persi"`

	LineCount int    `json:"total_dividas"`
	BatchID   string `json:"batch_id,omitempty"`
}

// ClientResult pairs a summary with the client's evaluated lines. It is the
// shape of the per-client export file.
type ClientResult struct {
	Summary ClientSummary `json:"resumo"`
	Lines   []DebtLine    `json:"dividas"`
}

// RejectionReason strings emitted by the explainer. Reproduced verbatim from
// the report vocabulary the downstream consumers expect.
const (
	ReasonLitigation       = "Litígio judicial"
	ReasonSecured          = "Dívida com garantia"
	ReasonInstitutionTaint = "Instituição tem outra dívida com garantia/litigio"
	ReasonFallback         = "Regras de perfilamento não atendidas"
)

// InstitutionRejection groups rejection reasons per institution with the
// summed debt the client holds there.
type InstitutionRejection struct {
	Institution string   `json:"instituicao"`
	Amount      float64  `json:"valor"`
	Reasons     []string `json:"motivos_reprovacao"`
}

// RejectionReport is the export shape for a disqualified client.
type RejectionReport struct {
	Summary ClientSummary          `json:"resumo"`
	Reasons []InstitutionRejection `json:"motivos"`
}

// Evaluation is the persisted record of one batch evaluation.
type Evaluation struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batchId"`
	Timestamp time.Time `json:"timestamp"`

	Lines     []DebtLine      `json:"dividas"`
	Summaries []ClientSummary `json:"resumos"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID          string `json:"traceId"`
	LinesEvaluated   int    `json:"linesEvaluated"`
	ClientsEvaluated int    `json:"clientsEvaluated"`
	CustomRules      int    `json:"customRules"`
	EvalMs           int64  `json:"evalMs"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
}
