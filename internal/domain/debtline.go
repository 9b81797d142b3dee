package domain

// DebtLine is one credit-reference row extracted from a "Mapa de
// Responsabilidades de Crédito" report. Field names follow the columns
// produced by the upstream field extractor, so the JSON shape of a line is
// stable across extraction, evaluation and export.
type DebtLine struct {
	// Source identifiers
	SourceFile string `json:"arquivopdf,omitempty"`
	SourcePage string `json:"paginapdf,omitempty"`

	// Client identification
	Name      string `json:"nome,omitempty"`
	TaxID     string `json:"nif"`
	ReportMes string `json:"mesmapa,omitempty"`
	ReportAno string `json:"anomapa,omitempty"`

	// Institution as printed on the report (never empty upstream; the
	// extractor falls back to "nao_identificada").
	Institution string `json:"instituicao"`

	// InstitutionCanonical is the cross-page grouping name produced by the
	// institution normalization table. Independent from the bank-registry
	// canonicalization used for pari/persi.
	InstitutionCanonical string `json:"instituicao_normalizada,omitempty"`

	// Free-text financial product description.
	Product string `json:"prodfinanceiro,omitempty"`

	// Monetary fields. The extractor may deliver these already parsed or as
	// raw European-format strings; the raw shadows let the engine sanitize
	// idempotently against both representations.
	DebtTotal      float64 `json:"divida"`
	Installment    float64 `json:"parcela"`
	GuaranteeValue float64 `json:"garantias"`

	DebtTotalRaw      string `json:"divida_raw,omitempty"`
	InstallmentRaw    string `json:"parcela_raw,omitempty"`
	GuaranteeValueRaw string `json:"garantias_raw,omitempty"`

	// Litigation flag as printed: "Sim", "Não" or missing.
	Litigation string `json:"litigio,omitempty"`

	// Pass-through fields, not used by eligibility logic.
	DebtorCount      int    `json:"numdevedores,omitempty"`
	EntryDefaultDate string `json:"entradaincumpr,omitempty"`
	StartDate        string `json:"datinicio,omitempty"`
	EndDate          string `json:"datfim,omitempty"`

	// Derived fields, computed by the profile engine.
	ProductCategory    string  `json:"categoria_produto,omitempty"`
	IndividualEligible bool    `json:"perfil_individual"`
	GroupEligible      bool    `json:"perfila"`
	BankCanonical      string  `json:"banco_canon,omitempty"`
	BankAggregateDebt  float64 `json:"total_nif_mapa_banco"`
	PariPersi          bool    `json:"pari_persi"`

	// RuleReasons carries the reason strings of custom exclusion rules that
	// vetoed this line. Persisted with the line, so rejection reports rebuilt
	// from storage keep them.
	RuleReasons []string `json:"motivos_regras,omitempty"`

	// DocumentID identifies the source report. Derived from the source
	// filename, falling back to month+year, falling back to the tax id.
	DocumentID string `json:"map_id,omitempty"`
}

// MapID returns the identifier of the source report for grouping purposes.
// Derivation order: explicit DocumentID, source filename, month|year, tax id.
func (d *DebtLine) MapID() string {
	if d.DocumentID != "" {
		return d.DocumentID
	}
	if d.SourceFile != "" {
		return d.SourceFile
	}
	if d.ReportMes != "" || d.ReportAno != "" {
		switch {
		case d.ReportMes == "":
			return d.ReportAno
		case d.ReportAno == "":
			return d.ReportMes
		default:
			return d.ReportMes + "|" + d.ReportAno
		}
	}
	return d.TaxID
}

// Batch is one extraction run's full result set, evaluated as a unit.
type Batch struct {
	ID    string     `json:"id"`
	Lines []DebtLine `json:"dividas"`
}
