// Package profile implements the perfilamento engine: per-line eligibility,
// the per-report institution veto with the automobile fast track, the
// pari/persi bank-aggregate track and the per-client qualification rollup.
package profile

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/senna-project/senninha/internal/banks"
	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/normalize"
	"github.com/senna-project/senninha/internal/rules"
	"github.com/senna-project/senninha/internal/taxid"
)

// Engine evaluates batches of extracted debt lines. It is stateless across
// batches and safe for concurrent use.
type Engine struct {
	cfg          domain.ProfileConfig
	banks        *banks.Registry
	products     normalize.ProductMap
	institutions *normalize.InstitutionNormalizer
	overlay      *rules.Engine
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewEngine creates a profile engine. The overlay is optional; nil disables
// custom exclusion rules.
func NewEngine(
	cfg domain.ProfileConfig,
	registry *banks.Registry,
	products normalize.ProductMap,
	institutions *normalize.InstitutionNormalizer,
	overlay *rules.Engine,
	logger *slog.Logger,
) *Engine {
	if cfg.Gate == "" {
		cfg.Gate = domain.GateGroup
	}
	return &Engine{
		cfg:          cfg,
		banks:        registry,
		products:     products,
		institutions: institutions,
		overlay:      overlay,
		logger:       logger,
		tracer:       otel.Tracer("senninha/profile"),
	}
}

// Result is the outcome of evaluating one batch: the lines with all derived
// fields filled in, the per-client summaries, and any custom-rule hits keyed
// by line index.
type Result struct {
	Lines     []domain.DebtLine
	Summaries []domain.ClientSummary
	RuleHits  map[int][]domain.RuleHit
}

// EvaluateBatch runs the full evaluation over a batch. Input lines are not
// mutated; the returned lines carry the derived fields. Evaluation is
// idempotent: feeding the output back in produces the same result.
func (e *Engine) EvaluateBatch(ctx context.Context, batch *domain.Batch) (*Result, error) {
	_, span := e.tracer.Start(ctx, "profile.EvaluateBatch",
		trace.WithAttributes(
			attribute.String("batch.id", batch.ID),
			attribute.Int("batch.lines", len(batch.Lines)),
		))
	defer span.End()

	lines := make([]domain.DebtLine, len(batch.Lines))
	copy(lines, batch.Lines)

	result := &Result{
		Lines:    lines,
		RuleHits: make(map[int][]domain.RuleHit),
	}

	seenInvalid := make(map[string]bool)

	// Pass 1: sanitize, derive per-line fields, individual verdict.
	for i := range lines {
		l := &lines[i]

		l.DebtTotal = normalize.Amount(l.DebtTotal, l.DebtTotalRaw)
		l.Installment = normalize.Amount(l.Installment, l.InstallmentRaw)
		l.GuaranteeValue = normalize.Amount(l.GuaranteeValue, l.GuaranteeValueRaw)

		l.InstitutionCanonical = e.institutions.Normalize(l.Institution)
		l.ProductCategory = e.products.Category(l.Product)
		l.DocumentID = l.MapID()
		l.BankCanonical = e.banks.Canonicalize(l.Institution)

		l.RuleReasons = nil
		l.IndividualEligible = e.individualVerdict(l)

		if !taxid.Valid(l.TaxID) && !seenInvalid[l.TaxID] {
			seenInvalid[l.TaxID] = true
			e.logger.Warn("invalid tax identifier on extracted line",
				"nif", l.TaxID,
				"batch_id", batch.ID)
		}
	}

	// Pass 2: bank aggregates per report. Computed before the overlay so
	// custom rules see total_banco.
	aggregates := make(map[bankKey]float64)
	for i := range lines {
		l := &lines[i]
		if l.BankCanonical == "" {
			continue
		}
		aggregates[bankKeyOf(l)] += l.DebtTotal
	}
	for i := range lines {
		l := &lines[i]
		l.BankAggregateDebt = 0
		if l.BankCanonical != "" {
			l.BankAggregateDebt = round2(aggregates[bankKeyOf(l)])
		}
	}

	// Pass 3: custom-exclusion overlay over the individually eligible lines.
	if e.overlay != nil {
		for i := range lines {
			l := &lines[i]
			if !l.IndividualEligible {
				continue
			}
			hits := e.overlay.EvaluateLine(l)
			if len(hits) == 0 {
				continue
			}
			l.IndividualEligible = false
			result.RuleHits[i] = hits
			for _, h := range hits {
				l.RuleReasons = append(l.RuleReasons, h.Reason)
			}
		}
	}

	// Pass 4: institution veto per report, with the automobile fast track.
	tainted := make(map[groupKey]bool)
	for i := range lines {
		l := &lines[i]
		k := keyOf(l)
		if l.GuaranteeValue > 0 || isHousing(l) {
			tainted[k] = true
		}
	}
	for i := range lines {
		l := &lines[i]
		l.GroupEligible = l.IndividualEligible &&
			(!tainted[keyOf(l)] || e.fastTrack(l))
	}

	// Pass 5: pari/persi flag, after the overlay has settled the individual
	// verdicts.
	for i := range lines {
		l := &lines[i]
		l.PariPersi = false
		if l.BankCanonical == "" {
			continue
		}
		min, ok := e.banks.Minimum(l.BankCanonical)
		l.PariPersi = ok && l.IndividualEligible && l.DebtTotal > 0 &&
			l.BankAggregateDebt >= min
	}

	result.Summaries = e.summarize(batch.ID, lines)

	span.SetAttributes(attribute.Int("batch.clients", len(result.Summaries)))

	return result, nil
}

// individualVerdict applies the fixed per-line rules. Housing credit is never
// eligible. Automobile credit is eligible only above the configured floor.
// Everything else needs positive debt, no guarantee and no litigation.
func (e *Engine) individualVerdict(l *domain.DebtLine) bool {
	if isHousing(l) {
		return false
	}
	clean := l.GuaranteeValue == 0 && normalize.IsNo(l.Litigation)
	if isAuto(l) {
		return clean && l.DebtTotal >= e.cfg.AutoLoanMin
	}
	return clean && l.DebtTotal > 0
}

// fastTrack reports whether a line escapes its report-institution veto: only
// automobile credit that already passed the individual rules does.
func (e *Engine) fastTrack(l *domain.DebtLine) bool {
	return isAuto(l) && l.IndividualEligible
}

// groupKey identifies one institution within one client's report.
type groupKey struct {
	taxID       string
	documentID  string
	institution string
}

func keyOf(l *domain.DebtLine) groupKey {
	return groupKey{taxID: l.TaxID, documentID: l.DocumentID, institution: l.InstitutionCanonical}
}

// bankKey identifies one registered bank within one client's report.
type bankKey struct {
	taxID      string
	documentID string
	bank       string
}

func bankKeyOf(l *domain.DebtLine) bankKey {
	return bankKey{taxID: l.TaxID, documentID: l.DocumentID, bank: l.BankCanonical}
}

// isHousing matches housing credit on either the product text or the derived
// category, accent-insensitively.
func isHousing(l *domain.DebtLine) bool {
	return strings.Contains(normalize.StripAccentsLower(l.Product), "habitacao") ||
		strings.Contains(normalize.StripAccentsLower(l.ProductCategory), "habitacao")
}

// isAuto matches automobile credit the same way.
func isAuto(l *domain.DebtLine) bool {
	return strings.Contains(normalize.StripAccentsLower(l.Product), "automovel") ||
		strings.Contains(normalize.StripAccentsLower(l.ProductCategory), "automovel")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
