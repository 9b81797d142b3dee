package profile

import (
	"sort"

	"github.com/senna-project/senninha/internal/domain"
)

// summarize rolls evaluated lines up per client. Both gate variants are
// computed so the export always shows them; the configured gate picks which
// one feeds qualification. Summaries are sorted by tax id for stable output.
func (e *Engine) summarize(batchID string, lines []domain.DebtLine) []domain.ClientSummary {
	type acc struct {
		individual float64
		group      float64
		pariPersi  bool
		count      int
	}

	byClient := make(map[string]*acc)
	order := make([]string, 0)

	for i := range lines {
		l := &lines[i]
		a, ok := byClient[l.TaxID]
		if !ok {
			a = &acc{}
			byClient[l.TaxID] = a
			order = append(order, l.TaxID)
		}
		a.count++
		if l.IndividualEligible {
			a.individual += l.DebtTotal
		}
		if l.GroupEligible {
			a.group += l.DebtTotal
		}
		if l.PariPersi {
			a.pariPersi = true
		}
	}

	sort.Strings(order)

	summaries := make([]domain.ClientSummary, 0, len(order))
	for _, nif := range order {
		a := byClient[nif]

		s := domain.ClientSummary{
			TaxID:                nif,
			EligibleByIndividual: round2(a.individual),
			EligibleByGroup:      round2(a.group),
			HasPariPersi:         a.pariPersi,
			LineCount:            a.count,
			BatchID:              batchID,
		}

		switch e.cfg.Gate {
		case domain.GateIndividual:
			s.TotalEligibleDebt = s.EligibleByIndividual
		default:
			s.TotalEligibleDebt = s.EligibleByGroup
		}
		s.Qualifies = s.TotalEligibleDebt >= e.cfg.QualificationMin

		summaries = append(summaries, s)
	}

	return summaries
}

// Summary returns the rollup for one client out of a result, or nil when the
// client has no lines in the batch.
func (r *Result) Summary(taxID string) *domain.ClientSummary {
	for i := range r.Summaries {
		if r.Summaries[i].TaxID == taxID {
			return &r.Summaries[i]
		}
	}
	return nil
}

// ClientLines returns the evaluated lines belonging to one client, preserving
// batch order.
func (r *Result) ClientLines(taxID string) []domain.DebtLine {
	var out []domain.DebtLine
	for i := range r.Lines {
		if r.Lines[i].TaxID == taxID {
			out = append(out, r.Lines[i])
		}
	}
	return out
}
