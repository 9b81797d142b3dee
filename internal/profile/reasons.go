package profile

import (
	"sort"

	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/normalize"
)

// Rejections builds the per-institution rejection report for one client.
// Every line that did not pass the grouped verdict contributes its reasons;
// a rejected line whose institution holds another secured or litigated debt
// gets the institution-taint reason, and lines the fixed rules reject without
// a specific cause get the fallback reason. Returns nil when the client has
// no rejected lines.
func (r *Result) Rejections(taxID string) *domain.RejectionReport {
	type bucket struct {
		amount  float64
		reasons []string
		seen    map[string]bool
	}

	// Per-institution counts of secured and litigated lines, so each
	// rejected line can tell whether a sibling taints its institution.
	type taintCount struct {
		secured   int
		litigated int
	}
	taints := make(map[groupKey]taintCount)
	for i := range r.Lines {
		l := &r.Lines[i]
		if l.TaxID != taxID {
			continue
		}
		t := taints[keyOf(l)]
		if l.GuaranteeValue > 0 {
			t.secured++
		}
		if normalize.IsYes(l.Litigation) {
			t.litigated++
		}
		taints[keyOf(l)] = t
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0)

	add := func(institution, reason string, amount float64, addAmount bool) {
		b, ok := buckets[institution]
		if !ok {
			b = &bucket{seen: make(map[string]bool)}
			buckets[institution] = b
			order = append(order, institution)
		}
		if addAmount {
			b.amount += amount
		}
		if !b.seen[reason] {
			b.seen[reason] = true
			b.reasons = append(b.reasons, reason)
		}
	}

	for i := range r.Lines {
		l := &r.Lines[i]
		if l.TaxID != taxID || l.GroupEligible {
			continue
		}

		institution := l.InstitutionCanonical
		if institution == "" {
			institution = l.Institution
		}

		t := taints[keyOf(l)]
		secured := l.GuaranteeValue > 0
		litigated := normalize.IsYes(l.Litigation)
		otherSecured := t.secured
		if secured {
			otherSecured--
		}
		otherLitigated := t.litigated
		if litigated {
			otherLitigated--
		}

		reasons := lineReasons(l, otherSecured > 0 || otherLitigated > 0)
		for j, reason := range reasons {
			add(institution, reason, l.DebtTotal, j == 0)
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	sort.Strings(order)

	report := &domain.RejectionReport{}
	if s := r.Summary(taxID); s != nil {
		report.Summary = *s
	}
	for _, institution := range order {
		b := buckets[institution]
		report.Reasons = append(report.Reasons, domain.InstitutionRejection{
			Institution: institution,
			Amount:      round2(b.amount),
			Reasons:     b.reasons,
		})
	}

	return report
}

// lineReasons names why one rejected line failed. Order matters: specific
// causes come before the fallback, and a line can carry several.
// siblingTaint reports that another line at the same institution in the same
// report is secured or litigated.
func lineReasons(l *domain.DebtLine, siblingTaint bool) []string {
	var reasons []string

	if l.GuaranteeValue > 0 {
		reasons = append(reasons, domain.ReasonSecured)
	}
	if normalize.IsYes(l.Litigation) {
		reasons = append(reasons, domain.ReasonLitigation)
	}
	reasons = append(reasons, l.RuleReasons...)
	if siblingTaint {
		reasons = append(reasons, domain.ReasonInstitutionTaint)
	}
	if len(reasons) == 0 && l.IndividualEligible && !l.GroupEligible {
		// Vetoed by a sibling the taint counts do not see, a housing credit
		// without a registered guarantee.
		reasons = append(reasons, domain.ReasonInstitutionTaint)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, domain.ReasonFallback)
	}

	return reasons
}
