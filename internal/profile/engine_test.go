package profile

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/senna-project/senninha/internal/banks"
	"github.com/senna-project/senninha/internal/domain"
	"github.com/senna-project/senninha/internal/normalize"
	"github.com/senna-project/senninha/internal/rules"
)

func newTestEngine(t *testing.T, cfg domain.ProfileConfig, overlay *rules.Engine) *Engine {
	t.Helper()
	return NewEngine(
		cfg,
		banks.DefaultRegistry(),
		normalize.DefaultProductMap(),
		normalize.DefaultInstitutionNormalizer(),
		overlay,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func defaultProfileConfig() domain.ProfileConfig {
	return domain.ProfileConfig{
		QualificationMin: 6000.0,
		AutoLoanMin:      10000.0,
		Gate:             domain.GateGroup,
	}
}

func evalLines(t *testing.T, e *Engine, lines ...domain.DebtLine) *Result {
	t.Helper()
	result, err := e.EvaluateBatch(context.Background(), &domain.Batch{ID: "batch-1", Lines: lines})
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}
	return result
}

func TestIndividualVerdict(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	tests := []struct {
		name string
		line domain.DebtLine
		want bool
	}{
		{
			name: "clean personal loan is eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 500.0, Litigation: "Não"},
			want: true,
		},
		{
			name: "zero debt is not eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 0.0, Litigation: "Não"},
			want: false,
		},
		{
			name: "guarantee disqualifies",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 500.0, GuaranteeValue: 100.0, Litigation: "Não"},
			want: false,
		},
		{
			name: "litigation disqualifies",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 500.0, Litigation: "Sim"},
			want: false,
		},
		{
			name: "missing litigation flag disqualifies",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 500.0},
			want: false,
		},
		{
			name: "housing credit is never eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "CGD", Product: "Crédito à habitação",
				DebtTotal: 80000.0, Litigation: "Não"},
			want: false,
		},
		{
			name: "housing credit without accents is still housing",
			line: domain.DebtLine{TaxID: "1", Institution: "CGD", Product: "Credito a habitacao",
				DebtTotal: 80000.0, Litigation: "Não"},
			want: false,
		},
		{
			name: "auto credit above the floor is eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Banco Credibom", Product: "Crédito automóvel (excluindo locações financeiras)",
				DebtTotal: 12000.0, Litigation: "Não"},
			want: true,
		},
		{
			name: "auto credit below the floor is not eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Banco Credibom", Product: "Crédito automóvel (excluindo locações financeiras)",
				DebtTotal: 9999.99, Litigation: "Não"},
			want: false,
		},
		{
			name: "auto credit at the floor is eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Banco Credibom", Product: "Crédito automóvel (excluindo locações financeiras)",
				DebtTotal: 10000.0, Litigation: "Não"},
			want: true,
		},
		{
			name: "auto credit with guarantee is not eligible",
			line: domain.DebtLine{TaxID: "1", Institution: "Banco Credibom", Product: "Crédito automóvel (excluindo locações financeiras)",
				DebtTotal: 12000.0, GuaranteeValue: 5000.0, Litigation: "Não"},
			want: false,
		},
		{
			name: "litigation flag with NBSP padding still reads Não",
			line: domain.DebtLine{TaxID: "1", Institution: "Cofidis", Product: "Crédito pessoal",
				DebtTotal: 500.0, Litigation: "\u00a0Não\u00a0"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evalLines(t, e, tt.line)
			if got := result.Lines[0].IndividualEligible; got != tt.want {
				t.Errorf("IndividualEligible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRawAmountsWinOverParsed(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	result := evalLines(t, e, domain.DebtLine{
		TaxID:       "1",
		Institution: "Cofidis",
		Product:     "Crédito pessoal",
		DebtTotal:   1.0,
		DebtTotalRaw: "1.234,56 €",
		Litigation:  "Não",
	})

	if got := result.Lines[0].DebtTotal; got != 1234.56 {
		t.Errorf("DebtTotal = %v, want 1234.56", got)
	}
}

func TestGroupVeto(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	t.Run("guarantee taints the whole institution group", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 3000.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito conexo", DebtTotal: 2000.0, GuaranteeValue: 500.0, Litigation: "Não"},
		)

		if !result.Lines[0].IndividualEligible {
			t.Error("clean line should stay individually eligible")
		}
		if result.Lines[0].GroupEligible {
			t.Error("clean line should be vetoed by the sibling guarantee")
		}
		if result.Lines[1].GroupEligible {
			t.Error("secured line should not be group eligible")
		}
	})

	t.Run("housing taints the whole institution group", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Caixa Geral de Depósitos",
				Product: "Crédito à habitação", DebtTotal: 90000.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Caixa Geral de Depósitos",
				Product: "Crédito pessoal", DebtTotal: 4000.0, Litigation: "Não"},
		)

		if result.Lines[1].GroupEligible {
			t.Error("personal loan should be vetoed by the sibling housing credit")
		}
	})

	t.Run("other institutions in the same report are unaffected", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 2000.0, GuaranteeValue: 500.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Wizink Bank",
				Product: "Cartão de crédito", DebtTotal: 1500.0, Litigation: "Não"},
		)

		if !result.Lines[1].GroupEligible {
			t.Error("line at a different institution should not be vetoed")
		}
	})

	t.Run("same institution on a different report is unaffected", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 2000.0, GuaranteeValue: 500.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-b.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 1500.0, Litigation: "Não"},
		)

		if !result.Lines[1].GroupEligible {
			t.Error("line on a different report should not be vetoed")
		}
	})

	t.Run("normalized institution names group across spellings", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Banco Comercial Português, SA",
				Product: "Crédito pessoal", DebtTotal: 2000.0, GuaranteeValue: 500.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Millennium BCP",
				Product: "Crédito pessoal", DebtTotal: 1500.0, Litigation: "Não"},
		)

		if result.Lines[1].GroupEligible {
			t.Error("differently spelled names of the same institution should share the veto")
		}
	})
}

func TestAutoFastTrack(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	result := evalLines(t, e,
		domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Banco Credibom",
			Product: "Crédito automóvel (excluindo locações financeiras)", DebtTotal: 15000.0, Litigation: "Não"},
		domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Banco Credibom",
			Product: "Crédito pessoal", DebtTotal: 2000.0, GuaranteeValue: 500.0, Litigation: "Não"},
		domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Banco Credibom",
			Product: "Crédito automóvel (excluindo locações financeiras)", DebtTotal: 5000.0, Litigation: "Não"},
	)

	if !result.Lines[0].GroupEligible {
		t.Error("qualifying auto loan should fast-track past the institution veto")
	}
	if result.Lines[1].GroupEligible {
		t.Error("secured line should stay vetoed")
	}
	if result.Lines[2].GroupEligible {
		t.Error("auto loan below the floor should not fast-track")
	}
}

func TestPariPersi(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	t.Run("aggregate across lines meets the bank minimum", func(t *testing.T) {
		// cofidis minimum is 5000; each line alone is below it
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 3000.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Cartão de crédito", DebtTotal: 2500.0, Litigation: "Não"},
		)

		for i, l := range result.Lines {
			if l.BankAggregateDebt != 5500.0 {
				t.Errorf("line %d BankAggregateDebt = %v, want 5500", i, l.BankAggregateDebt)
			}
			if !l.PariPersi {
				t.Errorf("line %d should be pari/persi", i)
			}
		}
	})

	t.Run("aggregate below the bank minimum", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 4999.0, Litigation: "Não"},
		)

		if result.Lines[0].PariPersi {
			t.Error("aggregate below the minimum should not be pari/persi")
		}
	})

	t.Run("unregistered bank is never pari/persi", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Caixa Geral de Depósitos",
				Product: "Crédito pessoal", DebtTotal: 50000.0, Litigation: "Não"},
		)

		if result.Lines[0].BankCanonical != "" {
			t.Errorf("BankCanonical = %q, want empty", result.Lines[0].BankCanonical)
		}
		if result.Lines[0].PariPersi {
			t.Error("unregistered bank should not be pari/persi")
		}
	})

	t.Run("ineligible line contributes to the aggregate but is not pari/persi", func(t *testing.T) {
		result := evalLines(t, e,
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 4000.0, GuaranteeValue: 100.0, Litigation: "Não"},
			domain.DebtLine{TaxID: "1", SourceFile: "map-a.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 2000.0, Litigation: "Não"},
		)

		if result.Lines[0].BankAggregateDebt != 6000.0 {
			t.Errorf("BankAggregateDebt = %v, want 6000", result.Lines[0].BankAggregateDebt)
		}
		if result.Lines[0].PariPersi {
			t.Error("individually ineligible line should not be pari/persi")
		}
		if !result.Lines[1].PariPersi {
			t.Error("eligible line should be pari/persi once the aggregate passes")
		}
	})
}

func TestClientSummary(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	result := evalLines(t, e,
		// qualifies: two clean lines summing past 6000
		domain.DebtLine{TaxID: "111222333", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 4000.0, Litigation: "Não"},
		domain.DebtLine{TaxID: "111222333", SourceFile: "a.pdf", Institution: "Wizink Bank",
			Product: "Cartão de crédito", DebtTotal: 2500.0, Litigation: "Não"},
		// does not qualify: eligible debt below the threshold
		domain.DebtLine{TaxID: "999888777", SourceFile: "b.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 1000.0, Litigation: "Não"},
	)

	if len(result.Summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(result.Summaries))
	}

	first := result.Summary("111222333")
	if first == nil {
		t.Fatal("missing summary for 111222333")
	}
	if first.TotalEligibleDebt != 6500.0 {
		t.Errorf("TotalEligibleDebt = %v, want 6500", first.TotalEligibleDebt)
	}
	if !first.Qualifies {
		t.Error("client with 6500 eligible should qualify")
	}
	if first.LineCount != 2 {
		t.Errorf("LineCount = %d, want 2", first.LineCount)
	}

	second := result.Summary("999888777")
	if second == nil {
		t.Fatal("missing summary for 999888777")
	}
	if second.Qualifies {
		t.Error("client with 1000 eligible should not qualify")
	}
}

func TestClientSummaryAtThreshold(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	result := evalLines(t, e,
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 6000.0, Litigation: "Não"},
	)

	if !result.Summaries[0].Qualifies {
		t.Error("eligible debt exactly at the threshold should qualify")
	}
}

func TestSumGateSelection(t *testing.T) {
	lines := []domain.DebtLine{
		// individually eligible but group vetoed by the sibling guarantee
		{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 7000.0, Litigation: "Não"},
		{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito conexo", DebtTotal: 1000.0, GuaranteeValue: 200.0, Litigation: "Não"},
	}

	t.Run("group gate", func(t *testing.T) {
		cfg := defaultProfileConfig()
		cfg.Gate = domain.GateGroup
		e := newTestEngine(t, cfg, nil)

		result := evalLines(t, e, lines...)
		s := result.Summaries[0]
		if s.EligibleByIndividual != 7000.0 {
			t.Errorf("EligibleByIndividual = %v, want 7000", s.EligibleByIndividual)
		}
		if s.EligibleByGroup != 0.0 {
			t.Errorf("EligibleByGroup = %v, want 0", s.EligibleByGroup)
		}
		if s.TotalEligibleDebt != 0.0 || s.Qualifies {
			t.Errorf("group gate should disqualify, got total=%v qualifies=%v",
				s.TotalEligibleDebt, s.Qualifies)
		}
	})

	t.Run("individual gate", func(t *testing.T) {
		cfg := defaultProfileConfig()
		cfg.Gate = domain.GateIndividual
		e := newTestEngine(t, cfg, nil)

		result := evalLines(t, e, lines...)
		s := result.Summaries[0]
		if s.TotalEligibleDebt != 7000.0 || !s.Qualifies {
			t.Errorf("individual gate should qualify, got total=%v qualifies=%v",
				s.TotalEligibleDebt, s.Qualifies)
		}
	})
}

func TestEvaluationIsIdempotent(t *testing.T) {
	e := newTestEngine(t, defaultProfileConfig(), nil)

	first := evalLines(t, e,
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 1.0, DebtTotalRaw: "3.000,00", Litigation: "Não"},
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Cartão de crédito", DebtTotal: 2500.0, Litigation: "Não"},
	)

	second, err := e.EvaluateBatch(context.Background(), &domain.Batch{ID: "batch-1", Lines: first.Lines})
	if err != nil {
		t.Fatalf("EvaluateBatch() error = %v", err)
	}

	for i := range first.Lines {
		if !reflect.DeepEqual(first.Lines[i], second.Lines[i]) {
			t.Errorf("line %d changed on re-evaluation:\nfirst:  %+v\nsecond: %+v",
				i, first.Lines[i], second.Lines[i])
		}
	}
	if len(first.Summaries) != len(second.Summaries) {
		t.Fatalf("summary count changed: %d vs %d", len(first.Summaries), len(second.Summaries))
	}
	for i := range first.Summaries {
		if first.Summaries[i] != second.Summaries[i] {
			t.Errorf("summary %d changed on re-evaluation", i)
		}
	}
}

func TestCustomRuleOverlayVetoesLine(t *testing.T) {
	overlay, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("rules.NewEngine() error = %v", err)
	}
	defer overlay.Close()

	err = overlay.LoadRule(&domain.RuleConfig{
		ID:         "exclude-wizink",
		Name:       "Exclusão Wizink",
		Expression: `banco == "wizink"`,
		Reason:     "Instituição excluída por regra interna",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule() error = %v", err)
	}

	e := newTestEngine(t, defaultProfileConfig(), overlay)

	result := evalLines(t, e,
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Wizink Bank",
			Product: "Cartão de crédito", DebtTotal: 4000.0, Litigation: "Não"},
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 3000.0, Litigation: "Não"},
	)

	if result.Lines[0].IndividualEligible {
		t.Error("custom rule should veto the wizink line")
	}
	if !result.Lines[1].IndividualEligible {
		t.Error("custom rule should not touch other lines")
	}
	if hits := result.RuleHits[0]; len(hits) != 1 || hits[0].RuleID != "exclude-wizink" {
		t.Errorf("RuleHits[0] = %+v, want the wizink rule hit", hits)
	}
}

func TestCustomRuleSeesBankAggregate(t *testing.T) {
	overlay, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("rules.NewEngine() error = %v", err)
	}
	defer overlay.Close()

	err = overlay.LoadRule(&domain.RuleConfig{
		ID:         "aggregate-cap",
		Name:       "Exclusão por total no banco",
		Expression: `total_banco > 5000.0`,
		Reason:     "Total no banco acima do limite interno",
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule() error = %v", err)
	}

	e := newTestEngine(t, defaultProfileConfig(), overlay)

	// Each line alone stays under the cap; the per-bank aggregate does not.
	result := evalLines(t, e,
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Crédito pessoal", DebtTotal: 3500.0, Litigation: "Não"},
		domain.DebtLine{TaxID: "1", SourceFile: "a.pdf", Institution: "Cofidis",
			Product: "Cartão de crédito", DebtTotal: 2500.0, Litigation: "Não"},
	)

	for i, l := range result.Lines {
		if l.BankAggregateDebt != 6000.0 {
			t.Errorf("line %d BankAggregateDebt = %v, want 6000", i, l.BankAggregateDebt)
		}
		if l.IndividualEligible {
			t.Errorf("line %d should be vetoed by the aggregate rule", i)
		}
		if hits := result.RuleHits[i]; len(hits) != 1 || hits[0].RuleID != "aggregate-cap" {
			t.Errorf("RuleHits[%d] = %+v, want the aggregate rule hit", i, hits)
		}
	}
}
