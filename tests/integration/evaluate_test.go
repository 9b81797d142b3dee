//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Senninha profiling
// engine, run against a live server.
//
// These tests exercise the complete pipeline:
//
//	Debt lines → individual rules → group veto → pari/persi → qualification
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. DEBT LINE: one row from a "Mapa de Responsabilidades de Crédito" report,
//    identified by NIF + institution + product.
//
// 2. INDIVIDUAL RULES (fixed):
//    - housing products are never eligible
//    - automobile credit is eligible only with no guarantee, no litigation
//      and debt >= the auto minimum
//    - everything else is eligible when clean (no guarantee, no litigation)
//      and debt > 0
//
// 3. GROUP VETO: any guaranteed or housing line taints every line the client
//    holds at the same institution on the same report. Automobile lines that
//    pass their own rule bypass the veto.
//
// 4. QUALIFICATION: a client "perfila" when the gated eligible-debt sum
//    reaches the qualification minimum (default 6000).
//
// The server starts with no custom exclusion rules; the built-in behavior is
// complete without them.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("SENNINHA_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{BaseURL: baseURL}
}

// ============================================================================
// API Request/Response Types (matching Senninha's API contract)
// ============================================================================

// DebtLine mirrors the extractor's JSON line shape.
type DebtLine struct {
	TaxID          string  `json:"nif"`
	SourceFile     string  `json:"arquivopdf,omitempty"`
	Institution    string  `json:"instituicao"`
	Product        string  `json:"prodfinanceiro,omitempty"`
	DebtTotal      float64 `json:"divida"`
	Installment    float64 `json:"parcela,omitempty"`
	GuaranteeValue float64 `json:"garantias,omitempty"`
	Litigation     string  `json:"litigio,omitempty"`
}

// BatchRequest is the body sent to POST /batches.
type BatchRequest struct {
	ID    string     `json:"id,omitempty"`
	Lines []DebtLine `json:"dividas"`
}

// ClientSummary is the per-client rollup in responses.
type ClientSummary struct {
	TaxID                string  `json:"nif"`
	TotalEligibleDebt    float64 `json:"divida_total_elegivel"`
	EligibleByIndividual float64 `json:"divida_elegivel_individual"`
	EligibleByGroup      float64 `json:"divida_elegivel_grupo"`
	Qualifies            bool    `json:"perfila"`
	HasPariPersi         bool    `json:"pari_persi"`
	LineCount            int     `json:"total_dividas"`
}

// BatchResponse is what a synchronous POST /batches returns.
type BatchResponse struct {
	EvaluationID     string          `json:"evaluationId"`
	BatchID          string          `json:"batchId"`
	ClientsEvaluated int             `json:"clientsEvaluated"`
	ClientsQualified int             `json:"clientsQualified"`
	Summaries        []ClientSummary `json:"resumos"`
	Metadata         struct {
		TraceID string `json:"traceId"`
		EvalMs  int64  `json:"evalMs"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// RejectionReport is the per-client rejection explanation.
type RejectionReport struct {
	Summary ClientSummary `json:"resumo"`
	Reasons []struct {
		Institution string   `json:"instituicao"`
		Amount      float64  `json:"valor"`
		Reasons     []string `json:"motivos_reprovacao"`
	} `json:"motivos"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func evaluateBatch(t *testing.T, config TestConfig, req BatchRequest) BatchResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/batches", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result BatchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func getJSON(t *testing.T, config TestConfig, path string, out any) int {
	t.Helper()

	resp, err := http.Get(config.BaseURL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("GET %s: invalid JSON: %v (body: %s)", path, err, string(body))
		}
	}
	return resp.StatusCode
}

func summaryFor(t *testing.T, result BatchResponse, nif string) ClientSummary {
	t.Helper()
	for _, s := range result.Summaries {
		if s.TaxID == nif {
			return s
		}
	}
	t.Fatalf("no summary for %s in response", nif)
	return ClientSummary{}
}

// ============================================================================
// SCENARIO 1: Clean consumer credit above the qualification minimum
// ============================================================================

func TestQualifyingClient(t *testing.T) {
	/*
	   SCENARIO: one clean consumer credit of 7000, no guarantee, no litigation.

	   EXPECTED: line individually eligible, no veto, eligible sum 7000 >= 6000,
	   client qualifies.
	*/
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-qualify-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "111222333", SourceFile: "map1.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 7000.0, Litigation: "Não"},
		},
	})

	s := summaryFor(t, result, "111222333")
	if !s.Qualifies {
		t.Errorf("Expected client to qualify, got %+v", s)
	}
	if s.TotalEligibleDebt != 7000.0 {
		t.Errorf("Expected eligible debt 7000, got %.2f", s.TotalEligibleDebt)
	}

	t.Logf("✓ Qualifying client: eligible=%.2f perfila=%v", s.TotalEligibleDebt, s.Qualifies)
}

// ============================================================================
// SCENARIO 2: Housing is never eligible
// ============================================================================

func TestHousingNeverEligible(t *testing.T) {
	/*
	   SCENARIO: a 200000 mortgage, clean.

	   EXPECTED: housing products are excluded regardless of amount, so the
	   eligible sum is 0 and the client does not qualify.
	*/
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-housing-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "555666777", SourceFile: "map2.pdf", Institution: "Millennium BCP",
				Product: "Crédito à habitação", DebtTotal: 200000.0, Litigation: "Não"},
		},
	})

	s := summaryFor(t, result, "555666777")
	if s.Qualifies {
		t.Error("Housing-only client must not qualify")
	}
	if s.TotalEligibleDebt != 0 {
		t.Errorf("Expected eligible debt 0, got %.2f", s.TotalEligibleDebt)
	}

	t.Logf("✓ Housing excluded: eligible=%.2f", s.TotalEligibleDebt)
}

// ============================================================================
// SCENARIO 3: Group veto and the automobile fast-track
// ============================================================================

func TestGroupVetoWithAutoFastTrack(t *testing.T) {
	/*
	   SCENARIO: one client, one institution, three lines on the same report:
	   a guaranteed line, a clean personal credit, and a 15000 auto credit.

	   EXPECTED:
	   - the guaranteed line taints the institution group
	   - the clean personal credit loses group eligibility to the veto
	   - the auto line passes its own rule and bypasses the veto
	*/
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-veto-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "244319594", SourceFile: "map3.pdf", Institution: "Banco Santander",
				Product: "Crédito pessoal", DebtTotal: 9000.0, GuaranteeValue: 5000.0, Litigation: "Não"},
			{TaxID: "244319594", SourceFile: "map3.pdf", Institution: "Banco Santander",
				Product: "Crédito pessoal", DebtTotal: 3000.0, Litigation: "Não"},
			{TaxID: "244319594", SourceFile: "map3.pdf", Institution: "Banco Santander",
				Product: "Crédito automóvel", DebtTotal: 15000.0, Litigation: "Não"},
		},
	})

	s := summaryFor(t, result, "244319594")

	// Only the auto line survives the group gate.
	if s.EligibleByGroup != 15000.0 {
		t.Errorf("Expected group-eligible debt 15000, got %.2f", s.EligibleByGroup)
	}
	// Individually, the clean personal credit also counts.
	if s.EligibleByIndividual != 18000.0 {
		t.Errorf("Expected individually eligible debt 18000, got %.2f", s.EligibleByIndividual)
	}
	if !s.Qualifies {
		t.Error("Expected client to qualify on the auto fast-track")
	}

	t.Logf("✓ Group veto: group=%.2f individual=%.2f", s.EligibleByGroup, s.EligibleByIndividual)
}

// ============================================================================
// SCENARIO 4: Qualification threshold boundary
// ============================================================================

func TestQualificationBoundary(t *testing.T) {
	/*
	   SCENARIO: eligible sums of exactly 6000 and just below.

	   EXPECTED: the threshold is inclusive, so 6000 qualifies and 5999.99
	   does not.
	*/
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-boundary-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "100000001", SourceFile: "map4.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 6000.0, Litigation: "Não"},
			{TaxID: "100000002", SourceFile: "map4.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 5999.99, Litigation: "Não"},
		},
	})

	atThreshold := summaryFor(t, result, "100000001")
	if !atThreshold.Qualifies {
		t.Error("Expected exactly 6000 to qualify (threshold is inclusive)")
	}

	below := summaryFor(t, result, "100000002")
	if below.Qualifies {
		t.Error("Expected 5999.99 not to qualify")
	}

	t.Logf("✓ Boundary: 6000 → %v, 5999.99 → %v", atThreshold.Qualifies, below.Qualifies)
}

// ============================================================================
// SCENARIO 5: Pari/persi aggregate track
// ============================================================================

func TestPariPersiAggregate(t *testing.T) {
	/*
	   SCENARIO: two clean Cofidis lines summing 5200, above the Cofidis
	   aggregate minimum of 5000.

	   EXPECTED: both lines reach the pari/persi track and the summary flags it.
	*/
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-paripersi-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "300000001", SourceFile: "map5.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 3000.0, Litigation: "Não"},
			{TaxID: "300000001", SourceFile: "map5.pdf", Institution: "Cofidis SA",
				Product: "Cartão de crédito", DebtTotal: 2200.0, Litigation: "Não"},
		},
	})

	s := summaryFor(t, result, "300000001")
	if !s.HasPariPersi {
		t.Errorf("Expected pari/persi flag, got %+v", s)
	}

	t.Logf("✓ Pari/persi: aggregate 5200 over Cofidis minimum")
}

// ============================================================================
// SCENARIO 6: Client retrieval and rejection reports
// ============================================================================

func TestClientRetrievalAndRejections(t *testing.T) {
	/*
	   SCENARIO: evaluate a batch with one qualified and one litigated client,
	   then read both back through the client endpoints.
	*/
	config := getTestConfig()

	evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-clients-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "400000001", SourceFile: "map6.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 8000.0, Litigation: "Não"},
			{TaxID: "400000002", SourceFile: "map6.pdf", Institution: "Wizink Bank",
				Product: "Cartão de crédito", DebtTotal: 900.0, Litigation: "Sim"},
		},
	})

	t.Run("QualifiedClient", func(t *testing.T) {
		var client struct {
			Summary ClientSummary `json:"resumo"`
			Lines   []DebtLine    `json:"dividas"`
		}
		status := getJSON(t, config, "/clients/400000001", &client)
		if status != http.StatusOK {
			t.Fatalf("Expected 200, got %d", status)
		}
		if !client.Summary.Qualifies {
			t.Errorf("Expected qualifying summary, got %+v", client.Summary)
		}
	})

	t.Run("RejectionReport", func(t *testing.T) {
		var report RejectionReport
		status := getJSON(t, config, "/clients/400000002/rejections", &report)
		if status != http.StatusOK {
			t.Fatalf("Expected 200, got %d", status)
		}
		if len(report.Reasons) == 0 {
			t.Fatal("Expected at least one institution in the rejection report")
		}
		found := false
		for _, inst := range report.Reasons {
			for _, reason := range inst.Reasons {
				if reason == "Litígio judicial" {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("Expected litigation reason, got %+v", report.Reasons)
		}
	})

	t.Run("UnknownClient", func(t *testing.T) {
		status := getJSON(t, config, "/clients/000000000", nil)
		if status != http.StatusNotFound {
			t.Errorf("Expected 404 for unknown client, got %d", status)
		}
	})
}

// ============================================================================
// SCENARIO 7: Custom exclusion rule round-trip
// ============================================================================

func TestCustomRuleRoundTrip(t *testing.T) {
	/*
	   SCENARIO: create a rule vetoing Wizink lines, evaluate a batch that
	   would otherwise qualify, then delete the rule and confirm the veto is
	   gone.
	*/
	config := getTestConfig()
	client := &http.Client{Timeout: 10 * time.Second}

	ruleID := fmt.Sprintf("it-excl-%d", time.Now().UnixNano())
	ruleBody, _ := json.Marshal(map[string]any{
		"id":         ruleID,
		"name":       "Exclude Wizink lines",
		"expression": `banco == "wizink"`,
		"reason":     "Banco excluído por política interna",
		"enabled":    true,
	})
	resp, err := client.Post(config.BaseURL+"/rules", "application/json", bytes.NewReader(ruleBody))
	if err != nil {
		t.Fatalf("Failed to create rule: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 creating rule, got %d", resp.StatusCode)
	}

	defer func() {
		req, _ := http.NewRequest(http.MethodDelete, config.BaseURL+"/rules/"+ruleID, nil)
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	// A clean Wizink line that would qualify without the rule.
	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-rule-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "500000001", SourceFile: "map7.pdf", Institution: "Wizink Bank",
				Product: "Crédito pessoal", DebtTotal: 7000.0, Litigation: "Não"},
		},
	})

	s := summaryFor(t, result, "500000001")
	if s.Qualifies {
		t.Errorf("Expected custom rule to veto the line, got %+v", s)
	}

	// Delete the rule; the same batch should now qualify.
	req, _ := http.NewRequest(http.MethodDelete, config.BaseURL+"/rules/"+ruleID, nil)
	delResp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 deleting rule, got %d", delResp.StatusCode)
	}

	result = evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-rule-after-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "500000001", SourceFile: "map7.pdf", Institution: "Wizink Bank",
				Product: "Crédito pessoal", DebtTotal: 7000.0, Litigation: "Não"},
		},
	})
	s = summaryFor(t, result, "500000001")
	if !s.Qualifies {
		t.Errorf("Expected client to qualify after rule removal, got %+v", s)
	}

	t.Logf("✓ Custom rule round-trip: veto applied and lifted")
}

// ============================================================================
// SCENARIO 8: Input validation
// ============================================================================

func TestEmptyBatch_Error(t *testing.T) {
	config := getTestConfig()

	resp, err := http.Post(config.BaseURL+"/batches", "application/json",
		bytes.NewBufferString(`{"dividas":[]}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty batch, got %d", resp.StatusCode)
	}
}

func TestMissingNIF_Error(t *testing.T) {
	config := getTestConfig()

	resp, err := http.Post(config.BaseURL+"/batches", "application/json",
		bytes.NewBufferString(`{"dividas":[{"instituicao":"Cofidis","divida":100}]}`))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for line without nif, got %d", resp.StatusCode)
	}
}

// ============================================================================
// SCENARIO 9: Response metadata verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	config := getTestConfig()

	result := evaluateBatch(t, config, BatchRequest{
		ID: fmt.Sprintf("it-meta-%d", time.Now().UnixNano()),
		Lines: []DebtLine{
			{TaxID: "600000001", SourceFile: "map8.pdf", Institution: "Cofidis",
				Product: "Crédito pessoal", DebtTotal: 100.0, Litigation: "Não"},
		},
	})

	if result.EvaluationID == "" {
		t.Error("Missing evaluationId")
	}
	if result.BatchID == "" {
		t.Error("Missing batchId")
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}
	// TotalMs can be 0 for sub-millisecond batches.
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	t.Logf("✓ Metadata complete: evalId=%s, traceId=%s, totalMs=%d",
		result.EvaluationID, result.Metadata.TraceID, result.Metadata.TotalMs)
}
