package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestKeyLabel(t *testing.T) {
	if got := keyLabel(42); got != "42" {
		t.Fatalf("expected \"42\", got %q", got)
	}
}

func TestSetHaltPhaseMapsNamesToGaugeValues(t *testing.T) {
	r := New()
	r.SetHaltPhase("Functional")
	if got := testutil.ToFloat64(r.HaltPhase); got != 0 {
		t.Fatalf("expected 0 for Functional, got %v", got)
	}
	r.SetHaltPhase("HaltingInProgress")
	if got := testutil.ToFloat64(r.HaltPhase); got != 1 {
		t.Fatalf("expected 1 for HaltingInProgress, got %v", got)
	}
	r.SetHaltPhase("Halted")
	if got := testutil.ToFloat64(r.HaltPhase); got != 2 {
		t.Fatalf("expected 2 for Halted, got %v", got)
	}
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	r := New()
	r.RecordExecution(3, "success")
	r.SetReputation("alchemy", 80)
	r.SetStrategyRate(3, 50_000_000_000_000_000)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "ir_agent_strategy_executions_total") {
		t.Fatalf("expected executions counter in exposition, got: %s", body)
	}
	if !strings.Contains(body, "ir_agent_rpc_provider_reputation") {
		t.Fatalf("expected reputation gauge in exposition, got: %s", body)
	}
	if !strings.Contains(body, "ir_agent_strategy_latest_rate_e18") {
		t.Fatalf("expected strategy rate gauge in exposition, got: %s", body)
	}
}

func TestRecordRechargeIncrementsCounter(t *testing.T) {
	r := New()
	r.RecordRecharge("mint", "success")
	r.RecordRecharge("mint", "success")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `ir_agent_recharges_total{kind="mint",outcome="success"} 2`) {
		t.Fatalf("expected recharge counter at 2, got: %s", rec.Body.String())
	}
}
