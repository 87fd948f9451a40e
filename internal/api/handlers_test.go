package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	orchestratorx "github.com/omniretail/orchestrator/agent/agents/orchestrator"
	classifierx "github.com/omniretail/orchestrator/agent/classifier"
	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
	executorx "github.com/omniretail/orchestrator/agent/executor"
	plannerx "github.com/omniretail/orchestrator/agent/planner"
	registryx "github.com/omniretail/orchestrator/agent/registry"
	"github.com/omniretail/orchestrator/agent/registry/registrytest"
	statex "github.com/omniretail/orchestrator/agent/state"
	synthx "github.com/omniretail/orchestrator/agent/synth"
)

func newTestServer(t *testing.T) (http.Handler, *registryx.Registry) {
	t.Helper()

	reg := registrytest.NewRegistry(t,
		registrytest.FakeFor(t, "catalog-resolve", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
			v, ok := params.Get(entityx.KindOrderID)
			if !ok {
				return contractx.CapabilityResult{Capability: "catalog-resolve", Status: contractx.StatusNotFound}
			}
			return contractx.CapabilityResult{
				Capability: "catalog-resolve",
				Status:     contractx.StatusOK,
				Payload:    []contractx.Row{{"order_id": v.Value, "product": "gaming monitor"}},
				ProducedEntities: entityx.Set{
					entityx.KindOrderID: {Kind: entityx.KindOrderID, Value: v.Value},
				},
			}
		}),
		registrytest.FakeFor(t, "logistics-lookup", func(ctx context.Context, params entityx.Set) contractx.CapabilityResult {
			return contractx.CapabilityResult{
				Capability: "logistics-lookup",
				Status:     contractx.StatusOK,
				Payload:    []contractx.Row{{"status": "in_transit", "tracking_number": "TRK10045"}},
			}
		}),
	)

	fallback := synthx.NewFallbackSynthesizer()
	orch, err := orchestratorx.New(
		statex.NewMemoryStore(30*time.Minute),
		classifierx.NewRuleClassifier(),
		fallback,
		fallback,
		entityx.NewExtractor(),
		plannerx.New(reg, plannerx.Config{}),
		executorx.New(reg, executorx.Config{}),
		orchestratorx.Config{},
	)
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}

	pingers := map[string]Pinger{
		"shopcore":   func(context.Context) error { return nil },
		"shipstream": func(context.Context) error { return nil },
	}
	return NewRouter(NewHandlers(orch, reg, pingers, "test")), reg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/query", map[string]string{
		"query":      "where is order 10045",
		"session_id": "s-http",
		"user_id":    "u-883",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Query             string         `json:"query"`
		SessionID         string         `json:"session_id"`
		TurnID            string         `json:"turn_id"`
		AgentsInvoked     []string       `json:"agents_invoked"`
		NarrativeResponse string         `json:"narrative_response"`
		PartialFailure    bool           `json:"partial_failure"`
		EntitiesResolved  map[string]any `json:"entities_resolved"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID != "s-http" || resp.TurnID == "" {
		t.Fatalf("response metadata = %+v", resp)
	}
	want := []string{"catalog-resolve", "logistics-lookup"}
	if len(resp.AgentsInvoked) != len(want) || resp.AgentsInvoked[0] != want[0] || resp.AgentsInvoked[1] != want[1] {
		t.Fatalf("agents_invoked = %v, want %v", resp.AgentsInvoked, want)
	}
	if resp.PartialFailure {
		t.Fatal("unexpected partial_failure")
	}
	if resp.NarrativeResponse == "" {
		t.Fatal("empty narrative_response")
	}
	if _, ok := resp.EntitiesResolved["order_id"]; !ok {
		t.Fatalf("entities_resolved = %v", resp.EntitiesResolved)
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/query", map[string]string{"query": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing session status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/query", map[string]string{"query": "", "session_id": "s"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec2.Code)
	}
}

func TestResetAndHistoryEndpoints(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)

	doJSON(t, h, http.MethodPost, "/query", map[string]string{
		"query":      "where is order 10045",
		"session_id": "s-hist",
	})

	rec := doJSON(t, h, http.MethodGet, "/conversation-history?session_id=s-hist", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var hist struct {
		SessionID string        `json:"session_id"`
		Turns     []statex.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Turns) != 1 || hist.Turns[0].Query != "where is order 10045" {
		t.Fatalf("turns = %+v", hist.Turns)
	}

	if rec := doJSON(t, h, http.MethodGet, "/conversation-history", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("history without session status = %d", rec.Code)
	}

	if rec := doJSON(t, h, http.MethodPost, "/sessions/s-hist/reset", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/conversation-history?session_id=s-hist", nil)
	var emptied struct {
		Turns []statex.Turn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &emptied); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(emptied.Turns) != 0 {
		t.Fatalf("turns after reset = %+v", emptied.Turns)
	}
}

func TestAgentsStatusEndpoint(t *testing.T) {
	t.Parallel()

	h, reg := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/agents/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Agents []struct {
			Name     string   `json:"name"`
			Tier     int      `json:"tier"`
			Required []string `json:"required_entities"`
			Deadline string   `json:"deadline"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Agents) != len(reg.Names()) {
		t.Fatalf("agents = %d, want %d", len(resp.Agents), len(reg.Names()))
	}
	for _, a := range resp.Agents {
		if a.Name == "logistics-lookup" {
			if a.Tier != 1 || len(a.Required) != 1 || a.Required[0] != "order_id" {
				t.Fatalf("logistics-lookup status = %+v", a)
			}
			if a.Deadline == "" {
				t.Fatal("missing deadline")
			}
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Version  string            `json:"version"`
		Backends map[string]string `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Version != "test" {
		t.Fatalf("health = %+v", resp)
	}
	if resp.Backends["shopcore"] != "healthy" {
		t.Fatalf("backends = %v", resp.Backends)
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	t.Parallel()

	reg := registrytest.NewRegistry(t)
	fallback := synthx.NewFallbackSynthesizer()
	orch, err := orchestratorx.New(
		statex.NewMemoryStore(time.Minute),
		classifierx.NewRuleClassifier(),
		fallback,
		fallback,
		entityx.NewExtractor(),
		plannerx.New(reg, plannerx.Config{}),
		executorx.New(reg, executorx.Config{}),
		orchestratorx.Config{},
	)
	if err != nil {
		t.Fatalf("orchestrator.New() error = %v", err)
	}

	pingers := map[string]Pinger{
		"shopcore": func(context.Context) error { return errors.New("connection refused") },
	}
	h := NewRouter(NewHandlers(orch, reg, pingers, "test"))

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q", resp.Status)
	}
}
