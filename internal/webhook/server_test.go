package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"satsguard/internal/audit"
	"satsguard/internal/funding"
)

func newTestServer(t *testing.T) (*httptest.Server, *funding.Manager, *audit.MemoryStore) {
	t.Helper()

	manager := funding.NewManager(funding.Options{
		DefaultAmountSats: 100_000,
		MaxPending:        3,
		Expiry:            24 * time.Hour,
	}, funding.NewMemoryStore(), nil, nil, zerolog.Nop())

	auditStore := audit.NewMemoryStore()
	recorder := audit.NewRecorder(auditStore, zerolog.Nop())

	verifier := NewVerifier("shared-secret", 5*time.Minute)
	server := NewServer("127.0.0.1:0", verifier, manager, recorder, zerolog.Nop())

	ts := httptest.NewServer(server.srv.Handler)
	t.Cleanup(ts.Close)
	return ts, manager, auditStore
}

func postApproval(t *testing.T, ts *httptest.Server, body []byte, signed bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook/approval", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("X-Timestamp", timestamp)
	if signed {
		req.Header.Set("X-Signature", sign("shared-secret", timestamp, body))
	} else {
		req.Header.Set("X-Signature", sign("wrong-secret", timestamp, body))
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("post approval: %v", err)
	}
	return resp
}

func TestApprovalHappyPath(t *testing.T) {
	ts, manager, _ := newTestServer(t)

	p, err := manager.Create(context.Background(), 10_000, funding.TriggerContext{})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"proposal_id": p.ID, "status": "approved", "approved_by": "treasurer", "notes": "ok"})
	resp := postApproval(t, ts, body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result approvalResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !result.Success || result.ProposalID != p.ID || result.Status != "approved" {
		t.Fatalf("unexpected response: %+v", result)
	}

	stored, err := manager.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != funding.StatusApproved {
		t.Fatalf("proposal should be approved, got %s", stored.Status)
	}
}

func TestApprovalRejectsUnauthenticated(t *testing.T) {
	ts, manager, auditStore := newTestServer(t)

	p, err := manager.Create(context.Background(), 10_000, funding.TriggerContext{})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"proposal_id": p.ID, "status": "approved"})
	resp := postApproval(t, ts, body, false)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	stored, _ := manager.Get(context.Background(), p.ID)
	if stored.Status != funding.StatusPending {
		t.Fatalf("unauthenticated request must not change state, got %s", stored.Status)
	}

	events, err := auditStore.ListRecentEvents(context.Background(), audit.KindAuthFailure, 10)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one auth failure event, got %d", len(events))
	}
}

func TestApprovalUnknownProposal(t *testing.T) {
	ts, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"proposal_id": "does-not-exist", "status": "approved"})
	resp := postApproval(t, ts, body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestApprovalStateConflict(t *testing.T) {
	ts, manager, _ := newTestServer(t)
	ctx := context.Background()

	p, err := manager.Create(ctx, 10_000, funding.TriggerContext{})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}
	if _, err := manager.Reject(ctx, p.ID, "treasurer", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	body, _ := json.Marshal(map[string]string{"proposal_id": p.ID, "status": "approved"})
	resp := postApproval(t, ts, body, true)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["status"] != "rejected" {
		t.Fatalf("conflict response should carry the current state, got %v", result)
	}
}

func TestApprovalRejectsMalformedBody(t *testing.T) {
	ts, _, _ := newTestServer(t)

	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"proposal_id":"x","status":"approved","extra":true}`),
		[]byte(`{"status":"approved"}`),
		[]byte(`{"proposal_id":"x","status":"shrug"}`),
	}
	for _, body := range cases {
		resp := postApproval(t, ts, body, true)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestHealthAndProposalLookup(t *testing.T) {
	ts, manager, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/webhook/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy 200, got %d", resp.StatusCode)
	}

	p, err := manager.Create(context.Background(), 10_000, funding.TriggerContext{})
	if err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	resp, err = ts.Client().Get(ts.URL + "/webhook/proposals/" + p.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result["status"] != "pending" {
		t.Fatalf("unexpected lookup payload: %v", result)
	}
}
