// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/dispatch"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/followup"
	"github.com/proposalai/followups/internal/memstore"
)

const testAdminToken = "admin-secret"

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *memstore.Store
	engine *followup.Engine
	org    uuid.UUID
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memstore.New()
	engine := followup.New(followup.Deps{
		Store:      store,
		Proposals:  store,
		Dispatcher: dispatch.NewLogSender(discardLogger()),
		Logger:     discardLogger(),
		Now:        func() time.Time { return day0 },
	})

	s := &testServer{
		t:      t,
		store:  store,
		engine: engine,
		org:    uuid.New(),
	}
	s.token = s.newKey(s.org)
	s.router = NewRouter(Deps{
		Sequences:      engine,
		Executions:     engine,
		Passes:         engine,
		APIKeyAdmin:    store,
		APIKeyResolver: store,
		Health:         store,
		Logger:         discardLogger(),
		AdminToken:     testAdminToken,
	})
	return s
}

func (s *testServer) newKey(org uuid.UUID) string {
	s.t.Helper()
	created, err := s.store.CreateAPIKey(context.Background(), domain.CreateAPIKeyParams{
		Name:           "test",
		OrganizationID: org,
	})
	if err != nil {
		s.t.Fatalf("create api key: %v", err)
	}
	return created.Token
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createSequence(body map[string]any) domain.SequenceDefinition {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/sequences", s.token, body)
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create sequence: expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.SequenceDefinition](s.t, rec)
}

func (s *testServer) addProposal(status domain.ProposalStatus) domain.ProposalSnapshot {
	sent := day0
	p := domain.ProposalSnapshot{
		ID:             uuid.New(),
		OrganizationID: s.org,
		Title:          "Website redesign",
		Status:         status,
		Value:          4200,
		SentAt:         &sent,
		ClientName:     "Ada",
		ClientEmail:    "ada@client.test",
		CompanyName:    "Acme Studio",
	}
	s.store.PutProposal(p)
	return p
}

func sequenceBody(name string, isDefault bool) map[string]any {
	step := func(n, delay int) map[string]any {
		return map[string]any{
			"step_number": n,
			"delay_days":  delay,
			"message_template": map[string]any{
				"subject": "Following up on {{proposal_title}}",
				"body":    "Hi {{client_name}}",
			},
			"stop_conditions": []string{"PROPOSAL_ACCEPTED", "PROPOSAL_REJECTED", "CLIENT_RESPONDED"},
		}
	}
	return map[string]any{
		"name": name,
		"trigger_conditions": map[string]any{
			"days_after_sent":   0,
			"proposal_statuses": []string{"SENT", "VIEWED"},
		},
		"steps":      []any{step(1, 3), step(2, 5)},
		"is_default": isDefault,
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRouter_HealthzUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body ok got %q", rec.Body.String())
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatal("expected X-Request-Id response header")
	}
}

func TestRouter_HealthzUnavailableWhenStoreCheckFails(t *testing.T) {
	router := NewRouter(Deps{
		Health: &mockHealthChecker{err: errors.New("pool closed")},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}

func TestRouter_MetricsUnauthenticated(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "followup_triggers_total") {
		t.Fatal("expected follow-up metrics to be exported")
	}
}

func TestRouter_VersionUnauthenticated(t *testing.T) {
	router := NewRouter(Deps{
		Logger:  discardLogger(),
		Version: "1.4.0",
		Commit:  "abc123",
	})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	resp := decode[map[string]string](t, rec)
	if resp["version"] != "1.4.0" || resp["commit"] != "abc123" || resp["build_date"] != "unknown" {
		t.Fatalf("unexpected version payload: %v", resp)
	}
}

func TestRouter_OrganizationRoutesRequireAPIKey(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/sequences"},
		{http.MethodPost, "/followups/trigger"},
		{http.MethodGet, "/executions"},
	} {
		rec := s.do(tc.method, tc.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401 got %d", tc.method, tc.path, rec.Code)
		}
		rec = s.do(tc.method, tc.path, "fu_live_unknown", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with unknown key: expected 401 got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRouter_CreateGetAndListSequences(t *testing.T) {
	s := newTestServer(t)

	created := s.createSequence(sequenceBody("Standard", true))
	if created.ID == uuid.Nil || created.OrganizationID != s.org {
		t.Fatalf("expected id and organization to be assigned, got %+v", created)
	}
	if !created.IsActive || !created.IsDefault {
		t.Fatalf("expected active default sequence, got active=%v default=%v", created.IsActive, created.IsDefault)
	}

	rec := s.do(http.MethodGet, "/sequences/"+created.ID.String(), s.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	got := decode[domain.SequenceDefinition](t, rec)
	if got.Name != "Standard" || len(got.Steps) != 2 {
		t.Fatalf("unexpected sequence: %+v", got)
	}

	rec = s.do(http.MethodGet, "/sequences", s.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	list := decode[map[string][]domain.SequenceDefinition](t, rec)
	if len(list["sequences"]) != 1 {
		t.Fatalf("expected one sequence, got %d", len(list["sequences"]))
	}
}

func TestRouter_CreateSequenceReportsValidationProblems(t *testing.T) {
	s := newTestServer(t)

	body := sequenceBody("", false)
	body["steps"] = []any{}

	rec := s.do(http.MethodPost, "/sequences", s.token, body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error != domain.ErrValidation.Error() {
		t.Fatalf("expected validation error, got %q", resp.Error)
	}
	if len(resp.Problems) < 2 {
		t.Fatalf("expected every problem to be reported, got %v", resp.Problems)
	}
}

func TestRouter_CreateSequenceRejectsUsageStatistics(t *testing.T) {
	s := newTestServer(t)

	body := sequenceBody("Standard", false)
	body["usage_count"] = 12

	rec := s.do(http.MethodPost, "/sequences", s.token, body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_CreateSequenceRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	for _, body := range []string{"", "{", `{"name":"a"}{"name":"b"}`} {
		rec := s.do(http.MethodPost, "/sequences", s.token, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected status 400 got %d", body, rec.Code)
		}
	}
}

func TestRouter_SequenceOfAnotherOrganizationIsNotFound(t *testing.T) {
	s := newTestServer(t)
	created := s.createSequence(sequenceBody("Standard", true))
	otherToken := s.newKey(uuid.New())

	for _, path := range []string{
		"/sequences/" + created.ID.String(),
		"/sequences/" + uuid.NewString(),
	} {
		rec := s.do(http.MethodGet, path, otherToken, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404 got %d", path, rec.Code)
		}
	}

	rec := s.do(http.MethodPost, "/sequences/"+created.ID.String()+"/default", otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("set default: expected 404 got %d", rec.Code)
	}
}

func TestRouter_SequenceInvalidID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/sequences/not-a-uuid", s.token, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_UpdateSequenceKeepsActivationWhenOmitted(t *testing.T) {
	s := newTestServer(t)
	created := s.createSequence(sequenceBody("Standard", false))
	path := "/sequences/" + created.ID.String()

	rec := s.do(http.MethodPost, path+"/deactivate", s.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200 got %d", rec.Code)
	}
	if decode[domain.SequenceDefinition](t, rec).IsActive {
		t.Fatal("expected sequence to be inactive")
	}

	body := sequenceBody("Renamed", false)
	rec = s.do(http.MethodPut, path, s.token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[domain.SequenceDefinition](t, rec)
	if updated.Name != "Renamed" {
		t.Fatalf("expected new name, got %q", updated.Name)
	}
	if updated.IsActive {
		t.Fatal("expected omitted is_active to keep the sequence inactive")
	}

	rec = s.do(http.MethodPost, path+"/activate", s.token, nil)
	if rec.Code != http.StatusOK || !decode[domain.SequenceDefinition](t, rec).IsActive {
		t.Fatalf("activate: expected active sequence, status %d", rec.Code)
	}
}

func TestRouter_SetDefaultSequenceUnsetsPrevious(t *testing.T) {
	s := newTestServer(t)
	first := s.createSequence(sequenceBody("First", true))
	second := s.createSequence(sequenceBody("Second", false))

	rec := s.do(http.MethodPost, "/sequences/"+second.ID.String()+"/default", s.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if !decode[domain.SequenceDefinition](t, rec).IsDefault {
		t.Fatal("expected second sequence to be default")
	}

	rec = s.do(http.MethodGet, "/sequences/"+first.ID.String(), s.token, nil)
	if decode[domain.SequenceDefinition](t, rec).IsDefault {
		t.Fatal("expected first sequence to lose default")
	}
}

func TestRouter_TriggerAndOperateExecution(t *testing.T) {
	s := newTestServer(t)
	s.createSequence(sequenceBody("Standard", true))
	proposal := s.addProposal(domain.ProposalSent)
	trigger := map[string]any{"proposal_id": proposal.ID, "new_status": "SENT"}

	rec := s.do(http.MethodPost, "/followups/trigger", s.token, trigger)
	if rec.Code != http.StatusCreated {
		t.Fatalf("trigger: expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	exec := decode[domain.ExecutionRecord](t, rec)
	if exec.Status != domain.ExecutionActive || exec.CurrentStep != 1 {
		t.Fatalf("unexpected execution: %+v", exec)
	}
	if exec.NextExecutionAt == nil || !exec.NextExecutionAt.Equal(day0.AddDate(0, 0, 3)) {
		t.Fatalf("expected first step due at day 3, got %v", exec.NextExecutionAt)
	}

	rec = s.do(http.MethodPost, "/followups/trigger", s.token, trigger)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second trigger: expected 409 got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/executions", s.token, nil)
	if got := decode[map[string][]domain.ExecutionRecord](t, rec)["executions"]; len(got) != 1 {
		t.Fatalf("expected one active execution, got %d", len(got))
	}

	execPath := "/executions/" + exec.ID.String()
	rec = s.do(http.MethodPost, execPath+"/pause", s.token, nil)
	if rec.Code != http.StatusOK || decode[domain.ExecutionRecord](t, rec).Status != domain.ExecutionPaused {
		t.Fatalf("pause: expected paused execution, status %d", rec.Code)
	}

	rec = s.do(http.MethodPost, execPath+"/pause", s.token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("pause twice: expected 409 got %d", rec.Code)
	}

	rec = s.do(http.MethodGet, "/executions", s.token, nil)
	listed := decode[map[string][]domain.ExecutionRecord](t, rec)["executions"]
	if len(listed) != 1 || listed[0].Status != domain.ExecutionPaused {
		t.Fatalf("expected the paused execution to stay listed, got %+v", listed)
	}

	rec = s.do(http.MethodPost, execPath+"/resume", s.token, nil)
	if rec.Code != http.StatusOK || decode[domain.ExecutionRecord](t, rec).Status != domain.ExecutionActive {
		t.Fatalf("resume: expected active execution, status %d", rec.Code)
	}

	rec = s.do(http.MethodPost, execPath+"/stop", s.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200 got %d", rec.Code)
	}
	stopped := decode[domain.ExecutionRecord](t, rec)
	if stopped.Status != domain.ExecutionStopped || stopped.StoppedReason != domain.ReasonManualStop {
		t.Fatalf("expected manual stop, got %s/%s", stopped.Status, stopped.StoppedReason)
	}

	rec = s.do(http.MethodGet, execPath, s.token, nil)
	if rec.Code != http.StatusOK || decode[domain.ExecutionRecord](t, rec).NextExecutionAt != nil {
		t.Fatal("expected stopped execution without a next execution time")
	}

	otherToken := s.newKey(uuid.New())
	if rec := s.do(http.MethodGet, execPath, otherToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("other organization: expected 404 got %d", rec.Code)
	}
}

func TestRouter_TriggerErrors(t *testing.T) {
	t.Run("no sequence is a conflict", func(t *testing.T) {
		s := newTestServer(t)
		proposal := s.addProposal(domain.ProposalSent)

		rec := s.do(http.MethodPost, "/followups/trigger", s.token, map[string]any{"proposal_id": proposal.ID})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409 got %d", rec.Code)
		}
	})

	t.Run("conditions not met", func(t *testing.T) {
		s := newTestServer(t)
		s.createSequence(sequenceBody("Standard", true))
		proposal := s.addProposal(domain.ProposalDraft)

		rec := s.do(http.MethodPost, "/followups/trigger", s.token, map[string]any{
			"proposal_id": proposal.ID,
			"new_status":  "DRAFT",
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422 got %d", rec.Code)
		}
	})

	t.Run("unknown proposal", func(t *testing.T) {
		s := newTestServer(t)
		s.createSequence(sequenceBody("Standard", true))

		rec := s.do(http.MethodPost, "/followups/trigger", s.token, map[string]any{"proposal_id": uuid.New()})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 got %d", rec.Code)
		}
	})

	t.Run("missing proposal id", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(http.MethodPost, "/followups/trigger", s.token, map[string]any{"new_status": "SENT"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 got %d", rec.Code)
		}
	})
}

func TestRouter_AdminProcessDue(t *testing.T) {
	s := newTestServer(t)
	s.createSequence(sequenceBody("Standard", true))
	proposal := s.addProposal(domain.ProposalSent)
	if rec := s.do(http.MethodPost, "/followups/trigger", s.token, map[string]any{"proposal_id": proposal.ID}); rec.Code != http.StatusCreated {
		t.Fatalf("trigger: expected 201 got %d", rec.Code)
	}

	if rec := s.do(http.MethodPost, "/admin/process-due", s.token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("api key must not authorize admin routes, got %d", rec.Code)
	}

	rec := s.do(http.MethodPost, "/admin/process-due", testAdminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if res := decode[followup.PassResult](t, rec); res.Due != 0 {
		t.Fatalf("expected nothing due at day 0, got %+v", res)
	}

	at := day0.AddDate(0, 0, 3).Format(time.RFC3339)
	rec = s.do(http.MethodPost, "/admin/process-due?now="+at, testAdminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	res := decode[followup.PassResult](t, rec)
	if res.Due != 1 || res.Processed != 1 || res.Advanced != 1 {
		t.Fatalf("expected one advanced execution, got %+v", res)
	}

	rec = s.do(http.MethodPost, "/admin/process-due?now=tomorrow", testAdminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid now: expected 400 got %d", rec.Code)
	}
}

func TestRouter_AdminEscalations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/admin/escalations", testAdminToken, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if res := decode[followup.EscalationResult](t, rec); res.Candidates != 0 || res.Aborted {
		t.Fatalf("expected empty escalation pass, got %+v", res)
	}
}

func TestRouter_AdminPassFailureHidesDetail(t *testing.T) {
	router := NewRouter(Deps{
		Passes:     &mockPassRunner{err: fmt.Errorf("%w: list due: dial tcp refused", domain.ErrStoreUnavailable)},
		Logger:     discardLogger(),
		AdminToken: testAdminToken,
	})

	req := httptest.NewRequest(http.MethodPost, "/admin/process-due", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "dial tcp") {
		t.Fatalf("expected internal detail to be hidden, got %s", rec.Body.String())
	}
}

func TestRouter_APIKeyLifecycle(t *testing.T) {
	s := newTestServer(t)
	org := uuid.New()

	rec := s.do(http.MethodPost, "/api-keys", "", map[string]any{"name": "crm", "organization_id": org})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without admin token, got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api-keys", testAdminToken, map[string]any{"name": "crm"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing organization: expected 400 got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api-keys", testAdminToken, map[string]any{"name": "  ", "organization_id": org})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank name: expected 400 got %d", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api-keys", testAdminToken, map[string]any{
		"name":                 "crm",
		"organization_id":      org,
		"max_requests_per_min": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d", rec.Code)
	}
	created := decode[map[string]string](t, rec)
	if !strings.HasPrefix(created["token"], "fu_live_") || created["organization_id"] != org.String() {
		t.Fatalf("unexpected create payload: %v", created)
	}

	rec = s.do(http.MethodGet, "/api-keys", testAdminToken, nil)
	keys := decode[map[string][]domain.APIKeyRecord](t, rec)["api_keys"]
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}

	if rec := s.do(http.MethodGet, "/sequences", created["token"], nil); rec.Code != http.StatusOK {
		t.Fatalf("new key: expected 200 got %d", rec.Code)
	}

	path := "/api-keys/" + created["api_key_id"]
	if rec := s.do(http.MethodDelete, path, testAdminToken, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("revoke: expected 204 got %d", rec.Code)
	}
	if rec := s.do(http.MethodDelete, path, testAdminToken, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("revoke twice: expected 404 got %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/sequences", created["token"], nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked key: expected 401 got %d", rec.Code)
	}
}

func TestRouter_ServerErrorsHideDetail(t *testing.T) {
	s := newTestServer(t)
	router := NewRouter(Deps{
		Sequences:      &mockSequenceService{err: errors.New("pg: relation missing")},
		APIKeyResolver: s.store,
		Logger:         discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/sequences", nil)
	req.Header.Set("Authorization", "Bearer "+s.token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if resp.Error != "failed to list sequences" {
		t.Fatalf("unexpected error body %q", resp.Error)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.ValidationError{Problems: []string{"name is required"}}, http.StatusBadRequest},
		{domain.ErrInvalidAPIKeyName, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get sequence: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrAlreadyActive, http.StatusConflict},
		{domain.ErrNoSequenceFound, http.StatusConflict},
		{domain.ErrExecutionBusy, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrTriggerConditionsNotMet, http.StatusUnprocessableEntity},
		{domain.ErrStoreUnavailable, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteJSONSetsHeadersAndBody(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusAccepted, map[string]string{"status": "queued"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202 got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected content-type application/json got %q", got)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"queued"}` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Check(ctx context.Context) error {
	return m.err
}

type mockPassRunner struct {
	err error
}

func (m *mockPassRunner) Now() time.Time { return day0 }

func (m *mockPassRunner) ProcessDue(ctx context.Context, now time.Time) (followup.PassResult, error) {
	return followup.PassResult{Aborted: m.err != nil}, m.err
}

func (m *mockPassRunner) RunEscalations(ctx context.Context, now time.Time) (followup.EscalationResult, error) {
	return followup.EscalationResult{Aborted: m.err != nil}, m.err
}

type mockSequenceService struct {
	err error
}

func (m *mockSequenceService) CreateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	return domain.SequenceDefinition{}, m.err
}

func (m *mockSequenceService) UpdateSequence(ctx context.Context, def domain.SequenceDefinition) (domain.SequenceDefinition, error) {
	return domain.SequenceDefinition{}, m.err
}

func (m *mockSequenceService) GetSequence(ctx context.Context, orgID, id uuid.UUID) (domain.SequenceDefinition, error) {
	return domain.SequenceDefinition{}, m.err
}

func (m *mockSequenceService) ListSequences(ctx context.Context, orgID uuid.UUID) ([]domain.SequenceDefinition, error) {
	return nil, m.err
}

func (m *mockSequenceService) SetDefaultSequence(ctx context.Context, orgID, id uuid.UUID) error {
	return m.err
}

func (m *mockSequenceService) SetSequenceActive(ctx context.Context, orgID, id uuid.UUID, active bool) error {
	return m.err
}
