package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/finward/opsflow/internal/message"
	"github.com/finward/opsflow/internal/orchestration"
	"github.com/finward/opsflow/internal/store"
)

var testSecret = []byte("test-secret")

func newTestServer(t *testing.T, ran *atomic.Int32) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.DriverSqlite, map[string]interface{}{"path": ":memory:"})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runner := orchestration.NewRunner(st)
	runner.Register("t", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		if ran != nil {
			ran.Add(1)
		}
		return []message.Message{message.NewInfo("done")}, nil
	})
	runbook := &orchestration.Runbook{
		APIVersion: "opsflow/v1",
		Kind:       "Runbook",
		Jobs:       []orchestration.Job{{Name: "journals", Task: "t"}},
	}

	return New(Config{
		Runner:  runner,
		Runbook: runbook,
		Store:   st,
		Auth:    VerifyConfig{Secret: testSecret},
	}), st
}

func request(t *testing.T, s *Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func validToken(t *testing.T) string {
	t.Helper()
	tok, err := IssueToken(testSecret, "tester", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestHealthzNeedsNoToken(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := request(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if w := request(t, s, http.MethodGet, "/runs", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPIRejectsWrongSecret(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tok, err := IssueToken([]byte("other-secret"), "tester", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := request(t, s, http.MethodGet, "/runs", tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPIRejectsExpiredToken(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tok, err := IssueToken(testSecret, "tester", -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if w := request(t, s, http.MethodGet, "/runs", tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRunJobAcceptsAndExecutes(t *testing.T) {
	var ran atomic.Int32
	s, st := newTestServer(t, &ran)

	w := request(t, s, http.MethodPost, "/jobs/journals/run", validToken(t))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("triggered job never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The run record lands after the handler returns, so poll for it.
	for {
		runs, err := st.ListRuns(context.Background())
		if err != nil {
			t.Fatalf("list runs: %v", err)
		}
		if len(runs) > 0 && runs[0].Status != "running" {
			if runs[0].Job != "journals" {
				t.Errorf("run recorded for wrong job: %s", runs[0].Job)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run record never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunJobUnknownName(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if w := request(t, s, http.MethodPost, "/jobs/ghost/run", validToken(t)); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListAndGetRuns(t *testing.T) {
	s, st := newTestServer(t, nil)

	id, err := st.BeginRun(context.Background(), "journals")
	if err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := st.FinishRun(context.Background(), id, "succeeded", "[]"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	w := request(t, s, http.MethodGet, "/runs", validToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("list runs = %d", w.Code)
	}
	var listBody struct {
		Runs []struct {
			ID  int    `json:"ID"`
			Job string `json:"Job"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listBody.Runs) != 1 || listBody.Runs[0].Job != "journals" {
		t.Errorf("list body wrong: %s", w.Body.String())
	}

	w = request(t, s, http.MethodGet, "/runs/"+strconv.Itoa(id), validToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("get run = %d: %s", w.Code, w.Body.String())
	}

	if w := request(t, s, http.MethodGet, "/runs/9999", validToken(t)); w.Code != http.StatusNotFound {
		t.Fatalf("missing run = %d", w.Code)
	}
	if w := request(t, s, http.MethodGet, "/runs/abc", validToken(t)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id = %d", w.Code)
	}
}
