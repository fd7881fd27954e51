package docs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/httpx"
)

func newTestDocument(t *testing.T, failBatches *int, bodies *[]string) *Document {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":batchUpdate") {
			body, _ := io.ReadAll(r.Body)
			*bodies = append(*bodies, string(body))
			if *failBatches > 0 {
				*failBatches--
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"documentId":"doc-1","replies":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"documentId":"doc-1","title":"Engagement Letter","body":{"content":[{"endIndex":1},{"endIndex":120}]}}`))
	}))
	t.Cleanup(srv.Close)

	policy := httpx.DefaultPolicy()
	policy.MaxAttempts = 1
	policy.Backoff = time.Millisecond
	client := httpx.New(httpx.Config{BaseURL: srv.URL, Policy: policy})

	doc, err := Open(context.Background(), client, "doc-1")
	if err != nil {
		t.Fatalf("open document: %v", err)
	}
	return doc
}

func TestOpenParsesMetadata(t *testing.T) {
	fails := 0
	var bodies []string
	doc := newTestDocument(t, &fails, &bodies)
	if doc.Title() != "Engagement Letter" {
		t.Errorf("title: %q", doc.Title())
	}
	if doc.EndIndex() != 120 {
		t.Errorf("end index: %d", doc.EndIndex())
	}
}

func TestCommitOrderAndClear(t *testing.T) {
	fails := 0
	var bodies []string
	doc := newTestDocument(t, &fails, &bodies)

	doc.InsertText(1, "Dear client,\n").
		ReplaceAllText("{{year}}", "2026", true).
		AppendText("\nKind regards").
		DeleteRange(50, 60)

	if doc.Pending() != 4 {
		t.Fatalf("expected 4 pending, got %d", doc.Pending())
	}
	if !doc.Commit(context.Background()) {
		t.Fatalf("commit failed")
	}
	if doc.Pending() != 0 {
		t.Errorf("queue should clear after success")
	}

	reqs := gjson.Parse(bodies[0]).Get("requests").Array()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(reqs))
	}
	order := []string{"insertText", "replaceAllText", "insertText", "deleteContentRange"}
	for i, key := range order {
		if !reqs[i].Get(key).Exists() {
			t.Errorf("request %d should be %s: %s", i, key, reqs[i].Raw)
		}
	}
	if reqs[1].Get("replaceAllText.containsText.matchCase").Bool() != true {
		t.Errorf("matchCase not carried: %s", reqs[1].Raw)
	}
}

func TestCommitEmptyIsTrivial(t *testing.T) {
	fails := 0
	var bodies []string
	doc := newTestDocument(t, &fails, &bodies)
	if !doc.Commit(context.Background()) {
		t.Fatalf("empty commit must succeed")
	}
	if len(bodies) != 0 {
		t.Errorf("empty commit must not call the service")
	}
}

func TestCommitFailurePreservesQueue(t *testing.T) {
	fails := 1
	var bodies []string
	doc := newTestDocument(t, &fails, &bodies)

	doc.AppendText("x")
	if doc.Commit(context.Background()) {
		t.Fatalf("commit should fail")
	}
	if doc.Pending() != 1 {
		t.Fatalf("queue must survive a failed commit")
	}
	if !doc.Commit(context.Background()) {
		t.Fatalf("retry should succeed")
	}
	if doc.Pending() != 0 {
		t.Errorf("queue should clear after retry")
	}
}
