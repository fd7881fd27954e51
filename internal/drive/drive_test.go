package drive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finward/opsflow/internal/httpx"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	policy := httpx.DefaultPolicy()
	policy.MaxAttempts = 1
	policy.Backoff = time.Millisecond
	return New(httpx.New(httpx.Config{BaseURL: srv.URL, Policy: policy}))
}

func TestListFollowsPageTokens(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken":"page-2","files":[{"id":"f1","name":"Clients","mimeType":"application/vnd.google-apps.folder"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"files":[{"id":"f2","name":"report.xlsx","mimeType":"application/vnd.ms-excel"}]}`))
	})

	items, err := svc.List(context.Background(), RootFolderID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected items from both pages, got %d", len(items))
	}
	if !items[0].Folder || items[1].Folder {
		t.Errorf("folder detection wrong: %+v", items)
	}
}

func TestResolvePathWalksComponents(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query().Get("q")
		switch {
		case strings.Contains(q, "'root'"):
			_, _ = w.Write([]byte(`{"files":[{"id":"clients-id","name":"Clients","mimeType":"application/vnd.google-apps.folder"}]}`))
		case strings.Contains(q, "'clients-id'"):
			_, _ = w.Write([]byte(`{"files":[{"id":"acme-id","name":"Acme","mimeType":"application/vnd.google-apps.folder"}]}`))
		default:
			_, _ = w.Write([]byte(`{"files":[]}`))
		}
	})

	id, err := svc.ResolvePath(context.Background(), "/Clients/Acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "acme-id" {
		t.Errorf("expected acme-id, got %s", id)
	}

	if _, err := svc.ResolvePath(context.Background(), "/Clients/Missing"); err == nil {
		t.Errorf("missing component should error")
	}
}

func TestExportReturnsRawBytes(t *testing.T) {
	payload := "PK\x03\x04 spreadsheet bytes"
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/export") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("mimeType") == "" {
			t.Errorf("export must carry mimeType")
		}
		_, _ = w.Write([]byte(payload))
	})

	data, err := svc.Export(context.Background(), "file-1", "application/vnd.ms-excel")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(data) != payload {
		t.Errorf("raw bytes altered")
	}
}

func TestMoveSendsParentSwap(t *testing.T) {
	var addParents, removeParents string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		addParents = r.URL.Query().Get("addParents")
		removeParents = r.URL.Query().Get("removeParents")
		_, _ = w.Write([]byte(`{"id":"file-1"}`))
	})

	if err := svc.Move(context.Background(), "file-1", "old", "new"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if addParents != "new" || removeParents != "old" {
		t.Errorf("parent swap wrong: add=%q remove=%q", addParents, removeParents)
	}
}

func TestTrashFailureSurfaces(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	if err := svc.Trash(context.Background(), "file-1"); err == nil {
		t.Fatalf("expected trash failure to surface")
	}
}
