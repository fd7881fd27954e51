package payroll

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/finward/opsflow/internal/httpx"
)

func newTestClient(t *testing.T, apiKey string, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	policy := httpx.DefaultPolicy()
	policy.MaxAttempts = 1
	cfg := httpx.Config{BaseURL: srv.URL, Policy: policy}
	if apiKey != "" {
		cfg.Authorize = BasicAuthorizer(apiKey)
	}
	return NewClient(httpx.New(cfg))
}

func employeePage(start, count int) string {
	out := "["
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{"id": %d, "firstName": "F%d", "surname": "S%d", "status": "Active"}`, start+i, start+i, start+i)
	}
	return out + "]"
}

func TestBasicAuthorizerHeader(t *testing.T) {
	headers, err := BasicAuthorizer("key-123")(context.Background())
	if err != nil {
		t.Fatalf("authorizer: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("key-123:"))
	if headers["Authorization"] != want {
		t.Errorf("authorization header = %q, want %q", headers["Authorization"], want)
	}
}

func TestBasicAuthorizerRejectsEmptyKey(t *testing.T) {
	if _, err := BasicAuthorizer("")(context.Background()); err == nil {
		t.Fatalf("expected empty key rejection")
	}
}

func TestEmployeesPagesWithSkip(t *testing.T) {
	var skips []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			t.Errorf("request carried no basic auth")
		}
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))
		skips = append(skips, r.URL.Query().Get("$skip"))
		if skip == 0 {
			fmt.Fprint(w, employeePage(1, pageSize))
			return
		}
		fmt.Fprint(w, employeePage(skip+1, 3))
	})

	c := newTestClient(t, "key-123", handler)
	employees, err := c.Employees(context.Background())
	if err != nil {
		t.Fatalf("employees: %v", err)
	}
	if len(employees) != pageSize+3 {
		t.Fatalf("expected %d employees, got %d", pageSize+3, len(employees))
	}
	if employees[0].ID != 1 || employees[len(employees)-1].ID != int64(pageSize+3) {
		t.Errorf("employees out of order: first=%d last=%d", employees[0].ID, employees[len(employees)-1].ID)
	}
	if len(skips) != 2 || skips[1] != strconv.Itoa(pageSize) {
		t.Errorf("skip cursor sequence wrong: %v", skips)
	}
}

func TestEmployeesShortFirstPageStops(t *testing.T) {
	calls := 0
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, employeePage(1, 2))
	}))

	employees, err := c.Employees(context.Background())
	if err != nil {
		t.Fatalf("employees: %v", err)
	}
	if len(employees) != 2 || calls != 1 {
		t.Errorf("short page should end paging: employees=%d calls=%d", len(employees), calls)
	}
}

func TestEmployeesMalformedListingAborts(t *testing.T) {
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"employees": []}`)
	}))

	got, err := c.Employees(context.Background())
	var f *httpx.Failure
	if !errors.As(err, &f) || f.Kind != httpx.FailMalformed {
		t.Fatalf("expected malformed failure, got %v", err)
	}
	if got != nil {
		t.Errorf("aborted listing must not return a partial result")
	}
}

func TestPayRunsFlattensTotals(t *testing.T) {
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payrun" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"id": 11, "payPeriodEnding": "2026-06-28", "datePaid": "2026-06-30", "isFinalised": true, "totals": {"netWages": "4523.10"}},
			{"id": 12, "payPeriodEnding": "2026-07-05", "datePaid": "", "isFinalised": false, "totals": {"netWages": "0.00"}}
		]`)
	}))

	runs, err := c.PayRuns(context.Background())
	if err != nil {
		t.Fatalf("payruns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 pay runs, got %d", len(runs))
	}
	if !runs[0].IsFinalised || runs[0].TotalNetWages != "4523.10" {
		t.Errorf("first run not flattened: %+v", runs[0])
	}
	if runs[1].IsFinalised {
		t.Errorf("second run should be open")
	}
}

func TestExportReportReturnsBytesVerbatim(t *testing.T) {
	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0xff, 0x00}
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/report/payrunactivity/xlsx" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("fromDate") != "2026-06-01" {
			t.Errorf("fromDate not forwarded")
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Write(payload)
	}))

	got, err := c.ExportReport(context.Background(), "payrunactivity", map[string]string{"fromDate": "2026-06-01"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("export bytes altered in transit")
	}
}

func TestExportReportEmptyBodyIsMalformed(t *testing.T) {
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := c.ExportReport(context.Background(), "payrunactivity", nil)
	var f *httpx.Failure
	if !errors.As(err, &f) || f.Kind != httpx.FailMalformed {
		t.Fatalf("expected malformed failure, got %v", err)
	}
}
