package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/finward/opsflow/internal/credential"
	"github.com/finward/opsflow/internal/export"
	"github.com/finward/opsflow/internal/httpx"
	"github.com/finward/opsflow/internal/ledger"
	"github.com/finward/opsflow/internal/message"
	"github.com/finward/opsflow/internal/orchestration"
	"github.com/finward/opsflow/internal/payroll"
	"github.com/finward/opsflow/internal/store"
)

// tenantHeader is the header carrying the ledger tenant id.
const tenantHeader = "Xero-tenant-id"

// buildRunner registers the built-in task handlers. Runbook jobs pick
// them by task name and parameterize them through params.
func buildRunner(st *store.Store, manager *credential.Manager) *orchestration.Runner {
	r := orchestration.NewRunner(st)

	ledgerClient := func(params map[string]string) (*ledger.Client, error) {
		baseURL := params["base_url"]
		account := params["account"]
		if baseURL == "" || account == "" {
			return nil, fmt.Errorf("ledger tasks need base_url and account params")
		}
		return ledger.NewClient(httpx.New(httpx.Config{
			BaseURL:   baseURL,
			Authorize: manager.Authorizer(account, tenantHeader),
			Auditor:   httpx.NewLogAuditor(nil),
		})), nil
	}

	r.Register("ledger_journals", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		c, err := ledgerClient(params)
		if err != nil {
			return nil, err
		}
		var since time.Time
		if raw := params["since"]; raw != "" {
			since, err = time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("ledger_journals since param must be YYYY-MM-DD: %w", err)
			}
		}
		lines, err := c.Journals(ctx, since)
		if err != nil {
			return nil, err
		}
		return []message.Message{message.NewInfo(fmt.Sprintf("fetched %d journal lines", len(lines)))}, nil
	})

	r.Register("ledger_report", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		c, err := ledgerClient(params)
		if err != nil {
			return nil, err
		}
		name := params["report"]
		if name == "" {
			return nil, fmt.Errorf("ledger_report needs a report param")
		}
		query := map[string]string{}
		if date := params["date"]; date != "" {
			query["date"] = date
		}
		rows, err := c.Report(ctx, name, query)
		if err != nil {
			return nil, err
		}
		return []message.Message{message.NewInfo(fmt.Sprintf("report %s returned %d rows", name, len(rows)))}, nil
	})

	payrollClient := func(params map[string]string) (*payroll.Client, error) {
		baseURL := params["base_url"]
		keyEnv := params["api_key_env"]
		if baseURL == "" || keyEnv == "" {
			return nil, fmt.Errorf("payroll tasks need base_url and api_key_env params")
		}
		apiKey := os.Getenv(keyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("payroll api key env %s is empty", keyEnv)
		}
		return payroll.NewClient(httpx.New(httpx.Config{
			BaseURL:   baseURL,
			Authorize: payroll.BasicAuthorizer(apiKey),
			Auditor:   httpx.NewLogAuditor(nil),
		})), nil
	}

	r.Register("payroll_payruns", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		c, err := payrollClient(params)
		if err != nil {
			return nil, err
		}
		runs, err := c.PayRuns(ctx)
		if err != nil {
			return nil, err
		}
		msgs := []message.Message{message.NewInfo(fmt.Sprintf("fetched %d pay runs", len(runs)))}
		for _, run := range runs {
			if !run.IsFinalised {
				msgs = append(msgs, message.NewWarning(fmt.Sprintf("pay run %d is not finalised", run.ID)))
			}
		}
		return msgs, nil
	})

	r.Register("export_render", func(ctx context.Context, params map[string]string) ([]message.Message, error) {
		baseURL := params["base_url"]
		source := params["source"]
		output := params["output"]
		if baseURL == "" || source == "" || output == "" {
			return nil, fmt.Errorf("export_render needs base_url, source, and output params")
		}
		svc := export.New(httpx.New(httpx.Config{BaseURL: baseURL, Auditor: httpx.NewLogAuditor(nil)}))
		format := params["format"]
		if format == "" {
			format = "pdf"
		}
		content, err := svc.Render(ctx, export.Request{Source: source, Format: format})
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(output, content, 0o600); err != nil {
			return nil, fmt.Errorf("could not write rendered output: %w", err)
		}
		return []message.Message{message.NewInfo(fmt.Sprintf("rendered %d bytes to %s", len(content), output))}, nil
	})

	return r
}
