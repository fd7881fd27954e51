// Package ledger pulls accounting data out of the ledger service:
// journals paged by journal number, flattened reports, and manual
// journal postings with attachments.
package ledger

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/fetch"
	"github.com/finward/opsflow/internal/httpx"
)

// JournalLine is one flattened journal line row.
type JournalLine struct {
	JournalID     string  `json:"journal_id"`
	JournalNumber int64   `json:"journal_number"`
	JournalDate   string  `json:"journal_date"`
	AccountCode   string  `json:"account_code"`
	AccountName   string  `json:"account_name"`
	Description   string  `json:"description"`
	NetAmount     float64 `json:"net_amount"`
	TaxAmount     float64 `json:"tax_amount"`
}

// ReportRow is one flattened report row: cell values in column order.
type ReportRow struct {
	Section string   `json:"section"`
	Cells   []string `json:"cells"`
}

// ManualJournalLine is one line of a journal to post.
type ManualJournalLine struct {
	AccountCode string  `json:"account_code"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// Client drives one tenant's ledger through the request layer. The
// underlying httpx client must carry the tenant's authorizer.
type Client struct {
	api    *httpx.Client
	logger *common.Logger
}

// NewClient wraps a request client bound to the ledger API base URL
func NewClient(api *httpx.Client) *Client {
	return &Client{
		api:    api,
		logger: common.GetLogger().WithComponent("ledger"),
	}
}

// Journals drains every journal line modified since the given time
// (zero means all history), paging with offset set to the highest
// journal number seen. A page that adds zero new lines, or whose
// cursor does not advance, ends the fetch; a malformed page aborts it
// with no partial result.
func (c *Client) Journals(ctx context.Context, since time.Time) ([]JournalLine, error) {
	var all []JournalLine
	offset := int64(0)
	for page := 0; page < fetch.DefaultMaxPages; page++ {
		opts := []httpx.Option{}
		if offset > 0 {
			opts = append(opts, httpx.WithQuery(map[string]string{
				"offset": strconv.FormatInt(offset, 10),
			}))
		}
		if !since.IsZero() {
			opts = append(opts, httpx.WithHeaders(map[string]string{
				"If-Modified-Since": since.UTC().Format(http.TimeFormat),
			}))
		}
		out := c.api.Get(ctx, "Journals", opts...)
		if !out.OK {
			return nil, fmt.Errorf("journal page failed at offset %d: %w", offset, out.Failure)
		}

		journals := out.Get("Journals")
		if !out.JSON.IsObject() || (journals.Exists() && !journals.IsArray()) {
			return nil, &httpx.Failure{
				Kind:   httpx.FailMalformed,
				Status: out.Status,
				Detail: "journal payload is not an object with a Journals array",
			}
		}

		lines, maxNumber, err := flattenJournals(journals)
		if err != nil {
			return nil, err
		}
		// A cursor that does not advance signals exhaustion; appending
		// the page again would only duplicate lines.
		if len(lines) == 0 || maxNumber <= offset {
			return all, nil
		}
		all = append(all, lines...)
		offset = maxNumber
	}
	return nil, fmt.Errorf("journal fetch exceeded %d pages", fetch.DefaultMaxPages)
}

// flattenJournals turns a Journals array into rows and reports the
// highest journal number on the page.
func flattenJournals(journals gjson.Result) ([]JournalLine, int64, error) {
	var lines []JournalLine
	var maxNumber int64
	var malformed error
	journals.ForEach(func(_, j gjson.Result) bool {
		if !j.IsObject() {
			malformed = &httpx.Failure{Kind: httpx.FailMalformed, Detail: "journal entry is not an object"}
			return false
		}
		number := j.Get("JournalNumber").Int()
		if number > maxNumber {
			maxNumber = number
		}
		j.Get("JournalLines").ForEach(func(_, jl gjson.Result) bool {
			lines = append(lines, JournalLine{
				JournalID:     j.Get("JournalID").String(),
				JournalNumber: number,
				JournalDate:   j.Get("JournalDate").String(),
				AccountCode:   jl.Get("AccountCode").String(),
				AccountName:   jl.Get("AccountName").String(),
				Description:   jl.Get("Description").String(),
				NetAmount:     jl.Get("NetAmount").Float(),
				TaxAmount:     jl.Get("TaxAmount").Float(),
			})
			return true
		})
		return true
	})
	if malformed != nil {
		return nil, 0, malformed
	}
	return lines, maxNumber, nil
}

// Report fetches a named report (TrialBalance, ProfitAndLoss, ...)
// and flattens its nested row sections into plain rows.
func (c *Client) Report(ctx context.Context, name string, params map[string]string) ([]ReportRow, error) {
	out := c.api.Get(ctx, "Reports/"+name, httpx.WithQuery(params))
	if !out.OK {
		return nil, fmt.Errorf("report %s failed: %w", name, out.Failure)
	}
	report := out.Get("Reports.0")
	if !report.Exists() {
		return nil, &httpx.Failure{
			Kind:   httpx.FailMalformed,
			Status: out.Status,
			Detail: "report payload carries no Reports array",
		}
	}
	var rows []ReportRow
	flattenReportRows(report.Get("Rows"), "", &rows)
	return rows, nil
}

// flattenReportRows walks Rows/Rows/Cells recursively, carrying the
// enclosing section title down to each data row.
func flattenReportRows(rowsDoc gjson.Result, section string, rows *[]ReportRow) {
	rowsDoc.ForEach(func(_, row gjson.Result) bool {
		rowType := row.Get("RowType").String()
		title := row.Get("Title").String()
		if nested := row.Get("Rows"); nested.IsArray() && len(nested.Array()) > 0 {
			childSection := section
			if rowType == "Section" && title != "" {
				childSection = title
			}
			flattenReportRows(nested, childSection, rows)
			return true
		}
		cellsDoc := row.Get("Cells")
		if !cellsDoc.IsArray() {
			return true
		}
		var cells []string
		cellsDoc.ForEach(func(_, cell gjson.Result) bool {
			cells = append(cells, cell.Get("Value").String())
			return true
		})
		*rows = append(*rows, ReportRow{Section: section, Cells: cells})
		return true
	})
}

// PostManualJournal posts a draft manual journal and returns its id.
func (c *Client) PostManualJournal(ctx context.Context, narration, date string, lines []ManualJournalLine) (string, error) {
	journalLines := make([]map[string]interface{}, 0, len(lines))
	for _, l := range lines {
		journalLines = append(journalLines, map[string]interface{}{
			"AccountCode": l.AccountCode,
			"Description": l.Description,
			"LineAmount":  l.Amount,
		})
	}
	out := c.api.Put(ctx, "ManualJournals", httpx.WithBody(map[string]interface{}{
		"Narration":    narration,
		"Date":         date,
		"JournalLines": journalLines,
	}))
	if !out.OK {
		return "", fmt.Errorf("manual journal post failed: %w", out.Failure)
	}
	id := out.Get("ManualJournals.0.ManualJournalID").String()
	if id == "" {
		return "", &httpx.Failure{
			Kind:   httpx.FailMalformed,
			Status: out.Status,
			Detail: "manual journal response carries no id",
		}
	}
	c.logger.Info("manual journal posted", "journal_id", id, "lines", len(lines))
	return id, nil
}

// AttachFile uploads an attachment onto a posted manual journal.
func (c *Client) AttachFile(ctx context.Context, journalID, filename string, data []byte) error {
	out := c.api.Post(ctx, "ManualJournals/"+journalID+"/Attachments/"+filename,
		httpx.WithBody(data),
		httpx.WithHeaders(map[string]string{"Content-Type": "application/octet-stream"}))
	if !out.OK {
		return fmt.Errorf("attachment upload failed for %s: %w", journalID, out.Failure)
	}
	return nil
}
