// Package payroll reads payroll data through the request layer. The
// payroll service authenticates with an API key over basic auth and
// pages flat JSON arrays with a skip cursor.
package payroll

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/fetch"
	"github.com/finward/opsflow/internal/httpx"
)

// pageSize is the service's maximum page length.
const pageSize = 100

// BasicAuthorizer builds the Authorization header for an API key. The
// service expects the key as the basic-auth username with an empty
// password.
func BasicAuthorizer(apiKey string) httpx.Authorizer {
	token := base64.StdEncoding.EncodeToString([]byte(apiKey + ":"))
	return func(ctx context.Context) (map[string]string, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("payroll api key is empty")
		}
		return map[string]string{"Authorization": "Basic " + token}, nil
	}
}

// Employee is one employee row from the paged listing.
type Employee struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Surname   string `json:"surname"`
	Status    string `json:"status"`
}

// PayRun is one finalized or open pay run.
type PayRun struct {
	ID            int64  `json:"id"`
	PayPeriodEnd  string `json:"pay_period_end"`
	DatePaid      string `json:"date_paid"`
	IsFinalised   bool   `json:"is_finalised"`
	TotalNetWages string `json:"total_net_wages"`
}

// Client drives one business's payroll through the request layer.
type Client struct {
	api    *httpx.Client
	logger *common.Logger
}

func NewClient(api *httpx.Client) *Client {
	return &Client{
		api:    api,
		logger: common.GetLogger().WithComponent("payroll"),
	}
}

// listPage fetches one skip-paged array. The next cursor is the new
// skip value, empty once a short page arrives.
func (c *Client) listPage(ctx context.Context, path, cursor string) ([]gjson.Result, string, error) {
	skip := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("bad page cursor %q: %w", cursor, err)
		}
		skip = n
	}
	out := c.api.Get(ctx, path, httpx.WithQuery(map[string]string{
		"$top":  strconv.Itoa(pageSize),
		"$skip": strconv.Itoa(skip),
	}))
	if !out.OK {
		return nil, "", fmt.Errorf("payroll page %s failed at skip %d: %w", path, skip, out.Failure)
	}
	if !out.JSON.IsArray() {
		return nil, "", &httpx.Failure{
			Kind:   httpx.FailMalformed,
			Status: out.Status,
			Detail: "payroll listing is not a JSON array",
		}
	}
	items := out.JSON.Array()
	if len(items) < pageSize {
		return items, "", nil
	}
	return items, strconv.Itoa(skip + len(items)), nil
}

// Employees drains the employee listing.
func (c *Client) Employees(ctx context.Context) ([]Employee, error) {
	items, err := fetch.Collect(ctx, func(ctx context.Context, cursor string) ([]gjson.Result, string, error) {
		return c.listPage(ctx, "employee", cursor)
	}, 0)
	if err != nil {
		return nil, err
	}
	employees := make([]Employee, 0, len(items))
	for _, item := range items {
		employees = append(employees, Employee{
			ID:        item.Get("id").Int(),
			FirstName: item.Get("firstName").String(),
			Surname:   item.Get("surname").String(),
			Status:    item.Get("status").String(),
		})
	}
	return employees, nil
}

// PayRuns drains the pay-run listing.
func (c *Client) PayRuns(ctx context.Context) ([]PayRun, error) {
	items, err := fetch.Collect(ctx, func(ctx context.Context, cursor string) ([]gjson.Result, string, error) {
		return c.listPage(ctx, "payrun", cursor)
	}, 0)
	if err != nil {
		return nil, err
	}
	runs := make([]PayRun, 0, len(items))
	for _, item := range items {
		runs = append(runs, PayRun{
			ID:            item.Get("id").Int(),
			PayPeriodEnd:  item.Get("payPeriodEnding").String(),
			DatePaid:      item.Get("datePaid").String(),
			IsFinalised:   item.Get("isFinalised").Bool(),
			TotalNetWages: item.Get("totals.netWages").String(),
		})
	}
	return runs, nil
}

// ExportReport downloads a named report in spreadsheet form and
// returns the bytes verbatim.
func (c *Client) ExportReport(ctx context.Context, name string, params map[string]string) ([]byte, error) {
	out := c.api.Get(ctx, "report/"+name+"/xlsx", httpx.WithQuery(params), httpx.Raw())
	if !out.OK {
		return nil, fmt.Errorf("report export %s failed: %w", name, out.Failure)
	}
	if len(out.Raw) == 0 {
		return nil, &httpx.Failure{
			Kind:   httpx.FailMalformed,
			Status: out.Status,
			Detail: "report export returned an empty body",
		}
	}
	c.logger.Info("report exported", "report", name, "bytes", len(out.Raw))
	return out.Raw, nil
}
