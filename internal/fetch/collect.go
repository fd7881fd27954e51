// Package fetch holds the two shapes every report integration
// reduces to: cursor-paged collection and bounded job polling.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// DefaultMaxPages caps a paged collection so a service that echoes
// the same cursor forever cannot spin the worker.
const DefaultMaxPages = 1000

// ErrTooManyPages signals the page cap fired before the cursor ended.
var ErrTooManyPages = errors.New("fetch: page limit exceeded")

// PageFunc fetches one page for a cursor. It returns the page's items
// and the next cursor; an empty next cursor ends the collection.
type PageFunc func(ctx context.Context, cursor string) (items []gjson.Result, next string, err error)

// Collect drains a cursor-paged listing into one slice. maxPages <= 0
// uses DefaultMaxPages. A page error aborts with no partial result.
func Collect(ctx context.Context, fn PageFunc, maxPages int) ([]gjson.Result, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	var all []gjson.Result
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("%w: %d pages", ErrTooManyPages, maxPages)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, next, err := fn(ctx, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" || len(items) == 0 {
			return all, nil
		}
		cursor = next
	}
}
