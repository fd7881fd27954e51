// Package docs applies the same batched-mutation discipline as the
// sheets proxy to text documents: queue locally, commit as one batch.
package docs

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/httpx"
)

// Document proxies one remote text document.
type Document struct {
	client  *httpx.Client
	id      string
	title   string
	endIdx  int64
	pending []map[string]interface{}
	logger  *common.Logger
}

// Open fetches document metadata and builds a proxy around it.
func Open(ctx context.Context, client *httpx.Client, id string) (*Document, error) {
	d := &Document{
		client: client,
		id:     id,
		logger: common.GetLogger().WithComponent("docs"),
	}
	out := client.Get(ctx, "documents/"+id)
	if !out.OK {
		return nil, fmt.Errorf("failed to open document %s: %w", id, out.Failure)
	}
	d.refreshFromJSON(out.JSON)
	return d, nil
}

func (d *Document) refreshFromJSON(doc gjson.Result) {
	d.title = doc.Get("title").String()
	// endIndex of the final body element bounds insert positions
	content := doc.Get("body.content").Array()
	if len(content) > 0 {
		d.endIdx = content[len(content)-1].Get("endIndex").Int()
	}
}

// ID returns the document id
func (d *Document) ID() string { return d.id }

// Title returns the document title
func (d *Document) Title() string { return d.title }

// EndIndex returns the end index of the document body
func (d *Document) EndIndex() int64 { return d.endIdx }

// Pending returns the number of queued mutations
func (d *Document) Pending() int { return len(d.pending) }

func (d *Document) queue(req map[string]interface{}) *Document {
	d.pending = append(d.pending, req)
	return d
}

// InsertText queues text insertion at the given index
func (d *Document) InsertText(index int64, text string) *Document {
	return d.queue(map[string]interface{}{
		"insertText": map[string]interface{}{
			"location": map[string]interface{}{"index": index},
			"text":     text,
		},
	})
}

// AppendText queues text insertion at the end of the body
func (d *Document) AppendText(text string) *Document {
	return d.queue(map[string]interface{}{
		"insertText": map[string]interface{}{
			"endOfSegmentLocation": map[string]interface{}{},
			"text":                 text,
		},
	})
}

// ReplaceAllText queues replacement of every match in the document
func (d *Document) ReplaceAllText(find, replace string, matchCase bool) *Document {
	return d.queue(map[string]interface{}{
		"replaceAllText": map[string]interface{}{
			"containsText": map[string]interface{}{
				"text":      find,
				"matchCase": matchCase,
			},
			"replaceText": replace,
		},
	})
}

// DeleteRange queues removal of the content between two indexes
func (d *Document) DeleteRange(start, end int64) *Document {
	return d.queue(map[string]interface{}{
		"deleteContentRange": map[string]interface{}{
			"range": map[string]interface{}{
				"startIndex": start,
				"endIndex":   end,
			},
		},
	})
}

// Commit sends the queued mutations as one batch. Same contract as
// the sheets proxy: empty queue is trivially true, failure preserves
// the queue for retry.
func (d *Document) Commit(ctx context.Context) bool {
	if len(d.pending) == 0 {
		return true
	}
	out := d.client.Post(ctx, "documents/"+d.id+":batchUpdate", httpx.WithBody(map[string]interface{}{
		"requests": d.pending,
	}))
	if !out.OK {
		d.logger.Error("batch commit failed, queue preserved",
			"document", d.id,
			"pending", len(d.pending),
			"error", out.Failure)
		return false
	}
	d.pending = nil
	d.logger.Info("batch commit applied", "document", d.id)
	return true
}
