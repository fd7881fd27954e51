// Package sheets is a batched-mutation proxy over a spreadsheet
// service. Mutators queue requests locally; nothing reaches the
// service until Commit sends the whole queue as one batch.
package sheets

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/httpx"
)

// Spreadsheet proxies one remote spreadsheet. Not safe for concurrent
// mutation; one automation step owns a proxy at a time.
type Spreadsheet struct {
	client    *httpx.Client
	id        string
	title     string
	titleByID map[int64]string
	idByTitle map[string]int64
	sheets    map[string]*Sheet
	pending   []map[string]interface{}
	logger    *common.Logger
}

// Open fetches the spreadsheet metadata (grid included) and builds a
// proxy around it. The client must be bound to the spreadsheet API
// base URL with an authorizer attached.
func Open(ctx context.Context, client *httpx.Client, id string) (*Spreadsheet, error) {
	s := &Spreadsheet{
		client: client,
		id:     id,
		logger: common.GetLogger().WithComponent("sheets"),
	}
	out := client.Get(ctx, "spreadsheets/"+id, httpx.WithQuery(map[string]string{
		"includeGridData": "true",
	}))
	if !out.OK {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", id, out.Failure)
	}
	s.refreshFromJSON(out.JSON)
	return s, nil
}

// refreshFromJSON rebuilds the cached metadata from a spreadsheet
// resource payload. The id and title maps stay inverses of each other.
func (s *Spreadsheet) refreshFromJSON(doc gjson.Result) {
	s.title = doc.Get("properties.title").String()
	s.titleByID = map[int64]string{}
	s.idByTitle = map[string]int64{}
	s.sheets = map[string]*Sheet{}
	doc.Get("sheets").ForEach(func(_, sheetDoc gjson.Result) bool {
		sheet := newSheetFromJSON(sheetDoc)
		s.titleByID[sheet.ID] = sheet.Title
		s.idByTitle[sheet.Title] = sheet.ID
		s.sheets[sheet.Title] = sheet
		return true
	})
}

// ID returns the spreadsheet id
func (s *Spreadsheet) ID() string { return s.id }

// Title returns the spreadsheet title
func (s *Spreadsheet) Title() string { return s.title }

// SheetTitles returns the titles known from the last metadata fetch
func (s *Spreadsheet) SheetTitles() []string {
	titles := make([]string, 0, len(s.idByTitle))
	for title := range s.idByTitle {
		titles = append(titles, title)
	}
	return titles
}

// Sheet returns the snapshot for a title, nil when unknown
func (s *Spreadsheet) Sheet(title string) *Sheet {
	return s.sheets[title]
}

// SheetID resolves a title to its sheet id
func (s *Spreadsheet) SheetID(title string) (int64, bool) {
	id, ok := s.idByTitle[title]
	return id, ok
}

// Pending returns the number of queued mutations
func (s *Spreadsheet) Pending() int { return len(s.pending) }

// queue appends one request, preserving order.
func (s *Spreadsheet) queue(req map[string]interface{}) *Spreadsheet {
	s.pending = append(s.pending, req)
	return s
}

// resolve looks a sheet title up; unknown titles drop the mutation
// with a warning so a typo cannot corrupt the batch.
func (s *Spreadsheet) resolve(title string) (int64, bool) {
	id, ok := s.idByTitle[title]
	if !ok {
		s.logger.Warn("mutation dropped, unknown sheet", "sheet", title, "spreadsheet", s.id)
	}
	return id, ok
}

// AddSheet queues creation of a new sheet
func (s *Spreadsheet) AddSheet(title string) *Spreadsheet {
	return s.queue(map[string]interface{}{
		"addSheet": map[string]interface{}{
			"properties": map[string]interface{}{"title": title},
		},
	})
}

// DeleteSheet queues removal of a sheet
func (s *Spreadsheet) DeleteSheet(title string) *Spreadsheet {
	id, ok := s.resolve(title)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"deleteSheet": map[string]interface{}{"sheetId": id},
	})
}

// RenameSheet queues a title change
func (s *Spreadsheet) RenameSheet(title, newTitle string) *Spreadsheet {
	id, ok := s.resolve(title)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"updateSheetProperties": map[string]interface{}{
			"properties": map[string]interface{}{"sheetId": id, "title": newTitle},
			"fields":     "title",
		},
	})
}

// MoveSheet queues an index change
func (s *Spreadsheet) MoveSheet(title string, index int) *Spreadsheet {
	id, ok := s.resolve(title)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"updateSheetProperties": map[string]interface{}{
			"properties": map[string]interface{}{"sheetId": id, "index": index},
			"fields":     "index",
		},
	})
}

// DuplicateSheet queues a copy within the same spreadsheet
func (s *Spreadsheet) DuplicateSheet(title, newTitle string, index int) *Spreadsheet {
	id, ok := s.resolve(title)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"duplicateSheet": map[string]interface{}{
			"sourceSheetId":    id,
			"newSheetName":     newTitle,
			"insertSheetIndex": index,
		},
	})
}

func (s *Spreadsheet) dimensionRange(title, dimension string, at, count int) (map[string]interface{}, bool) {
	id, ok := s.resolve(title)
	if !ok {
		return nil, false
	}
	return map[string]interface{}{
		"sheetId":    id,
		"dimension":  dimension,
		"startIndex": at,
		"endIndex":   at + count,
	}, true
}

// InsertRows queues insertion of count rows at the given index
func (s *Spreadsheet) InsertRows(title string, at, count int) *Spreadsheet {
	rng, ok := s.dimensionRange(title, "ROWS", at, count)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"insertDimension": map[string]interface{}{"range": rng, "inheritFromBefore": at > 0},
	})
}

// InsertColumns queues insertion of count columns at the given index
func (s *Spreadsheet) InsertColumns(title string, at, count int) *Spreadsheet {
	rng, ok := s.dimensionRange(title, "COLUMNS", at, count)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"insertDimension": map[string]interface{}{"range": rng, "inheritFromBefore": at > 0},
	})
}

// DeleteRows queues removal of count rows at the given index
func (s *Spreadsheet) DeleteRows(title string, at, count int) *Spreadsheet {
	rng, ok := s.dimensionRange(title, "ROWS", at, count)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"deleteDimension": map[string]interface{}{"range": rng},
	})
}

// DeleteColumns queues removal of count columns at the given index
func (s *Spreadsheet) DeleteColumns(title string, at, count int) *Spreadsheet {
	rng, ok := s.dimensionRange(title, "COLUMNS", at, count)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"deleteDimension": map[string]interface{}{"range": rng},
	})
}

// MergeCells queues a merge across the range
func (s *Spreadsheet) MergeCells(rng CellRange) *Spreadsheet {
	id, ok := s.resolve(rng.SheetTitle)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"mergeCells": map[string]interface{}{
			"range":     rng.gridRange(id),
			"mergeType": "MERGE_ALL",
		},
	})
}

// SetBorders queues a uniform border style around and inside the range
func (s *Spreadsheet) SetBorders(rng CellRange, style string) *Spreadsheet {
	id, ok := s.resolve(rng.SheetTitle)
	if !ok {
		return s
	}
	border := map[string]interface{}{"style": style}
	return s.queue(map[string]interface{}{
		"updateBorders": map[string]interface{}{
			"range":           rng.gridRange(id),
			"top":             border,
			"bottom":          border,
			"left":            border,
			"right":           border,
			"innerHorizontal": border,
			"innerVertical":   border,
		},
	})
}

// SetFormat queues a cell format across the range. The format map is
// a CellFormat object, e.g. {"textFormat": {"bold": true}}.
func (s *Spreadsheet) SetFormat(rng CellRange, format map[string]interface{}, fields string) *Spreadsheet {
	id, ok := s.resolve(rng.SheetTitle)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"repeatCell": map[string]interface{}{
			"range":  rng.gridRange(id),
			"cell":   map[string]interface{}{"userEnteredFormat": format},
			"fields": "userEnteredFormat(" + fields + ")",
		},
	})
}

// UpdateCells queues a rectangle of values anchored at the range start
func (s *Spreadsheet) UpdateCells(rng CellRange, rows [][]interface{}) *Spreadsheet {
	id, ok := s.resolve(rng.SheetTitle)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"updateCells": map[string]interface{}{
			"start": map[string]interface{}{
				"sheetId":     id,
				"rowIndex":    rng.StartRow,
				"columnIndex": rng.StartColumn,
			},
			"rows":   rowsToCellData(rows),
			"fields": "userEnteredValue",
		},
	})
}

// AppendCells queues rows after the sheet's last data row
func (s *Spreadsheet) AppendCells(title string, rows [][]interface{}) *Spreadsheet {
	id, ok := s.resolve(title)
	if !ok {
		return s
	}
	return s.queue(map[string]interface{}{
		"appendCells": map[string]interface{}{
			"sheetId": id,
			"rows":    rowsToCellData(rows),
			"fields":  "userEnteredValue",
		},
	})
}

// Commit sends the queued mutations as one batch. An empty queue is
// trivially true with no network call. On success the queue clears;
// with refresh set the response carries the updated spreadsheet and
// the cached metadata is rebuilt from it, otherwise the snapshot stays
// as last fetched. On failure the queue is preserved so the commit can
// be retried.
func (s *Spreadsheet) Commit(ctx context.Context, refresh bool) bool {
	if len(s.pending) == 0 {
		return true
	}
	payload := map[string]interface{}{"requests": s.pending}
	if refresh {
		payload["includeSpreadsheetInResponse"] = true
		payload["responseIncludeGridData"] = true
	}
	out := s.client.Post(ctx, "spreadsheets/"+s.id+":batchUpdate", httpx.WithBody(payload))
	if !out.OK {
		s.logger.Error("batch commit failed, queue preserved",
			"spreadsheet", s.id,
			"pending", len(s.pending),
			"error", out.Failure)
		return false
	}
	s.pending = nil
	if updated := out.Get("updatedSpreadsheet"); updated.Exists() {
		s.refreshFromJSON(updated)
	}
	s.logger.Info("batch commit applied", "spreadsheet", s.id)
	return true
}

// ErrCopyNotRenamed reports a copy whose rename phase failed: the
// copied sheet exists in the destination under its default title.
var ErrCopyNotRenamed = errors.New("sheets: copy left with default title")

// CopySheetTo copies a sheet into dst, then renames and positions the
// copy in a second phase. It returns the copied sheet's id in dst. The
// copy stands even when the second phase fails; that case returns the
// id together with ErrCopyNotRenamed.
func (s *Spreadsheet) CopySheetTo(ctx context.Context, title string, dst *Spreadsheet, newTitle string, index int) (int64, error) {
	id, ok := s.resolve(title)
	if !ok {
		return 0, fmt.Errorf("unknown sheet %q in spreadsheet %s", title, s.id)
	}
	out := s.client.Post(ctx, fmt.Sprintf("spreadsheets/%s/sheets/%d:copyTo", s.id, id),
		httpx.WithBody(map[string]interface{}{"destinationSpreadsheetId": dst.id}))
	if !out.OK {
		return 0, fmt.Errorf("sheet copy failed for %q into %s: %w", title, dst.id, out.Failure)
	}
	copiedID := out.Get("sheetId").Int()

	rename := s.client.Post(ctx, "spreadsheets/"+dst.id+":batchUpdate", httpx.WithBody(map[string]interface{}{
		"requests": []map[string]interface{}{{
			"updateSheetProperties": map[string]interface{}{
				"properties": map[string]interface{}{
					"sheetId": copiedID,
					"title":   newTitle,
					"index":   index,
				},
				"fields": "title,index",
			},
		}},
	}))
	if !rename.OK {
		s.logger.Warn("copied sheet left with default title",
			"sheet", title, "destination", dst.id, "error", rename.Failure)
		return copiedID, fmt.Errorf("%w: %v", ErrCopyNotRenamed, rename.Failure)
	}
	return copiedID, nil
}
