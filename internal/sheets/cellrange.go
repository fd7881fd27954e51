package sheets

import "fmt"

// CellRange addresses a rectangle of cells on one sheet. Rows and
// columns are zero-based; Depth and Width count cells.
type CellRange struct {
	SheetTitle  string
	StartRow    int
	StartColumn int
	Depth       int
	Width       int
}

// NewCellRange builds a range anchored at (row, column)
func NewCellRange(sheetTitle string, row, column, depth, width int) CellRange {
	return CellRange{
		SheetTitle:  sheetTitle,
		StartRow:    row,
		StartColumn: column,
		Depth:       depth,
		Width:       width,
	}
}

// columnLetter converts a zero-based column index to its A1 letters.
func columnLetter(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}

// A1 renders the range in A1 notation with its sheet title
func (r CellRange) A1() string {
	start := fmt.Sprintf("%s%d", columnLetter(r.StartColumn), r.StartRow+1)
	if r.Depth <= 1 && r.Width <= 1 {
		return fmt.Sprintf("%s!%s", r.SheetTitle, start)
	}
	end := fmt.Sprintf("%s%d", columnLetter(r.StartColumn+r.Width-1), r.StartRow+r.Depth)
	return fmt.Sprintf("%s!%s:%s", r.SheetTitle, start, end)
}

// gridRange renders the range as a Sheets API GridRange object.
func (r CellRange) gridRange(sheetID int64) map[string]interface{} {
	return map[string]interface{}{
		"sheetId":          sheetID,
		"startRowIndex":    r.StartRow,
		"endRowIndex":      r.StartRow + r.Depth,
		"startColumnIndex": r.StartColumn,
		"endColumnIndex":   r.StartColumn + r.Width,
	}
}
