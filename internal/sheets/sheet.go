package sheets

import "github.com/tidwall/gjson"

// cell is one grid cell snapshot from the fetched metadata.
type cell struct {
	number    *float64
	str       *string
	boolean   *bool
	formula   *string
	formatted string
}

// Sheet is a read-only grid snapshot of one sheet, taken when the
// spreadsheet metadata was last fetched. Mutations go through the
// owning Spreadsheet's queue.
type Sheet struct {
	ID    int64
	Title string
	grid  [][]cell
}

// newSheetFromJSON parses one sheets[] entry of the metadata payload.
func newSheetFromJSON(doc gjson.Result) *Sheet {
	s := &Sheet{
		ID:    doc.Get("properties.sheetId").Int(),
		Title: doc.Get("properties.title").String(),
	}
	doc.Get("data.0.rowData").ForEach(func(_, row gjson.Result) bool {
		var cells []cell
		row.Get("values").ForEach(func(_, cd gjson.Result) bool {
			c := cell{formatted: cd.Get("formattedValue").String()}
			ev := cd.Get("effectiveValue")
			if v := ev.Get("numberValue"); v.Exists() {
				f := v.Float()
				c.number = &f
			}
			if v := ev.Get("stringValue"); v.Exists() {
				str := v.String()
				c.str = &str
			}
			if v := ev.Get("boolValue"); v.Exists() {
				b := v.Bool()
				c.boolean = &b
			}
			if v := cd.Get("userEnteredValue.formulaValue"); v.Exists() {
				f := v.String()
				c.formula = &f
			}
			cells = append(cells, c)
			return true
		})
		s.grid = append(s.grid, cells)
		return true
	})
	return s
}

// Rows returns the number of rows in the snapshot
func (s *Sheet) Rows() int { return len(s.grid) }

// Columns returns the widest row in the snapshot
func (s *Sheet) Columns() int {
	max := 0
	for _, row := range s.grid {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

func (s *Sheet) at(row, col int) *cell {
	if row < 0 || row >= len(s.grid) {
		return nil
	}
	if col < 0 || col >= len(s.grid[row]) {
		return nil
	}
	return &s.grid[row][col]
}

// Value returns the cell's effective value, preferring number, then
// string, then bool, then formula. Out-of-range and empty cells
// return nil.
func (s *Sheet) Value(row, col int) interface{} {
	c := s.at(row, col)
	if c == nil {
		return nil
	}
	switch {
	case c.number != nil:
		return *c.number
	case c.str != nil:
		return *c.str
	case c.boolean != nil:
		return *c.boolean
	case c.formula != nil:
		return *c.formula
	default:
		return nil
	}
}

// FormattedValue returns the cell's display string, empty when the
// cell is out of range or blank.
func (s *Sheet) FormattedValue(row, col int) string {
	c := s.at(row, col)
	if c == nil {
		return ""
	}
	return c.formatted
}
