package sheets

import "strings"

// valueToExtended classifies a Go value into a Sheets ExtendedValue.
// Booleans map to boolValue, numbers to numberValue, strings with a
// leading "=" to formulaValue, other non-empty strings to stringValue.
// Empty strings and nil produce nil so the cell is left untouched.
func valueToExtended(v interface{}) map[string]interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case bool:
		return map[string]interface{}{"boolValue": val}
	case int:
		return map[string]interface{}{"numberValue": float64(val)}
	case int64:
		return map[string]interface{}{"numberValue": float64(val)}
	case float64:
		return map[string]interface{}{"numberValue": val}
	case float32:
		return map[string]interface{}{"numberValue": float64(val)}
	case string:
		if val == "" {
			return nil
		}
		if strings.HasPrefix(val, "=") {
			return map[string]interface{}{"formulaValue": val}
		}
		return map[string]interface{}{"stringValue": val}
	default:
		return nil
	}
}

// rowsToCellData converts a rectangle of values into RowData objects
// for updateCells/appendCells requests.
func rowsToCellData(rows [][]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		values := make([]map[string]interface{}, 0, len(row))
		for _, v := range row {
			ext := valueToExtended(v)
			if ext == nil {
				values = append(values, map[string]interface{}{})
				continue
			}
			values = append(values, map[string]interface{}{"userEnteredValue": ext})
		}
		out = append(out, map[string]interface{}{"values": values})
	}
	return out
}
