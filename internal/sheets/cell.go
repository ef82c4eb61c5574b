package sheets

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Cell is one entry of a gviz row. Empty cells arrive as JSON null and are
// decoded as a nil *Cell.
type Cell struct {
	V any     `json:"v"`
	F *string `json:"f"`
}

// CellValue picks the text shown for a cell: the formatted value when the
// sheet supplies one, else the raw value, else "".
func CellValue(c *Cell) string {
	if c == nil {
		return ""
	}
	if c.F != nil && *c.F != "" {
		return *c.F
	}
	switch v := c.V.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
