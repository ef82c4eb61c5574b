package sheets

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const genericAPIError = "unknown Google Sheets API error"

// ColumnDef is a labelled column of the sheet.
type ColumnDef struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

// ParseResult is a sheet reduced to its labelled columns.
type ParseResult struct {
	Title   string              `json:"title"`
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

type response struct {
	Status string       `json:"status"`
	Errors []errorEntry `json:"errors"`
	Table  *table       `json:"table"`
}

type errorEntry struct {
	Reason          string `json:"reason"`
	Message         string `json:"message"`
	DetailedMessage string `json:"detailed_message"`
}

type table struct {
	Cols []*column `json:"cols"`
	Rows []*row    `json:"rows"`
}

type column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type row struct {
	C []*Cell `json:"c"`
}

// boundColumn is a retained column together with the cell index it reads.
type boundColumn struct {
	ColumnDef
	index int
}

// ParseTable decodes an unwrapped gviz payload.
//
// A response without a table is an empty sheet, not an error. Columns without
// a label are ignored; the rest read their cell by decoded column letter so a
// dropped column never shifts the others.
func ParseTable(payload string) (ParseResult, error) {
	var resp response
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return ParseResult{}, &ParseError{Snippet: snippet(payload), Err: err}
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing data after JSON value")
		}
		return ParseResult{}, &ParseError{Snippet: snippet(payload), Err: err}
	}

	if resp.Status == "error" {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			switch {
			case e.DetailedMessage != "":
				msgs = append(msgs, e.DetailedMessage)
			case e.Message != "":
				msgs = append(msgs, e.Message)
			default:
				msgs = append(msgs, genericAPIError)
			}
		}
		return ParseResult{}, &APIError{Messages: msgs}
	}

	out := ParseResult{Headers: []string{}, Rows: []map[string]string{}}
	if resp.Table == nil {
		return out, nil
	}

	cols := bindColumns(resp.Table.Cols)
	for _, c := range cols {
		out.Headers = append(out.Headers, c.Label)
	}

	for _, r := range resp.Table.Rows {
		var cells []*Cell
		if r != nil {
			cells = r.C
		}
		rec := make(map[string]string, len(cols))
		for _, c := range cols {
			if c.index < 0 || c.index >= len(cells) {
				rec[c.Label] = ""
				continue
			}
			rec[c.Label] = CellValue(cells[c.index])
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

func bindColumns(cols []*column) []boundColumn {
	out := make([]boundColumn, 0, len(cols))
	for pos, c := range cols {
		if c == nil {
			continue
		}
		label := strings.TrimSpace(c.Label)
		if label == "" {
			continue
		}
		idx, ok := DecodeColumnID(c.ID)
		if !ok {
			// gviz always sends letters; fall back to report order otherwise
			idx = pos
		}
		out = append(out, boundColumn{ColumnDef: ColumnDef{Label: label, ID: c.ID}, index: idx})
	}
	return out
}
