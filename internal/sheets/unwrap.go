package sheets

import (
	"errors"
	"strings"
)

var errNoObject = errors.New("no JSON object found")

// Unwrap strips whatever text surrounds the JSON object in a gviz response,
// e.g. `google.visualization.Query.setResponse({...});`. Pure JSON input is
// returned as is.
func Unwrap(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", &ParseError{Snippet: snippet(raw), Err: errNoObject}
	}
	end := strings.LastIndexByte(raw, '}')
	if end < start {
		return "", &ParseError{Snippet: snippet(raw), Err: errNoObject}
	}
	return raw[start : end+1], nil
}
