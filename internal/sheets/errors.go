package sheets

import (
	"fmt"
	"strings"
	"time"
)

// snippetLimit bounds how much of an unparsable payload ends up in errors and logs.
const snippetLimit = 200

// TransportError is returned when the sheet could not be downloaded.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Latency    time.Duration
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError is returned when the payload is not the JSON we expect.
// Snippet holds at most the first 200 characters of the offending text.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse sheet response (start: %q)", e.Snippet)
	}
	return fmt.Sprintf("parse sheet response: %v (start: %q)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// APIError is returned when the endpoint answers with status "error".
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return "google sheets api returned an error: no error details"
	}
	return "google sheets api returned an error: " + strings.Join(e.Messages, ", ")
}

// SheetError attaches the sheet name to any failure of GetSheetData.
type SheetError struct {
	Sheet string
	Err   error
}

func (e *SheetError) Error() string {
	return fmt.Sprintf("load sheet '%s': %v", e.Sheet, e.Err)
}

func (e *SheetError) Unwrap() error { return e.Err }

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= snippetLimit {
		return s
	}
	return string(r[:snippetLimit]) + "..."
}
