package sheets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public spreadsheet root used by the gviz endpoint.
const DefaultBaseURL = "https://docs.google.com/spreadsheets/d"

// DefaultMaxBodyBytes caps a single gviz response.
const DefaultMaxBodyBytes int64 = 32 << 20

// Fetcher downloads the raw gviz response of one sheet.
type Fetcher interface {
	FetchSheet(ctx context.Context, spreadsheetID, sheetName string) (string, error)
}

// ClientOptions configures a Client. Zero values get sane defaults.
type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	RPS       float64 // requests per second towards Google; <= 0 disables the limit
	UserAgent string

	// MaxBodyBytes rejects larger responses; <= 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Client reads public sheets through the gviz JSON endpoint.
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
}

func NewClient(opts ClientOptions) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid sheets base url: %w", err)
	}
	to := opts.Timeout
	if to <= 0 {
		to = 30 * time.Second
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "rhga-schedule-bot/1.0"
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &Client{
		baseURL:   strings.TrimRight(base, "/"),
		client:    &http.Client{Timeout: to},
		limiter:   lim,
		userAgent: ua,
		maxBody:   maxBody,
	}, nil
}

// SheetURL builds the gviz query URL for a sheet name (or gid).
func (c *Client) SheetURL(spreadsheetID, sheetName string) string {
	q := url.Values{}
	q.Set("tqx", "out:json")
	q.Set("sheet", sheetName)
	return c.baseURL + "/" + url.PathEscape(spreadsheetID) + "/gviz/tq?" + q.Encode()
}

// FetchSheet returns the response body untouched. It never retries.
func (c *Client) FetchSheet(ctx context.Context, spreadsheetID, sheetName string) (string, error) {
	u := c.SheetURL(spreadsheetID, sheetName)
	start := time.Now()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &TransportError{URL: u, Latency: time.Since(start), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &TransportError{URL: u, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{URL: u, Latency: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{
			URL:        u,
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Err:        errors.New(resp.Status),
		}
	}
	if err != nil {
		return "", &TransportError{URL: u, StatusCode: resp.StatusCode, Latency: time.Since(start), Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return "", &TransportError{
			URL:     u,
			Latency: time.Since(start),
			Err:     fmt.Errorf("response body exceeds %d bytes", c.maxBody),
		}
	}
	return string(body), nil
}

// GetSheetData fetches, unwraps and parses one sheet.
func GetSheetData(ctx context.Context, f Fetcher, spreadsheetID, sheetName string) (ParseResult, error) {
	raw, err := f.FetchSheet(ctx, spreadsheetID, sheetName)
	if err != nil {
		return ParseResult{}, &SheetError{Sheet: sheetName, Err: err}
	}
	payload, err := Unwrap(raw)
	if err != nil {
		return ParseResult{}, &SheetError{Sheet: sheetName, Err: err}
	}
	res, err := ParseTable(payload)
	if err != nil {
		return ParseResult{}, &SheetError{Sheet: sheetName, Err: err}
	}
	res.Title = sheetName
	return res, nil
}

// GetAllSheetsData loads the sheets one after another. A failing sheet is
// logged and left out of the result.
func GetAllSheetsData(ctx context.Context, f Fetcher, spreadsheetID string, sheetNames []string) []ParseResult {
	results := make([]ParseResult, 0, len(sheetNames))
	for _, name := range sheetNames {
		res, err := GetSheetData(ctx, f, spreadsheetID, name)
		if err != nil {
			log.Printf("Error loading sheet %s: %v", name, err)
			continue
		}
		results = append(results, res)
	}
	return results
}
