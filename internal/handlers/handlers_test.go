package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/auth"
	"github.com/devoll/rhga-schedule-bot/internal/config"
	"github.com/devoll/rhga-schedule-bot/internal/models"
	"github.com/devoll/rhga-schedule-bot/internal/sheets"
	"github.com/devoll/rhga-schedule-bot/internal/syncer"
	"github.com/devoll/rhga-schedule-bot/internal/timetable"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var nov7 = time.Date(2024, 11, 7, 0, 0, 0, 0, time.UTC)

type fakeQueries struct {
	items     []models.Timetable
	err       error
	nextCalls int
}

func (f *fakeQueries) NextDay(context.Context) (time.Time, []models.Timetable, error) {
	if f.err != nil {
		return time.Time{}, nil, f.err
	}
	if len(f.items) == 0 {
		return time.Time{}, nil, timetable.ErrNotFound
	}
	return f.items[0].Date, f.items, nil
}

func (f *fakeQueries) ScheduleForGroup(_ context.Context, group string) ([]models.Timetable, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Timetable
	for _, it := range f.items {
		if it.Group == group {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeQueries) NextDayMessage(ctx context.Context) (string, error) {
	f.nextCalls++
	date, items, err := f.NextDay(ctx)
	if errors.Is(err, timetable.ErrNotFound) {
		return timetable.MsgNoUpcoming, nil
	}
	if err != nil {
		return timetable.MsgQueryFailed, err
	}
	return timetable.FormatDay(date, items), nil
}

func (f *fakeQueries) GroupMessage(ctx context.Context, group string) (string, error) {
	items, err := f.ScheduleForGroup(ctx, group)
	if err != nil {
		return timetable.MsgQueryFailed, err
	}
	return timetable.FormatGroup(group, items), nil
}

type fakeGroups []string

func (g fakeGroups) GetUniqueGroups(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for _, name := range g {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			out = append(out, name)
		}
	}
	return out, nil
}

func sampleQueries() *fakeQueries {
	return &fakeQueries{items: []models.Timetable{
		{Group: "ИВТ-21", Date: nov7, Time: "09:00", Subject: "Математика", TeacherName: "Иванов И.И."},
		{Group: "ИВТ-22", Date: nov7, Time: "10:40", Subject: "Физика", TeacherName: "Петров П.П."},
	}}
}

func TestGetNextDay(t *testing.T) {
	h := NewScheduleHandler(sampleQueries(), fakeGroups{}, time.Minute)
	r := gin.New()
	r.GET("/schedule/next", h.GetNextDay)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule/next", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body struct {
		Date  string             `json:"date"`
		Items []models.Timetable `json:"items"`
		Text  string             `json:"text"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Date != "2024-11-07" || len(body.Items) != 2 {
		t.Errorf("Unexpected body %+v", body)
	}
	if !strings.HasPrefix(body.Text, "Расписание на 07.11.2024:") {
		t.Errorf("Unexpected text %q", body.Text)
	}
}

func TestGetNextDayNotFound(t *testing.T) {
	h := NewScheduleHandler(&fakeQueries{}, fakeGroups{}, time.Minute)
	r := gin.New()
	r.GET("/schedule/next", h.GetNextDay)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule/next", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), timetable.MsgNoUpcoming) {
		t.Errorf("Missing not-found text: %s", w.Body.String())
	}
}

func TestGetGroup(t *testing.T) {
	h := NewScheduleHandler(sampleQueries(), fakeGroups{}, time.Minute)
	r := gin.New()
	r.GET("/schedule/groups/:group", h.GetGroup)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule/groups/"+urlPath("ИВТ-21"), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schedule/groups/"+urlPath("ПМИ-11"), nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown group, got %d", w.Code)
	}
}

func TestScheduleCacheInvalidate(t *testing.T) {
	q := sampleQueries()
	h := NewScheduleHandler(q, fakeGroups{}, time.Minute)
	h.now = func() time.Time { return nov7 }
	ctx := context.Background()

	h.NextDayMessage(ctx)
	h.NextDayMessage(ctx)
	if q.nextCalls != 1 {
		t.Errorf("Second call should hit the cache, got %d queries", q.nextCalls)
	}

	h.Invalidate()
	h.NextDayMessage(ctx)
	if q.nextCalls != 2 {
		t.Errorf("Invalidate must drop the cache, got %d queries", q.nextCalls)
	}
}

func TestScheduleCacheSkipsErrors(t *testing.T) {
	q := &fakeQueries{err: errors.New("db down")}
	h := NewScheduleHandler(q, fakeGroups{}, time.Minute)
	ctx := context.Background()

	msg, err := h.NextDayMessage(ctx)
	if err == nil || msg != timetable.MsgQueryFailed {
		t.Fatalf("Expected failure text, got %q / %v", msg, err)
	}
	q.err = nil
	msg, _ = h.NextDayMessage(ctx)
	if msg == timetable.MsgQueryFailed {
		t.Error("Failures must not be cached")
	}
}

func TestResolveGroup(t *testing.T) {
	h := NewScheduleHandler(sampleQueries(), fakeGroups{"ИВТ-21", "ИВТ-22", "ИВТ-2", "ПМИ-11"}, time.Minute)
	ctx := context.Background()

	tests := []struct {
		input   string
		group   string
		options int
	}{
		{"пми", "ПМИ-11", 0},
		{"ИВТ-2", "ИВТ-2", 0},
		{"ИВТ", "", 3},
		{"XYZ", "", 0},
		{"  ", "", 0},
	}
	for _, tt := range tests {
		group, options, err := h.ResolveGroup(ctx, tt.input)
		if err != nil {
			t.Fatalf("ResolveGroup(%q): %v", tt.input, err)
		}
		if group != tt.group || len(options) != tt.options {
			t.Errorf("ResolveGroup(%q) = %q, %v", tt.input, group, options)
		}
	}
}

type fakeSyncer struct {
	report syncer.Report
	err    error
	sheet  string
	id     string
}

func (f *fakeSyncer) SyncSheet(_ context.Context, sheet string) (syncer.Report, error) {
	f.sheet = sheet
	return f.report, f.err
}

func (f *fakeSyncer) SpreadsheetID() string { return f.id }
func (f *fakeSyncer) DefaultSheet() string  { return config.DefaultSheet }

type staticFetcher map[string]string

func (f staticFetcher) FetchSheet(_ context.Context, _, sheet string) (string, error) {
	if raw, ok := f[sheet]; ok {
		return raw, nil
	}
	return "", &sheets.TransportError{URL: sheet, StatusCode: http.StatusNotFound, Err: errors.New("404")}
}

func TestSyncSheetToDB(t *testing.T) {
	s := &fakeSyncer{id: "id", report: syncer.Report{
		Message: "Successfully synced sheet 'Лист2' to database.",
		Sheet:   "Лист2",
		Result:  models.SyncResult{NewCount: 3, GroupsAffected: []string{"ИВТ-21"}},
	}}
	h := NewAdminHandler(s, staticFetcher{})
	r := gin.New()
	r.POST("/sync/sheet-to-db", h.SyncSheetToDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/sheet-to-db?sheetName="+urlPath("Лист2"), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if s.sheet != "Лист2" {
		t.Errorf("Sheet name not passed through: %q", s.sheet)
	}
	if !strings.Contains(w.Body.String(), `"dbOperations"`) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}

	s.err = &timetable.StoreError{Op: "insert", Err: errors.New("disk full")}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sync/sheet-to-db", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Failed to sync sheet 'Лист1'") || !strings.Contains(w.Body.String(), `"store"`) {
		t.Errorf("Unexpected error body %s", w.Body.String())
	}
}

func TestGetSheetRoutes(t *testing.T) {
	payload := `google.visualization.Query.setResponse({"status":"ok","table":{"cols":[{"id":"A","label":"Группа"}],"rows":[{"c":[{"v":"ИВТ-21"}]}]}});`
	h := NewAdminHandler(&fakeSyncer{id: "id"}, staticFetcher{"Лист1": payload})
	r := gin.New()
	r.GET("/google-sheets/sheet", h.GetSheet)
	r.GET("/google-sheets/all-sheets", h.GetAllSheets)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-sheets/sheet", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var res sheets.ParseResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Title != "Лист1" || len(res.Rows) != 1 || res.Rows[0]["Группа"] != "ИВТ-21" {
		t.Errorf("Unexpected result %+v", res)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-sheets/sheet?sheetName=missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing sheet, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-sheets/all-sheets?sheetNames="+urlPath("Лист1, missing"), nil))
	var all []sheets.ParseResult
	json.Unmarshal(w.Body.Bytes(), &all)
	if len(all) != 1 {
		t.Errorf("Failing sheets must be skipped, got %d results", len(all))
	}
}

func TestGetSheetWithoutSpreadsheet(t *testing.T) {
	h := NewAdminHandler(&fakeSyncer{}, staticFetcher{})
	r := gin.New()
	r.GET("/google-sheets/sheet", h.GetSheet)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/google-sheets/sheet", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.secret")
	if err := auth.CreateFile(path, "admin", "s3cret", false); err != nil {
		t.Fatal(err)
	}
	creds, err := auth.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.POST("/open", AuthMiddleware(auth.Credentials{}), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/closed", AuthMiddleware(creds), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name       string
		path       string
		user, pass string
		want       int
	}{
		{"no auth file", "/open", "", "", http.StatusNoContent},
		{"missing credentials", "/closed", "", "", http.StatusUnauthorized},
		{"wrong password", "/closed", "admin", "nope", http.StatusUnauthorized},
		{"valid", "/closed", "admin", "s3cret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.user != "" {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("Missing WWW-Authenticate header")
			}
		})
	}
}

func urlPath(s string) string {
	return url.PathEscape(s)
}
