package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/config"
	"github.com/devoll/rhga-schedule-bot/internal/models"
	"github.com/devoll/rhga-schedule-bot/internal/sheets"
	"github.com/devoll/rhga-schedule-bot/internal/timetable"
)

const schedulePayload = `/*O_o*/
google.visualization.Query.setResponse({"version":"0.6","status":"ok","table":{
"cols":[
 {"id":"A","label":"Курс","type":"number"},
 {"id":"B","label":"Группа","type":"string"},
 {"id":"C","label":"Дата","type":"string"},
 {"id":"D","label":"Время","type":"string"},
 {"id":"E","label":"Дисциплина","type":"string"},
 {"id":"F","label":"ФИО преподавателя","type":"string"}
],
"rows":[
 {"c":[{"v":2,"f":"2"},{"v":"ИВТ-21"},{"v":"07.11.24"},{"v":"09:00"},{"v":"Математика"},{"v":"Иванов И.И."}]},
 {"c":[{"v":2},{"v":"ИВТ-21"},{"v":"07.11.24"},{"v":"10:40"},{"v":"Физика"},null]},
 {"c":[{"v":1},{"v":"ПМИ-11"},{"v":"08.11.24"},{"v":"09:00"},{"v":"История"},{"v":"Петров П.П."}]}
]}});`

const emptyPayload = `google.visualization.Query.setResponse({"version":"0.6","status":"ok","table":{"cols":[],"rows":[]}});`

type fakeFetcher map[string]string

func (f fakeFetcher) FetchSheet(_ context.Context, _, sheet string) (string, error) {
	raw, ok := f[sheet]
	if !ok {
		return "", &sheets.TransportError{URL: "https://example.test/" + sheet, StatusCode: 404, Err: errors.New("404 Not Found")}
	}
	return raw, nil
}

type recordingEngine struct {
	mu    sync.Mutex
	calls [][]models.Timetable
	err   error
}

func (e *recordingEngine) OverwriteSchedules(_ context.Context, items []models.Timetable) (models.SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, items)
	if e.err != nil {
		return models.SyncResult{}, e.err
	}
	seen := map[string]bool{}
	res := models.SyncResult{NewCount: int64(len(items)), GroupsAffected: []string{}}
	for _, it := range items {
		if !seen[it.Group] {
			seen[it.Group] = true
			res.GroupsAffected = append(res.GroupsAffected, it.Group)
		}
	}
	return res, nil
}

func testConfig(sheetNames ...string) config.Config {
	var cfg config.Config
	cfg.Google.SpreadsheetID = "sheet-id"
	cfg.Google.DefaultSheet = config.DefaultSheet
	cfg.Google.Sheets = sheetNames
	return cfg
}

func TestSyncSheet(t *testing.T) {
	engine := &recordingEngine{}
	svc := NewService(fakeFetcher{"Лист1": schedulePayload}, engine, testConfig())

	var hooked []Report
	svc.OnSynced = append(svc.OnSynced, func(r Report) { hooked = append(hooked, r) })

	rep, err := svc.SyncSheet(context.Background(), "")
	if err != nil {
		t.Fatalf("SyncSheet: %v", err)
	}
	if rep.Sheet != "Лист1" || rep.SourceRowsFetched != 3 {
		t.Errorf("Unexpected report %+v", rep)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("Expected one overwrite, got %d", len(engine.calls))
	}
	items := engine.calls[0]
	if len(items) != 2 {
		t.Fatalf("Row without teacher must be dropped, got %d items", len(items))
	}
	if items[0].Group != "ИВТ-21" || items[0].Subject != "Математика" || items[0].Course != "2" {
		t.Errorf("Unexpected first item %+v", items[0])
	}
	if items[0].DateText != "2024-11-07T00:00:00Z" {
		t.Errorf("Date not normalized: %q", items[0].DateText)
	}
	if len(hooked) != 1 || hooked[0].Result.NewCount != 2 {
		t.Errorf("OnSynced hook not called with the report: %+v", hooked)
	}
}

func TestSyncSheetEmpty(t *testing.T) {
	engine := &recordingEngine{}
	svc := NewService(fakeFetcher{"Пусто": emptyPayload}, engine, testConfig())
	called := false
	svc.OnSynced = append(svc.OnSynced, func(Report) { called = true })

	rep, err := svc.SyncSheet(context.Background(), "Пусто")
	if err != nil {
		t.Fatalf("SyncSheet: %v", err)
	}
	if len(engine.calls) != 0 || called {
		t.Error("An empty sheet must not touch the store")
	}
	if rep.Message != "No data found or sheet 'Пусто' is empty. Nothing to sync." {
		t.Errorf("Unexpected message %q", rep.Message)
	}
	if rep.Result.GroupsAffected == nil {
		t.Error("GroupsAffected must be an empty list, not nil")
	}
}

func TestSyncSheetErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		fetcher fakeFetcher
		engine  *recordingEngine
		class   string
	}{
		{
			name:    "missing spreadsheet",
			cfg:     config.Config{},
			fetcher: fakeFetcher{},
			engine:  &recordingEngine{},
			class:   "config",
		},
		{
			name:    "transport",
			cfg:     testConfig(),
			fetcher: fakeFetcher{},
			engine:  &recordingEngine{},
			class:   "transport",
		},
		{
			name:    "parse",
			cfg:     testConfig(),
			fetcher: fakeFetcher{"Лист1": "<html>sign in</html>"},
			engine:  &recordingEngine{},
			class:   "parse",
		},
		{
			name:    "api",
			cfg:     testConfig(),
			fetcher: fakeFetcher{"Лист1": `{"status":"error","errors":[{"message":"bad sheet"}]}`},
			engine:  &recordingEngine{},
			class:   "api",
		},
		{
			name:    "store",
			cfg:     testConfig(),
			fetcher: fakeFetcher{"Лист1": schedulePayload},
			engine:  &recordingEngine{err: &timetable.StoreError{Op: "delete", Err: errors.New("disk full")}},
			class:   "store",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.fetcher, tt.engine, tt.cfg)
			_, err := svc.SyncSheet(context.Background(), "")
			if err == nil {
				t.Fatal("Expected an error")
			}
			if got := Classify(err); got != tt.class {
				t.Errorf("Classify = %q, want %q (%v)", got, tt.class, err)
			}
		})
	}
}

func TestSyncAllContinuesAfterFailure(t *testing.T) {
	engine := &recordingEngine{}
	svc := NewService(fakeFetcher{"Лист2": schedulePayload}, engine, testConfig("Лист1", "Лист2"))

	reports, failures := svc.SyncAll(context.Background())
	if len(failures) != 1 || failures[0].Sheet != "Лист1" {
		t.Errorf("Expected Лист1 to fail, got %+v", failures)
	}
	if len(reports) != 1 || reports[0].Sheet != "Лист2" {
		t.Errorf("Expected Лист2 to sync, got %+v", reports)
	}
}

const secondSheetPayload = `google.visualization.Query.setResponse({"version":"0.6","status":"ok","table":{
"cols":[
 {"id":"A","label":"Группа","type":"string"},
 {"id":"B","label":"Дата","type":"string"},
 {"id":"C","label":"Время","type":"string"},
 {"id":"D","label":"Дисциплина","type":"string"},
 {"id":"E","label":"ФИО преподавателя","type":"string"}
],
"rows":[
 {"c":[{"v":"ИВТ-21"},{"v":"09.11.24"},{"v":"12:20"},{"v":"Химия"},{"v":"Сидоров С.С."}]}
]}});`

func TestSyncAllMergesSheetsBeforeOverwrite(t *testing.T) {
	engine := &recordingEngine{}
	fetcher := fakeFetcher{"Лист1": schedulePayload, "Лист2": secondSheetPayload}
	svc := NewService(fetcher, engine, testConfig("Лист1", "Лист2"))
	hooks := 0
	svc.OnSynced = append(svc.OnSynced, func(Report) { hooks++ })

	reports, failures := svc.SyncAll(context.Background())
	if len(failures) != 0 {
		t.Fatalf("Unexpected failures %+v", failures)
	}
	if len(engine.calls) != 1 {
		t.Fatalf("Expected a single overwrite for all sheets, got %d", len(engine.calls))
	}
	var ivt int
	for _, it := range engine.calls[0] {
		if it.Group == "ИВТ-21" {
			ivt++
		}
	}
	if ivt != 2 {
		t.Errorf("ИВТ-21 must keep lessons from both sheets, got %d", ivt)
	}
	if len(reports) != 1 || reports[0].Sheet != "Лист1, Лист2" || reports[0].SourceRowsFetched != 4 {
		t.Errorf("Unexpected reports %+v", reports)
	}
	if hooks != 1 {
		t.Errorf("Expected one OnSynced call, got %d", hooks)
	}
}

func TestSyncAllStoreFailureFailsEverySheet(t *testing.T) {
	engine := &recordingEngine{err: &timetable.StoreError{Op: "insert", Err: errors.New("locked")}}
	fetcher := fakeFetcher{"Лист1": schedulePayload, "Лист2": secondSheetPayload}
	svc := NewService(fetcher, engine, testConfig("Лист1", "Лист2"))

	reports, failures := svc.SyncAll(context.Background())
	if len(reports) != 0 || len(failures) != 2 {
		t.Fatalf("Expected both sheets to fail, got %+v / %+v", reports, failures)
	}
	for _, f := range failures {
		if Classify(f.Err) != "store" {
			t.Errorf("Sheet %s: expected store failure, got %v", f.Sheet, f.Err)
		}
	}
}

func TestClassifyUnknown(t *testing.T) {
	if got := Classify(fmt.Errorf("wrapped: %w", errors.New("boom"))); got != "unknown" {
		t.Errorf("Classify = %q", got)
	}
	if got := Classify(nil); got != "" {
		t.Errorf("Classify(nil) = %q", got)
	}
}

type countingRunner struct {
	mu    sync.Mutex
	runs  int
	panic bool
}

func (r *countingRunner) SyncAll(context.Context) ([]Report, []SheetFailure) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	if r.panic {
		panic("boom")
	}
	return nil, []SheetFailure{{Sheet: "Лист1", Err: &sheets.TransportError{URL: "u", StatusCode: 500}}}
}

func TestSchedulerRunCycleSwallowsFailures(t *testing.T) {
	runner := &countingRunner{}
	s, err := NewScheduler(runner, config.DefaultCron, true)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.RunCycle()

	runner.panic = true
	s.RunCycle()

	if runner.runs != 2 {
		t.Errorf("Expected 2 runs, got %d", runner.runs)
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler(&countingRunner{}, "0 * * * *", false); err == nil {
		t.Error("A five-field spec must be rejected when seconds are required")
	}
}

type slowRunner struct {
	mu     sync.Mutex
	active int
	peak   int
	block  time.Duration
}

func (r *slowRunner) SyncAll(context.Context) ([]Report, []SheetFailure) {
	r.mu.Lock()
	r.active++
	if r.active > r.peak {
		r.peak = r.active
	}
	r.mu.Unlock()

	time.Sleep(r.block)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return nil, nil
}

func TestSchedulerOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for several cron fires")
	}
	tests := []struct {
		name         string
		allowOverlap bool
		check        func(peak int) bool
	}{
		{name: "skip while running", allowOverlap: false, check: func(peak int) bool { return peak == 1 }},
		{name: "overlap allowed", allowOverlap: true, check: func(peak int) bool { return peak >= 2 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &slowRunner{block: 2500 * time.Millisecond}
			s, err := NewScheduler(runner, "* * * * * *", tt.allowOverlap)
			if err != nil {
				t.Fatalf("NewScheduler: %v", err)
			}
			s.Start()
			time.Sleep(3500 * time.Millisecond)
			<-s.Stop().Done()

			runner.mu.Lock()
			peak := runner.peak
			runner.mu.Unlock()
			if !tt.check(peak) {
				t.Errorf("Unexpected peak of concurrent cycles: %d", peak)
			}
		})
	}
}
