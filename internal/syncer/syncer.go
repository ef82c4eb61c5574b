package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/devoll/rhga-schedule-bot/internal/config"
	"github.com/devoll/rhga-schedule-bot/internal/models"
	"github.com/devoll/rhga-schedule-bot/internal/sheets"
	"github.com/devoll/rhga-schedule-bot/internal/timetable"
)

// ErrNoSheetName is returned when neither a sheet nor a default sheet is known.
var ErrNoSheetName = errors.New("sheet name is not provided and no default is set")

// Overwriter is the part of timetable.Service the sync needs.
type Overwriter interface {
	OverwriteSchedules(ctx context.Context, items []models.Timetable) (models.SyncResult, error)
}

// Report describes one finished sheet sync.
type Report struct {
	Message           string            `json:"message"`
	Sheet             string            `json:"sheet"`
	SourceRowsFetched int               `json:"sourceRowsFetched"`
	Result            models.SyncResult `json:"dbOperations"`
}

// Service pulls one sheet at a time from Google and overwrites the stored
// timetable of the groups found in it.
type Service struct {
	fetcher       sheets.Fetcher
	engine        Overwriter
	spreadsheetID string
	defaultSheet  string
	sheetNames    []string

	// OnSynced corre después de cada sync exitoso que tocó la base.
	OnSynced []func(Report)
}

func NewService(fetcher sheets.Fetcher, engine Overwriter, cfg config.Config) *Service {
	if strings.TrimSpace(cfg.Google.SpreadsheetID) == "" {
		log.Printf("❌ %v", config.ErrNoSpreadsheet)
	}
	return &Service{
		fetcher:       fetcher,
		engine:        engine,
		spreadsheetID: strings.TrimSpace(cfg.Google.SpreadsheetID),
		defaultSheet:  strings.TrimSpace(cfg.Google.DefaultSheet),
		sheetNames:    cfg.SheetNames(),
	}
}

// SheetNames returns the sheets a full cycle walks through.
func (s *Service) SheetNames() []string {
	return append([]string(nil), s.sheetNames...)
}

// SpreadsheetID is the configured spreadsheet, empty when missing.
func (s *Service) SpreadsheetID() string { return s.spreadsheetID }

// DefaultSheet is used when a caller does not name a sheet.
func (s *Service) DefaultSheet() string { return s.defaultSheet }

// SyncSheet runs fetch, parse, map and overwrite for one sheet. An empty
// name selects the default sheet.
func (s *Service) SyncSheet(ctx context.Context, sheetName string) (Report, error) {
	sheet := strings.TrimSpace(sheetName)
	if sheet == "" {
		sheet = s.defaultSheet
	}
	if sheet == "" {
		return Report{}, ErrNoSheetName
	}

	rows, err := s.fetch(ctx, sheet)
	if err != nil {
		return Report{Sheet: sheet}, err
	}
	return s.overwrite(ctx, sheet, rows)
}

// SheetFailure pairs a sheet with the error that stopped its sync.
type SheetFailure struct {
	Sheet string
	Err   error
}

// SyncAll fetches the configured sheets one after another and overwrites the
// store once with the rows of all of them, so a group spread over several
// sheets keeps every lesson. A sheet that cannot be loaded is reported and
// left out; its groups keep their stored records unless another sheet lists
// them.
func (s *Service) SyncAll(ctx context.Context) ([]Report, []SheetFailure) {
	var failures []SheetFailure
	var fetched []string
	var rows []map[string]string
	for _, name := range s.sheetNames {
		sheetRows, err := s.fetch(ctx, name)
		if err != nil {
			failures = append(failures, SheetFailure{Sheet: name, Err: err})
			continue
		}
		fetched = append(fetched, name)
		rows = append(rows, sheetRows...)
	}
	if len(fetched) == 0 {
		return nil, failures
	}

	label := strings.Join(fetched, ", ")
	rep, err := s.overwrite(ctx, label, rows)
	if err != nil {
		for _, name := range fetched {
			failures = append(failures, SheetFailure{Sheet: name, Err: err})
		}
		return nil, failures
	}
	return []Report{rep}, failures
}

func (s *Service) fetch(ctx context.Context, sheet string) ([]map[string]string, error) {
	if s.spreadsheetID == "" {
		return nil, config.ErrNoSpreadsheet
	}
	log.Printf("Starting sync for sheet: '%s' from spreadsheet: %s", sheet, s.spreadsheetID)

	data, err := sheets.GetSheetData(ctx, s.fetcher, s.spreadsheetID, sheet)
	if err != nil {
		return nil, err
	}
	if len(data.Rows) == 0 {
		log.Printf("⚠️  No data found in sheet: '%s' or sheet is empty.", sheet)
		return nil, nil
	}
	log.Printf("Fetched %d rows from sheet: '%s'.", len(data.Rows), sheet)
	return data.Rows, nil
}

func (s *Service) overwrite(ctx context.Context, sheet string, rows []map[string]string) (Report, error) {
	if len(rows) == 0 {
		return Report{
			Message: fmt.Sprintf("No data found or sheet '%s' is empty. Nothing to sync.", sheet),
			Sheet:   sheet,
			Result:  models.SyncResult{GroupsAffected: []string{}},
		}, nil
	}

	items := timetable.MapRows(rows)
	result, err := s.engine.OverwriteSchedules(ctx, items)
	if err != nil {
		return Report{Sheet: sheet, SourceRowsFetched: len(rows)}, err
	}

	log.Printf("✅ Sync completed for sheet: '%s'. New: %d, Deleted: %d, Groups: %s",
		sheet, result.NewCount, result.DeletedCount, strings.Join(result.GroupsAffected, ", "))

	rep := Report{
		Message:           fmt.Sprintf("Successfully synced sheet '%s' to database.", sheet),
		Sheet:             sheet,
		SourceRowsFetched: len(rows),
		Result:            result,
	}
	for _, fn := range s.OnSynced {
		fn(rep)
	}
	return rep, nil
}

// Classify names the kind of failure for logs and API responses.
func Classify(err error) string {
	var te *sheets.TransportError
	var pe *sheets.ParseError
	var ae *sheets.APIError
	var se *timetable.StoreError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, config.ErrNoSpreadsheet), errors.Is(err, ErrNoSheetName):
		return "config"
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &ae):
		return "api"
	case errors.As(err, &se):
		return "store"
	default:
		return "unknown"
	}
}
