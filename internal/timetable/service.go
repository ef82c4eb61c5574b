package timetable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/models"
)

// ErrNotFound is returned when nothing is scheduled from today on.
var ErrNotFound = errors.New("no upcoming schedule")

// Store is the persistence the sync engine and the queries run against.
type Store interface {
	DeleteByGroups(ctx context.Context, groups []string) (int64, error)
	BulkInsert(ctx context.Context, items []models.Timetable) (int64, error)
	// FindByGroup orders by date, then time.
	FindByGroup(ctx context.Context, group string) ([]models.Timetable, error)
	// FindEarliestUpcoming returns every record of the smallest date >= today,
	// ordered by group, then time.
	FindEarliestUpcoming(ctx context.Context, today time.Time) ([]models.Timetable, error)
}

// Replacer is implemented by stores that can delete and insert in one transaction.
type Replacer interface {
	ReplaceGroups(ctx context.Context, groups []string, items []models.Timetable) (deleted, inserted int64, err error)
}

// StoreError wraps a failed store operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

type Options struct {
	// Atomic runs delete and insert in one transaction when the store is a Replacer.
	Atomic bool
	// Now is used for "today"; defaults to time.Now.
	Now func() time.Time
}

// Service owns the overwrite sync and the read queries on timetable records.
type Service struct {
	store  Store
	atomic bool
	now    func() time.Time
}

func NewService(store Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, atomic: opts.Atomic, now: now}
}

// OverwriteSchedules replaces every stored record of the groups present in
// items with the storable items of the batch. Groups missing from the batch
// are left alone. Blank group names are never part of GroupsAffected and are
// never deleted.
//
// Unless the service is atomic, delete and insert are separate statements: a
// failing insert leaves the affected groups empty until the next sync.
func (s *Service) OverwriteSchedules(ctx context.Context, items []models.Timetable) (models.SyncResult, error) {
	if len(items) == 0 {
		log.Println("No timetable items provided to overwrite.")
		return models.SyncResult{GroupsAffected: []string{}}, nil
	}

	groups := distinctGroups(items)
	log.Printf("Overwriting schedules for groups: %s", strings.Join(groups, ", "))

	entries := make([]models.Timetable, 0, len(items))
	for _, it := range items {
		if it.Storable() {
			entries = append(entries, it)
		}
	}
	if skipped := len(items) - len(entries); skipped > 0 {
		log.Printf("Skipping %d entries with an invalid date or missing required fields", skipped)
	}

	res := models.SyncResult{GroupsAffected: groups}

	if r, ok := s.store.(Replacer); ok && s.atomic {
		deleted, inserted, err := r.ReplaceGroups(ctx, groups, entries)
		if err != nil {
			return res, &StoreError{Op: "replace", Err: err}
		}
		res.DeletedCount, res.NewCount = deleted, inserted
		log.Printf("Replaced %d old entries with %d new ones in one transaction.", deleted, inserted)
		return res, nil
	}

	deleted, err := s.store.DeleteByGroups(ctx, groups)
	if err != nil {
		return res, &StoreError{Op: "delete", Err: err}
	}
	res.DeletedCount = deleted
	log.Printf("Deleted %d old schedule entries for groups: %s.", deleted, strings.Join(groups, ", "))

	if len(entries) == 0 {
		log.Println("No valid timetable entries to insert after date parsing and filtering.")
		return res, nil
	}

	inserted, err := s.store.BulkInsert(ctx, entries)
	if err != nil {
		return res, &StoreError{Op: "insert", Err: err}
	}
	res.NewCount = inserted
	log.Printf("Inserted %d new schedule entries.", inserted)
	return res, nil
}

// ScheduleForGroup lists a group's records by date and time.
func (s *Service) ScheduleForGroup(ctx context.Context, group string) ([]models.Timetable, error) {
	items, err := s.store.FindByGroup(ctx, strings.TrimSpace(group))
	if err != nil {
		return nil, &StoreError{Op: "find by group", Err: err}
	}
	return items, nil
}

// NextDay returns the earliest date from today (UTC) that has lessons, with
// all of that day's records. ErrNotFound when there is none.
func (s *Service) NextDay(ctx context.Context) (time.Time, []models.Timetable, error) {
	today := dateOnlyUTC(s.now())
	items, err := s.store.FindEarliestUpcoming(ctx, today)
	if err != nil {
		return time.Time{}, nil, &StoreError{Op: "find upcoming", Err: err}
	}
	if len(items) == 0 {
		return time.Time{}, nil, ErrNotFound
	}
	return items[0].Date, items, nil
}

func distinctGroups(items []models.Timetable) []string {
	seen := make(map[string]struct{}, len(items))
	groups := make([]string, 0)
	for _, it := range items {
		if it.Group == "" {
			continue
		}
		if _, ok := seen[it.Group]; ok {
			continue
		}
		seen[it.Group] = struct{}{}
		groups = append(groups, it.Group)
	}
	return groups
}
