package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/models"
)

const dateLayout = "2006-01-02"

const selectTimetable = `
	SELECT id, COALESCE(course, ''), group_name, date, time, subject,
		COALESCE(lesson_type, ''), COALESCE(teacher_name, ''),
		COALESCE(lesson_format, ''), COALESCE(location, '')
	FROM timetable`

type TimetableRepository struct {
	DB *sql.DB
}

func NewTimetableRepository(db *sql.DB) *TimetableRepository {
	return &TimetableRepository{DB: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (r *TimetableRepository) DeleteByGroups(ctx context.Context, groups []string) (int64, error) {
	return deleteGroups(ctx, r.DB, groups)
}

// BulkInsert writes all items in one transaction.
func (r *TimetableRepository) BulkInsert(ctx context.Context, items []models.Timetable) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	n, err := insertItems(ctx, tx, items)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// ReplaceGroups deletes the groups and inserts items in a single transaction.
func (r *TimetableRepository) ReplaceGroups(ctx context.Context, groups []string, items []models.Timetable) (int64, int64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	deleted, err := deleteGroups(ctx, tx, groups)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	inserted, err := insertItems(ctx, tx, items)
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return deleted, inserted, nil
}

func (r *TimetableRepository) FindByGroup(ctx context.Context, group string) ([]models.Timetable, error) {
	rows, err := r.DB.QueryContext(ctx, selectTimetable+` WHERE group_name = ? ORDER BY date ASC, time ASC`, group)
	if err != nil {
		return nil, err
	}
	return scanTimetable(rows)
}

func (r *TimetableRepository) FindEarliestUpcoming(ctx context.Context, today time.Time) ([]models.Timetable, error) {
	sqlQuery := selectTimetable + `
	WHERE date = (SELECT MIN(date) FROM timetable WHERE date >= ?)
	ORDER BY group_name ASC, time ASC`

	rows, err := r.DB.QueryContext(ctx, sqlQuery, today.UTC().Format(dateLayout))
	if err != nil {
		return nil, err
	}
	return scanTimetable(rows)
}

// GetUniqueGroups returns the stored groups whose name loosely contains pattern.
func (r *TimetableRepository) GetUniqueGroups(ctx context.Context, pattern string) ([]string, error) {
	// Fetch ALL distinct groups, then filter in Go
	rows, err := r.DB.QueryContext(ctx, "SELECT DISTINCT group_name FROM timetable ORDER BY group_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	normalizedPattern := Normalize(pattern)

	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		if strings.Contains(Normalize(g), normalizedPattern) {
			groups = append(groups, g)
		}
	}
	return groups, rows.Err()
}

func deleteGroups(ctx context.Context, db execer, groups []string) (int64, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(groups)), ",")
	args := make([]any, len(groups))
	for i, g := range groups {
		args[i] = g
	}
	res, err := db.ExecContext(ctx, "DELETE FROM timetable WHERE group_name IN ("+placeholders+")", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func insertItems(ctx context.Context, db execer, items []models.Timetable) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO timetable (course, group_name, date, time, subject, lesson_type, teacher_name, lesson_format, location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var n int64
	for _, it := range items {
		if it.Date.IsZero() {
			return n, fmt.Errorf("timetable for group %s has no date", it.Group)
		}
		if _, err := stmt.ExecContext(ctx,
			it.Course, it.Group, it.Date.UTC().Format(dateLayout), it.Time, it.Subject,
			it.LessonType, it.TeacherName, it.LessonFormat, it.Location,
		); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func scanTimetable(rows *sql.Rows) ([]models.Timetable, error) {
	defer rows.Close()

	var out []models.Timetable
	for rows.Next() {
		var t models.Timetable
		var date string
		if err := rows.Scan(&t.ID, &t.Course, &t.Group, &date, &t.Time, &t.Subject,
			&t.LessonType, &t.TeacherName, &t.LessonFormat, &t.Location); err != nil {
			return nil, err
		}
		d, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("timetable %d: bad stored date %q: %w", t.ID, date, err)
		}
		t.Date = d
		t.DateText = d.Format(time.RFC3339)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Helper for loose matching (case-insensitive, ё as е, no spaces or dashes)
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(
		"ё", "е", " ", "", "-", "", "_", "",
	)
	return r.Replace(s)
}
