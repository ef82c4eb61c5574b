package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/devoll/rhga-schedule-bot/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgInsertBatch = 200

const pgSelectTimetable = `
	SELECT id, course, group_name, date, time, subject, lesson_type, teacher_name, lesson_format, location
	FROM timetable`

// TimetablePGRepository is the Postgres flavour of TimetableRepository.
type TimetablePGRepository struct {
	Pool *pgxpool.Pool
}

func NewTimetablePGRepository(pool *pgxpool.Pool) *TimetablePGRepository {
	return &TimetablePGRepository{Pool: pool}
}

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func (r *TimetablePGRepository) DeleteByGroups(ctx context.Context, groups []string) (int64, error) {
	return pgDeleteGroups(ctx, r.Pool, groups)
}

func (r *TimetablePGRepository) BulkInsert(ctx context.Context, items []models.Timetable) (int64, error) {
	return pgInsertItems(ctx, r.Pool, items)
}

func (r *TimetablePGRepository) ReplaceGroups(ctx context.Context, groups []string, items []models.Timetable) (int64, int64, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	deleted, err := pgDeleteGroups(ctx, tx, groups)
	if err != nil {
		return 0, 0, err
	}
	inserted, err := pgInsertItems(ctx, tx, items)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return deleted, inserted, nil
}

func (r *TimetablePGRepository) FindByGroup(ctx context.Context, group string) ([]models.Timetable, error) {
	rows, err := r.Pool.Query(ctx, pgSelectTimetable+` WHERE group_name = $1 ORDER BY date ASC, time ASC`, group)
	if err != nil {
		return nil, err
	}
	return pgScanTimetable(rows)
}

func (r *TimetablePGRepository) FindEarliestUpcoming(ctx context.Context, today time.Time) ([]models.Timetable, error) {
	sqlQuery := pgSelectTimetable + `
	WHERE date = (SELECT MIN(date) FROM timetable WHERE date >= $1)
	ORDER BY group_name ASC, time ASC`

	rows, err := r.Pool.Query(ctx, sqlQuery, today.UTC())
	if err != nil {
		return nil, err
	}
	return pgScanTimetable(rows)
}

func (r *TimetablePGRepository) GetUniqueGroups(ctx context.Context, pattern string) ([]string, error) {
	rows, err := r.Pool.Query(ctx, "SELECT DISTINCT group_name FROM timetable ORDER BY group_name")
	if err != nil {
		return nil, err
	}
	all, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	normalizedPattern := Normalize(pattern)
	var groups []string
	for _, g := range all {
		if strings.Contains(Normalize(g), normalizedPattern) {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func pgDeleteGroups(ctx context.Context, db pgExecer, groups []string) (int64, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	tag, err := db.Exec(ctx, `DELETE FROM timetable WHERE group_name = ANY($1)`, groups)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func pgInsertItems(ctx context.Context, db pgExecer, items []models.Timetable) (int64, error) {
	var total int64
	for i := 0; i < len(items); i += pgInsertBatch {
		j := i + pgInsertBatch
		if j > len(items) {
			j = len(items)
		}
		b := &pgx.Batch{}
		for _, it := range items[i:j] {
			if it.Date.IsZero() {
				return total, fmt.Errorf("timetable for group %s has no date", it.Group)
			}
			b.Queue(`
				INSERT INTO timetable (course, group_name, date, time, subject, lesson_type, teacher_name, lesson_format, location)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				it.Course, it.Group, it.Date.UTC(), it.Time, it.Subject,
				it.LessonType, it.TeacherName, it.LessonFormat, it.Location,
			)
		}
		br := db.SendBatch(ctx, b)
		for k := 0; k < b.Len(); k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return total, err
			}
			total += tag.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func pgScanTimetable(rows pgx.Rows) ([]models.Timetable, error) {
	defer rows.Close()

	var out []models.Timetable
	for rows.Next() {
		var t models.Timetable
		if err := rows.Scan(&t.ID, &t.Course, &t.Group, &t.Date, &t.Time, &t.Subject,
			&t.LessonType, &t.TeacherName, &t.LessonFormat, &t.Location); err != nil {
			return nil, err
		}
		t.Date = time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(), 0, 0, 0, 0, time.UTC)
		t.DateText = t.Date.Format(time.RFC3339)
		out = append(out, t)
	}
	return out, rows.Err()
}
