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

const (
	MsgNoUpcoming   = "Расписание на ближайшие дни не найдено."
	MsgNoGroupItems = "Для группы %s расписание не найдено."
	MsgQueryFailed  = "Произошла ошибка при получении расписания. Попробуйте позже."
)

// FormatDay renders one day's records grouped by group, in the order given.
func FormatDay(date time.Time, items []models.Timetable) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Расписание на %s:\n\n", FormatDate(date)))

	current := ""
	for i, it := range items {
		if i == 0 || it.Group != current {
			if i > 0 {
				sb.WriteString("\n")
			}
			current = it.Group
			sb.WriteString(fmt.Sprintf("Группа: %s\n", it.Group))
		}
		writeLesson(&sb, it)
	}
	return strings.TrimSpace(sb.String())
}

// FormatGroup renders a group's records with a date line before each day.
func FormatGroup(group string, items []models.Timetable) string {
	if len(items) == 0 {
		return fmt.Sprintf(MsgNoGroupItems, group)
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Группа: %s\n\n", group))

	var day time.Time
	for i, it := range items {
		if i == 0 || !it.Date.Equal(day) {
			day = it.Date
			sb.WriteString(fmt.Sprintf("📅 %s\n", FormatDate(day)))
		}
		writeLesson(&sb, it)
	}
	return strings.TrimSpace(sb.String())
}

func writeLesson(sb *strings.Builder, it models.Timetable) {
	sb.WriteString(strings.Join([]string{
		"🕙 " + it.Time,
		"📖 " + it.Subject,
		"🏷️ " + it.LessonType,
		"👨‍🏫 " + it.TeacherName,
		"📚 " + it.LessonFormat,
		"📌 " + it.Location,
		"---------------------",
		"",
	}, "\n"))
}

// NextDayMessage is the reply for "/next". Missing data and failures become
// explicit texts; the error is returned only for logging.
func (s *Service) NextDayMessage(ctx context.Context) (string, error) {
	date, items, err := s.NextDay(ctx)
	if errors.Is(err, ErrNotFound) {
		log.Println(MsgNoUpcoming)
		return MsgNoUpcoming, nil
	}
	if err != nil {
		return MsgQueryFailed, err
	}
	log.Printf("Found %d entries for %s", len(items), FormatDate(date))
	return FormatDay(date, items), nil
}

// GroupMessage is the reply for a group lookup.
func (s *Service) GroupMessage(ctx context.Context, group string) (string, error) {
	items, err := s.ScheduleForGroup(ctx, group)
	if err != nil {
		return MsgQueryFailed, err
	}
	return FormatGroup(strings.TrimSpace(group), items), nil
}
