package timetable

import (
	"strings"

	"github.com/devoll/rhga-schedule-bot/internal/models"
)

// Column headers of the timetable sheet. They must match the sheet exactly.
const (
	HeaderCourse       = "Курс"
	HeaderGroup        = "Группа"
	HeaderDate         = "Дата"
	HeaderTime         = "Время"
	HeaderSubject      = "Дисциплина"
	HeaderLessonType   = "Вид занятий"
	HeaderTeacherName  = "ФИО преподавателя"
	HeaderLessonFormat = "Формат проведения занятия"
	HeaderLocation     = "Аудитория/ссылка"
)

// MapRows turns parsed sheet rows into timetable candidates. Rows without a
// teacher are not lessons (headings, breaks, notes) and are dropped; nothing
// else is filtered here.
func MapRows(rows []map[string]string) []models.Timetable {
	items := make([]models.Timetable, 0, len(rows))
	for _, row := range rows {
		item := mapRow(row)
		if item.TeacherName == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}

func mapRow(row map[string]string) models.Timetable {
	get := func(h string) string { return strings.TrimSpace(row[h]) }

	item := models.Timetable{
		Course:       get(HeaderCourse),
		Group:        get(HeaderGroup),
		DateText:     NormalizeDate(get(HeaderDate)),
		Time:         get(HeaderTime),
		Subject:      get(HeaderSubject),
		LessonType:   get(HeaderLessonType),
		TeacherName:  get(HeaderTeacherName),
		LessonFormat: get(HeaderLessonFormat),
		Location:     get(HeaderLocation),
	}
	if d, ok := parseCanonicalDate(item.DateText); ok {
		item.Date = d
	}
	return item
}
