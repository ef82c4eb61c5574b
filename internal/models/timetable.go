package models

import "time"

// Timetable representa una clase del horario de un grupo
type Timetable struct {
	ID           int64     `json:"id"`
	Course       string    `json:"course,omitempty"`
	Group        string    `json:"group"`
	Date         time.Time `json:"date"`    // medianoche UTC; cero si la fecha de la hoja no es válida
	DateText     string    `json:"-"`       // texto original de la celda "Дата"
	Time         string    `json:"time"`    // Ej: "09:00-10:30"
	Subject      string    `json:"subject"`
	LessonType   string    `json:"lesson_type,omitempty"`
	TeacherName  string    `json:"teacher_name,omitempty"`
	LessonFormat string    `json:"lesson_format,omitempty"`
	Location     string    `json:"location,omitempty"` // aula o enlace
}

// Storable reports whether the record carries every field the store requires.
func (t Timetable) Storable() bool {
	return t.Group != "" && !t.Date.IsZero() && t.Time != "" && t.Subject != ""
}

// SyncResult resume una sobrescritura de horarios
type SyncResult struct {
	NewCount       int64    `json:"new_count"`
	DeletedCount   int64    `json:"deleted_count"`
	GroupsAffected []string `json:"groups_affected"`
}
