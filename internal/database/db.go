package database

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB inicializa la conexión SQLite y crea la tabla timetable si no existe
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Fechas como TEXT YYYY-MM-DD: el orden lexicográfico es el cronológico
	sqlStmt := `
	CREATE TABLE IF NOT EXISTS timetable (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course TEXT NOT NULL DEFAULT '',
		group_name TEXT NOT NULL,
		date TEXT NOT NULL,
		time TEXT NOT NULL,
		subject TEXT NOT NULL,
		lesson_type TEXT NOT NULL DEFAULT '',
		teacher_name TEXT NOT NULL DEFAULT '',
		lesson_format TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	CREATE INDEX IF NOT EXISTS idx_timetable_group_date ON timetable (group_name, date, time);
	CREATE INDEX IF NOT EXISTS idx_timetable_date ON timetable (date);
	`
	_, err = db.Exec(sqlStmt)
	if err != nil {
		log.Printf("%q: %s\n", err, sqlStmt)
		db.Close()
		return nil, err
	}

	return db, nil
}
