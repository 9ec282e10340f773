package store

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id         BIGINT PRIMARY KEY,
		class_id   BIGINT NOT NULL,
		name       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS id_cards (
		id_card_no TEXT PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id         UUID PRIMARY KEY,
		student_id BIGINT NOT NULL REFERENCES students(id),
		class_id   BIGINT NOT NULL,
		att_date   DATE NOT NULL,
		status     TEXT NOT NULL,
		remark     TEXT NOT NULL,
		scanned_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, class_id, att_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(att_date)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id         INTEGER PRIMARY KEY,
		class_id   INTEGER NOT NULL,
		name       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS id_cards (
		id_card_no TEXT PRIMARY KEY,
		student_id INTEGER NOT NULL REFERENCES students(id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id         TEXT PRIMARY KEY,
		student_id INTEGER NOT NULL REFERENCES students(id),
		class_id   INTEGER NOT NULL,
		att_date   TEXT NOT NULL,
		status     TEXT NOT NULL,
		remark     TEXT NOT NULL,
		scanned_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (student_id, class_id, att_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(att_date)`,
}

// Migrate creates the card, student and attendance tables if missing.
func (d *DB) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if d.Driver == DriverSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
