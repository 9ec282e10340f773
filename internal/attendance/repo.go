package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"qrattendance/internal/store"
)

// Repository persists attendance rows and resolves identity cards.
type Repository struct {
	db     *sql.DB
	driver string
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db.Client, driver: db.Driver}
}

func (r *Repository) q(query string) string {
	return store.Rebind(r.driver, query)
}

// StudentByCard resolves a card number to its student and class.
func (r *Repository) StudentByCard(ctx context.Context, cardNo string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, r.q(`
		SELECT s.id, s.class_id, s.name
		FROM students s
		JOIN id_cards ic ON s.id = ic.student_id
		WHERE ic.id_card_no = $1
	`), cardNo)
	var st Student
	if err := row.Scan(&st.ID, &st.ClassID, &st.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// FindRow returns the attendance row for a student, class and day, or nil.
func (r *Repository) FindRow(ctx context.Context, studentID, classID int64, date string) (*Row, error) {
	row := r.db.QueryRowContext(ctx, r.q(`
		SELECT id, student_id, class_id, status, remark, scanned_at, created_at
		FROM attendance
		WHERE student_id = $1 AND class_id = $2 AND att_date = $3
	`), studentID, classID, date)
	out := Row{Date: date}
	if err := row.Scan(&out.ID, &out.StudentID, &out.ClassID, &out.Status, &out.Remark, &out.ScannedAt, &out.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// InsertRow writes a row unless one already exists for the same student, class
// and day. The boolean reports whether the row was written.
func (r *Repository) InsertRow(ctx context.Context, row Row) (Row, bool, error) {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, r.q(`
		INSERT INTO attendance (id, student_id, class_id, att_date, status, remark, scanned_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, class_id, att_date) DO NOTHING
	`), row.ID, row.StudentID, row.ClassID, row.Date, row.Status, string(row.Remark), row.ScannedAt.UTC(), row.CreatedAt)
	if err != nil {
		return Row{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Row{}, false, err
	}
	return row, n == 1, nil
}

// ListFilter narrows ListRows.
type ListFilter struct {
	Date    string
	ClassID int64
	Limit   int
	Offset  int
}

// ListRows returns attendance rows, newest scan first.
func (r *Repository) ListRows(ctx context.Context, f ListFilter) ([]Row, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, student_id, class_id, CAST(att_date AS TEXT), status, remark, scanned_at, created_at FROM attendance`
	args := []any{}
	clauses := []string{}
	if f.Date != "" {
		clauses = append(clauses, "att_date = $"+itoa(len(args)+1))
		args = append(args, f.Date)
	}
	if f.ClassID != 0 {
		clauses = append(clauses, "class_id = $"+itoa(len(args)+1))
		args = append(args, f.ClassID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY scanned_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.StudentID, &row.ClassID, &row.Date, &row.Status, &row.Remark, &row.ScannedAt, &row.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// CountByRemark tallies the rows of one day by remark.
func (r *Repository) CountByRemark(ctx context.Context, date string) (map[Status]int, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT remark, COUNT(*) FROM attendance WHERE att_date = $1 GROUP BY remark
	`), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Status]int{}
	for rows.Next() {
		var remark string
		var n int
		if err := rows.Scan(&remark, &n); err != nil {
			return nil, err
		}
		out[Status(remark)] = n
	}
	return out, rows.Err()
}

// RegisterCard links a card to a student, creating the student if needed.
// Enrolment lives in the host system; this is used by seed tooling and tests.
func (r *Repository) RegisterCard(ctx context.Context, cardNo string, st Student) error {
	if cardNo == "" || st.ID == 0 {
		return errors.New("card number and student id required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO students (id, class_id, name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET class_id = EXCLUDED.class_id, name = EXCLUDED.name
	`), st.ID, st.ClassID, st.Name); err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.q(`
		INSERT INTO id_cards (id_card_no, student_id) VALUES ($1, $2)
		ON CONFLICT (id_card_no) DO UPDATE SET student_id = EXCLUDED.student_id
	`), cardNo, st.ID); err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	return tx.Commit()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }
