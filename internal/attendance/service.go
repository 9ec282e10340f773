package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Store is the persistence the classifier needs.
type Store interface {
	StudentByCard(ctx context.Context, cardNo string) (*Student, error)
	FindRow(ctx context.Context, studentID, classID int64, date string) (*Row, error)
	InsertRow(ctx context.Context, row Row) (Row, bool, error)
}

// Publisher receives newly marked rows. It may be nil.
type Publisher interface {
	PublishMarked(ctx context.Context, evt MarkedEvent) error
}

// Observer records classification outcomes. It may be nil.
type Observer interface {
	ObserveScan(mode Mode, outcome string, elapsed time.Duration)
}

// Schedule is the institution day the classifier measures against.
type Schedule struct {
	Location    *time.Location
	StartOffset time.Duration // since local midnight
	GracePeriod time.Duration
}

// Cutoff returns the last on-time instant for the local calendar day of t.
func (s Schedule) Cutoff(t time.Time) time.Time {
	loc := s.loc()
	local := t.In(loc)
	// wall-clock start, so DST transition days still open at the configured time
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, int(s.StartOffset/time.Second), 0, loc)
	return start.Add(s.GracePeriod)
}

// Day returns the local calendar date of t as YYYY-MM-DD.
func (s Schedule) Day(t time.Time) string {
	return t.In(s.loc()).Format(dateLayout)
}

// Classify returns On Time when t is at or before the cutoff, Late otherwise.
func (s Schedule) Classify(t time.Time) Status {
	if !t.After(s.Cutoff(t)) {
		return StatusOnTime
	}
	return StatusLate
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Service decides whether a scan writes a new attendance row and with which status.
type Service struct {
	store     Store
	schedule  Schedule
	publisher Publisher
	observer  Observer
}

// NewService creates a classifier backed by a store.
func NewService(store Store, schedule Schedule, publisher Publisher, observer Observer) *Service {
	return &Service{store: store, schedule: schedule, publisher: publisher, observer: observer}
}

// Classify resolves one scan. Repeat scans on the same day return the stored
// status with AlreadyMarked set; they are not errors.
func (s *Service) Classify(ctx context.Context, cardNo string, mode Mode, scanTime time.Time) (Outcome, error) {
	start := time.Now()
	out, err := s.classify(ctx, cardNo, mode, scanTime)
	if s.observer != nil {
		s.observer.ObserveScan(mode, outcomeLabel(out, err), time.Since(start))
	}
	return out, err
}

func (s *Service) classify(ctx context.Context, cardNo string, mode Mode, scanTime time.Time) (Outcome, error) {
	switch mode {
	case ModeTeacher:
		// teacher attendance is not tracked yet, every scan succeeds and nothing is written
		return Outcome{Mode: mode, CardNo: cardNo, Status: StatusPresent}, nil
	case ModeStudent:
	default:
		return Outcome{}, ErrInvalidMode
	}

	student, err := s.store.StudentByCard(ctx, cardNo)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup card: %w", err)
	}
	if student == nil {
		return Outcome{}, ErrNotFound
	}

	today := s.schedule.Day(scanTime)
	existing, err := s.store.FindRow(ctx, student.ID, student.ClassID, today)
	if err != nil {
		return Outcome{}, fmt.Errorf("lookup attendance: %w", err)
	}
	if existing != nil {
		return alreadyMarked(mode, cardNo, existing), nil
	}

	status := s.schedule.Classify(scanTime)
	row, created, err := s.store.InsertRow(ctx, Row{
		StudentID: student.ID,
		ClassID:   student.ClassID,
		Date:      today,
		Status:    string(StatusPresent),
		Remark:    status,
		ScannedAt: scanTime,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("save attendance: %w", err)
	}
	if !created {
		// lost the race against a concurrent scan of the same card
		existing, err := s.store.FindRow(ctx, student.ID, student.ClassID, today)
		if err != nil {
			return Outcome{}, fmt.Errorf("lookup attendance: %w", err)
		}
		if existing == nil {
			return Outcome{}, errors.New("attendance row vanished after conflict")
		}
		return alreadyMarked(mode, cardNo, existing), nil
	}

	if s.publisher != nil {
		evt := MarkedEvent{
			RowID:     row.ID,
			StudentID: row.StudentID,
			ClassID:   row.ClassID,
			Date:      row.Date,
			Status:    status,
			ScannedAt: scanTime,
		}
		if err := s.publisher.PublishMarked(ctx, evt); err != nil {
			log.Printf("publish marked event %s failed: %v", row.ID, err)
		}
	}
	return Outcome{Mode: mode, CardNo: cardNo, Status: status, Created: true, Row: &row}, nil
}

func alreadyMarked(mode Mode, cardNo string, row *Row) Outcome {
	status := row.Remark
	if status == "" {
		status = StatusPresent
	}
	return Outcome{Mode: mode, CardNo: cardNo, Status: status, AlreadyMarked: true, Row: row}
}

func outcomeLabel(out Outcome, err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	case err != nil:
		return "error"
	case out.AlreadyMarked:
		return "already_marked"
	case out.Created && out.Status == StatusLate:
		return "late"
	case out.Created:
		return "on_time"
	default:
		return "present"
	}
}
