package attendance

import (
	"errors"
	"time"
)

// Mode is who is being marked by a scan.
type Mode string

const (
	ModeStudent Mode = "Student"
	ModeTeacher Mode = "Teacher"
)

// Modes lists the known modes.
var Modes = []Mode{ModeStudent, ModeTeacher}

// ParseMode returns the known mode matching s.
func ParseMode(s string) (Mode, bool) {
	for _, m := range Modes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Status is the attendance status reported back to the scanner.
type Status string

const (
	StatusOnTime  Status = "On Time"
	StatusLate    Status = "Late"
	StatusPresent Status = "Present"
)

var (
	// ErrNotFound means the card number does not belong to any student.
	ErrNotFound = errors.New("student id not found")
	// ErrInvalidPayload means the QR data is not a JSON object with an "id" key.
	ErrInvalidPayload = errors.New(`invalid QR code format, expecting JSON with an "id" key`)
	// ErrInvalidMode means the requested mode is unknown.
	ErrInvalidMode = errors.New("invalid mode specified")
)

// Student is the result of resolving an identity card.
type Student struct {
	ID      int64
	ClassID int64
	Name    string
}

// Row is one stored attendance row.
type Row struct {
	ID        string    `json:"id"`
	StudentID int64     `json:"student_id"`
	ClassID   int64     `json:"class_id"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
	Remark    Status    `json:"remark"`
	ScannedAt time.Time `json:"scanned_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the classifier decision for one scan.
type Outcome struct {
	Mode          Mode
	CardNo        string
	Status        Status
	Created       bool
	AlreadyMarked bool
	Row           *Row
}

// MarkedEvent is published for every newly created attendance row.
type MarkedEvent struct {
	RowID     string    `json:"row_id"`
	StudentID int64     `json:"student_id"`
	ClassID   int64     `json:"class_id"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	ScannedAt time.Time `json:"scanned_at"`
}

const dateLayout = "2006-01-02"
