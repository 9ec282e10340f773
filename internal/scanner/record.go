package scanner

import (
	"time"

	"qrattendance/internal/attendance"
)

// SyncStatus tracks a record's round trip to the server.
type SyncStatus string

const (
	Syncing SyncStatus = "syncing"
	Synced  SyncStatus = "synced"
	Failed  SyncStatus = "error"
)

// Record is one scan as shown in the session log.
type Record struct {
	ID               string            `json:"id"`
	DecodedText      string            `json:"decodedText"`
	Mode             attendance.Mode   `json:"mode"`
	Timestamp        time.Time         `json:"timestamp"`
	SyncStatus       SyncStatus        `json:"syncStatus"`
	SyncMessage      string            `json:"syncMessage,omitempty"`
	AttendanceStatus attendance.Status `json:"attendanceStatus,omitempty"`
}

// RecordID builds the list key for a scan: decoded text plus capture time.
// It is unique within a session, not globally.
func RecordID(text string, at time.Time) string {
	return text + "-" + at.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Action is a reducer input keyed by record id.
type Action struct {
	Kind             ActionKind
	Record           Record // for Created
	ID               string
	Message          string
	AttendanceStatus attendance.Status
}

// ActionKind enumerates record transitions.
type ActionKind int

const (
	// Created prepends a new syncing record.
	Created ActionKind = iota
	// Accepted moves syncing → synced.
	Accepted
	// Rejected moves syncing → error.
	Rejected
)

// Reduce applies one action to the most-recent-first record list and returns
// the new list. The input slice is not modified.
//
//	Created:  (absent)  → syncing
//	Accepted: syncing   → synced
//	Rejected: syncing   → error
//
// Actions on a record already in a terminal state, or on an unknown id, are
// no-ops.
func Reduce(records []Record, a Action) []Record {
	switch a.Kind {
	case Created:
		for _, r := range records {
			if r.ID == a.Record.ID {
				return records
			}
		}
		rec := a.Record
		rec.SyncStatus = Syncing
		out := make([]Record, 0, len(records)+1)
		out = append(out, rec)
		return append(out, records...)
	case Accepted, Rejected:
		for i, r := range records {
			if r.ID != a.ID {
				continue
			}
			if r.SyncStatus != Syncing {
				return records
			}
			out := make([]Record, len(records))
			copy(out, records)
			r.SyncMessage = a.Message
			if a.Kind == Accepted {
				r.SyncStatus = Synced
				r.AttendanceStatus = a.AttendanceStatus
			} else {
				r.SyncStatus = Failed
			}
			out[i] = r
			return out
		}
	}
	return records
}
