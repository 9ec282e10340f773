package scanner

import (
	"context"
	"strings"
	"testing"
	"time"

	"qrattendance/internal/attendance"
)

func TestRecordID(t *testing.T) {
	at := time.Date(2024, 1, 2, 14, 40, 11, 123_000_000, time.FixedZone("IST", 5*3600+1800))
	got := RecordID("STU-001", at)
	want := "STU-001-2024-01-02T09:10:11.123Z"
	if got != want {
		t.Fatalf("RecordID = %q, want %q", got, want)
	}
}

func TestReduceTransitions(t *testing.T) {
	a := Record{ID: "a", DecodedText: "a"}
	b := Record{ID: "b", DecodedText: "b"}

	recs := Reduce(nil, Action{Kind: Created, Record: a})
	recs = Reduce(recs, Action{Kind: Created, Record: b})
	if len(recs) != 2 || recs[0].ID != "b" || recs[1].SyncStatus != Syncing {
		t.Fatalf("created = %+v", recs)
	}

	before := recs
	recs = Reduce(recs, Action{Kind: Accepted, ID: "a", Message: "ok", AttendanceStatus: attendance.StatusLate})
	if before[1].SyncStatus != Syncing {
		t.Fatal("input slice modified")
	}
	if recs[1].SyncStatus != Synced || recs[1].AttendanceStatus != attendance.StatusLate || recs[1].SyncMessage != "ok" {
		t.Fatalf("resolved = %+v", recs[1])
	}

	// terminal states ignore later transitions
	recs = Reduce(recs, Action{Kind: Rejected, ID: "a", Message: "late error"})
	if recs[1].SyncStatus != Synced || recs[1].SyncMessage != "ok" {
		t.Fatalf("terminal record changed: %+v", recs[1])
	}

	recs = Reduce(recs, Action{Kind: Rejected, ID: "b", Message: "Student ID not found."})
	if recs[0].SyncStatus != Failed || recs[0].AttendanceStatus != "" {
		t.Fatalf("rejected = %+v", recs[0])
	}

	same := Reduce(recs, Action{Kind: Accepted, ID: "missing"})
	if len(same) != 2 {
		t.Fatalf("unknown id changed list: %+v", same)
	}
	dup := Reduce(recs, Action{Kind: Created, Record: a})
	if len(dup) != 2 {
		t.Fatalf("duplicate id prepended: %+v", dup)
	}
}

func TestResolveMode(t *testing.T) {
	cases := []struct {
		text     string
		selected attendance.Mode
		want     attendance.Mode
	}{
		{`{"id":"STU-001"}`, attendance.ModeStudent, attendance.ModeStudent},
		{`{"id":"T-1","mode":"Teacher"}`, attendance.ModeStudent, attendance.ModeTeacher},
		{`{"id":"S-1","mode":"Student"}`, attendance.ModeTeacher, attendance.ModeStudent},
		{`{"id":"X","mode":"Visitor"}`, attendance.ModeTeacher, attendance.ModeTeacher},
		{`{"id":"X","mode":7}`, attendance.ModeStudent, attendance.ModeStudent},
		{`plain text`, attendance.ModeTeacher, attendance.ModeTeacher},
		{`["mode","Teacher"]`, attendance.ModeStudent, attendance.ModeStudent},
		{``, attendance.ModeStudent, attendance.ModeStudent},
	}
	for _, tc := range cases {
		if got := ResolveMode(tc.text, tc.selected); got != tc.want {
			t.Errorf("ResolveMode(%q, %s) = %s, want %s", tc.text, tc.selected, got, tc.want)
		}
	}
}

func TestLineDecoder(t *testing.T) {
	dec := NewLineDecoder(strings.NewReader("STU-001\n\n  \nSTU-002\nSTU-002\n\nSTU-003\n"))
	var (
		decoded []string
		errs    []string
	)
	err := dec.Run(context.Background(), func(text string, _ time.Time) {
		decoded = append(decoded, text)
		if text == "STU-002" {
			dec.Pause()
			time.AfterFunc(50*time.Millisecond, dec.Resume)
		}
	}, func(msg string) {
		errs = append(errs, msg)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// the repeat read while paused is dropped, the next card waits for resume
	want := []string{"STU-001", "STU-002", "STU-003"}
	if strings.Join(decoded, ",") != strings.Join(want, ",") {
		t.Fatalf("decoded = %v, want %v", decoded, want)
	}
	if len(errs) != 2 || errs[0] != NoCodeFound {
		t.Fatalf("errors = %v", errs)
	}
}

func TestLineDecoderStopsWhileHeld(t *testing.T) {
	dec := NewLineDecoder(strings.NewReader("STU-001\nSTU-002\n"))
	ctx, cancel := context.WithCancel(context.Background())
	var decoded []string
	err := dec.Run(ctx, func(text string, _ time.Time) {
		decoded = append(decoded, text)
		dec.Pause()
		time.AfterFunc(20*time.Millisecond, cancel)
	}, nil)
	if err != context.Canceled {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("decoded = %v", decoded)
	}
}
