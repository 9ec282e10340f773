package attendance

import (
	"errors"
	"testing"
)

func TestParseCardNumber(t *testing.T) {
	valid := map[string]string{
		`{"id":"STU-001"}`:                  "STU-001",
		`{"id":" STU-002 ","mode":"Student"}`: "STU-002",
		`{"id":4417}`:                       "4417",
	}
	for in, want := range valid {
		got, err := ParseCardNumber(in)
		if err != nil {
			t.Errorf("ParseCardNumber(%s): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseCardNumber(%s) = %q, want %q", in, got, want)
		}
	}

	invalid := []string{"STU-001", `"STU-001"`, `{"name":"x"}`, `{"id":""}`, `{"id":true}`, `null`, ``}
	for _, in := range invalid {
		if _, err := ParseCardNumber(in); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("ParseCardNumber(%q) err = %v, want ErrInvalidPayload", in, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, ok := ParseMode("Teacher"); !ok || m != ModeTeacher {
		t.Errorf("ParseMode(Teacher) = %q, %v", m, ok)
	}
	if _, ok := ParseMode("student"); ok {
		t.Error("modes are case sensitive")
	}
}
