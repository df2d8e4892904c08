package hours

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseForms(t *testing.T) {
	want := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
	}{
		{"rfc3339", "2026-08-28T10:00:00Z"},
		{"rfc3339 with offset", "2026-08-28T12:00:00+02:00"},
		{"iso without zone", "2026-08-28T10:00:00"},
		{"space separated", "2026-08-28 10:00:00"},
		{"epoch seconds int", int64(1787911200)},
		{"epoch seconds float", float64(1787911200)},
		{"epoch milliseconds", int64(1787911200000)},
		{"json number", json.Number("1787911200")},
		{"native time", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.value)
			if !ok {
				t.Fatalf("Parse(%v) failed", tt.value)
			}
			if !got.Equal(want) {
				t.Errorf("Parse(%v) = %v, want %v", tt.value, got, want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	values := []any{
		nil,
		"",
		"yesterday",
		float64(0),
		float64(-1),
		time.Time{},
		struct{}{},
	}

	for _, v := range values {
		if _, ok := Parse(v); ok {
			t.Errorf("Parse(%#v) unexpectedly succeeded", v)
		}
	}
}

func TestParseAlwaysUTC(t *testing.T) {
	got, ok := Parse("2026-08-28T12:00:00+02:00")
	if !ok {
		t.Fatal("parse failed")
	}
	if got.Location() != time.UTC {
		t.Errorf("expected UTC, got %v", got.Location())
	}
}

func TestDurationHours(t *testing.T) {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if got := DurationHours(start, start.Add(90*time.Minute)); got != 1.5 {
		t.Errorf("got %v, want 1.5", got)
	}
}
