package calendar

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestWindowIsMidnightAligned(t *testing.T) {
	loc := mustLoc(t)
	day := time.Date(2025, 7, 10, 15, 30, 0, 0, time.UTC)

	w := Window(day, loc)
	if got := w.Start.Format(time.RFC3339); got != "2025-07-10T00:00:00-04:00" {
		t.Fatalf("start=%s", got)
	}
	if w.End.Sub(w.Start) != 24*time.Hour {
		t.Fatalf("window length=%v want 24h", w.End.Sub(w.Start))
	}
	if w.Date() != "2025-07-10" {
		t.Fatalf("date=%s", w.Date())
	}
}

func TestWindowIgnoresProcessLocal(t *testing.T) {
	loc := mustLoc(t)
	// 02:00 UTC on the 11th is still the 10th in New York.
	w := Window(time.Date(2025, 7, 11, 2, 0, 0, 0, time.UTC), loc)
	if w.Date() != "2025-07-10" {
		t.Fatalf("date=%s want 2025-07-10", w.Date())
	}
}

func TestParseDatesSingle(t *testing.T) {
	loc := mustLoc(t)
	days, err := ParseDates([]string{"2025-01-02"}, loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(days) != 1 || days[0].Format("2006-01-02") != "2025-01-02" {
		t.Fatalf("days=%v", days)
	}
	if days[0].Location() != loc {
		t.Fatalf("location=%v", days[0].Location())
	}
}

func TestParseDatesRangeAcrossDST(t *testing.T) {
	loc := mustLoc(t)
	days, err := ParseDates([]string{"2025-03-08", "2025-03-11"}, loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"2025-03-08", "2025-03-09", "2025-03-10", "2025-03-11"}
	if len(days) != len(want) {
		t.Fatalf("len=%d want %d", len(days), len(want))
	}
	for i, d := range days {
		if d.Format("2006-01-02") != want[i] {
			t.Fatalf("days[%d]=%s want %s", i, d.Format("2006-01-02"), want[i])
		}
		if d.Hour() != 0 {
			t.Fatalf("days[%d] hour=%d want 0", i, d.Hour())
		}
	}
}

func TestParseDatesList(t *testing.T) {
	loc := mustLoc(t)
	days, err := ParseDates([]string{"2025-01-05, 2025-01-01"}, loc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(days) != 2 || days[0].Format("2006-01-02") != "2025-01-05" || days[1].Format("2006-01-02") != "2025-01-01" {
		t.Fatalf("days=%v", days)
	}
}

func TestParseDatesInvalid(t *testing.T) {
	loc := mustLoc(t)
	cases := [][]string{
		{"2025-13-01"},
		{"not-a-date"},
		{"2025-01-01,nope"},
		{"2025-01-03", "2025-01-01"},
		{"2025-01-01", "2025-01-02", "2025-01-03"},
		{},
	}
	for _, args := range cases {
		if _, err := ParseDates(args, loc); err == nil {
			t.Fatalf("ParseDates(%v) expected error", args)
		}
	}
}

func TestLabel(t *testing.T) {
	loc := mustLoc(t)
	a, _ := ParseDay("2025-01-01", loc)
	b, _ := ParseDay("2025-01-31", loc)
	if got := Label([]time.Time{a}); got != "2025-01-01" {
		t.Fatalf("label=%s", got)
	}
	if got := Label([]time.Time{a, b}); got != "2025-01-01-2025-01-31" {
		t.Fatalf("label=%s", got)
	}
}
