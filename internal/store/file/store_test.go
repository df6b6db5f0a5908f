package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

func TestSeriesRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	got, err := s.LoadSeries(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("missing file: got=%v err=%v", got, err)
	}

	series := []domain.DayScore{
		{Time: "2025-01-01", Value: 3.5},
		{Time: "2025-01-02", Value: 9.25, Events: []domain.HighlightEvent{{Title: "Fed cut?", Value: -12.5}}},
	}
	if err := s.SaveSeries(ctx, series); err != nil {
		t.Fatal(err)
	}
	got, err = s.LoadSeries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Events[0].Title != "Fed cut?" || got[0].Events != nil {
		t.Fatalf("got %+v", got)
	}

	raw, err := os.ReadFile(s.SeriesPath())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "\n  {\n    \"time\": \"2025-01-01\"") {
		t.Fatalf("unexpected layout:\n%s", raw)
	}
	if strings.Count(string(raw), "events") != 1 {
		t.Fatalf("events key must be omitted when empty:\n%s", raw)
	}
}

func TestEmptySeriesIsArray(t *testing.T) {
	s := New(t.TempDir())
	if err := s.SaveSeries(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(s.SeriesPath())
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("got %q", raw)
	}
}

func TestSnapshotNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.LoadSnapshot(context.Background(), "2025-01-01")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	change := -4.321
	entries := []domain.SnapshotEntry{
		{ConditionID: "0xabc", TokenID: "1", Question: "Q?", OpenInterest: 1234.5, PriceChange: &change},
		{ConditionID: "0xdef", Question: "No token"},
	}
	if err := s.SaveSnapshot(ctx, "2025-01-01", entries); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadSnapshot(ctx, "2025-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].PriceChange == nil || *got[0].PriceChange != change || got[1].PriceChange != nil {
		t.Fatalf("got %+v", got)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "top10", "2025-01-01.json")); err != nil {
		t.Fatal(err)
	}

	matches, _ := filepath.Glob(filepath.Join(s.Root(), "top10", "*.tmp"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestSaveBackfillPath(t *testing.T) {
	s := New(t.TempDir())
	path, err := s.SaveBackfill(context.Background(), "2025-01-01-2025-01-31", []domain.DayScore{{Time: "2025-01-01"}})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(s.Root(), "backfills", "scores", "scores_2025-01-01-2025-01-31.json")
	if path != want {
		t.Fatalf("path=%s want %s", path, want)
	}
}

func TestWriteCatalogIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 7, 10, 16, 35, 52, 0, time.UTC)
	markets := []domain.Market{{ConditionID: "c", Question: "Q & A <ok>", EventIDs: []string{"1"}}}

	path, err := WriteCatalog(dir, markets, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "markets_2025-07-10_16-35-52.json" {
		t.Fatalf("path=%s", path)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "Q & A <ok>") {
		t.Fatalf("html escaped:\n%s", raw)
	}

	got, err := ReadCatalog(path)
	if err != nil || len(got) != 1 || got[0].EventIDs[0] != "1" {
		t.Fatalf("got=%+v err=%v", got, err)
	}
}
