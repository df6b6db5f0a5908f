// Package file persists the series, snapshots, backfill results and market
// catalogs as indented JSON under a data directory.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

const (
	seriesFile   = "daily_scores.json"
	snapshotDir  = "top10"
	backfillDir  = "backfills/scores"
	dirPerm      = 0o755
	filePerm     = 0o644
	catalogStamp = "2006-01-02_15-04-05"
)

// Store reads and writes JSON artifacts below a root directory:
//
//	<root>/daily_scores.json
//	<root>/top10/<YYYY-MM-DD>.json
//	<root>/backfills/scores/scores_<label>.json
type Store struct {
	root string
}

// New creates a Store rooted at dir. Directories are created on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

// SeriesPath returns the location of the main series file.
func (s *Store) SeriesPath() string {
	return filepath.Join(s.root, seriesFile)
}

// SnapshotPath returns the location of day's snapshot.
func (s *Store) SnapshotPath(day string) string {
	return filepath.Join(s.root, snapshotDir, day+".json")
}

// LoadSeries reads the series. A missing file is an empty series.
func (s *Store) LoadSeries(_ context.Context) ([]domain.DayScore, error) {
	var out []domain.DayScore
	if err := readJSON(s.SeriesPath(), &out); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.DayScore{}, nil
		}
		return nil, fmt.Errorf("file: load series: %w", err)
	}
	return out, nil
}

// SaveSeries replaces the series file atomically.
func (s *Store) SaveSeries(_ context.Context, series []domain.DayScore) error {
	if series == nil {
		series = []domain.DayScore{}
	}
	if err := writeJSON(s.SeriesPath(), series); err != nil {
		return fmt.Errorf("file: save series: %w", err)
	}
	return nil
}

// LoadSnapshot reads day's snapshot, or returns domain.ErrNotFound.
func (s *Store) LoadSnapshot(_ context.Context, day string) ([]domain.SnapshotEntry, error) {
	var out []domain.SnapshotEntry
	if err := readJSON(s.SnapshotPath(day), &out); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file: snapshot %s: %w", day, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("file: load snapshot %s: %w", day, err)
	}
	return out, nil
}

// SaveSnapshot writes day's snapshot atomically.
func (s *Store) SaveSnapshot(_ context.Context, day string, entries []domain.SnapshotEntry) error {
	if entries == nil {
		entries = []domain.SnapshotEntry{}
	}
	if err := writeJSON(s.SnapshotPath(day), entries); err != nil {
		return fmt.Errorf("file: save snapshot %s: %w", day, err)
	}
	return nil
}

// SaveBackfill writes a backfill result as scores_<label>.json and returns
// its path.
func (s *Store) SaveBackfill(_ context.Context, label string, scores []domain.DayScore) (string, error) {
	path := filepath.Join(s.root, backfillDir, "scores_"+label+".json")
	if scores == nil {
		scores = []domain.DayScore{}
	}
	if err := writeJSON(path, scores); err != nil {
		return "", fmt.Errorf("file: save backfill %s: %w", label, err)
	}
	return path, nil
}

// ReadCatalog loads a catalog previously written by WriteCatalog.
func ReadCatalog(path string) ([]domain.Market, error) {
	var out []domain.Market
	if err := readJSON(path, &out); err != nil {
		return nil, fmt.Errorf("file: read catalog: %w", err)
	}
	return out, nil
}

// WriteCatalog writes markets to path. When path is an existing directory the
// file is named markets_<local timestamp>.json inside it. The final path is
// returned.
func WriteCatalog(path string, markets []domain.Market, now time.Time) (string, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "markets_"+now.Format(catalogStamp)+".json")
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	if err := writeJSON(path, markets); err != nil {
		return "", fmt.Errorf("file: write catalog: %w", err)
	}
	return path, nil
}

// Marshal encodes v the way every artifact is written: two-space indent, no
// HTML escaping, trailing newline.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON writes to a temp file in the target directory and renames it over
// the destination, so readers never observe a half-written file.
func writeJSON(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
