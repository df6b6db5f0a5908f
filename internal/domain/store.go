package domain

import "context"

// SeriesStore persists the ordered daily score series.
type SeriesStore interface {
	LoadSeries(ctx context.Context) ([]DayScore, error)
	SaveSeries(ctx context.Context, series []DayScore) error
}

// SnapshotStore persists per-day top-N snapshots keyed by civil day.
// LoadSnapshot returns ErrNotFound when no snapshot exists for the day.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, day string) ([]SnapshotEntry, error)
	SaveSnapshot(ctx context.Context, day string, entries []SnapshotEntry) error
}

// ScoreSink receives computed results for mirroring outside the local files
// (database, object storage, alerts). Sinks never affect the computation.
type ScoreSink interface {
	Name() string
	PublishScores(ctx context.Context, scores []DayScore) error
	PublishSnapshot(ctx context.Context, day string, entries []SnapshotEntry) error
}
