package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/calendar"
	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/ranking"
	"github.com/alanyoungcy/polyvol/internal/scoring"
)

// CatalogSource loads the market catalog.
type CatalogSource interface {
	Load(ctx context.Context, activeOnly bool) []domain.Market
}

// SeriesPublisher is implemented by sinks that mirror the whole series, not
// only the points that changed.
type SeriesPublisher interface {
	PublishSeries(ctx context.Context, series []domain.DayScore) error
}

// HourlyDeps groups the collaborators of an hourly refresh. Lock and Sinks
// are optional.
type HourlyDeps struct {
	Catalog   CatalogSource
	Ranker    scoring.TopRanker
	Prices    scoring.ChangeSource
	Snapshots domain.SnapshotStore
	Series    domain.SeriesStore
	Lock      domain.LockManager
	Sinks     []domain.ScoreSink
}

// lockTTL bounds how long a crashed run can block the next one.
const lockTTL = 30 * time.Minute

// RankAt selects the instant the day's snapshot is ranked at.
type RankAt string

const (
	// RankAtDayStart ranks at the civil day's start, like the backfill.
	RankAtDayStart RankAt = "day_start"
	// RankAtNow ranks at the instant of the run that creates the snapshot.
	RankAtNow RankAt = "now"
)

// ParseRankAt validates a configured ranking instant. Empty means day_start.
func ParseRankAt(s string) (RankAt, error) {
	switch RankAt(s) {
	case "", RankAtDayStart:
		return RankAtDayStart, nil
	case RankAtNow:
		return RankAtNow, nil
	default:
		return "", fmt.Errorf("series: unknown rank instant %q", s)
	}
}

// HourlyOption customises an Hourly.
type HourlyOption func(*Hourly)

// WithRankAt selects the snapshot ranking instant.
func WithRankAt(r RankAt) HourlyOption {
	return func(h *Hourly) {
		if r != "" {
			h.rankAt = r
		}
	}
}

// Hourly refreshes today's point of the series from today's snapshot.
type Hourly struct {
	deps   HourlyDeps
	loc    *time.Location
	opts   scoring.Options
	rankAt RankAt
	logger *slog.Logger
}

// NewHourly creates an Hourly refresher. opts.Fidelity is the hourly bucket
// width, which may differ from the backfill's.
func NewHourly(deps HourlyDeps, loc *time.Location, opts scoring.Options, logger *slog.Logger, options ...HourlyOption) *Hourly {
	h := &Hourly{
		deps:   deps,
		loc:    loc,
		opts:   opts,
		rankAt: RankAtDayStart,
		logger: logger.With(slog.String("component", "hourly")),
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// Run recomputes the score of now's civil day. The day's top-N snapshot is
// created on first use by ranking the active catalog at the day's start (or
// at now, see WithRankAt) and is then reused, so membership stays fixed for
// the whole day. Each member's change is measured from the day start to now,
// written back onto the snapshot, and the resulting point replaces or
// extends the series tail.
//
// An empty ranking is not persisted, so a later run ranks again.
// Run returns domain.ErrNoData when the snapshot is empty and
// domain.ErrLockHeld when another run for the same day is in progress.
func (h *Hourly) Run(ctx context.Context, now time.Time) (domain.DayScore, error) {
	dayStart := calendar.StartOfDay(now, h.loc)
	date := dayStart.Format(domain.DateLayout)
	logger := h.logger.With(slog.String("date", date))

	if h.deps.Lock != nil {
		unlock, err := h.deps.Lock.Acquire(ctx, "hourly:"+date, lockTTL)
		if err != nil {
			return domain.DayScore{}, fmt.Errorf("series: hourly lock: %w", err)
		}
		defer unlock()
	}

	rankAt := dayStart
	if h.rankAt == RankAtNow {
		rankAt = now
	}
	entries, err := h.loadOrCreateSnapshot(ctx, date, rankAt, logger)
	if err != nil {
		return domain.DayScore{}, err
	}
	if len(entries) == 0 {
		logger.Warn("snapshot empty, nothing to score")
		return domain.DayScore{}, fmt.Errorf("series: hourly %s: %w", date, domain.ErrNoData)
	}

	members := make([]scoring.Member, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		m := scoring.Member{
			ConditionID:  e.ConditionID,
			TokenID:      e.TokenID,
			Question:     e.Question,
			OpenInterest: e.OpenInterest,
		}
		if e.TokenID == "" {
			logger.Warn("snapshot member missing token id", slog.Int("rank", i+1), slog.String("condition_id", e.ConditionID))
			members = append(members, m)
			continue
		}
		m.Change = h.deps.Prices.Change(ctx, e.TokenID, dayStart, now, h.opts.Fidelity)
		m.Measured = true
		rounded := scoring.Round(m.Change, h.opts.Decimals)
		e.PriceChange = &rounded
		members = append(members, m)
	}

	if err := h.deps.Snapshots.SaveSnapshot(ctx, date, entries); err != nil {
		return domain.DayScore{}, fmt.Errorf("series: save snapshot %s: %w", date, err)
	}

	value, events := scoring.Summarize(members, h.opts.Thresholds)
	score := scoring.NewDayScore(date, value, events, h.opts.Decimals)

	current, err := h.deps.Series.LoadSeries(ctx)
	if err != nil {
		return domain.DayScore{}, fmt.Errorf("series: load series: %w", err)
	}
	updated := UpsertTail(current, score)
	if err := h.deps.Series.SaveSeries(ctx, updated); err != nil {
		return domain.DayScore{}, fmt.Errorf("series: save series: %w", err)
	}

	logger.Info("hourly score written",
		slog.Float64("value", score.Value),
		slog.Int("events", len(score.Events)),
		slog.Int("members", len(members)),
	)

	Publish(ctx, h.deps.Sinks, []domain.DayScore{score}, updated, logger)
	PublishSnapshot(ctx, h.deps.Sinks, date, entries, logger)
	return score, nil
}

func (h *Hourly) loadOrCreateSnapshot(ctx context.Context, date string, rankAt time.Time, logger *slog.Logger) ([]domain.SnapshotEntry, error) {
	entries, err := h.deps.Snapshots.LoadSnapshot(ctx, date)
	if err == nil {
		return entries, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("series: load snapshot %s: %w", date, err)
	}

	logger.Info("no snapshot for today, creating it")
	markets := h.deps.Catalog.Load(ctx, true)
	top := h.deps.Ranker.Top(ctx, ranking.Query{Markets: markets, At: rankAt, N: h.opts.TopN})
	if len(top) == 0 {
		return nil, nil
	}

	byID := domain.IndexByCondition(markets)
	entries = make([]domain.SnapshotEntry, 0, len(top))
	for _, e := range top {
		m := byID[e.MarketID]
		entries = append(entries, domain.SnapshotEntry{
			ConditionID:  e.MarketID,
			TokenID:      m.TokenID,
			Question:     m.Question,
			OpenInterest: e.Amount,
		})
	}

	if err := h.deps.Snapshots.SaveSnapshot(ctx, date, entries); err != nil {
		return nil, fmt.Errorf("series: save snapshot %s: %w", date, err)
	}
	logger.Info("snapshot created", slog.Int("members", len(entries)))
	return entries, nil
}

// Publish mirrors changed points to every sink, and the full series to
// sinks implementing SeriesPublisher. Sink failures are logged only.
func Publish(ctx context.Context, sinks []domain.ScoreSink, changed, full []domain.DayScore, logger *slog.Logger) {
	for _, s := range sinks {
		if err := s.PublishScores(ctx, changed); err != nil {
			logger.Error("sink publish scores failed", slog.String("sink", s.Name()), slog.String("error", err.Error()))
		}
		sp, ok := s.(SeriesPublisher)
		if !ok || full == nil {
			continue
		}
		if err := sp.PublishSeries(ctx, full); err != nil {
			logger.Error("sink publish series failed", slog.String("sink", s.Name()), slog.String("error", err.Error()))
		}
	}
}

// PublishSnapshot mirrors a day's snapshot to every sink. Sink failures are
// logged only.
func PublishSnapshot(ctx context.Context, sinks []domain.ScoreSink, day string, entries []domain.SnapshotEntry, logger *slog.Logger) {
	for _, s := range sinks {
		if err := s.PublishSnapshot(ctx, day, entries); err != nil {
			logger.Error("sink publish snapshot failed", slog.String("sink", s.Name()), slog.String("error", err.Error()))
		}
	}
}
