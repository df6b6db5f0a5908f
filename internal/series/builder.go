// Package series builds and maintains the daily volatility series: parallel
// backfills over date ranges and the hourly refresh of the current day.
package series

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/scoring"
)

// DayScorer scores one civil day against a catalog.
type DayScorer interface {
	ScoreDay(ctx context.Context, day time.Time, markets []domain.Market) (domain.DayScore, []scoring.Member)
}

// DefaultWorkers leaves one CPU for the rest of the process.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

// Builder computes scores for many days on a bounded worker pool.
type Builder struct {
	scorer  DayScorer
	workers int
	logger  *slog.Logger
}

// NewBuilder creates a Builder. workers <= 0 selects DefaultWorkers.
func NewBuilder(scorer DayScorer, workers int, logger *slog.Logger) *Builder {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Builder{
		scorer:  scorer,
		workers: workers,
		logger:  logger.With(slog.String("component", "backfill")),
	}
}

// Build scores every day concurrently. The catalog is shared read-only
// between workers and each day's result lands in its own slot, so the output
// is ordered by date whatever order the workers finish in. Build fails only
// when ctx is cancelled; per-day upstream problems surface as zero scores.
func (b *Builder) Build(ctx context.Context, days []time.Time, markets []domain.Market) ([]domain.DayScore, error) {
	b.logger.Info("backfill starting",
		slog.Int("days", len(days)),
		slog.Int("markets", len(markets)),
		slog.Int("workers", b.workers),
	)

	results := make([]domain.DayScore, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, day := range days {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			score, _ := b.scorer.ScoreDay(gctx, day, markets)
			results[i] = score
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("series: backfill: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("series: backfill: %w", err)
	}

	SortByDate(results)
	b.logger.Info("backfill complete", slog.Int("days", len(results)))
	return results, nil
}

// SortByDate orders scores by their date key in place. YYYY-MM-DD sorts
// lexically in date order.
func SortByDate(scores []domain.DayScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Time < scores[j].Time
	})
}

// Merge overlays updates onto existing: same-date entries are replaced, new
// dates inserted, and the result is ordered by date. Neither input is
// modified.
func Merge(existing, updates []domain.DayScore) []domain.DayScore {
	byDate := make(map[string]int, len(existing)+len(updates))
	out := make([]domain.DayScore, 0, len(existing)+len(updates))
	for _, s := range existing {
		if i, ok := byDate[s.Time]; ok {
			out[i] = s
			continue
		}
		byDate[s.Time] = len(out)
		out = append(out, s)
	}
	for _, s := range updates {
		if i, ok := byDate[s.Time]; ok {
			out[i] = s
			continue
		}
		byDate[s.Time] = len(out)
		out = append(out, s)
	}
	SortByDate(out)
	return out
}

// UpsertTail replaces the last entry when it carries score's date and
// appends otherwise. Only the tail is inspected.
func UpsertTail(series []domain.DayScore, score domain.DayScore) []domain.DayScore {
	out := make([]domain.DayScore, len(series), len(series)+1)
	copy(out, series)
	if n := len(out); n > 0 && out[n-1].Time == score.Time {
		out[n-1] = score
		return out
	}
	return append(out, score)
}
