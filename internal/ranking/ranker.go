// Package ranking selects the markets with the largest open interest at an
// instant, keeping at most one market per parent event.
package ranking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/blocks"
	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/platform/goldsky"
)

// DefaultTopN is the size of the daily index basket.
const DefaultTopN = 10

const minPageSize = 100

// OIFetcher reads one page of open interest, largest first.
type OIFetcher interface {
	FetchOpenInterest(ctx context.Context, q goldsky.OpenInterestQuery) ([]domain.OpenInterestEntry, error)
}

// Query describes one ranking request.
type Query struct {
	// Markets are the candidates and the source of event ids for
	// deduplication.
	Markets []domain.Market
	// All ranks every market on the subgraph instead of only Markets.
	All bool
	// At pins the ranking to the last block at or before this instant.
	// Zero means the latest indexed block.
	At time.Time
	// N caps the result; zero means DefaultTopN.
	N int
}

// Ranker produces event-deduplicated top-N open-interest lists.
type Ranker struct {
	oi     OIFetcher
	blocks blocks.Resolver
	logger *slog.Logger
}

// NewRanker creates a Ranker. resolver may be nil, in which case Query.At is
// ignored and the latest block is used.
func NewRanker(oi OIFetcher, resolver blocks.Resolver, logger *slog.Logger) *Ranker {
	return &Ranker{
		oi:     oi,
		blocks: resolver,
		logger: logger.With(slog.String("component", "ranking")),
	}
}

// Top returns up to N entries ordered by amount descending. A market is
// skipped when it shares an event with a market already taken; markets with
// no events are never skipped and never block others. Failures upstream
// (block lookup, subgraph) degrade to a shorter or empty list.
func (r *Ranker) Top(ctx context.Context, q Query) []domain.OpenInterestEntry {
	n := q.N
	if n <= 0 {
		n = DefaultTopN
	}

	byID := domain.IndexByCondition(q.Markets)
	var candidates []string
	if !q.All {
		candidates = make([]string, 0, len(byID))
		for _, m := range q.Markets {
			if m.ConditionID != "" {
				candidates = append(candidates, m.ConditionID)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
	}

	var block int64
	if !q.At.IsZero() && r.blocks != nil {
		b, err := r.blocks.BlockAt(ctx, q.At)
		if err != nil {
			level := slog.LevelError
			if errors.Is(err, domain.ErrMissingCredential) {
				level = slog.LevelWarn
			}
			r.logger.Log(ctx, level, "block resolution failed",
				slog.Time("at", q.At),
				slog.String("error", err.Error()),
			)
			return nil
		}
		block = b
	}

	pageSize := max(n, minPageSize)
	seenEvents := make(map[string]struct{})
	taken := make(map[string]struct{}, n)
	result := make([]domain.OpenInterestEntry, 0, n)

	for skip := 0; ; skip += pageSize {
		page, err := r.oi.FetchOpenInterest(ctx, goldsky.OpenInterestQuery{
			ConditionIDs: candidates,
			Block:        block,
			First:        pageSize,
			Skip:         skip,
		})
		if err != nil {
			r.logger.Error("open interest fetch failed",
				slog.Int("skip", skip),
				slog.Int64("block", block),
				slog.String("error", err.Error()),
			)
			break
		}

		for _, e := range page {
			if _, dup := taken[e.MarketID]; dup {
				continue
			}
			events := byID[e.MarketID].EventIDs
			if sharesEvent(events, seenEvents) {
				continue
			}
			for _, id := range events {
				seenEvents[id] = struct{}{}
			}
			taken[e.MarketID] = struct{}{}
			result = append(result, e)
			if len(result) >= n {
				return result
			}
		}

		if len(page) < pageSize {
			break
		}
	}
	return result
}

func sharesEvent(events []string, seen map[string]struct{}) bool {
	for _, id := range events {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}
