package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// ScoreStore implements domain.ScoreSink using PostgreSQL.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a new ScoreStore backed by the given connection pool.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// Name implements domain.ScoreSink.
func (s *ScoreStore) Name() string { return "postgres" }

type scoreRow struct {
	day    time.Time
	value  float64
	events []byte
}

func scoreRows(scores []domain.DayScore) ([]scoreRow, error) {
	rows := make([]scoreRow, 0, len(scores))
	for _, sc := range scores {
		day, err := time.Parse(domain.DateLayout, sc.Time)
		if err != nil {
			return nil, fmt.Errorf("invalid day %q: %w", sc.Time, err)
		}
		events := sc.Events
		if events == nil {
			events = []domain.HighlightEvent{}
		}
		data, err := json.Marshal(events)
		if err != nil {
			return nil, fmt.Errorf("marshal events %s: %w", sc.Time, err)
		}
		rows = append(rows, scoreRow{day: day, value: sc.Value, events: data})
	}
	return rows, nil
}

// PublishScores upserts every score in a single batch.
func (s *ScoreStore) PublishScores(ctx context.Context, scores []domain.DayScore) error {
	if len(scores) == 0 {
		return nil
	}
	rows, err := scoreRows(scores)
	if err != nil {
		return fmt.Errorf("postgres: publish scores: %w", err)
	}

	const query = `
		INSERT INTO daily_scores (day, value, events, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (day) DO UPDATE SET
			value      = EXCLUDED.value,
			events     = EXCLUDED.events,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, r.day, r.value, r.events)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert score %s: %w", scores[i].Time, err)
		}
	}
	return nil
}

// PublishSnapshot replaces the day's ranked members in one transaction.
func (s *ScoreStore) PublishSnapshot(ctx context.Context, day string, entries []domain.SnapshotEntry) error {
	d, err := time.Parse(domain.DateLayout, day)
	if err != nil {
		return fmt.Errorf("postgres: publish snapshot: invalid day %q: %w", day, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin snapshot tx %s: %w", day, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM daily_top_markets WHERE day = $1`, d); err != nil {
		return fmt.Errorf("postgres: clear snapshot %s: %w", day, err)
	}

	const insert = `
		INSERT INTO daily_top_markets (
			day, rank, condition_id, token_id, question,
			open_interest, price_change, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	for i, e := range entries {
		if _, err := tx.Exec(ctx, insert,
			d, i+1, e.ConditionID, e.TokenID, e.Question,
			e.OpenInterest, e.PriceChange,
		); err != nil {
			return fmt.Errorf("postgres: insert snapshot %s rank %d: %w", day, i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit snapshot %s: %w", day, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ScoreSink = (*ScoreStore)(nil)
