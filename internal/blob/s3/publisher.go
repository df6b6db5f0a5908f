package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

const jsonContentType = "application/json"

// multipartThreshold is the payload size above which uploads go through the
// multipart manager. Full catalogs routinely exceed it.
const multipartThreshold = 8 * 1024 * 1024

// Publisher mirrors the series, daily snapshots and catalog dumps into a
// bucket under a key prefix:
//
//	{prefix}/daily_scores.json
//	{prefix}/scores/{first}[-{last}].json
//	{prefix}/top10/{day}.json
//	{prefix}/markets/markets_{stamp}.json
type Publisher struct {
	writer domain.BlobWriter
	prefix string
}

// NewPublisher creates a Publisher writing through w.
func NewPublisher(w domain.BlobWriter, prefix string) *Publisher {
	return &Publisher{writer: w, prefix: prefix}
}

// Name implements domain.ScoreSink.
func (p *Publisher) Name() string { return "s3" }

// PublishScores uploads the changed points as one object named after their
// date span.
func (p *Publisher) PublishScores(ctx context.Context, scores []domain.DayScore) error {
	if len(scores) == 0 {
		return nil
	}
	label := scores[0].Time
	if last := scores[len(scores)-1].Time; last != label {
		label += "-" + last
	}
	return p.putJSON(ctx, p.key("scores", label+".json"), scores)
}

// PublishSeries uploads the full series.
func (p *Publisher) PublishSeries(ctx context.Context, series []domain.DayScore) error {
	if series == nil {
		series = []domain.DayScore{}
	}
	return p.putJSON(ctx, p.key("daily_scores.json"), series)
}

// PublishSnapshot implements domain.ScoreSink.
func (p *Publisher) PublishSnapshot(ctx context.Context, day string, entries []domain.SnapshotEntry) error {
	if entries == nil {
		entries = []domain.SnapshotEntry{}
	}
	return p.putJSON(ctx, p.key("top10", day+".json"), entries)
}

// PublishCatalog uploads a catalog dump and returns its key.
func (p *Publisher) PublishCatalog(ctx context.Context, markets []domain.Market, now time.Time) (string, error) {
	key := p.key("markets", "markets_"+now.Format("2006-01-02_15-04-05")+".json")
	if markets == nil {
		markets = []domain.Market{}
	}
	if err := p.putJSON(ctx, key, markets); err != nil {
		return "", err
	}
	return key, nil
}

func (p *Publisher) key(parts ...string) string {
	return path.Join(append([]string{p.prefix}, parts...)...)
}

func (p *Publisher) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal %s: %w", key, err)
	}

	if len(data) > multipartThreshold {
		if err := p.writer.PutMultipart(ctx, key, bytes.NewReader(data), 0); err != nil {
			return err
		}
		return nil
	}
	return p.writer.Put(ctx, key, bytes.NewReader(data), jsonContentType)
}

// Compile-time interface check.
var _ domain.ScoreSink = (*Publisher)(nil)
