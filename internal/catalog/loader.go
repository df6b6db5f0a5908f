package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/platform/polymarket"
)

// PageSize is the Gamma page size used when walking the catalog.
const PageSize = 500

// Fetcher retrieves one page of raw markets.
type Fetcher interface {
	ListMarkets(ctx context.Context, limit, offset int, activeOnly bool) ([]polymarket.APIMarket, error)
}

// Loader walks the Gamma market list and normalises every record.
type Loader struct {
	fetcher  Fetcher
	loc      *time.Location
	pageSize int
	logger   *slog.Logger
}

// NewLoader creates a Loader whose timestamps are expressed in loc.
func NewLoader(fetcher Fetcher, loc *time.Location, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher:  fetcher,
		loc:      loc,
		pageSize: PageSize,
		logger:   logger.With(slog.String("component", "catalog")),
	}
}

// Load pages through the catalog until an empty or short page. A failed
// request ends paging; whatever was collected up to then is returned, so the
// result may be partial but is never an error.
func (l *Loader) Load(ctx context.Context, activeOnly bool) []domain.Market {
	var (
		markets []domain.Market
		offset  int
		raw     int
		dropped int
	)

	for {
		if ctx.Err() != nil {
			l.logger.Warn("catalog load cancelled", slog.Int("offset", offset))
			break
		}

		page, err := l.fetcher.ListMarkets(ctx, l.pageSize, offset, activeOnly)
		if err != nil {
			l.logger.Error("catalog page fetch failed",
				slog.Int("offset", offset),
				slog.String("error", err.Error()),
			)
			break
		}
		if len(page) == 0 {
			break
		}

		raw += len(page)
		for _, rm := range page {
			m := Normalize(rm, l.loc)
			if rm.CreatedAt != "" && m.CreatedAt == "" {
				l.logger.Debug("unparseable createdAt", slog.String("condition_id", rm.ConditionID), slog.String("value", rm.CreatedAt))
			}
			if m.IsEmpty() {
				dropped++
				continue
			}
			markets = append(markets, m)
		}

		if len(page) < l.pageSize {
			break
		}
		offset += l.pageSize
	}

	l.logger.Info("catalog loaded",
		slog.Int("raw", raw),
		slog.Int("markets", len(markets)),
		slog.Int("dropped", dropped),
		slog.Bool("active_only", activeOnly),
	)
	return markets
}
