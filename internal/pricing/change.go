// Package pricing measures how far a token's price moved over a window.
package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/platform/polymarket"
)

// Formula selects how the start and end prices combine into a change value.
type Formula string

const (
	// FormulaLiteral computes end - start*100, the value the published
	// series has always carried.
	FormulaLiteral Formula = "literal"
	// FormulaPercent computes (end - start) * 100, a percentage-point move.
	FormulaPercent Formula = "percent"
)

// ParseFormula validates a configured formula name. Empty means literal.
func ParseFormula(s string) (Formula, error) {
	switch Formula(s) {
	case "", FormulaLiteral:
		return FormulaLiteral, nil
	case FormulaPercent:
		return FormulaPercent, nil
	default:
		return "", fmt.Errorf("pricing: unknown change formula %q", s)
	}
}

// Apply combines two prices.
func (f Formula) Apply(start, end float64) float64 {
	if f == FormulaPercent {
		return (end - start) * 100
	}
	return end - start*100
}

// HistorySource returns bucketed prices for a token.
type HistorySource interface {
	PriceHistory(ctx context.Context, tokenID string, start, end time.Time, fidelity int) ([]polymarket.PricePoint, error)
}

const (
	defaultAttempts = 3
	defaultDelay    = time.Second
)

// Calculator computes per-token price changes with bounded retries.
type Calculator struct {
	history  HistorySource
	formula  Formula
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewCalculator creates a Calculator using formula.
func NewCalculator(history HistorySource, formula Formula, logger *slog.Logger) *Calculator {
	return &Calculator{
		history:  history,
		formula:  formula,
		attempts: defaultAttempts,
		delay:    defaultDelay,
		logger:   logger.With(slog.String("component", "pricing")),
	}
}

// Change returns the signed change of tokenID over [start, end] at the given
// bucket width in minutes. The last bucket is ignored as it may be partial, so
// the end price is the second-to-last point. Fewer than two points yields 0.
// After every attempt fails the error is logged and 0 is returned.
func (c *Calculator) Change(ctx context.Context, tokenID string, start, end time.Time, fidelity int) float64 {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		hist, err := c.history.PriceHistory(ctx, tokenID, start, end, fidelity)
		if err == nil {
			if len(hist) < 2 {
				return 0
			}
			return c.formula.Apply(hist[0].P, hist[len(hist)-2].P)
		}
		lastErr = err

		if attempt < c.attempts {
			if err := sleep(ctx, c.delay); err != nil {
				lastErr = err
				break
			}
		}
	}

	c.logger.Error("price history failed",
		slog.String("token_id", tokenID),
		slog.Int("attempts", c.attempts),
		slog.String("error", lastErr.Error()),
	)
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
