package blocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCache struct {
	m      map[int64]int64
	getErr error
}

func (c *memCache) GetBlock(_ context.Context, _ int64, ts time.Time) (int64, error) {
	if c.getErr != nil {
		return 0, c.getErr
	}
	b, ok := c.m[ts.Unix()]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return b, nil
}

func (c *memCache) SetBlock(_ context.Context, _ int64, ts time.Time, block int64) error {
	c.m[ts.Unix()] = block
	return nil
}

func TestCachedHitsUpstreamOnce(t *testing.T) {
	calls := 0
	upstream := ResolverFunc(func(context.Context, time.Time) (int64, error) {
		calls++
		return 42, nil
	})
	r := NewCached(upstream, &memCache{m: map[int64]int64{}}, 137, discardLogger())

	at := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		b, err := r.BlockAt(context.Background(), at)
		if err != nil || b != 42 {
			t.Fatalf("block=%d err=%v", b, err)
		}
	}
	if calls != 1 {
		t.Fatalf("upstream calls=%d want 1", calls)
	}
}

func TestCachedSurvivesBrokenCache(t *testing.T) {
	upstream := ResolverFunc(func(context.Context, time.Time) (int64, error) { return 9, nil })
	r := NewCached(upstream, &memCache{m: map[int64]int64{}, getErr: errors.New("conn refused")}, 137, discardLogger())

	b, err := r.BlockAt(context.Background(), time.Unix(5, 0))
	if err != nil || b != 9 {
		t.Fatalf("block=%d err=%v", b, err)
	}
}

func TestCachedPropagatesUpstreamError(t *testing.T) {
	upstream := ResolverFunc(func(context.Context, time.Time) (int64, error) {
		return 0, domain.ErrMissingCredential
	})
	r := NewCached(upstream, &memCache{m: map[int64]int64{}}, 137, discardLogger())
	if _, err := r.BlockAt(context.Background(), time.Unix(5, 0)); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("err=%v", err)
	}
}

type countingLimiter struct {
	waits int
	err   error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(context.Context, string, int, time.Duration) error {
	l.waits++
	return l.err
}

func TestThrottledWaitsBeforeEachCall(t *testing.T) {
	lim := &countingLimiter{}
	r := NewThrottled(ResolverFunc(func(context.Context, time.Time) (int64, error) { return 1, nil }),
		lim, "etherscan", 5, time.Second, discardLogger())
	for i := 0; i < 4; i++ {
		if _, err := r.BlockAt(context.Background(), time.Unix(int64(i), 0)); err != nil {
			t.Fatal(err)
		}
	}
	if lim.waits != 4 {
		t.Fatalf("waits=%d want 4", lim.waits)
	}
}

func TestThrottledLimiterErrorStillResolves(t *testing.T) {
	lim := &countingLimiter{err: errors.New("redis down")}
	calls := 0
	r := NewThrottled(ResolverFunc(func(context.Context, time.Time) (int64, error) {
		calls++
		return 42, nil
	}), lim, "etherscan", 5, time.Second, discardLogger())

	b, err := r.BlockAt(context.Background(), time.Unix(1, 0))
	if err != nil || b != 42 {
		t.Fatalf("block=%d err=%v", b, err)
	}
	if calls != 1 {
		t.Fatalf("upstream calls=%d want 1", calls)
	}
}

func TestThrottledCancelledContextSkipsUpstream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lim := &countingLimiter{err: context.Canceled}
	calls := 0
	r := NewThrottled(ResolverFunc(func(context.Context, time.Time) (int64, error) {
		calls++
		return 42, nil
	}), lim, "etherscan", 5, time.Second, discardLogger())

	if _, err := r.BlockAt(ctx, time.Unix(1, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("upstream calls=%d want 0", calls)
	}
}

func TestFallbackUsesFirstSuccess(t *testing.T) {
	failing := ResolverFunc(func(context.Context, time.Time) (int64, error) { return 0, errors.New("down") })
	ok := ResolverFunc(func(context.Context, time.Time) (int64, error) { return 77, nil })

	b, err := Fallback{failing, ok}.BlockAt(context.Background(), time.Unix(1, 0))
	if err != nil || b != 77 {
		t.Fatalf("block=%d err=%v", b, err)
	}
	if _, err := (Fallback{failing}).BlockAt(context.Background(), time.Unix(1, 0)); err == nil {
		t.Fatal("expected error when all resolvers fail")
	}
}

// chain produces one block every 2 seconds starting at unix 1000.
type chain struct{ head int64 }

func (c chain) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	num := c.head
	if n != nil {
		num = n.Int64()
	}
	return &types.Header{Number: big.NewInt(num), Time: uint64(1000 + 2*num)}, nil
}

func TestRPCResolverBinarySearch(t *testing.T) {
	r := NewRPCResolver(chain{head: 10_000})
	cases := []struct {
		ts   int64
		want int64
	}{
		{1000, 0},
		{1001, 0},
		{1002, 1},
		{1003, 1},
		{1000 + 2*5000, 5000},
		{1000 + 2*10_000 + 50, 10_000},
	}
	for _, tc := range cases {
		got, err := r.BlockAt(context.Background(), time.Unix(tc.ts, 0))
		if err != nil {
			t.Fatalf("ts=%d: %v", tc.ts, err)
		}
		if got != tc.want {
			t.Fatalf("ts=%d: got %d want %d", tc.ts, got, tc.want)
		}
	}
}

func TestRPCResolverBeforeGenesis(t *testing.T) {
	r := NewRPCResolver(chain{head: 100})
	if _, err := r.BlockAt(context.Background(), time.Unix(10, 0)); err == nil {
		t.Fatal("expected error before genesis")
	}
}
