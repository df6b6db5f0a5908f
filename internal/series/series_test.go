package series

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
	"github.com/alanyoungcy/polyvol/internal/ranking"
	"github.com/alanyoungcy/polyvol/internal/scoring"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowScorer finishes earlier days last.
type slowScorer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowScorer) ScoreDay(_ context.Context, day time.Time, _ []domain.Market) (domain.DayScore, []scoring.Member) {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(31-day.Day()) * time.Millisecond)
	s.inFlight.Add(-1)
	return domain.DayScore{Time: day.Format(domain.DateLayout), Value: float64(day.Day())}, nil
}

func TestBuildOrdersByDateAndBoundsWorkers(t *testing.T) {
	var days []time.Time
	for d := 10; d >= 1; d-- {
		days = append(days, time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC))
	}
	scorer := &slowScorer{}
	got, err := NewBuilder(scorer, 3, discard()).Build(context.Background(), days, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 10 {
		t.Fatalf("len=%d", len(got))
	}
	for i, s := range got {
		if s.Value != float64(i+1) {
			t.Fatalf("got[%d]=%+v", i, s)
		}
	}
	if p := scorer.peak.Load(); p > 3 {
		t.Fatalf("peak concurrency %d exceeds 3", p)
	}
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(&slowScorer{}, 2, discard()).Build(ctx, []time.Time{time.Now()}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestMerge(t *testing.T) {
	existing := []domain.DayScore{{Time: "2025-01-01", Value: 1}, {Time: "2025-01-03", Value: 3}}
	updates := []domain.DayScore{{Time: "2025-01-03", Value: 30}, {Time: "2025-01-02", Value: 2}}
	got := Merge(existing, updates)
	want := []domain.DayScore{{Time: "2025-01-01", Value: 1}, {Time: "2025-01-02", Value: 2}, {Time: "2025-01-03", Value: 30}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i].Time != want[i].Time || got[i].Value != want[i].Value {
			t.Fatalf("got[%d]=%+v want %+v", i, got[i], want[i])
		}
	}
	if existing[1].Value != 3 {
		t.Fatal("Merge modified its input")
	}
}

func TestUpsertTail(t *testing.T) {
	series := []domain.DayScore{{Time: "2025-01-01", Value: 1}, {Time: "2025-01-02", Value: 2}}

	got := UpsertTail(series, domain.DayScore{Time: "2025-01-02", Value: 5})
	if len(got) != 2 || got[1].Value != 5 || series[1].Value != 2 {
		t.Fatalf("replace: %+v", got)
	}
	got = UpsertTail(series, domain.DayScore{Time: "2025-01-03", Value: 7})
	if len(got) != 3 || got[2].Value != 7 {
		t.Fatalf("append: %+v", got)
	}
	if got := UpsertTail(nil, domain.DayScore{Time: "x"}); len(got) != 1 {
		t.Fatalf("empty: %+v", got)
	}
}

type memSnapshots struct {
	mu    sync.Mutex
	days  map[string][]domain.SnapshotEntry
	saves int
}

func (m *memSnapshots) LoadSnapshot(_ context.Context, day string) ([]domain.SnapshotEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.days[day]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]domain.SnapshotEntry(nil), e...), nil
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, day string, entries []domain.SnapshotEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[day] = append([]domain.SnapshotEntry(nil), entries...)
	m.saves++
	return nil
}

type memSeries struct{ series []domain.DayScore }

func (m *memSeries) LoadSeries(context.Context) ([]domain.DayScore, error) { return m.series, nil }
func (m *memSeries) SaveSeries(_ context.Context, s []domain.DayScore) error {
	m.series = s
	return nil
}

type staticCatalog struct {
	markets []domain.Market
	active  []bool
}

func (c *staticCatalog) Load(_ context.Context, activeOnly bool) []domain.Market {
	c.active = append(c.active, activeOnly)
	return c.markets
}

type staticRanker struct {
	top     []domain.OpenInterestEntry
	queries []ranking.Query
}

func (r *staticRanker) Top(_ context.Context, q ranking.Query) []domain.OpenInterestEntry {
	r.queries = append(r.queries, q)
	return r.top
}

type tokenChanges map[string]float64

func (c tokenChanges) Change(_ context.Context, token string, _, _ time.Time, _ int) float64 {
	return c[token]
}

type recordingSink struct {
	name      string
	fail      bool
	scores    [][]domain.DayScore
	series    [][]domain.DayScore
	snapshots map[string][]domain.SnapshotEntry
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) PublishScores(_ context.Context, scores []domain.DayScore) error {
	if s.fail {
		return errors.New("sink down")
	}
	s.scores = append(s.scores, scores)
	return nil
}

func (s *recordingSink) PublishSnapshot(_ context.Context, day string, entries []domain.SnapshotEntry) error {
	if s.fail {
		return errors.New("sink down")
	}
	if s.snapshots == nil {
		s.snapshots = map[string][]domain.SnapshotEntry{}
	}
	s.snapshots[day] = entries
	return nil
}

type fullSeriesSink struct{ recordingSink }

func (s *fullSeriesSink) PublishSeries(_ context.Context, series []domain.DayScore) error {
	s.series = append(s.series, series)
	return nil
}

func hourlyFixture() (*Hourly, *memSnapshots, *memSeries, *staticCatalog, *staticRanker) {
	snaps := &memSnapshots{days: map[string][]domain.SnapshotEntry{}}
	ser := &memSeries{series: []domain.DayScore{{Time: "2025-03-01", Value: 1}}}
	cat := &staticCatalog{markets: []domain.Market{
		{ConditionID: "A", Question: "A?", TokenID: "ta"},
		{ConditionID: "B", Question: "B?", TokenID: "tb"},
		{ConditionID: "C", Question: "C?"},
	}}
	rk := &staticRanker{top: []domain.OpenInterestEntry{
		{MarketID: "A", Amount: 300}, {MarketID: "B", Amount: 200}, {MarketID: "C", Amount: 100},
	}}
	h := NewHourly(HourlyDeps{
		Catalog:   cat,
		Ranker:    rk,
		Prices:    tokenChanges{"ta": 30.12345, "tb": -2},
		Snapshots: snaps,
		Series:    ser,
	}, time.UTC, scoring.DefaultOptions(), discard())
	return h, snaps, ser, cat, rk
}

func TestHourlyCreatesSnapshotAndAppends(t *testing.T) {
	h, snaps, ser, cat, rk := hourlyFixture()
	now := time.Date(2025, 3, 2, 15, 30, 0, 0, time.UTC)

	score, err := h.Run(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.active) != 1 || !cat.active[0] {
		t.Fatalf("catalog loads=%v want one active-only load", cat.active)
	}
	if !rk.queries[0].At.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("ranked at %v", rk.queries[0].At)
	}

	// mean over the two members with tokens: (30.12345 + 2) / 2
	if score.Value != 16.062 || len(score.Events) != 1 || score.Events[0].Value != 30.123 {
		t.Fatalf("score=%+v", score)
	}
	if len(ser.series) != 2 || ser.series[1].Time != "2025-03-02" {
		t.Fatalf("series=%+v", ser.series)
	}

	snap := snaps.days["2025-03-02"]
	if len(snap) != 3 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap[0].PriceChange == nil || *snap[0].PriceChange != 30.123 {
		t.Fatalf("A change=%v", snap[0].PriceChange)
	}
	if snap[1].PriceChange == nil || *snap[1].PriceChange != -2 {
		t.Fatalf("B change=%v", snap[1].PriceChange)
	}
	if snap[2].PriceChange != nil {
		t.Fatal("C has no token and must carry no change")
	}
}

func TestHourlyReusesSnapshotAndReplacesTail(t *testing.T) {
	h, _, ser, cat, _ := hourlyFixture()
	ctx := context.Background()

	if _, err := h.Run(ctx, time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Run(ctx, time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(cat.active) != 1 {
		t.Fatalf("catalog loaded %d times, want 1", len(cat.active))
	}
	if len(ser.series) != 2 {
		t.Fatalf("series=%+v", ser.series)
	}
}

func TestHourlyEmptySnapshot(t *testing.T) {
	h, _, ser, _, rk := hourlyFixture()
	rk.top = nil
	_, err := h.Run(context.Background(), time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("err=%v", err)
	}
	if len(ser.series) != 1 {
		t.Fatal("series must not change on empty snapshot")
	}
}

func TestHourlyEmptyRankingIsRetriedNextRun(t *testing.T) {
	h, snaps, ser, _, rk := hourlyFixture()
	ctx := context.Background()
	top := rk.top

	rk.top = nil
	if _, err := h.Run(ctx, time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)); !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("first run err=%v", err)
	}
	if snaps.saves != 0 {
		t.Fatal("empty ranking must not be persisted")
	}

	rk.top = top
	score, err := h.Run(ctx, time.Date(2025, 3, 2, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(rk.queries) != 2 {
		t.Fatalf("ranked %d times, want 2", len(rk.queries))
	}
	if len(snaps.days["2025-03-02"]) != 3 || score.Time != "2025-03-02" || len(ser.series) != 2 {
		t.Fatalf("snapshot=%+v series=%+v", snaps.days["2025-03-02"], ser.series)
	}
}

func TestHourlyRankAt(t *testing.T) {
	now := time.Date(2025, 3, 2, 15, 30, 0, 0, time.UTC)
	for _, tc := range []struct {
		rankAt RankAt
		want   time.Time
	}{
		{RankAtDayStart, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{RankAtNow, now},
	} {
		h, _, _, _, rk := hourlyFixture()
		WithRankAt(tc.rankAt)(h)
		if _, err := h.Run(context.Background(), now); err != nil {
			t.Fatalf("%s: %v", tc.rankAt, err)
		}
		if got := rk.queries[0].At; !got.Equal(tc.want) {
			t.Errorf("%s: ranked at %v want %v", tc.rankAt, got, tc.want)
		}
	}
}

func TestParseRankAt(t *testing.T) {
	for in, want := range map[string]RankAt{"": RankAtDayStart, "day_start": RankAtDayStart, "now": RankAtNow} {
		got, err := ParseRankAt(in)
		if err != nil || got != want {
			t.Errorf("ParseRankAt(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseRankAt("noon"); err == nil {
		t.Error("expected error")
	}
}

func TestHourlySinkFailureDoesNotFailRun(t *testing.T) {
	h, _, _, _, _ := hourlyFixture()
	bad := &recordingSink{name: "bad", fail: true}
	good := &fullSeriesSink{recordingSink{name: "good"}}
	h.deps.Sinks = []domain.ScoreSink{bad, good}

	if _, err := h.Run(context.Background(), time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if len(good.scores) != 1 || len(good.scores[0]) != 1 {
		t.Fatalf("scores=%v", good.scores)
	}
	if len(good.series) != 1 || len(good.series[0]) != 2 {
		t.Fatalf("series=%v", good.series)
	}
	if len(good.snapshots["2025-03-02"]) != 3 {
		t.Fatalf("snapshots=%v", good.snapshots)
	}
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestHourlyLockHeld(t *testing.T) {
	h, snaps, _, _, _ := hourlyFixture()
	h.deps.Lock = heldLock{}
	_, err := h.Run(context.Background(), time.Date(2025, 3, 2, 1, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err=%v", err)
	}
	if snaps.saves != 0 {
		t.Fatal("no work expected while lock is held")
	}
}
