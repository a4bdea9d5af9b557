package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/humancheck/internal/domain/classifier"
	"github.com/okian/humancheck/internal/domain/model"
)

func verdict(id string, botProb float64) model.Verdict {
	label := classifier.LabelHuman
	if botProb >= 0.5 {
		label = classifier.LabelBot
	}
	conf := botProb
	if label == classifier.LabelHuman {
		conf = 1 - botProb
	}
	return model.Verdict{
		SessionID:        id,
		Source:           "player",
		Verdict:          label,
		Confidence:       conf,
		HumanProbability: 1 - botProb,
		BotProbability:   botProb,
		Samples:          10,
		AnalyzedAt:       time.Unix(1_700_000_000, 0).UTC(),
	}
}

func newTestStore(t testing.TB) *TreapStore {
	t.Helper()
	s := NewTreapStore(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	if err := store.Record(ctx, verdict("s1", 0.9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.BotProbability != 0.9 || got.Verdict != classifier.LabelBot {
		t.Errorf("unexpected verdict %+v", got)
	}

	rank, err := store.Rank(ctx, "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rank.Rank != 1 {
		t.Errorf("expected rank 1, got %d", rank.Rank)
	}

	top, err := store.TopSuspects(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 1 || top[0].SessionID != "s1" {
		t.Errorf("unexpected top suspects %+v", top)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for id, p := range map[string]float64{"a": 0.2, "b": 0.95, "c": 0.5, "d": 0.0, "e": 0.7} {
		if err := store.Record(ctx, verdict(id, p)); err != nil {
			t.Fatal(err)
		}
	}

	top, err := store.TopSuspects(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "e", "c", "a", "d"}
	for i, s := range top {
		if s.SessionID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], s.SessionID)
		}
		if s.Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, s.Rank)
		}
	}

	top, _ = store.TopSuspects(ctx, 2)
	if len(top) != 2 || top[1].SessionID != "e" {
		t.Errorf("unexpected limited result %+v", top)
	}
}

func TestTreapStore_TieBreaking(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"zeta", "alpha", "mid"} {
		_ = store.Record(ctx, verdict(id, 0.8))
	}
	top, _ := store.TopSuspects(ctx, 3)
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if top[i].SessionID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], top[i].SessionID)
		}
	}

	r, _ := store.Rank(ctx, "zeta")
	if r.Rank != 3 {
		t.Errorf("expected zeta rank 3, got %d", r.Rank)
	}
}

func TestTreapStore_ReplaceVerdict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Record(ctx, verdict("s1", 0.9))
	_ = store.Record(ctx, verdict("s2", 0.6))
	_ = store.Record(ctx, verdict("s1", 0.1))

	if n := store.Count(ctx); n != 2 {
		t.Fatalf("expected 2 verdicts, got %d", n)
	}
	top, _ := store.TopSuspects(ctx, 10)
	if len(top) != 2 || top[0].SessionID != "s2" || top[1].SessionID != "s1" {
		t.Errorf("unexpected order after replace %+v", top)
	}

	sum, _ := store.Summary(ctx)
	if sum.Total != 2 || sum.Bot != 1 || sum.Human != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestTreapStore_Summary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_ = store.Record(ctx, verdict("b1", 0.9))
	_ = store.Record(ctx, verdict("h1", 0.1))
	fb := model.FallbackVerdict(model.Submission{SessionID: "f1"}, model.ReasonInsufficientData, nil, time.Now())
	_ = store.Record(ctx, fb)

	sum, err := store.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 || sum.Bot != 1 || sum.Human != 2 || sum.Fallbacks != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Rank(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, n := range []int{0, -1} {
		if _, err := store.TopSuspects(ctx, n); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %d: expected ErrInvalidLimit, got %v", n, err)
		}
	}
	if err := store.Record(ctx, model.Verdict{}); !errors.Is(err, ErrInvalidVerdict) {
		t.Errorf("expected ErrInvalidVerdict, got %v", err)
	}

	top, err := store.TopSuspects(ctx, 5)
	if err != nil || len(top) != 0 {
		t.Errorf("expected empty ranking, got %v %v", top, err)
	}
}

func TestTreapStore_RankMatchesSortedOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rng := rand.New(rand.NewSource(7))

	type row struct {
		id string
		p  float64
	}
	rows := make([]row, 0, 500)
	for i := range 500 {
		r := row{id: fmt.Sprintf("s%03d", i), p: float64(rng.Intn(20)) / 20}
		rows = append(rows, r)
		_ = store.Record(ctx, verdict(r.id, r.p))
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].p != rows[j].p {
			return rows[i].p > rows[j].p
		}
		return rows[i].id < rows[j].id
	})

	top, _ := store.TopSuspects(ctx, len(rows))
	for i, r := range rows {
		if top[i].SessionID != r.id {
			t.Fatalf("position %d: expected %s, got %s", i, r.id, top[i].SessionID)
		}
		got, err := store.Rank(ctx, r.id)
		if err != nil || got.Rank != i+1 {
			t.Fatalf("%s: expected rank %d, got %d (%v)", r.id, i+1, got.Rank, err)
		}
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				id := fmt.Sprintf("w%d-%d", w, i%50)
				_ = store.Record(ctx, verdict(id, float64(i%10)/10))
				_, _ = store.TopSuspects(ctx, 10)
				_, _ = store.Rank(ctx, id)
			}
		}(w)
	}
	wg.Wait()

	if n := store.Count(ctx); n != 8*50 {
		t.Errorf("expected %d verdicts, got %d", 8*50, n)
	}
	sum, _ := store.Summary(ctx)
	if sum.Total != 8*50 || sum.Human+sum.Bot != sum.Total {
		t.Errorf("summary out of sync %+v", sum)
	}
}

func TestTreapStore_PeriodicSnapshots(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx, WithSnapshotInterval(10*time.Millisecond), WithTopCacheSize(2))
	defer func() { _ = store.Close() }()

	if snap := store.Snapshot(); snap == nil || len(snap.TopCache) != 0 {
		t.Fatalf("expected an empty initial snapshot, got %+v", snap)
	}

	_ = store.Record(ctx, verdict("s1", 0.3))
	_ = store.Record(ctx, verdict("s2", 0.9))
	_ = store.Record(ctx, verdict("s3", 0.6))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snap := store.Snapshot(); snap.Summary.Total == 3 {
			if len(snap.TopCache) != 2 || snap.TopCache[0].SessionID != "s2" {
				t.Errorf("unexpected top cache %+v", snap.TopCache)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("snapshot was not republished")
}

func TestTreapStore_CloseBehavior(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(ctx)

	if err := store.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
	if err := store.Record(ctx, verdict("s1", 0.4)); err != nil {
		t.Fatalf("Record failed after close: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("Get failed after close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestToFixedPoint(t *testing.T) {
	cases := map[float64]probFP{-0.5: 0, 0: 0, 0.5: probScale / 2, 1: probScale, 3: probScale}
	for in, want := range cases {
		if got := toFixedPoint(in); got != want {
			t.Errorf("toFixedPoint(%v) = %d, want %d", in, got, want)
		}
	}
}

func BenchmarkTreapStore_Record(b *testing.B) {
	ctx := context.Background()
	store := newTestStore(b)
	rng := rand.New(rand.NewSource(1))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Record(ctx, verdict(fmt.Sprintf("s%d", i%100_000), rng.Float64()))
	}
}

func BenchmarkTreapStore_TopSuspects(b *testing.B) {
	ctx := context.Background()
	store := newTestStore(b)
	rng := rand.New(rand.NewSource(1))
	for i := range 100_000 {
		_ = store.Record(ctx, verdict(fmt.Sprintf("s%d", i), rng.Float64()))
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = store.TopSuspects(ctx, 100)
		}
	})
}
