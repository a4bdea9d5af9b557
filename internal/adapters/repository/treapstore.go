package repository

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/humancheck/internal/domain/model"
	"github.com/okian/humancheck/internal/domain/types"
	"github.com/okian/humancheck/pkg/logger"
	"github.com/okian/humancheck/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: bot probability DESC, then session ID ASC. "less" means ranks earlier, so
// an in-order traversal yields the suspect list from most to least bot-like.

// probScale controls fixed-point scaling of probabilities.
const probScale = 1_000_000_000_000

type probFP int64

func toFixedPoint(p float64) probFP {
	switch {
	case math.IsNaN(p) || p <= 0:
		return 0
	case p >= 1:
		return probScale
	}
	return probFP(math.Round(p * probScale))
}

// Snapshot is an immutable view of the ranking published periodically.
type Snapshot struct {
	TopCache []types.Suspect // sorted, at most topCacheSize rows
	Summary  types.Summary
	TakenAt  time.Time
}

type node struct {
	id    string
	prob  probFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aProb probFP, aID string, bProb probFP, bID string) bool {
	if aProb != bProb {
		return aProb > bProb
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// priority derives a heap priority from the session id. Ids are unrelated to their
// rank, so the hash spreads nodes the way random priorities would.
func priority(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func insert(n *node, id string, p probFP) *node {
	if n == nil {
		return &node{id: id, prob: p, prio: priority(id), size: 1}
	}
	if less(p, id, n.prob, n.id) {
		n.left = insert(n.left, id, p)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, p)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, p probFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case p == n.prob && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, p)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, p)
		}
	case less(p, id, n.prob, n.id):
		n.left = deleteNode(n.left, id, p)
	default:
		n.right = deleteNode(n.right, id, p)
	}
	fix(n)
	return n
}

// position returns the zero-based rank of (id, p) using subtree sizes.
func position(n *node, id string, p probFP) int {
	pos := 0
	for n != nil {
		switch {
		case p == n.prob && id == n.id:
			return pos + nsize(n.left)
		case less(p, id, n.prob, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit session ids in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// TreapStore keeps the latest verdict per session ranked by bot probability.
type TreapStore struct {
	mu               sync.RWMutex
	root             *node
	byID             map[string]model.Verdict
	summary          types.Summary
	snapshotInterval time.Duration
	topCacheSize     int
	log              logger.Logger

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store and starts its snapshot loop.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		snapshotInterval: time.Second,
		topCacheSize:     100,
		byID:             make(map[string]model.Verdict),
		stopChan:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("treap_store")
	}
	s.publishSnapshot()
	s.startPeriodicSnapshots(ctx)
	return s
}

func (s *TreapStore) startPeriodicSnapshots(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.publishSnapshot()
			}
		}
	}()
}

func (s *TreapStore) publishSnapshot() {
	start := time.Now()

	s.mu.RLock()
	ids := make([]string, 0, s.topCacheSize)
	collectTopN(s.root, s.topCacheSize, &ids)
	top := s.suspectsLocked(ids)
	snap := &Snapshot{TopCache: top, Summary: s.summary, TakenAt: start}
	count := len(s.byID)
	s.mu.RUnlock()

	s.snapshot.Store(snap)
	metrics.RecordStoreSnapshot(float64(time.Since(start).Milliseconds()), start.Unix())
	metrics.UpdateStoreVerdicts(count)
}

// Snapshot returns the most recently published ranking view.
func (s *TreapStore) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Record stores v as the current verdict of its session, replacing any earlier one.
func (s *TreapStore) Record(ctx context.Context, v model.Verdict) error {
	if v.SessionID == "" {
		return ErrInvalidVerdict
	}
	start := time.Now()
	defer func() {
		metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	}()

	p := toFixedPoint(v.BotProbability)

	s.mu.Lock()
	if old, ok := s.byID[v.SessionID]; ok {
		s.root = deleteNode(s.root, old.SessionID, toFixedPoint(old.BotProbability))
		s.summary.Remove(string(old.Verdict), old.Fallback)
	}
	s.byID[v.SessionID] = v
	s.root = insert(s.root, v.SessionID, p)
	s.summary.Add(string(v.Verdict), v.Fallback)
	s.mu.Unlock()

	s.log.Debug(ctx, "verdict stored",
		logger.String("session_id", v.SessionID),
		logger.String("prediction", string(v.Verdict)),
		logger.Float64("bot_probability", v.BotProbability))
	return nil
}

// Get returns the stored verdict of a session.
func (s *TreapStore) Get(_ context.Context, sessionID string) (model.Verdict, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[sessionID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Verdict{}, ErrNotFound
	}
	return v, nil
}

// Rank returns the ranking row of one session in O(log n).
func (s *TreapStore) Rank(_ context.Context, sessionID string) (types.Suspect, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[sessionID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Suspect{}, ErrNotFound
	}
	pos := position(s.root, sessionID, toFixedPoint(v.BotProbability))
	if pos < 0 {
		return types.Suspect{}, ErrNotFound
	}
	return suspect(pos+1, v), nil
}

// TopSuspects returns the n most bot-like sessions.
func (s *TreapStore) TopSuspects(_ context.Context, n int) ([]types.Suspect, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, &ids)
	return s.suspectsLocked(ids), nil
}

// Summary returns verdict counts.
func (s *TreapStore) Summary(context.Context) (types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary, nil
}

// Count returns the number of stored verdicts.
func (s *TreapStore) Count(context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close stops the snapshot loop.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// suspectsLocked maps ranked ids to rows. Caller holds the lock.
func (s *TreapStore) suspectsLocked(ids []string) []types.Suspect {
	out := make([]types.Suspect, 0, len(ids))
	for i, id := range ids {
		out = append(out, suspect(i+1, s.byID[id]))
	}
	return out
}

func suspect(rank int, v model.Verdict) types.Suspect {
	return types.Suspect{
		Rank:           rank,
		SessionID:      v.SessionID,
		BotProbability: v.BotProbability,
		Verdict:        string(v.Verdict),
		Confidence:     v.Confidence,
		Fallback:       v.Fallback,
	}
}
