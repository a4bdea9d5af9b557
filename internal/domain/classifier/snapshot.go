package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/humancheck/internal/domain/features"
	"github.com/okian/humancheck/pkg/logger"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 1

type snapshot struct {
	Version     int             `json:"version"`
	TrainedAt   time.Time       `json:"trained_at"`
	Examples    int             `json:"examples"`
	ClassCounts map[Label]int   `json:"class_counts"`
	Features    []string        `json:"features"`
	Scaler      json.RawMessage `json:"scaler"`
	Estimator   json.RawMessage `json:"estimator"`
}

// Save writes the published state as JSON. The scaler and estimator must be JSON
// serializable, as the defaults are.
func (m *Model) Save(w io.Writer) error {
	st := m.state.Load()
	if st == nil {
		return ErrModelNotTrained
	}

	sc, err := json.Marshal(st.scaler)
	if err != nil {
		return fmt.Errorf("encode scaler: %w", err)
	}
	est, err := json.Marshal(st.estimator)
	if err != nil {
		return fmt.Errorf("encode estimator: %w", err)
	}

	return json.NewEncoder(w).Encode(snapshot{
		Version:     SnapshotVersion,
		TrainedAt:   st.trainedAt,
		Examples:    st.examples,
		ClassCounts: st.classCounts,
		Features:    features.Names(),
		Scaler:      sc,
		Estimator:   est,
	})
}

// Load replaces the published state with a snapshot written by Save. The snapshot is
// decoded into fresh instances from the configured factories and probed before it is
// published.
func (m *Model) Load(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("version %d: %w", snap.Version, ErrSnapshotVersion)
	}
	if len(snap.Features) != features.Count {
		return fmt.Errorf("snapshot has %d features: %w", len(snap.Features), ErrShapeMismatch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := &fitted{
		scaler:      m.newScaler(),
		estimator:   m.newEstimator(),
		trainedAt:   snap.TrainedAt,
		examples:    snap.Examples,
		classCounts: snap.ClassCounts,
	}
	if err := json.Unmarshal(snap.Scaler, st.scaler); err != nil {
		return fmt.Errorf("decode scaler: %w", err)
	}
	if err := json.Unmarshal(snap.Estimator, st.estimator); err != nil {
		return fmt.Errorf("decode estimator: %w", err)
	}
	if _, err := st.score(mat.NewDense(1, features.Count, nil)); err != nil {
		return fmt.Errorf("probe snapshot: %w", err)
	}

	m.state.Store(st)
	m.logger.Info(context.Background(), "model loaded",
		logger.Int("examples", snap.Examples),
		logger.String("trained_at", snap.TrainedAt.Format(time.RFC3339)),
	)
	return nil
}

// SaveFile writes a snapshot to path, replacing any existing file atomically.
func (m *Model) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := m.Save(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot from path.
func (m *Model) LoadFile(path string) error {
	f, err := os.Open(path) //nolint:gosec // operator-provided path
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	return m.Load(f)
}
