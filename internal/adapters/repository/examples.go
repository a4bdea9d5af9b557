package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/humancheck/internal/domain/classifier"
)

// MemoryExamples is an ExampleStore that lives only as long as the process.
type MemoryExamples struct {
	mu   sync.RWMutex
	rows []classifier.LabeledExample
}

// NewMemoryExamples returns an empty example store.
func NewMemoryExamples() *MemoryExamples {
	return &MemoryExamples{}
}

// AddExamples appends labeled rows.
func (m *MemoryExamples) AddExamples(_ context.Context, examples []classifier.LabeledExample) error {
	for i, ex := range examples {
		if !ex.Label.Valid() {
			return fmt.Errorf("example %d: %w", i, classifier.ErrUnknownLabel)
		}
	}
	m.mu.Lock()
	m.rows = append(m.rows, examples...)
	m.mu.Unlock()
	return nil
}

// Examples returns a copy of the stored rows in insertion order.
func (m *MemoryExamples) Examples(context.Context) ([]classifier.LabeledExample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]classifier.LabeledExample(nil), m.rows...), nil
}
