package journal

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a thread-safe in-memory journal.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty journal.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*Run)}
}

func (m *Memory) Begin(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	run.Steps = append([]Step(nil), run.Steps...)
	m.runs[run.ID] = &run
	return nil
}

func (m *Memory) RecordStep(_ context.Context, runID string, step Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.Steps = append(run.Steps, step)
	return nil
}

func (m *Memory) Finish(_ context.Context, runID string, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	out.apply(run)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return cloneRun(run), nil
}

func (m *Memory) List(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	result := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, cloneRun(run))
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if limit = normalizeLimit(limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneRun(run *Run) Run {
	out := *run
	out.Steps = append([]Step(nil), run.Steps...)
	if run.FinishedAt != nil {
		finished := *run.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
