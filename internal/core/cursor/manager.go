package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/storage"
	"github.com/vietddude/keeper/internal/metrics"
)

var (
	// ErrCursorRegression is returned when a cursor would move backwards.
	ErrCursorRegression = errors.New("cursor regression")

	// ErrCorruptState is returned when persisted values cannot be parsed.
	ErrCorruptState = errors.New("corrupt persisted state")
)

// Manager loads and commits job state.
type Manager struct {
	store storage.KVStore
}

// State is the in-memory copy of a job's persisted state for one invocation.
type State struct {
	Cursor domain.ScanCursor
	Queue  domain.Queue

	loaded uint64
}

// Advance moves the cursor forward. Moving backwards is an error.
func (s *State) Advance(position uint64) error {
	if s.Cursor.Initialized && position < s.Cursor.LastScanned {
		return fmt.Errorf(
			"%w: cursor at %d, got %d",
			ErrCursorRegression,
			s.Cursor.LastScanned,
			position,
		)
	}
	s.Cursor.LastScanned = position
	s.Cursor.Initialized = true
	return nil
}

// Load reads the cursor and queue of a job.
func (m *Manager) Load(ctx context.Context, job string) (*State, error) {
	st := &State{Cursor: domain.ScanCursor{JobName: job}}

	raw, ok, err := m.store.Get(ctx, CursorKey(job))
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	if ok && raw != "" {
		pos, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cursor %q: %v", ErrCorruptState, raw, err)
		}
		st.Cursor.LastScanned = pos
		st.Cursor.Initialized = true
		st.loaded = pos
	}

	q, err := m.loadQueue(ctx, job)
	if err != nil {
		return nil, err
	}
	st.Queue = q

	return st, nil
}

func (m *Manager) loadQueue(ctx context.Context, job string) (domain.Queue, error) {
	raw, ok, err := m.store.Get(ctx, QueueKey(job))
	if err != nil {
		return nil, fmt.Errorf("failed to get queue: %w", err)
	}
	if !ok || raw == "" {
		return domain.Queue{}, nil
	}

	var q domain.Queue
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("%w: queue: %v", ErrCorruptState, err)
	}
	return q, nil
}

// SaveQueue writes the queue of a job without touching its cursor.
func (m *Manager) SaveQueue(ctx context.Context, job string, q domain.Queue) error {
	if q == nil {
		q = domain.Queue{}
	}
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}
	if err := m.store.Set(ctx, QueueKey(job), string(data)); err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}
	metrics.QueueSize.WithLabelValues(job).Set(float64(len(q)))
	return nil
}

// Commit writes the queue and then the cursor.
func (m *Manager) Commit(ctx context.Context, st *State) error {
	job := st.Cursor.JobName
	if st.Cursor.LastScanned < st.loaded {
		return fmt.Errorf(
			"%w: loaded at %d, committing %d",
			ErrCursorRegression,
			st.loaded,
			st.Cursor.LastScanned,
		)
	}

	if err := m.SaveQueue(ctx, job, st.Queue); err != nil {
		return err
	}

	if !st.Cursor.Initialized {
		return nil
	}

	value := strconv.FormatUint(st.Cursor.LastScanned, 10)
	if err := m.store.Set(ctx, CursorKey(job), value); err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	st.loaded = st.Cursor.LastScanned
	metrics.CursorPosition.WithLabelValues(job).Set(float64(st.Cursor.LastScanned))

	return nil
}

// Reset overwrites the cursor of a job. Used by operators to rescan a range.
func (m *Manager) Reset(ctx context.Context, job string, position uint64) error {
	value := strconv.FormatUint(position, 10)
	if err := m.store.Set(ctx, CursorKey(job), value); err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}
