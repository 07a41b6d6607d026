package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/vietddude/keeper/internal/core/domain"
	"github.com/vietddude/keeper/internal/infra/storage"
)

// Summary is a read-only view of a job's persisted state.
type Summary struct {
	Job       string `json:"job"`
	Cursor    uint64 `json:"cursor"`
	HasCursor bool   `json:"hasCursor"`
	QueueSize int    `json:"queueSize"`

	// OldestCreatedAt is the smallest createdAt in the queue, 0 when empty
	OldestCreatedAt int64 `json:"oldestCreatedAt,omitempty"`
}

// Summaries reads the state of the given jobs, in one round trip when the
// store supports it.
func (m *Manager) Summaries(ctx context.Context, jobs []string) ([]Summary, error) {
	keys := make([]string, 0, 2*len(jobs))
	for _, job := range jobs {
		keys = append(keys, CursorKey(job), QueueKey(job))
	}

	values, err := m.getMany(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(jobs))
	for _, job := range jobs {
		s := Summary{Job: job}
		if raw, ok := values[CursorKey(job)]; ok && raw != "" {
			pos, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: cursor of %s %q", ErrCorruptState, job, raw)
			}
			s.Cursor, s.HasCursor = pos, true
		}
		if raw, ok := values[QueueKey(job)]; ok && raw != "" {
			var q domain.Queue
			if err := json.Unmarshal([]byte(raw), &q); err != nil {
				return nil, fmt.Errorf("%w: queue of %s: %v", ErrCorruptState, job, err)
			}
			s.QueueSize = len(q)
			for _, req := range q {
				if s.OldestCreatedAt == 0 || req.CreatedAt < s.OldestCreatedAt {
					s.OldestCreatedAt = req.CreatedAt
				}
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Manager) getMany(ctx context.Context, keys []string) (map[string]string, error) {
	if mg, ok := m.store.(storage.MultiGetter); ok {
		values, err := mg.GetMany(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to get state: %w", err)
		}
		return values, nil
	}

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v, ok, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", key, err)
		}
		if ok {
			values[key] = v
		}
	}
	return values, nil
}
