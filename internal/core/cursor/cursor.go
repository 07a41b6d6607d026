// Package cursor persists the scan position and the pending-request queue of each job.
//
// # Purpose
//
// A job is invoked periodically and must resume exactly where the previous
// invocation stopped:
//   - Cursor: the last position (block or round) covered by the range scanner
//   - Queue: requests discovered so far and not yet confirmed fulfilled
//
// # Key Features
//
// Monotonic Cursor - Commit refuses to move the cursor below the position it was
// loaded at (ErrCursorRegression). Only Reset may move it backwards.
//
// Queue Before Cursor - Commit writes the queue first. A crash between the two
// writes leaves the old cursor, so the next invocation rescans a small overlap;
// the queue merge deduplicates by request key.
//
// # Quick Start
//
//	manager := cursor.NewManager(store)
//
//	st, _ := manager.Load(ctx, "vrf")
//	_ = st.Advance(1200)
//	st.Queue = st.Queue.Merge(decoded)
//	_ = manager.Commit(ctx, st)
package cursor

import (
	"fmt"

	"github.com/vietddude/keeper/internal/infra/storage"
)

// QueueKey is the store key holding the serialized queue of a job.
func QueueKey(job string) string {
	return fmt.Sprintf("%s:requests", job)
}

// CursorKey is the store key holding the last scanned position of a job.
func CursorKey(job string) string {
	return fmt.Sprintf("%s:lastBlock", job)
}

// NewManager creates a new cursor manager over the given store.
func NewManager(store storage.KVStore) *Manager {
	return &Manager{store: store}
}
