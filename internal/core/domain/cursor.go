package domain

// ScanCursor is the scan position of a job.
type ScanCursor struct {
	JobName     string
	LastScanned uint64
	// Initialized is false when nothing was persisted yet.
	Initialized bool
	// ChunkBudget is the per-invocation chunk limit. Not persisted.
	ChunkBudget int
}
