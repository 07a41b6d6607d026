// Package selection decides which verified requests are due and which of them
// an invocation attempts.
package selection

import (
	"time"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Eligible returns the requests strictly older than threshold at now, in queue order.
func Eligible(q domain.Queue, now time.Time, threshold time.Duration) domain.Queue {
	aged, _ := Split(q, now, threshold)
	return aged
}

// Split partitions q into the requests Eligible returns and the rest, both in
// queue order.
func Split(q domain.Queue, now time.Time, threshold time.Duration) (aged, young domain.Queue) {
	cutoff := now.Unix() - int64(threshold/time.Second)

	aged = make(domain.Queue, 0, len(q))
	for _, req := range q {
		if req.CreatedAt < cutoff {
			aged = append(aged, req)
		} else {
			young = append(young, req)
		}
	}
	return aged, young
}

// Union returns the requests of q whose key is in a or b, in queue order.
func Union(q, a, b domain.Queue) domain.Queue {
	keys := make(map[string]struct{}, len(a)+len(b))
	for _, req := range a {
		keys[req.Key] = struct{}{}
	}
	for _, req := range b {
		keys[req.Key] = struct{}{}
	}

	out := make(domain.Queue, 0, len(keys))
	for _, req := range q {
		if _, ok := keys[req.Key]; ok {
			out = append(out, req)
		}
	}
	return out
}
