package domain

// Queue is the ordered set of pending requests owned by a job.
type Queue []PendingRequest

// Index returns the position of key in the queue or -1.
func (q Queue) Index(key string) int {
	for i := range q {
		if q[i].Key == key {
			return i
		}
	}
	return -1
}

// Merge appends records to the queue. A record whose key is already queued
// replaces the queued entry in place, so overlapping scans never duplicate keys.
func (q Queue) Merge(records []PendingRequest) Queue {
	out := make(Queue, len(q), len(q)+len(records))
	copy(out, q)
	for _, r := range records {
		if i := out.Index(r.Key); i >= 0 {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// Without returns the queue with the given keys removed, order preserved.
func (q Queue) Without(keys ...string) Queue {
	if len(keys) == 0 {
		return q
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(Queue, 0, len(q))
	for _, r := range q {
		if _, ok := drop[r.Key]; ok {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Prefix returns the first n items (or the whole queue when shorter).
func (q Queue) Prefix(n int) Queue {
	if n < 0 || n >= len(q) {
		return q
	}
	return q[:n]
}
