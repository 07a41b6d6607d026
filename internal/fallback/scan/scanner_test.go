package scan

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vietddude/keeper/internal/core/domain"
)

type fakeSource struct {
	calls  []Range
	failAt int
	events map[uint64]domain.RawEvent
}

func (f *fakeSource) QueryRange(ctx context.Context, from, to uint64) ([]domain.RawEvent, error) {
	f.calls = append(f.calls, Range{From: from, To: to})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, errors.New("rpc unavailable")
	}
	var out []domain.RawEvent
	for pos, ev := range f.events {
		if pos >= from && pos <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		last     uint64
		safe     uint64
		width    uint64
		budget   int
		expected []Range
	}{
		{
			name:     "budget limits chunks",
			last:     1000,
			safe:     1250,
			width:    100,
			budget:   2,
			expected: []Range{{1001, 1100}, {1101, 1200}},
		},
		{
			name:     "last chunk clamped to safe head",
			last:     1000,
			safe:     1250,
			width:    100,
			budget:   5,
			expected: []Range{{1001, 1100}, {1101, 1200}, {1201, 1250}},
		},
		{
			name:   "caught up",
			last:   1250,
			safe:   1250,
			width:  100,
			budget: 5,
		},
		{
			name:   "safe head behind cursor",
			last:   1300,
			safe:   1250,
			width:  100,
			budget: 5,
		},
		{
			name:     "width one",
			last:     9,
			safe:     11,
			width:    1,
			budget:   5,
			expected: []Range{{10, 10}, {11, 11}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.last, tt.safe, tt.width, tt.budget)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestScanner_AdvancesToLastChunk(t *testing.T) {
	src := &fakeSource{events: map[uint64]domain.RawEvent{
		1050: {BlockNumber: 1050},
		1150: {BlockNumber: 1150},
		1220: {BlockNumber: 1220},
	}}
	s := NewScanner(src, 100, 2, nil)

	res, err := s.Scan(context.Background(), 1000, 1250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cursor != 1200 {
		t.Errorf("expected cursor 1200, got %d", res.Cursor)
	}
	if res.Chunks != 2 || len(res.Events) != 2 {
		t.Errorf("expected 2 chunks and 2 events, got %d and %d", res.Chunks, len(res.Events))
	}
}

func TestScanner_FailureKeepsEarlierChunks(t *testing.T) {
	src := &fakeSource{
		failAt: 2,
		events: map[uint64]domain.RawEvent{1050: {BlockNumber: 1050}, 1150: {BlockNumber: 1150}},
	}
	s := NewScanner(src, 100, 5, nil)

	res, err := s.Scan(context.Background(), 1000, 1500)

	var chunkErr *ChunkError
	if !errors.As(err, &chunkErr) {
		t.Fatalf("expected *ChunkError, got %v", err)
	}
	if chunkErr.Range != (Range{1101, 1200}) {
		t.Errorf("unexpected failed range %v", chunkErr.Range)
	}
	if chunkErr.Error() != "Fail to getLogs 1101-1200: rpc unavailable" {
		t.Errorf("unexpected message %q", chunkErr.Error())
	}
	if res.Cursor != 1100 {
		t.Errorf("expected cursor at end of first chunk (1100), got %d", res.Cursor)
	}
	if len(res.Events) != 1 || res.Events[0].BlockNumber != 1050 {
		t.Errorf("expected first chunk events only, got %v", res.Events)
	}
}

func TestScanner_FirstChunkFailureKeepsCursor(t *testing.T) {
	src := &fakeSource{failAt: 1}
	s := NewScanner(src, 100, 5, nil)

	res, err := s.Scan(context.Background(), 1000, 1500)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Cursor != 1000 || res.Chunks != 0 {
		t.Errorf("expected untouched cursor, got %+v", res)
	}
}
