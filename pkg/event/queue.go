package event

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/guest"
)

// CopiedEvent pairs the time of an event already copied into the
// audio-thread arena with its guest-side pointer, ready to be served to
// the plug-in's input-events trampoline.
type CopiedEvent struct {
	Time uint32
	Ptr  uint32
}

// Queue owns the pending-event byte buffer and the sorted copied-event
// list, guarded by a single mutex that CopyPending takes once and then
// hands to copyPendingLocked rather than a second lock acquisition. Go's
// sync.Mutex is not reentrant, so the lock is only ever taken once per
// call chain; CopyPending holds it for the whole copy+sort step instead
// of handing control back to the caller in between.
type Queue struct {
	mu     sync.Mutex
	buf    []byte
	starts []uint32
	copied []CopiedEvent
}

// NewQueue returns an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// AddEvent appends raw (a full, already-encoded event including its
// header) to the pending buffer at a naturally aligned offset, recording
// the offset in starts.
func (q *Queue) AddEvent(raw []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	aligned := (uint32(len(q.buf)) + 7) &^ 7
	if pad := int(aligned) - len(q.buf); pad > 0 {
		q.buf = append(q.buf, make([]byte, pad)...)
	}
	q.starts = append(q.starts, aligned)
	q.buf = append(q.buf, raw...)
}

// Len returns the number of pending events not yet copied out.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.starts)
}

// CopyPending copies every pending event into scope (a scope on the
// audio-thread arena), producing a CopiedEvent per event, then stably
// sorts the result by time. It clears the pending buffer as it goes, per
// the structural invariant that an empty starts list implies an empty
// buffer.
func (q *Queue) CopyPending(ctx context.Context, g guest.Instance, scope *arena.Scoped) ([]CopiedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	copied, err := q.copyPendingLocked(ctx, g, scope)
	if err != nil {
		return nil, err
	}
	q.buf = q.buf[:0]
	q.starts = q.starts[:0]
	return copied, nil
}

// CopyPendingFiltered behaves like CopyPending but only copies out events
// whose type passes keep; events that don't pass stay pending, used by
// params_flush to pull only param-related events off the queue.
func (q *Queue) CopyPendingFiltered(ctx context.Context, g guest.Instance, scope *arena.Scoped, keep func(uint16) bool) ([]CopiedEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []CopiedEvent
	var remaining []byte
	var remainingStarts []uint32

	for _, start := range q.starts {
		raw := q.rawAt(start)
		h := DecodeHeader(raw)
		if !keep(h.Type) {
			aligned := (uint32(len(remaining)) + 7) &^ 7
			if pad := int(aligned) - len(remaining); pad > 0 {
				remaining = append(remaining, make([]byte, pad)...)
			}
			remainingStarts = append(remainingStarts, aligned)
			remaining = append(remaining, raw...)
			continue
		}
		off, err := scope.Alloc(uint32(len(raw)))
		if err != nil {
			return nil, fmt.Errorf("event: copy pending event: %w", err)
		}
		if err := g.Write(ctx, off, raw); err != nil {
			return nil, fmt.Errorf("event: write copied event: %w", err)
		}
		out = append(out, CopiedEvent{Time: h.Time, Ptr: off})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	q.buf = remaining
	q.starts = remainingStarts
	return out, nil
}

func (q *Queue) rawAt(start uint32) []byte {
	h := DecodeHeader(q.buf[start:])
	return q.buf[start : start+h.Size]
}

func (q *Queue) copyPendingLocked(ctx context.Context, g guest.Instance, scope *arena.Scoped) ([]CopiedEvent, error) {
	var out []CopiedEvent
	for _, start := range q.starts {
		raw := q.rawAt(start)
		h := DecodeHeader(raw)
		off, err := scope.Alloc(uint32(len(raw)))
		if err != nil {
			return nil, fmt.Errorf("event: copy pending event: %w", err)
		}
		if err := g.Write(ctx, off, raw); err != nil {
			return nil, fmt.Errorf("event: write copied event: %w", err)
		}
		out = append(out, CopiedEvent{Time: h.Time, Ptr: off})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// SetCopied replaces the queue's served copied-event list, used once
// CopyPending (or CopyPendingFiltered) has produced the sorted slice the
// input-events trampoline should serve.
func (q *Queue) SetCopied(copied []CopiedEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.copied = copied
}

// Copied returns the current served copied-event list.
func (q *Queue) Copied() []CopiedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.copied
}

// ClearCopied empties the copied-event list, called after process()
// regardless of whether the plug-in consumed every event: the event
// buffer is always cleared after a process call, by design.
func (q *Queue) ClearCopied() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.copied = nil
}
