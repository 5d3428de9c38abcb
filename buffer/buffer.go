// Package buffer implements the Temporal Event Buffer of §4.4: ten FIFO
// queues (one per models.Kind), a pluggable FlushStrategy, monotonic
// occurredAt assignment, and flush-order replay with Kind-priority
// tie-breaking.
//
// The flush shape keeps one active operation at a time with a clear
// prepare/commit/rollback-equivalent split: swap queues, replay in
// order, hand to the distributor, retain on failure, and log each
// phase as it happens.
package buffer

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"accessplane/logger"
	"accessplane/models"
	"accessplane/tripswitch"
	"accessplane/validator"
)

// Distributor receives a flushed, ordered batch of events and is
// responsible for both persistence (§4.5) and cache population (§4.6).
// A flush is considered failed, and its events retained for retry, if
// Distribute returns an error.
type Distributor interface {
	Distribute(events []models.Event) error
}

// TemporalEventBuffer is the write-path staging area described in §4.4.
// It is owned by a single writer goroutine per shard (§5): Buffer and
// Flush may be called concurrently with reads of queue length, but the
// buffer itself does not spawn goroutines to process events — only the
// FlushStrategy's internal timers do, and they only ever call back into
// Flush.
type TemporalEventBuffer struct {
	mu     sync.Mutex
	queues [10][]models.Event // indexed by models.KindPriority

	validator *validator.EventValidator
	clock     *models.MonotonicClock
	strategy  FlushStrategy
	dist      Distributor

	flushing     atomic.Bool
	maxRetries   int
	consecFailed atomic.Int32

	totalBuffered atomic.Int32
}

// New constructs a TemporalEventBuffer. maxConsecutiveFlushFailures
// bounds how many flush failures in a row are tolerated before the
// process-wide TripSwitch engages (§4.4, §4.7); 0 means "never trip from
// here."
func New(strategy FlushStrategy, dist Distributor, maxConsecutiveFlushFailures int) *TemporalEventBuffer {
	b := &TemporalEventBuffer{
		validator:  validator.New(),
		clock:      models.NewMonotonicClock(),
		strategy:   strategy,
		dist:       dist,
		maxRetries: maxConsecutiveFlushFailures,
	}
	strategy.Start(func() { _ = b.Flush() })
	return b
}

// Close stops the flush strategy's background timers.
func (b *TemporalEventBuffer) Close() {
	b.strategy.Stop()
}

// Buffer validates the incoming event (§4.3), assigns it a monotonic
// occurredAt and a fresh id, enqueues any cascade events the validator
// synthesized ahead of it, then enqueues the primary event itself — all
// under a single critical section so a concurrent Flush sees either the
// whole batch or none of it.
func (b *TemporalEventBuffer) Buffer(kind models.Kind, action models.Action, payload models.Payload) error {
	draft := models.Event{Kind: kind, Action: action, Payload: payload}
	result := b.validator.Validate(draft)
	if !result.Valid {
		return models.NewError(models.CodeArgument, fmt.Sprintf("event rejected: %s", result.Reason))
	}

	b.mu.Lock()
	for _, secondary := range result.Prepended {
		b.enqueueLocked(b.stampLocked(secondary))
	}
	b.enqueueLocked(b.stampLocked(draft))
	total := int(b.totalBuffered.Load())
	b.mu.Unlock()

	// Observe may trigger a synchronous Flush, which takes b.mu itself.
	b.strategy.Observe(total)
	return nil
}

// stampLocked assigns a fresh id, a monotonic occurredAt, and the
// routing hashCode to a draft event. Must be called with b.mu held,
// since the monotonic clock's ordering guarantee depends on stamps being
// issued one at a time per writer (§3).
func (b *TemporalEventBuffer) stampLocked(draft models.Event) models.Event {
	occurredAt := b.clock.Next()
	return models.NewEvent(draft.Action, draft.Kind, draft.Payload, occurredAt, nil)
}

func (b *TemporalEventBuffer) enqueueLocked(e models.Event) {
	idx := models.KindPriority(e.Kind)
	b.queues[idx] = append(b.queues[idx], e)
	b.totalBuffered.Add(1)
}

// Flush atomically swaps all ten queues with empty ones, replays the
// merged sequence in global occurredAt order (ties broken by Kind
// priority — users, then groups, then mappings, then entities, matching
// insertion order within a Kind since occurredAt is itself monotonic per
// writer), and hands the ordered batch to the Distributor. At most one
// flush runs at a time; a concurrent trigger while a flush is in
// progress is dropped, since the next scheduled trigger will pick up
// whatever accumulated in the meantime.
func (b *TemporalEventBuffer) Flush() error {
	if !b.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer b.flushing.Store(false)

	b.mu.Lock()
	var merged []models.Event
	for i := range b.queues {
		merged = append(merged, b.queues[i]...)
		b.queues[i] = nil
	}
	b.mu.Unlock()

	if len(merged) == 0 {
		return nil
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].OccurredAt.Equal(merged[j].OccurredAt) {
			return merged[i].OccurredAt.Before(merged[j].OccurredAt)
		}
		return models.KindPriority(merged[i].Kind) < models.KindPriority(merged[j].Kind)
	})

	if err := b.dist.Distribute(merged); err != nil {
		b.requeue(merged)
		b.onFlushFailure(err)
		return models.Wrap(models.CodeBufferFlushing, err, "flush failed, events retained for retry")
	}

	b.totalBuffered.Add(int32(-len(merged)))
	b.consecFailed.Store(0)
	return nil
}

// requeue puts a failed batch back at the front of its per-Kind queues
// so a subsequent flush retries them ahead of anything buffered since.
func (b *TemporalEventBuffer) requeue(events []models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byKind := make(map[models.Kind][]models.Event)
	for _, e := range events {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}
	for kind, evs := range byKind {
		idx := models.KindPriority(kind)
		b.queues[idx] = append(append([]models.Event{}, evs...), b.queues[idx]...)
	}
}

func (b *TemporalEventBuffer) onFlushFailure(err error) {
	logger.Error("[TemporalEventBuffer] flush failed: %v", err)
	if b.maxRetries <= 0 {
		return
	}
	if b.consecFailed.Add(1) >= int32(b.maxRetries) {
		tripswitch.Trip(fmt.Sprintf("temporal event buffer: %d consecutive flush failures", b.maxRetries))
	}
}

// Len returns the total number of events currently queued across all
// ten categories.
func (b *TemporalEventBuffer) Len() int {
	return int(b.totalBuffered.Load())
}
