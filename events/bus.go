package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the waiver engine.
const (
	WaiverClaimed          = "WAIVER_CLAIMED"
	WaiverClaimUpdated     = "WAIVER_CLAIM_UPDATED"
	WaiverClaimsReordered  = "WAIVER_CLAIMS_REORDERED"
	WaiverClaimCancelled   = "WAIVER_CLAIM_CANCELLED"
	WaiverClaimSuccessful  = "WAIVER_CLAIM_SUCCESSFUL"
	WaiverClaimFailed      = "WAIVER_CLAIM_FAILED"
	WaiverPriorityUpdated  = "WAIVER_PRIORITY_UPDATED"
	WaiverBudgetUpdated    = "WAIVER_BUDGET_UPDATED"
	WaiverProcessed        = "WAIVER_PROCESSED"
	TradeInvalidated       = "TRADE_INVALIDATED"
)

// Event is the envelope handed to the bus. Payload is the snake_case JSON
// projection of the entity the kind refers to.
type Event struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	LeagueID  int64       `json:"league_id"`
	Payload   interface{} `json:"payload"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// New builds an event envelope.
func New(kind string, leagueID int64, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		LeagueID:  leagueID,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}

// Bus is the collaborator interface the engine publishes to. Emission is
// best-effort; a nil bus degrades to a no-op.
type Bus interface {
	Publish(ctx context.Context, event Event)
}

// Deferred buffers events raised inside a transaction and flushes them only
// after the transaction commits. On rollback the buffer is discarded, so
// collaborators never observe events for state that was never persisted.
type Deferred struct {
	bus    Bus
	events []Event
}

// NewDeferred wraps bus (which may be nil) in a per-transaction buffer.
func NewDeferred(bus Bus) *Deferred {
	return &Deferred{bus: bus}
}

// Queue records an event for post-commit emission.
func (d *Deferred) Queue(kind string, leagueID int64, payload interface{}) {
	d.events = append(d.events, New(kind, leagueID, payload))
}

// Len reports how many events are queued.
func (d *Deferred) Len() int {
	return len(d.events)
}

// Flush publishes the buffered events in queue order and empties the buffer.
// Call only after a successful commit.
func (d *Deferred) Flush(ctx context.Context) {
	if d.bus != nil {
		for _, ev := range d.events {
			d.bus.Publish(ctx, ev)
		}
	}
	d.events = nil
}

// Discard drops the buffer without publishing. Call on rollback.
func (d *Deferred) Discard() {
	d.events = nil
}

// Recorder is an in-memory bus used by tests and as a default sink.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends the event to the recorder.
func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the published kinds in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}
