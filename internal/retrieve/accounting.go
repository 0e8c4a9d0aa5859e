package retrieve

import (
	"context"
	"time"

	"memoryengine/internal/memory"
	"memoryengine/internal/observability"
)

// touchRequest is one deferred access-count bump.
type touchRequest struct {
	userID string
	id     string
	turn   int64
}

// Accountant defers access_count/last_accessed/last_used_turn updates for
// retrieved memories off the response path: Search results must reach the
// client before this bookkeeping lands. A buffered channel absorbs bursts;
// a single background goroutine drains it against the store.
type Accountant struct {
	store   memory.Store
	pending chan touchRequest
	done    chan struct{}
}

// NewAccountant starts the background drain goroutine. bufferSize bounds how
// many pending touches can queue before Record starts dropping new touches
// rather than blocking the caller.
func NewAccountant(store memory.Store, bufferSize int) *Accountant {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	a := &Accountant{
		store:   store,
		pending: make(chan touchRequest, bufferSize),
		done:    make(chan struct{}),
	}
	go a.drain()
	return a
}

// Record enqueues an access-count bump for (userID, memoryID) at turn. It
// never blocks: a full buffer silently drops the update, since this signal
// is best-effort bookkeeping, not part of retrieval correctness.
func (a *Accountant) Record(userID, memoryID string, turn int64) {
	select {
	case a.pending <- touchRequest{userID: userID, id: memoryID, turn: turn}:
	default:
	}
}

// RecordResults enqueues a touch for every result's memory.
func (a *Accountant) RecordResults(userID string, turn int64, results []Result) {
	for _, r := range results {
		a.Record(userID, r.Memory.ID, turn)
	}
}

func (a *Accountant) drain() {
	for {
		select {
		case req := <-a.pending:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.store.Touch(ctx, req.userID, req.id, req.turn, time.Now().Unix()); err != nil {
				observability.LoggerWithTrace(ctx).Warn().Err(err).Str("memory_id", req.id).Msg("access_accounting_touch_failed")
			}
			cancel()
		case <-a.done:
			return
		}
	}
}

// Close stops the drain goroutine. Pending buffered touches are discarded.
func (a *Accountant) Close() {
	close(a.done)
}
