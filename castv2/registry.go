package castv2

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
)

// decodeFunc turns the raw JSON body of a matched response into the
// caller's expected control-message type. It is supplied at
// registration time so the registry itself stays ignorant of the
// concrete message catalog (mirrors the teacher's PayloadRegistry
// pattern of keying a factory function by a small integer tag, here
// keyed by request id instead of message type).
type decodeFunc func(raw json.RawMessage) (controlMessage, error)

// waiterResult is delivered exactly once to a pending waiter's channel.
type waiterResult struct {
	msg controlMessage
	err error
}

// pendingWaiter is the "completion slot" SPEC_FULL.md §3 describes: a
// one-shot value the reader fulfills and the caller awaits.
type pendingWaiter struct {
	id     int64
	decode decodeFunc
	done   chan waiterResult
}

// requestRegistry maps in-flight request ids to their pending waiters.
// It is safe for concurrent registration from callers and concurrent
// fulfilment from the single reader goroutine.
type requestRegistry struct {
	mu      sync.Mutex
	waiters map[int64]*pendingWaiter
	nextID  int64
}

// newRequestRegistry seeds the id counter with a uniformly random value
// in [1, 65536], per SPEC_FULL.md §3: this avoids colliding with
// requests from a previous process incarnation and avoids 0, which this
// protocol reserves to mean "no request id".
func newRequestRegistry() *requestRegistry {
	return &requestRegistry{
		waiters: make(map[int64]*pendingWaiter),
		nextID:  int64(1 + rand.Intn(65536)),
	}
}

// allocateID returns the next monotonically increasing request id.
func (r *requestRegistry) allocateID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	return id
}

// register inserts a new waiter for id. It fails with ErrInternal if the
// id is already present, which would indicate a counter bug rather than
// a normal race (ids are allocated under the same lock just before use).
func (r *requestRegistry) register(id int64, decode decodeFunc) (*pendingWaiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiters[id]; exists {
		return nil, fmt.Errorf("%w: request id %d already registered", ErrInternal, id)
	}

	w := &pendingWaiter{id: id, decode: decode, done: make(chan waiterResult, 1)}
	r.waiters[id] = w
	return w, nil
}

// fulfill looks up the waiter for id, removes it, and delivers the
// decoded response (or a DecodeError-wrapped failure). It reports
// whether a matching waiter existed so the caller can fall back to
// spontaneous-event delivery when it did not.
func (r *requestRegistry) fulfill(id int64, raw json.RawMessage) bool {
	r.mu.Lock()
	w, ok := r.waiters[id]
	if ok {
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	msg, err := w.decode(raw)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrDecode, err)
	}
	w.done <- waiterResult{msg: msg, err: err}
	return true
}

// cancel removes id's waiter, if present, without delivering a result.
// It is used when a caller's wait deadline elapses: nobody is listening
// on done by the time cancel runs, so there is nothing to deliver.
func (r *requestRegistry) cancel(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, id)
}

// cancelAll removes every pending waiter and completes each with reason.
// Called once on channel teardown.
func (r *requestRegistry) cancelAll(reason error) {
	r.mu.Lock()
	waiters := make([]*pendingWaiter, 0, len(r.waiters))
	for id, w := range r.waiters {
		waiters = append(waiters, w)
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	for _, w := range waiters {
		w.done <- waiterResult{err: reason}
	}
}

// wait blocks until the waiter is fulfilled or ctx is done. On timeout
// or cancellation it removes the waiter (if still pending) and returns
// context.Canceled if ctx was cancelled, or ErrRequestTimeout otherwise.
func (r *requestRegistry) wait(ctx context.Context, w *pendingWaiter) (controlMessage, error) {
	select {
	case res := <-w.done:
		return res.msg, res.err
	case <-ctx.Done():
		r.cancel(w.id)
		// A late reply racing this cancellation is harmless: fulfill
		// will simply find no waiter and route the message as a
		// spontaneous event instead.
		select {
		case res := <-w.done:
			return res.msg, res.err
		default:
		}
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, ErrRequestTimeout
	}
}

// pending reports the number of in-flight waiters. Exposed for tests and
// metrics only.
func (r *requestRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
