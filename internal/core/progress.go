package core

// progress.go carries import progress from the executor to any number of
// observers. The hub streams full ImportSession snapshots, never deltas, so
// a subscriber that arrives late or reconnects mid-import synchronizes from
// any single event. The executor never blocks on subscriber existence: slow
// listeners miss intermediate snapshots instead of applying backpressure,
// which is safe precisely because every event is complete.

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupDelay is how long a finished session lingers for late
// result fetches before the hub discards it.
const DefaultCleanupDelay = 5 * time.Minute

// listenerBuffer bounds each subscriber channel. When it fills, older
// snapshots are dropped in favor of newer ones.
const listenerBuffer = 16

// ProgressHub is the session-keyed snapshot stream between the import
// executor and its observers.
type ProgressHub struct {
	mu           sync.RWMutex
	sessions     map[string]*progressSession
	cleanupDelay time.Duration
}

type progressSession struct {
	mu        sync.Mutex
	listeners []chan ImportSession
	last      ImportSession
	hasLast   bool
	closed    bool
}

// NewProgressHub creates an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		sessions:     make(map[string]*progressSession),
		cleanupDelay: DefaultCleanupDelay,
	}
}

// Open registers a session. Session IDs are client-generated and globally
// unique per run; reuse is an error.
func (h *ProgressHub) Open(sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[sessionID]; exists {
		return ErrSessionExists
	}
	h.sessions[sessionID] = &progressSession{}
	return nil
}

// Publish fans a snapshot out to every listener. Non-blocking: a full
// listener buffer gets its oldest snapshot evicted so the newest always
// lands, preserving the invariant that the last received event is current.
func (h *ProgressHub) Publish(snap ImportSession) {
	h.mu.RLock()
	sess, ok := h.sessions[snap.SessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}
	sess.last = snap
	sess.hasLast = true
	for _, ch := range sess.listeners {
		offer(ch, snap)
	}
}

func offer(ch chan ImportSession, snap ImportSession) {
	select {
	case ch <- snap:
	default:
		// Evict the oldest queued snapshot; each event is complete so
		// only the newest matters.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe attaches a listener to a session. The current snapshot, if any,
// is delivered immediately so late subscribers synchronize without waiting
// for the next publish. The channel closes when the session completes.
func (h *ProgressHub) Subscribe(sessionID string) (<-chan ImportSession, error) {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	ch := make(chan ImportSession, listenerBuffer)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		if sess.hasLast {
			ch <- sess.last
		}
		close(ch)
		return ch, nil
	}
	sess.listeners = append(sess.listeners, ch)
	if sess.hasLast {
		ch <- sess.last
	}
	return ch, nil
}

// CloseSession closes every listener channel and schedules the session for
// removal. After the delay no state is retained.
func (h *ProgressHub) CloseSession(sessionID string) {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	if !sess.closed {
		sess.closed = true
		for _, ch := range sess.listeners {
			close(ch)
		}
		sess.listeners = nil
	}
	sess.mu.Unlock()

	delay := h.cleanupDelay
	time.AfterFunc(delay, func() {
		h.mu.Lock()
		delete(h.sessions, sessionID)
		h.mu.Unlock()
	})
}

// Last returns the most recent snapshot for a session.
func (h *ProgressHub) Last(sessionID string) (ImportSession, bool) {
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ImportSession{}, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.last, sess.hasLast
}

// SubscriberState is the progress subscriber's lifecycle state.
type SubscriberState int

const (
	SubscriberIdle SubscriberState = iota
	SubscriberOpen
	SubscriberClosed
)

// DialFunc opens one transport connection to a session's snapshot stream.
// Snapshot and error delivery are separate so a transport fault can race a
// final snapshot, which is exactly the case the subscriber must tolerate.
type DialFunc func(ctx context.Context, sessionID string) (<-chan ImportSession, <-chan error, error)

// DefaultMaxReconnects bounds transport-error reconnects before completion.
const DefaultMaxReconnects = 3

// Subscriber is the observer-side state machine over an unreliable,
// reconnecting transport. One small machine (Idle/Open/Closed) guarded by a
// completed flag and a monotonic processed counter, instead of scattered
// booleans.
type Subscriber struct {
	sessionID     string
	dial          DialFunc
	onSnapshot    func(ImportSession)
	maxReconnects int

	state         SubscriberState
	completed     bool
	lastProcessed int
	reconnects    int
}

// NewSubscriber creates a subscriber for one session. onSnapshot may be nil.
func NewSubscriber(sessionID string, dial DialFunc, onSnapshot func(ImportSession)) *Subscriber {
	return &Subscriber{
		sessionID:     sessionID,
		dial:          dial,
		onSnapshot:    onSnapshot,
		maxReconnects: DefaultMaxReconnects,
	}
}

// State returns the subscriber's lifecycle state.
func (s *Subscriber) State() SubscriberState { return s.state }

// Completed reports whether the subscriber observed a terminal snapshot.
func (s *Subscriber) Completed() bool { return s.completed }

// Run consumes snapshots until the session completes, the context is
// cancelled, or the reconnect budget is spent. It self-closes once
// processed >= total with total > 0 and never reconnects afterwards, even
// when a transport error arrives in the same tick as completion.
func (s *Subscriber) Run(ctx context.Context) error {
	defer func() { s.state = SubscriberClosed }()

	for {
		snaps, errs, err := s.dial(ctx, s.sessionID)
		if err != nil {
			if retryErr := s.noteTransportError(err); retryErr != nil {
				return retryErr
			}
			continue
		}
		s.state = SubscriberOpen

		if err := s.consume(ctx, snaps, errs); err != nil {
			return err
		}
		if s.completed {
			return nil
		}
		// consume returned for a reconnect; loop re-dials.
	}
}

// consume reads one connection until completion, teardown, or a transport
// fault. A nil return with completed still false means "reconnect".
func (s *Subscriber) consume(ctx context.Context, snaps <-chan ImportSession, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			// Explicit teardown: close and retain nothing.
			return ctx.Err()

		case snap, ok := <-snaps:
			if !ok {
				// Stream closed by the far side. If the terminal
				// snapshot was already seen this is a normal close.
				if s.completed {
					return nil
				}
				return s.noteTransportError(errStreamClosed)
			}
			s.observe(snap)
			if s.completed {
				return nil
			}

		case err := <-errs:
			// A completion snapshot may already be queued; drain before
			// deciding whether this error matters. The completed flag is
			// checked before any reconnect attempt.
			s.drain(snaps)
			if s.completed {
				return nil
			}
			return s.noteTransportError(err)
		}
	}
}

// observe applies one snapshot, ignoring stale ones (processed is
// monotonic, so a snapshot that goes backwards is from a dead connection).
func (s *Subscriber) observe(snap ImportSession) {
	if snap.Processed < s.lastProcessed {
		return
	}
	s.lastProcessed = snap.Processed
	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
	if snap.Done() {
		s.completed = true
	}
}

// drain consumes whatever snapshots are already queued, without blocking.
func (s *Subscriber) drain(snaps <-chan ImportSession) {
	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			s.observe(snap)
			if s.completed {
				return
			}
		default:
			return
		}
	}
}

// noteTransportError spends one reconnect attempt. A nil return means the
// caller should reconnect; non-nil means the budget is gone.
func (s *Subscriber) noteTransportError(err error) error {
	if s.completed {
		return nil
	}
	if s.reconnects >= s.maxReconnects {
		return &TransportError{Err: err}
	}
	s.reconnects++
	return nil
}

type streamClosedError struct{}

func (streamClosedError) Error() string { return "snapshot stream closed before completion" }

var errStreamClosed = streamClosedError{}
