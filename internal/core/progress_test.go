package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ============================================================================
// ProgressHub Tests
// ============================================================================

func TestProgressHub_LateSubscriberGetsCurrentSnapshot(t *testing.T) {
	hub := NewProgressHub()
	if err := hub.Open("s1"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	hub.Publish(ImportSession{SessionID: "s1", State: StateStreaming, Total: 10, Processed: 4})

	ch, err := hub.Subscribe("s1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case snap := <-ch:
		if snap.Processed != 4 {
			t.Errorf("processed = %d, want 4", snap.Processed)
		}
	case <-time.After(time.Second):
		t.Fatal("late subscriber did not receive current snapshot")
	}
}

func TestProgressHub_DuplicateSessionID(t *testing.T) {
	hub := NewProgressHub()
	if err := hub.Open("dup"); err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	if err := hub.Open("dup"); !errors.Is(err, ErrSessionExists) {
		t.Errorf("second Open() error = %v, want ErrSessionExists", err)
	}
}

func TestProgressHub_UnknownSession(t *testing.T) {
	hub := NewProgressHub()
	if _, err := hub.Subscribe("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Subscribe() error = %v, want ErrSessionNotFound", err)
	}
}

func TestProgressHub_CloseSessionClosesListeners(t *testing.T) {
	hub := NewProgressHub()
	hub.Open("s1")
	ch, _ := hub.Subscribe("s1")

	hub.Publish(ImportSession{SessionID: "s1", State: StateCompleted, Total: 1, Processed: 1})
	hub.CloseSession("s1")

	var last ImportSession
	for snap := range ch {
		last = snap
	}
	if last.State != StateCompleted {
		t.Errorf("last snapshot state = %q, want completed", last.State)
	}
}

func TestProgressHub_SlowListenerKeepsNewest(t *testing.T) {
	hub := NewProgressHub()
	hub.Open("s1")
	ch, _ := hub.Subscribe("s1")

	// Overfill the listener buffer; the newest snapshot must survive.
	for i := 1; i <= listenerBuffer*3; i++ {
		hub.Publish(ImportSession{SessionID: "s1", Total: 100, Processed: i})
	}
	hub.CloseSession("s1")

	var last ImportSession
	for snap := range ch {
		last = snap
	}
	if last.Processed != listenerBuffer*3 {
		t.Errorf("last processed = %d, want %d", last.Processed, listenerBuffer*3)
	}
}

// ============================================================================
// Subscriber Tests
// ============================================================================

// scriptedDial returns one connection per call from a prepared list.
type scriptedConn struct {
	snaps   []ImportSession
	err     error
	dialErr error
}

func scriptedDialer(conns []scriptedConn) (DialFunc, *int) {
	calls := 0
	dial := func(ctx context.Context, sessionID string) (<-chan ImportSession, <-chan error, error) {
		if calls >= len(conns) {
			// Ran out of script: block forever on an open connection.
			calls++
			return make(chan ImportSession), make(chan error), nil
		}
		conn := conns[calls]
		calls++
		if conn.dialErr != nil {
			return nil, nil, conn.dialErr
		}

		snapCh := make(chan ImportSession, len(conn.snaps)+1)
		errCh := make(chan error, 1)
		for _, s := range conn.snaps {
			snapCh <- s
		}
		if conn.err != nil {
			errCh <- conn.err
		} else {
			close(snapCh)
		}
		return snapCh, errCh, nil
	}
	return dial, &calls
}

func TestSubscriber_SelfClosesAtCompletion(t *testing.T) {
	dial, calls := scriptedDialer([]scriptedConn{
		{snaps: []ImportSession{
			{SessionID: "s1", Total: 10, Processed: 5},
			{SessionID: "s1", Total: 10, Processed: 10, State: StateCompleted},
		}},
	})

	var seen []int
	sub := NewSubscriber("s1", dial, func(s ImportSession) { seen = append(seen, s.Processed) })

	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sub.Completed() {
		t.Error("Completed() = false, want true")
	}
	if sub.State() != SubscriberClosed {
		t.Errorf("State() = %v, want SubscriberClosed", sub.State())
	}
	if *calls != 1 {
		t.Errorf("dial calls = %d, want 1 (no reconnect after completion)", *calls)
	}
	if len(seen) != 2 || seen[1] != 10 {
		t.Errorf("snapshots seen = %v, want [5 10]", seen)
	}
}

func TestSubscriber_ZeroTotalIsNotCompletion(t *testing.T) {
	// total=0 with processed=0 must not self-close; only the queued
	// completed snapshot ends the run.
	dial, _ := scriptedDialer([]scriptedConn{
		{snaps: []ImportSession{
			{SessionID: "s1", Total: 0, Processed: 0, State: StateSubmitting},
			{SessionID: "s1", Total: 3, Processed: 3, State: StateCompleted},
		}},
	})

	sub := NewSubscriber("s1", dial, nil)
	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sub.Completed() {
		t.Error("expected completion on the second snapshot")
	}
}

func TestSubscriber_TransportErrorRacingCompletion(t *testing.T) {
	// The completion snapshot is queued at the moment the transport error
	// arrives. The subscriber must drain it and never redial.
	done := ImportSession{SessionID: "s1", Total: 10, Processed: 10, State: StateCompleted}

	calls := 0
	dial := func(ctx context.Context, sessionID string) (<-chan ImportSession, <-chan error, error) {
		calls++
		snapCh := make(chan ImportSession, 1)
		errCh := make(chan error, 1)
		snapCh <- done
		errCh <- errors.New("connection reset")
		// Error first, snapshot still pending.
		return snapCh, errCh, nil
	}

	sub := NewSubscriber("s1", dial, nil)

	// Drive consume directly against a connection where the error is
	// guaranteed to be selected: deliver it via a dedicated run with the
	// snapshot channel drained inside the error branch.
	snapCh := make(chan ImportSession, 1)
	errCh := make(chan error, 1)
	snapCh <- done
	errCh <- errors.New("connection reset")

	// Force the error branch by consuming with an already-delivered error
	// and relying on drain to pick up the completion snapshot.
	sub2 := NewSubscriber("s1", dial, nil)
	sub2.drain(snapCh)
	if !sub2.Completed() {
		t.Fatal("drain should observe the queued completion snapshot")
	}
	if err := sub2.noteTransportError(<-errCh); err != nil {
		t.Errorf("transport error after completion should be ignored, got %v", err)
	}
	if sub2.reconnects != 0 {
		t.Errorf("reconnects = %d, want 0 after completion", sub2.reconnects)
	}

	// Full Run also terminates cleanly whichever branch fires first.
	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sub.Completed() {
		t.Error("Run should complete despite the racing transport error")
	}
}

func TestSubscriber_BoundedReconnects(t *testing.T) {
	transportErr := errors.New("connection refused")
	conns := make([]scriptedConn, DefaultMaxReconnects+1)
	for i := range conns {
		conns[i] = scriptedConn{dialErr: transportErr}
	}
	dial, calls := scriptedDialer(conns)

	sub := NewSubscriber("s1", dial, nil)
	err := sub.Run(context.Background())

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("Run() error = %v, want *TransportError", err)
	}
	if *calls != DefaultMaxReconnects+1 {
		t.Errorf("dial calls = %d, want %d", *calls, DefaultMaxReconnects+1)
	}
	if sub.State() != SubscriberClosed {
		t.Errorf("State() = %v, want SubscriberClosed", sub.State())
	}
}

func TestSubscriber_ReconnectThenComplete(t *testing.T) {
	dial, calls := scriptedDialer([]scriptedConn{
		{snaps: []ImportSession{{SessionID: "s1", Total: 4, Processed: 2}},
			err: errors.New("stream reset")},
		{snaps: []ImportSession{
			{SessionID: "s1", Total: 4, Processed: 3},
			{SessionID: "s1", Total: 4, Processed: 4, State: StateCompleted},
		}},
	})

	sub := NewSubscriber("s1", dial, nil)
	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !sub.Completed() {
		t.Error("expected completion after reconnect")
	}
	if *calls != 2 {
		t.Errorf("dial calls = %d, want 2", *calls)
	}
}

func TestSubscriber_IgnoresStaleSnapshots(t *testing.T) {
	dial, _ := scriptedDialer([]scriptedConn{
		{snaps: []ImportSession{
			{SessionID: "s1", Total: 10, Processed: 6},
			{SessionID: "s1", Total: 10, Processed: 3}, // stale
			{SessionID: "s1", Total: 10, Processed: 10, State: StateCompleted},
		}},
	})

	var seen []int
	sub := NewSubscriber("s1", dial, func(s ImportSession) { seen = append(seen, s.Processed) })
	if err := sub.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, p := range seen {
		if p == 3 {
			t.Errorf("stale snapshot delivered: %v", seen)
		}
	}
}

func TestSubscriber_Teardown(t *testing.T) {
	dial := func(ctx context.Context, sessionID string) (<-chan ImportSession, <-chan error, error) {
		return make(chan ImportSession), make(chan error), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := NewSubscriber("s1", dial, nil)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after teardown")
	}
	if sub.State() != SubscriberClosed {
		t.Errorf("State() = %v, want SubscriberClosed", sub.State())
	}
}
