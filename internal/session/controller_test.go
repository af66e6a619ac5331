package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wablast/internal/eventbus"
	"wablast/pkg/logx"
)

type fakeDriver struct {
	mu        sync.Mutex
	events    chan<- Event
	dialCalls int
	dialErrs  []error // consumed per Dial call
	closes    int
	closed    bool
	sent      [][2]string
	sendErr   error
}

// Dial mirrors the production driver contract: a previous Close ends the
// connection, not the driver, so dialing reopens it.
func (f *fakeDriver) Dial(ctx context.Context, events chan<- Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialCalls++
	f.closed = false
	f.events = events
	if len(f.dialErrs) > 0 {
		err := f.dialErrs[0]
		f.dialErrs = f.dialErrs[1:]
		return err
	}
	return nil
}

func (f *fakeDriver) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, [2]string{to, text})
	return nil
}

func (f *fakeDriver) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.closes++
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) emit(ev Event) {
	f.mu.Lock()
	ch := f.events
	f.mu.Unlock()
	ch <- ev
}

func (f *fakeDriver) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialCalls
}

func (f *fakeDriver) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond, BackoffFactor: 1}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestStartToReady(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	c := NewController(d, fastPolicy(), bus, logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	snap := c.Status()
	if !snap.Running || snap.State != StateReady || snap.LastError != "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// status_changed events were published along the way.
	sawStatus := false
	for drained := false; !drained; {
		select {
		case e := <-events:
			if e.Type == eventbus.TypeStatusChanged {
				sawStatus = true
			}
		default:
			drained = true
		}
	}
	if !sawStatus {
		t.Fatal("no status_changed event published")
	}

	_ = c.Stop(context.Background())
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	// Pressing start twice is safe and must not open a second connection.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if d.dials() != 1 {
		t.Fatalf("dials = %d after double start, want 1", d.dials())
	}
	_ = c.Stop(context.Background())
}

func TestAuthChallengeFlow(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	c := NewController(d, fastPolicy(), bus, logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")

	d.emit(Event{Kind: EventQR, Code: "qr-payload"})
	waitFor(t, func() bool { return c.State() == StateAwaitingAuth }, "awaiting auth")
	if got := c.Status().Challenge; got != "qr-payload" {
		t.Fatalf("Challenge = %q, want qr-payload", got)
	}

	sawChallenge := false
	deadline := time.After(time.Second)
	for !sawChallenge {
		select {
		case e := <-events:
			if e.Type == eventbus.TypeAuthChallenge {
				ac := e.Data.(eventbus.AuthChallenge)
				if ac.Code != "qr-payload" {
					t.Fatalf("challenge payload = %q", ac.Code)
				}
				sawChallenge = true
			}
		case <-deadline:
			t.Fatal("auth_challenge event not published")
		}
	}

	d.emit(Event{Kind: EventPaired})
	waitFor(t, func() bool { return c.State() == StateAuthenticated }, "authenticated")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")
	if c.Status().Challenge != "" {
		t.Fatal("challenge not cleared after ready")
	}
	_ = c.Stop(context.Background())
}

func TestReconnectWithinPolicy(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	d.emit(Event{Kind: EventDisconnected, Reason: "NETWORK_ERROR"})
	waitFor(t, func() bool { return d.dials() == 2 }, "redial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready again")

	if got := c.Status().LastError; got != "" {
		t.Fatalf("LastError = %q after successful reconnect, want empty", got)
	}
	_ = c.Stop(context.Background())
}

func TestReconnectExhaustionFails(t *testing.T) {
	t.Parallel()
	dialErr := errors.New("connection refused")
	d := &fakeDriver{dialErrs: []error{nil, dialErr, dialErr, dialErr}}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	// Every redial fails; MaxAttempts=3 so the controller lands in Failed.
	d.emit(Event{Kind: EventDisconnected, Reason: "NETWORK_ERROR"})
	waitFor(t, func() bool { return c.State() == StateFailed }, "failed state")

	snap := c.Status()
	if snap.Running {
		t.Fatal("failed session still reports running")
	}
	if snap.LastError == "" {
		t.Fatal("LastError empty after retry exhaustion")
	}
	waitFor(t, func() bool { return d.closeCount() >= 1 }, "connection release after exhaustion")
}

func TestAuthFailureIsFatal(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")

	d.emit(Event{Kind: EventAuthFailure, Detail: "device removed"})
	waitFor(t, func() bool { return c.State() == StateFailed }, "failed state")

	// No automatic retry after auth failure.
	time.Sleep(30 * time.Millisecond)
	if d.dials() != 1 {
		t.Fatalf("dials = %d after auth failure, want 1", d.dials())
	}
	waitFor(t, func() bool { return d.closeCount() >= 1 }, "connection release after auth failure")
}

func TestLogoutEndsSession(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	d.emit(Event{Kind: EventLoggedOut})
	waitFor(t, func() bool { return c.State() == StateIdle }, "idle after logout")
	time.Sleep(30 * time.Millisecond)
	if d.dials() != 1 {
		t.Fatalf("dials = %d after logout, want 1 (no reconnect)", d.dials())
	}
	waitFor(t, func() bool { return d.closeCount() >= 1 }, "connection release after logout")
}

func TestRestartAfterStopReconnects(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("state after Stop = %v, want idle", got)
	}
	if d.closeCount() < 1 {
		t.Fatal("Stop did not release the connection")
	}

	// The stop/start cycle must come back up on the same driver.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 2 }, "redial after restart")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready after restart")
	_ = c.Stop(context.Background())
}

func TestStopCancelsReconnectBackoff(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	// Long backoff: Stop must not wait it out.
	policy := RetryPolicy{MaxAttempts: 5, Delay: 30 * time.Second, BackoffFactor: 1}
	c := NewController(d, policy, eventbus.New(), logx.Nop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")
	d.emit(Event{Kind: EventDisconnected, Reason: "NETWORK_ERROR"})
	waitFor(t, func() bool { return c.State() == StateStarting }, "reconnect pending")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Stop(context.Background())
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked inside reconnect backoff")
	}

	if got := c.State(); got != StateIdle {
		t.Fatalf("state after Stop = %v, want idle", got)
	}
	time.Sleep(30 * time.Millisecond)
	if d.dials() != 1 {
		t.Fatalf("dials = %d after Stop, want 1 (connection resurrected)", d.dials())
	}
}

func TestSendTextRequiresReady(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())
	if err := c.SendText(context.Background(), "6281234567890", "hi"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SendText on idle session: got %v, want ErrNotReady", err)
	}
}

func TestInboundMessagesReachHandler(t *testing.T) {
	t.Parallel()
	d := &fakeDriver{}
	c := NewController(d, fastPolicy(), eventbus.New(), logx.Nop())

	var mu sync.Mutex
	var got []InboundMessage
	c.SetMessageHandler(func(ctx context.Context, msg InboundMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	waitFor(t, func() bool { return d.dials() == 1 }, "dial")
	d.emit(Event{Kind: EventReady})
	waitFor(t, c.Ready, "ready state")

	d.emit(Event{Kind: EventMessage, From: "6281234567890", Text: "halo", At: time.Now()})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, "handler invocation")

	mu.Lock()
	if got[0].From != "6281234567890" || got[0].Text != "halo" {
		t.Fatalf("unexpected message: %+v", got[0])
	}
	mu.Unlock()
	_ = c.Stop(context.Background())
}
