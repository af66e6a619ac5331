// Package session owns the lifecycle of the single authenticated connection
// to the messaging network: it drives the underlying Driver through
// authentication, keeps the connection state machine, and manages bounded
// reconnection after unexpected drops.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wablast/internal/eventbus"
	"wablast/internal/runtime/supervisor"
	"wablast/pkg/logx"
)

var (
	// ErrNotReady is returned when an operation requires an established
	// connection and the session is not in the ready state.
	ErrNotReady = errors.New("session not ready")
	// ErrStopping is returned when Start races with an in-progress Stop.
	ErrStopping = errors.New("session is stopping")
	// ErrAuthFailed marks a fatal authentication error; the session must be
	// restarted by the operator.
	ErrAuthFailed = errors.New("authentication failed")
)

const eventBuffer = 64

// Snapshot is a read-only view of the controller, recomputed on demand.
type Snapshot struct {
	State     State
	Running   bool
	Ready     bool
	Challenge string // pending auth challenge payload, empty when none
	LastError string
}

// MessageHandler receives inbound chat messages. Called from the session
// event pump, one message at a time (arrival order preserved).
type MessageHandler func(ctx context.Context, msg InboundMessage)

// Controller is the connection lifecycle state machine. All components reach
// the network only through it; no second connection handle exists.
type Controller struct {
	mu        sync.Mutex
	state     State
	attempts  int
	challenge string
	lastError string

	driver Driver
	bus    eventbus.Bus
	log    logx.Logger
	policy RetryPolicy

	events  chan Event
	sup     *supervisor.Supervisor
	handler MessageHandler
}

func NewController(driver Driver, policy RetryPolicy, bus eventbus.Bus, log logx.Logger) *Controller {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		state:  StateIdle,
		driver: driver,
		bus:    bus,
		log:    log,
		policy: policy,
	}
}

// SetMessageHandler registers the inbound message handler. Must be called
// before Start.
func (c *Controller) SetMessageHandler(h MessageHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Start brings the session up. Calling Start while the session is already
// starting, authenticating or ready is idempotent success: pressing start
// twice is safe.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateStarting, StateAwaitingAuth, StateAuthenticated, StateReady:
		c.mu.Unlock()
		return nil
	case StateDisconnecting:
		c.mu.Unlock()
		return ErrStopping
	}
	c.state = StateStarting
	c.attempts = 0
	c.challenge = ""
	c.lastError = ""
	c.events = make(chan Event, eventBuffer)
	c.sup = supervisor.New(ctx, supervisor.WithLogger(c.log))
	sup := c.sup
	c.mu.Unlock()

	c.publishStatus("connecting")

	sup.Go("session.pump", c.pump)
	return nil
}

// Stop tears the session down from any state. The underlying connection is
// released on every exit path; an in-progress reconnect attempt observes
// cancellation and does not resurrect the connection after Stop returns.
// Cleanup errors are logged and swallowed.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	sup := c.sup
	c.sup = nil
	if sup == nil {
		// Never started or already stopped; land in Idle regardless.
		c.state = StateIdle
		c.challenge = ""
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisconnecting
	c.mu.Unlock()

	c.publishStatus("disconnecting")

	sup.Cancel()
	if err := c.driver.Close(ctx); err != nil {
		c.log.Warn("connection cleanup failed", logx.Err(err))
	}
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("session pump exit", logx.Err(err))
	}

	c.mu.Lock()
	c.state = StateIdle
	c.challenge = ""
	c.attempts = 0
	c.mu.Unlock()

	c.publishStatus("stopped")
	return nil
}

// Ready reports whether the connection is established and sendable.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a point-in-time snapshot; never persisted.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		Running:   c.state.running(),
		Ready:     c.state == StateReady,
		Challenge: c.challenge,
		LastError: c.lastError,
	}
}

// SendText delivers one text message through the active connection.
func (c *Controller) SendText(ctx context.Context, to, text string) error {
	if !c.Ready() {
		return ErrNotReady
	}
	return c.driver.SendText(ctx, to, text)
}

// pump is the single event loop for the session: it dials, consumes driver
// events, and drives reconnection. It exits on terminal states and on
// cancellation.
func (c *Controller) pump(ctx context.Context) error {
	// Terminal exits (logout, auth failure, exhausted reconnects) bypass Stop,
	// so the connection is released here on every pump exit. Stop closes too;
	// Close is idempotent per the Driver contract.
	defer c.closeDriver(context.WithoutCancel(ctx))

	if err := c.driver.Dial(ctx, c.events); err != nil {
		c.log.Warn("initial connect failed", logx.Err(err))
		if !c.redial(ctx) {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			if done := c.handleEvent(ctx, ev); done {
				return nil
			}
		}
	}
}

// handleEvent applies one driver event to the state machine. Returns true
// when the pump should exit (terminal state reached).
func (c *Controller) handleEvent(ctx context.Context, ev Event) bool {
	switch ev.Kind {
	case EventQR:
		c.mu.Lock()
		c.state = StateAwaitingAuth
		c.challenge = ev.Code
		c.mu.Unlock()
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeAuthChallenge, Data: eventbus.AuthChallenge{Code: ev.Code}})
		c.publishStatus("scan the code to authenticate")

	case EventPaired:
		c.mu.Lock()
		c.state = StateAuthenticated
		c.challenge = ""
		c.mu.Unlock()
		c.publishStatus("authenticated")

	case EventReady:
		c.mu.Lock()
		c.state = StateReady
		c.challenge = ""
		c.attempts = 0
		c.lastError = ""
		c.mu.Unlock()
		c.publishStatus("connected")

	case EventLoggedOut:
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeDisconnected, Data: eventbus.Disconnected{Reason: "LOGOUT"}})
		c.mu.Lock()
		c.state = StateIdle
		c.challenge = ""
		c.mu.Unlock()
		c.publishStatus("logged out")
		return true

	case EventDisconnected:
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeDisconnected, Data: eventbus.Disconnected{Reason: ev.Reason}})
		c.log.Warn("connection dropped", logx.String("reason", ev.Reason))
		if !c.redial(ctx) {
			return true
		}

	case EventAuthFailure:
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeAuthFailure, Data: eventbus.AuthFailure{Detail: ev.Detail}})
		c.fail(fmt.Sprintf("%v: %s", ErrAuthFailed, ev.Detail))
		return true

	case EventMessage:
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(ctx, InboundMessage{From: ev.From, Text: ev.Text, At: ev.At})
		}
	}
	return false
}

// redial retries the connection per policy. Returns false when the
// controller reached a terminal state (Failed) or was canceled.
func (c *Controller) redial(ctx context.Context) bool {
	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		policy := c.policy
		c.state = StateStarting
		c.mu.Unlock()

		if attempt > policy.MaxAttempts {
			c.fail("connection lost: reconnect attempts exhausted")
			return false
		}
		c.publishStatus(fmt.Sprintf("reconnecting (attempt %d/%d)", attempt, policy.MaxAttempts))

		wait := policy.DelayFor(attempt)
		tmr := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return false
		case <-tmr.C:
		}

		if err := c.driver.Dial(ctx, c.events); err != nil {
			c.log.Warn("reconnect attempt failed", logx.Int("attempt", attempt), logx.Err(err))
			continue
		}
		return true
	}
}

// closeDriver releases the connection, logging and swallowing cleanup errors.
func (c *Controller) closeDriver(ctx context.Context) {
	if err := c.driver.Close(ctx); err != nil {
		c.log.Warn("connection cleanup failed", logx.Err(err))
	}
}

// fail moves to the terminal Failed state and records the fatal error.
func (c *Controller) fail(msg string) {
	c.mu.Lock()
	c.state = StateFailed
	c.challenge = ""
	c.lastError = msg
	c.mu.Unlock()
	c.log.Error("session failed", logx.String("reason", msg))
	c.publishStatus(msg)
}

func (c *Controller) publishStatus(msg string) {
	snap := c.Status()
	c.bus.Publish(eventbus.Event{
		Type: eventbus.TypeStatusChanged,
		Data: eventbus.StatusChanged{
			Running: snap.Running,
			Ready:   snap.Ready,
			State:   snap.State.String(),
			Message: msg,
		},
	})
}
