// Package dispatch turns a message template plus the contact list into a
// throttled sequence of outbound sends over the active session. At most one
// run exists per process; pacing between sends is a deliberate control to
// stay under the network's abuse heuristics, not an incidental delay.
package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"wablast/internal/contacts"
	"wablast/internal/eventbus"
	"wablast/internal/history"
	"wablast/pkg/logx"
)

var (
	// ErrNotReady is returned when a run is requested without an
	// established connection. Recoverable; retry after the session is up.
	ErrNotReady = errors.New("dispatch: session not ready")
	// ErrAlreadyRunning guards the single-run-per-process invariant.
	ErrAlreadyRunning = errors.New("dispatch: run already in flight")
	// ErrConnectionLost aborts a run when the connection drops mid-way;
	// the contacts already messaged stay messaged.
	ErrConnectionLost = errors.New("dispatch: connection lost mid-run")
)

// Placeholder replaced by the contact's name in the message template.
const namePlaceholder = "{name}"

// Sender is the slice of the session controller the dispatcher needs.
type Sender interface {
	Ready() bool
	SendText(ctx context.Context, to, text string) error
}

type Config struct {
	// PauseMin/PauseMax bound the randomized inter-send pause.
	PauseMin time.Duration
	PauseMax time.Duration
	// RatePerSec additionally caps outbound sends; 0 disables the cap.
	RatePerSec int
}

func DefaultConfig() Config {
	return Config{
		PauseMin: 2500 * time.Millisecond,
		PauseMax: 5 * time.Second,
	}
}

// Dispatcher drains the contact list sequentially, one message per contact.
// Safe for concurrent use; concurrent Run calls beyond the first fail with
// ErrAlreadyRunning.
type Dispatcher struct {
	mu       sync.Mutex
	cfg      Config
	inFlight bool
	limiter  *rate.Limiter

	sender Sender
	hist   *history.Store
	bus    eventbus.Bus
	log    logx.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	sent atomic.Uint64 // total successful sends across all runs
}

func New(cfg Config, sender Sender, hist *history.Store, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		sender: sender,
		hist:   hist,
		bus:    bus,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	d.applyLocked(cfg)
	return d
}

// Apply swaps pacing knobs at runtime. A run already in flight keeps going
// and picks up the new limiter on its next send.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.PauseMin < 0 {
		cfg.PauseMin = 0
	}
	if cfg.PauseMax < cfg.PauseMin {
		cfg.PauseMax = cfg.PauseMin
	}
	d.cfg = cfg
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		d.limiter = nil
	}
}

// MessagesSent returns the total successful sends across all runs.
func (d *Dispatcher) MessagesSent() uint64 { return d.sent.Load() }

// InFlight reports whether a run is currently active.
func (d *Dispatcher) InFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// Run sends the template to every active contact in order and returns the
// number successfully messaged. Individual delivery failures are logged and
// skipped; only precondition violations and a fatal mid-run connection loss
// surface as errors.
func (d *Dispatcher) Run(ctx context.Context, template string, list []contacts.Contact) (int, error) {
	if !d.sender.Ready() {
		return 0, ErrNotReady
	}

	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	d.inFlight = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.inFlight = false
		d.mu.Unlock()
	}()

	// Progress totals count only the contacts a run can actually reach.
	total := 0
	for _, c := range list {
		if c.Active {
			total++
		}
	}

	start := time.Now()
	d.log.Info("dispatch run started", logx.Int("contacts", total))

	sent := 0
	for _, c := range list {
		if !c.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if sent > 0 {
			if err := d.pause(ctx); err != nil {
				return sent, err
			}
		}

		// A drop mid-run aborts the remainder instead of failing every
		// subsequent send one by one.
		if !d.sender.Ready() {
			d.log.Warn("dispatch aborted", logx.Int("sent", sent), logx.Int("total", total))
			return sent, ErrConnectionLost
		}

		d.mu.Lock()
		lim := d.limiter
		d.mu.Unlock()
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return sent, err
			}
		}

		text := strings.ReplaceAll(template, namePlaceholder, c.Name)
		if err := d.sender.SendText(ctx, c.Phone, text); err != nil {
			if !d.sender.Ready() {
				d.log.Warn("dispatch aborted", logx.Int("sent", sent), logx.Err(err))
				return sent, ErrConnectionLost
			}
			d.log.Warn("send failed, skipping contact", logx.String("to", c.Phone), logx.Err(err))
			continue
		}

		sent++
		d.sent.Add(1)
		m := d.hist.Record(c.Phone, text, eventbus.DirOutgoing)
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeMessage, Data: eventbus.MessageEvent{
			Direction:    eventbus.DirOutgoing,
			Counterparty: m.Counterparty,
			Content:      m.Content,
			At:           m.At,
		}})
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDispatchProgress, Data: eventbus.DispatchProgress{
			Counterparty: m.Counterparty,
			Sent:         sent,
			Total:        total,
		}})
	}

	d.log.Info("dispatch run finished", logx.Int("sent", sent), logx.Int("total", total), logx.Duration("took", time.Since(start)))
	return sent, nil
}

// pause sleeps a randomized interval drawn uniformly from the configured
// range, honoring cancellation.
func (d *Dispatcher) pause(ctx context.Context) error {
	d.mu.Lock()
	minP, maxP := d.cfg.PauseMin, d.cfg.PauseMax
	d.mu.Unlock()
	if maxP <= 0 {
		return nil
	}

	wait := minP
	if span := maxP - minP; span > 0 {
		d.rngMu.Lock()
		wait += time.Duration(d.rng.Int63n(int64(span) + 1))
		d.rngMu.Unlock()
	}

	tmr := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
