// Package core assembles the application: config, logging, stores, the
// session controller, the dispatcher and the campaign scheduler, and exposes
// the operations the command surface calls.
package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"wablast/internal/campaign"
	"wablast/internal/config"
	"wablast/internal/contacts"
	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/history"
	"wablast/internal/inbound"
	"wablast/internal/phone"
	"wablast/internal/runtime/supervisor"
	"wablast/internal/session"
	"wablast/internal/storage"
	"wablast/internal/wa"
	logx "wablast/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	norm     phone.Normalizer
	store    storage.Store
	contacts *contacts.Store
	history  *history.Store

	ctrl    *session.Controller
	disp    *dispatch.Dispatcher
	inbound *inbound.Handler
	sched   *campaign.Scheduler

	autostart bool
}

// runnerFunc adapts a closure to campaign.Runner.
type runnerFunc func(ctx context.Context, template string) error

func (f runnerFunc) Dispatch(ctx context.Context, template string) error { return f(ctx, template) }

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()
	norm := mapNormalizer(cfg)
	contactStore := contacts.NewStore(norm)
	historyStore := history.NewStore(norm)

	// Roster persistence (optional)
	var store storage.Store
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if st, err := storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
		return nil, err
	} else if st != nil {
		store = st
		log.Info("contact storage enabled", logx.String("driver", sc.Driver))
	}

	policy, err := mapRetryPolicy(cfg)
	if err != nil {
		return nil, err
	}
	driver := wa.NewDriver(wa.Config{
		SessionDB:  cfg.WhatsApp.SessionDB,
		TerminalQR: cfg.WhatsApp.TerminalQR,
		LogLevel:   cfg.WhatsApp.LogLevel,
	}, log.With(logx.String("comp", "wa")))
	ctrl := session.NewController(driver, policy, bus, log.With(logx.String("comp", "session")))

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispCfg, ctrl, historyStore, bus, log.With(logx.String("comp", "dispatch")))

	responder, err := mapResponder(cfg, log.With(logx.String("comp", "reply")))
	if err != nil {
		return nil, err
	}
	inb := inbound.NewHandler(historyStore, bus, ctrl, responder, log.With(logx.String("comp", "inbound")))
	ctrl.SetMessageHandler(func(ctx context.Context, msg session.InboundMessage) {
		inb.Handle(ctx, msg.From, msg.Text, msg.At)
	})

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		norm:      norm,
		store:     store,
		contacts:  contactStore,
		history:   historyStore,
		ctrl:      ctrl,
		disp:      disp,
		inbound:   inb,
		autostart: cfg.WhatsApp.Autostart,
	}
	a.sched = campaign.New(runnerFunc(func(ctx context.Context, template string) error {
		_, err := a.Dispatch(ctx, template)
		return err
	}), log.With(logx.String("comp", "campaign")))
	a.sched.Apply(cfg.Campaigns, cfg.Timezone)

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	})

	// Debug-level event mirror; push channels subscribe themselves.
	events, unsubEv := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsubEv()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", string(e.Type)), logx.Time("time", e.Time))
			}
		}
	})

	// Persist per-contact delivery counters off the bus.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("storage.counters", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					p, ok := e.Data.(eventbus.DispatchProgress)
					if !ok {
						continue
					}
					wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					if err := a.store.AddSentCount(wctx, p.Counterparty, 1); err != nil {
						a.log.Warn("sent counter persist failed", logx.String("phone", p.Counterparty), logx.Err(err))
					}
					cancel()
				}
			}
		})

		// Seed the roster from persisted contacts.
		if n, err := a.LoadContactsFromStore(ctx); err != nil {
			a.log.Warn("roster load from storage failed", logx.Err(err))
		} else if n > 0 {
			a.log.Info("roster loaded from storage", logx.Int("contacts", n))
		}
	}

	a.sched.Start(a.sup.Context())

	if a.autostart {
		if err := a.ctrl.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.log.Info("app started")
	return nil
}

// applyConfig applies a hot-reloaded config. Logging, dispatch pacing and
// campaigns change live; session, reply and storage changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLogConfig(cfg))

	if dc, err := mapDispatchConfig(cfg); err != nil {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	} else {
		a.disp.Apply(dc)
	}

	a.sched.Apply(cfg.Campaigns, cfg.Timezone)
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("app stopping")

	a.sched.Stop(ctx)
	if err := a.ctrl.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("session stop", logx.Err(err))
	}

	var firstErr error
	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			firstErr = err
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = a.logs.Close()
	return firstErr
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// ---- operations ----

// StartSession connects (or re-pairs) the messaging session.
func (a *App) StartSession(ctx context.Context) error {
	parent := ctx
	if a.sup != nil {
		parent = a.sup.Context()
	}
	return a.ctrl.Start(parent)
}

// StopSession disconnects and returns the session to idle.
func (a *App) StopSession(ctx context.Context) error {
	return a.ctrl.Stop(ctx)
}

// Dispatch sends template to every active contact, blocking until the run
// finishes. Refusals (no session, run in flight, empty roster) surface as
// errors before any send happens.
func (a *App) Dispatch(ctx context.Context, template string) (int, error) {
	if strings.TrimSpace(template) == "" {
		return 0, errors.New("dispatch: empty message template")
	}
	list := a.contacts.List()
	if len(list) == 0 {
		return 0, errors.New("dispatch: contact list is empty")
	}
	return a.disp.Run(ctx, template, list)
}

// LoadContactsText merges contacts parsed from a delimited text payload into
// the roster and, when storage is enabled, persists the full roster.
func (a *App) LoadContactsText(ctx context.Context, payload string) (int, error) {
	added, err := a.contacts.LoadFromText(payload)
	if err != nil {
		return 0, err
	}
	a.persistRoster(ctx)
	return added, nil
}

// LoadContactsFromStore merges persisted contacts into the roster.
func (a *App) LoadContactsFromStore(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, storage.ErrDisabled
	}
	recs, err := a.store.ListContacts(ctx)
	if err != nil {
		return 0, err
	}
	list := make([]contacts.Contact, 0, len(recs))
	for _, r := range recs {
		list = append(list, contacts.Contact{Name: r.Name, Phone: r.Phone, Active: r.Active})
	}
	return a.contacts.LoadFromRecords(list), nil
}

// AddContact inserts one roster entry. Returns false when the phone is
// invalid or already present.
func (a *App) AddContact(ctx context.Context, name, phoneRaw string) bool {
	ok := a.contacts.Add(contacts.Contact{Name: name, Phone: phoneRaw, Active: true})
	if ok {
		a.persistRoster(ctx)
	}
	return ok
}

// FindContact looks up a roster entry by raw phone (normalized first).
func (a *App) FindContact(raw string) (contacts.Contact, bool) {
	return a.contacts.FindByPhone(raw)
}

// SentCount returns the persisted delivery counter for one contact, looked up
// by raw phone (normalized first). storage.ErrDisabled when no store is
// configured.
func (a *App) SentCount(ctx context.Context, raw string) (int64, error) {
	if a.store == nil {
		return 0, storage.ErrDisabled
	}
	canonical, err := a.norm.Normalize(raw)
	if err != nil {
		return 0, err
	}
	return a.store.SentCount(ctx, canonical)
}

// ClearContacts empties the in-memory roster. Persisted contacts are kept.
func (a *App) ClearContacts() {
	a.contacts.Clear()
}

func (a *App) persistRoster(ctx context.Context) {
	if a.store == nil {
		return
	}
	list := a.contacts.List()
	recs := make([]storage.ContactRecord, 0, len(list))
	for _, c := range list {
		recs = append(recs, storage.ContactRecord{Name: c.Name, Phone: c.Phone, Active: c.Active})
	}
	if err := a.store.UpsertContacts(ctx, recs); err != nil {
		a.log.Warn("roster persist failed", logx.Err(err))
	}
}

// Contacts returns a copy of the current roster.
func (a *App) Contacts() []contacts.Contact { return a.contacts.List() }

// ChatHistory returns the recorded messages for one counterparty, oldest first.
func (a *App) ChatHistory(id string) []history.Message { return a.history.HistoryFor(id) }

// Chats returns all recorded conversations keyed by counterparty.
func (a *App) Chats() map[string][]history.Message { return a.history.All() }

// Subscribe attaches an external event sink (UI, logging bridge). The
// returned func detaches it.
func (a *App) Subscribe(buffer int) (<-chan eventbus.Event, func()) {
	return a.bus.Subscribe(buffer)
}

// Status reports the composite bot state the command surface shows.
type Status struct {
	Running          bool
	Ready            bool
	State            string
	PendingChallenge string
	LastError        string
	Contacts         int
	MessagesSent     uint64
	DispatchInFlight bool
}

func (a *App) Status() Status {
	snap := a.ctrl.Status()
	return Status{
		Running:          snap.Running,
		Ready:            snap.Ready,
		State:            snap.State.String(),
		PendingChallenge: snap.Challenge,
		LastError:        snap.LastError,
		Contacts:         a.contacts.Len(),
		MessagesSent:     a.disp.MessagesSent(),
		DispatchInFlight: a.disp.InFlight(),
	}
}
