// Package wa adapts whatsmeow to the session driver contract: dialing,
// QR pairing, text sends, and translation of transport events.
package wa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"wablast/internal/session"
	logx "wablast/pkg/logx"
)

type Config struct {
	// SessionDB is the sqlite file holding device credentials. A fresh file
	// triggers QR pairing on the first dial.
	SessionDB string

	// TerminalQR additionally renders pairing codes to stdout.
	TerminalQR bool

	// LogLevel for whatsmeow's own logger ("ERROR" when empty).
	LogLevel string
}

// Driver implements session.Driver on top of a whatsmeow client. The client
// and its credential store are initialized once on the first dial and reused
// across reconnects; Close releases the connection but leaves the driver
// dialable again.
type Driver struct {
	cfg Config
	log logx.Logger

	mu     sync.Mutex
	client *whatsmeow.Client
	events chan<- session.Event
	closed bool
}

func NewDriver(cfg Config, log logx.Logger) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{cfg: cfg, log: log}
}

func (d *Driver) Dial(ctx context.Context, eventsCh chan<- session.Event) error {
	d.mu.Lock()
	// Close tears down one connection, not the driver: dialing again after a
	// stop (or a terminal session end) reopens it.
	d.closed = false
	d.events = eventsCh
	client := d.client
	d.mu.Unlock()

	if client == nil {
		c, err := d.initClient(ctx)
		if err != nil {
			return err
		}
		client = c
	}

	if client.Store.ID == nil {
		// Fresh credentials: pair via QR before the socket is usable.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil && !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
			return fmt.Errorf("qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return err
		}
		if qrChan != nil {
			go d.consumeQR(qrChan)
		}
		return nil
	}
	return client.Connect()
}

func (d *Driver) initClient(ctx context.Context) (*whatsmeow.Client, error) {
	level := strings.ToUpper(strings.TrimSpace(d.cfg.LogLevel))
	if level == "" {
		level = "ERROR"
	}
	dbLog := waLog.Stdout("WA/DB", level, true)
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", d.cfg.SessionDB), dbLog)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("WA", level, true))
	// Reconnects are driven by the session controller's policy.
	client.EnableAutoReconnect = false
	client.AddEventHandler(d.handleEvent)

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	return client, nil
}

func (d *Driver) SendText(ctx context.Context, to, text string) error {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil {
		return errors.New("not connected")
	}
	jid := types.NewJID(to, types.DefaultUserServer)
	msg := &waE2E.Message{Conversation: proto.String(text)}
	_, err := client.SendMessage(ctx, jid, msg)
	return err
}

func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	client := d.client
	d.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	return nil
}

func (d *Driver) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if d.cfg.TerminalQR {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
			d.emit(session.Event{Kind: session.EventQR, Code: evt.Code, At: time.Now()})
		case "success":
			return
		case "timeout":
			d.emit(session.Event{Kind: session.EventDisconnected, Reason: "qr pairing timed out", At: time.Now()})
			return
		}
	}
}

func (d *Driver) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		d.emit(session.Event{Kind: session.EventPaired, At: time.Now()})
	case *events.Connected:
		d.emit(session.Event{Kind: session.EventReady, At: time.Now()})
	case *events.Disconnected:
		d.emit(session.Event{Kind: session.EventDisconnected, Reason: "connection closed", At: time.Now()})
	case *events.LoggedOut:
		d.emit(session.Event{Kind: session.EventLoggedOut, Reason: v.Reason.String(), At: time.Now()})
	case *events.Message:
		if v.Info.IsGroup || v.Info.IsFromMe {
			return
		}
		text := extractText(v.Message)
		if text == "" {
			return
		}
		d.emit(session.Event{
			Kind: session.EventMessage,
			From: v.Info.Sender.User,
			Text: text,
			At:   v.Info.Timestamp,
		})
	}
}

// extractText pulls the plain text out of a message, covering both bare
// conversations and extended text (links, quotes).
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func (d *Driver) emit(ev session.Event) {
	d.mu.Lock()
	ch := d.events
	closed := d.closed
	d.mu.Unlock()
	if closed || ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
		d.log.Warn("session event dropped", logx.String("kind", ev.Kind.String()))
	}
}
