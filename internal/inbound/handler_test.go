package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wablast/internal/eventbus"
	"wablast/internal/history"
	"wablast/internal/phone"
	"wablast/pkg/logx"
)

type fakeSender struct {
	mu      sync.Mutex
	ready   bool
	sent    [][2]string
	sendErr error
}

func (f *fakeSender) Ready() bool { return f.ready }

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, [2]string{to, text})
	return nil
}

type fakeResponder struct {
	reply string
	err   error
}

func (f fakeResponder) Reply(ctx context.Context, from, text string) (string, error) {
	return f.reply, f.err
}

func TestHandleRecordsIncoming(t *testing.T) {
	t.Parallel()
	hist := history.NewStore(phone.Default())
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	h := NewHandler(hist, bus, &fakeSender{}, nil, logx.Nop())
	h.Handle(context.Background(), "081234567890", "halo", time.Now())

	msgs := hist.HistoryFor("6281234567890")
	if len(msgs) != 1 || msgs[0].Direction != eventbus.DirIncoming {
		t.Fatalf("unexpected history: %+v", msgs)
	}
	if hist.IncomingCount("6281234567890") != 1 {
		t.Fatal("IncomingCount != 1")
	}

	select {
	case e := <-events:
		if e.Type != eventbus.TypeMessage {
			t.Fatalf("event type = %s", e.Type)
		}
		me := e.Data.(eventbus.MessageEvent)
		if me.Direction != eventbus.DirIncoming || me.Counterparty != "6281234567890" {
			t.Fatalf("unexpected event payload: %+v", me)
		}
	case <-time.After(time.Second):
		t.Fatal("no message event published")
	}
}

func TestHandleSendsReply(t *testing.T) {
	t.Parallel()
	hist := history.NewStore(phone.Default())
	s := &fakeSender{ready: true}
	h := NewHandler(hist, eventbus.New(), s, fakeResponder{reply: "halo juga"}, logx.Nop())

	h.Handle(context.Background(), "081234567890", "halo", time.Now())

	if len(s.sent) != 1 || s.sent[0][1] != "halo juga" {
		t.Fatalf("unexpected sends: %v", s.sent)
	}
	msgs := hist.HistoryFor("6281234567890")
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2 (incoming + reply)", len(msgs))
	}
	if msgs[1].Direction != eventbus.DirOutgoing || msgs[1].Content != "halo juga" {
		t.Fatalf("reply not recorded: %+v", msgs[1])
	}
}

func TestHandleResponderErrorDoesNotCrash(t *testing.T) {
	t.Parallel()
	hist := history.NewStore(phone.Default())
	s := &fakeSender{ready: true}
	h := NewHandler(hist, eventbus.New(), s, fakeResponder{err: errors.New("oracle exploded")}, logx.Nop())

	h.Handle(context.Background(), "081234567890", "halo", time.Now())

	if len(s.sent) != 0 {
		t.Fatalf("sent a reply despite responder error: %v", s.sent)
	}
	// Incoming message is still recorded.
	if hist.IncomingCount("6281234567890") != 1 {
		t.Fatal("incoming message lost")
	}
}

func TestHandleEmptyReplyMeansSilence(t *testing.T) {
	t.Parallel()
	hist := history.NewStore(phone.Default())
	s := &fakeSender{ready: true}
	h := NewHandler(hist, eventbus.New(), s, fakeResponder{reply: ""}, logx.Nop())

	h.Handle(context.Background(), "081234567890", "halo", time.Now())
	if len(s.sent) != 0 {
		t.Fatalf("sent a reply for empty responder output: %v", s.sent)
	}
}

func TestHandleSendFailureSwallowed(t *testing.T) {
	t.Parallel()
	hist := history.NewStore(phone.Default())
	s := &fakeSender{ready: true, sendErr: errors.New("send failed")}
	h := NewHandler(hist, eventbus.New(), s, fakeResponder{reply: "halo juga"}, logx.Nop())

	h.Handle(context.Background(), "081234567890", "halo", time.Now())

	msgs := hist.HistoryFor("6281234567890")
	if len(msgs) != 1 {
		t.Fatalf("history length = %d, want 1 (failed reply must not be recorded)", len(msgs))
	}
}
