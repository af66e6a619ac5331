package wa

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"wablast/internal/session"
	"wablast/pkg/logx"
)

func TestDialAfterCloseReopens(t *testing.T) {
	t.Parallel()
	d := NewDriver(Config{SessionDB: filepath.Join(t.TempDir(), "wa.db")}, logx.Nop())
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A canceled context keeps the dial offline; the point is that the driver
	// accepts the attempt instead of rejecting it as closed.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := make(chan session.Event, 1)
	if err := d.Dial(ctx, events); err != nil && strings.Contains(err.Error(), "driver closed") {
		t.Fatalf("Dial after Close rejected: %v", err)
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		t.Fatal("driver still marked closed after Dial")
	}

	d.emit(session.Event{Kind: session.EventReady, At: time.Now()})
	select {
	case ev := <-events:
		if ev.Kind != session.EventReady {
			t.Fatalf("event kind = %s, want ready", ev.Kind)
		}
	default:
		t.Fatal("events suppressed after re-dial")
	}
}

func TestExtractText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("halo")}, "halo"},
		{"extended", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("lihat https://example.com")},
		}, "lihat https://example.com"},
		{"unsupported", &waE2E.Message{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractText(tc.msg); got != tc.want {
				t.Fatalf("extractText = %q, want %q", got, tc.want)
			}
		})
	}
}
