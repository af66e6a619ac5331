// Package inbound processes messages arriving from the network: every
// inbound message is recorded, announced on the bus, and optionally answered
// through the reply oracle.
package inbound

import (
	"context"
	"time"

	"wablast/internal/eventbus"
	"wablast/internal/history"
	"wablast/internal/reply"
	"wablast/pkg/logx"
)

// Sender is the slice of the session controller used to push replies back.
type Sender interface {
	Ready() bool
	SendText(ctx context.Context, to, text string) error
}

type Handler struct {
	hist      *history.Store
	bus       eventbus.Bus
	sender    Sender
	responder reply.Responder // nil disables auto-reply
	log       logx.Logger
}

func NewHandler(hist *history.Store, bus eventbus.Bus, sender Sender, responder reply.Responder, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		hist:      hist,
		bus:       bus,
		sender:    sender,
		responder: responder,
		log:       log,
	}
}

// Handle records one inbound message and, when a responder is configured,
// sends its reply back over the same connection. Responder and send failures
// are logged; they never abort inbound processing.
func (h *Handler) Handle(ctx context.Context, from, text string, at time.Time) {
	rec := h.hist.Record(from, text, eventbus.DirIncoming)
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeMessage, Data: eventbus.MessageEvent{
		Direction:    eventbus.DirIncoming,
		Counterparty: rec.Counterparty,
		Content:      rec.Content,
		At:           rec.At,
	}})
	h.log.Debug("inbound message", logx.String("from", rec.Counterparty))

	if h.responder == nil {
		return
	}
	replyText, err := h.responder.Reply(ctx, rec.Counterparty, text)
	if err != nil {
		h.log.Warn("responder failed", logx.String("from", rec.Counterparty), logx.Err(err))
		return
	}
	if replyText == "" {
		return
	}
	if !h.sender.Ready() {
		h.log.Warn("reply dropped, session not ready", logx.String("to", rec.Counterparty))
		return
	}
	if err := h.sender.SendText(ctx, rec.Counterparty, replyText); err != nil {
		h.log.Warn("reply send failed", logx.String("to", rec.Counterparty), logx.Err(err))
		return
	}

	out := h.hist.Record(rec.Counterparty, replyText, eventbus.DirOutgoing)
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeMessage, Data: eventbus.MessageEvent{
		Direction:    eventbus.DirOutgoing,
		Counterparty: out.Counterparty,
		Content:      out.Content,
		At:           out.At,
	}})
}
