package app

import (
	"context"
	"time"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/services"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

// licenseBroadcaster tells realtime clients when the license verdict
// changes, so an open page learns about a revoked or restored license
// without polling.
type licenseBroadcaster struct {
	publisher messaging.Publisher
	state     interface{ LastVerdict() license.Outcome }
	now       func() time.Time
}

func (b *licenseBroadcaster) RecordTransition(_ context.Context, t license.Transition) error {
	if b.publisher == nil || b.state == nil {
		return nil
	}
	out := b.state.LastVerdict()
	messageType := events.MessageTypeLicenseRequired
	if out.Usable() {
		messageType = events.MessageTypeLicenseStatus
	}
	now := time.Now
	if b.now != nil {
		now = b.now
	}
	ev := services.LicenseEvent(out, now())
	if ev.Reason == "" {
		ev.Reason = string(t.Reason)
	}
	b.publisher.Broadcast(messageType, ev)
	return nil
}
