package messaging

import (
	"context"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

// Session is a logged-in WhatsApp account. Every send fails with
// apierrors.ErrSessionNotReady until Ready reports true.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	Started() bool
	Ready() bool
	// QR returns the pending login QR as a PNG data URL, or "".
	QR() string
	Info(ctx context.Context) (domain.AccountInfo, error)
	Send(ctx context.Context, number, message string) (domain.SendResult, error)
	SendToGroup(ctx context.Context, groupID, message string) (domain.SendResult, error)
	Groups(ctx context.Context) ([]domain.Group, error)
	Group(ctx context.Context, groupID string) (domain.GroupInfo, error)
	Logout(ctx context.Context) error
}

// Publisher fans events out to realtime clients.
type Publisher interface {
	Broadcast(messageType events.MessageType, data any)
}

// LicenseGate is consulted before every send of a bulk job.
type LicenseGate interface {
	IsUsable() bool
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Broadcast implements Publisher.
func (NopPublisher) Broadcast(events.MessageType, any) {}
