package websocket

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

// Connection is the subset of *websocket.Conn a Client uses.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// LicenseGateway answers the license questions clients ask over the
// channel. services.LicenseService satisfies it.
type LicenseGateway interface {
	Status(ctx context.Context) *domain.LicenseStatusResponse
	Activate(ctx context.Context, key string) (*domain.LicenseStatusResponse, error)
}

type gorillaConn struct {
	*websocket.Conn
}

func (c gorillaConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
