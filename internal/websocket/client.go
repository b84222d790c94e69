package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer, unless
	// configured otherwise
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	sendBuffer = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn Connection

	// Buffered channel of outbound frames. Only the hub closes it.
	send chan []byte

	// greeting is queued by the hub on registration.
	greeting [][]byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	ctx         context.Context

	logger *slog.Logger
}

// NewClient creates a client for conn. It is not registered until
// Hub.Attach.
func NewClient(hub *Hub, conn Connection, traceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		ctx:         infrastructure.WithTraceID(context.Background(), traceID),
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
	}
}

// ID returns the client identifier sent in the connection event.
func (c *Client) ID() string { return c.id }

// ReadPump reads client commands until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	pongWait := c.hub.pongWait
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.ctx, "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			return
		}
		c.hub.messagesReceived.Add(1)
		c.handle(bytes.TrimSpace(message))
	}
}

func (c *Client) handle(message []byte) {
	var cmd events.ClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.hub.metrics.recordMessage(c.ctx, "in", "malformed", len(message))
		c.hub.sendTo(c, events.MessageTypeError, events.ErrorEvent{
			Code:    "INVALID_COMMAND",
			Message: "command must be a JSON object with a type",
		})
		return
	}
	c.hub.metrics.recordMessage(c.ctx, "in", cmd.Type, len(message))

	switch cmd.Type {
	case events.CommandHeartbeat:
		c.logger.DebugContext(c.ctx, "Heartbeat received")
	case events.CommandValidateLicense:
		c.validateLicense(cmd.LicenseKey)
	default:
		c.hub.sendTo(c, events.MessageTypeError, events.ErrorEvent{
			Code:    "UNKNOWN_COMMAND",
			Message: "unknown command " + cmd.Type,
		})
	}
}

// validateLicense activates key and answers the requesting client. On
// success every client is told the license changed.
func (c *Client) validateLicense(key string) {
	if c.hub.license == nil {
		c.hub.sendTo(c, events.MessageTypeLicenseValidationFailed, events.LicenseEvent{
			Verdict: "invalid",
			Message: "license validation is not available",
		})
		return
	}
	if strings.TrimSpace(key) == "" {
		c.hub.sendTo(c, events.MessageTypeLicenseValidationFailed, events.LicenseEvent{
			Verdict: "invalid",
			Message: "license key is required",
		})
		return
	}

	c.logger.InfoContext(c.ctx, "License validation requested over websocket")
	resp, err := c.hub.license.Activate(c.ctx, key)
	ev := licenseEvent(resp)
	if err != nil {
		if ev.Message == "" {
			ev.Message = err.Error()
		}
		c.logger.WarnContext(c.ctx, "License validation over websocket failed",
			slog.String("error", err.Error()))
		c.hub.sendTo(c, events.MessageTypeLicenseValidationFailed, ev)
		return
	}

	c.hub.sendTo(c, events.MessageTypeLicenseValidated, ev)
	c.hub.Broadcast(events.MessageTypeLicenseStatus, ev)
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.ctx, "Error writing message to WebSocket",
					slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx, "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}
