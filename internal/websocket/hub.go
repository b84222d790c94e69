package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

const (
	broadcastBuffer        = 256
	defaultMetricsInterval = 30 * time.Second
)

// HubConfig configures a Hub. License may be nil, in which case clients
// get no license greeting and validate-license is refused.
type HubConfig struct {
	License        LicenseGateway
	AppMetrics     *infrastructure.AppMetrics
	Metrics        *Metrics
	AllowedOrigins []string

	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	// MetricsInterval is how often hub counters are logged.
	MetricsInterval time.Duration
}

type directMessage struct {
	client *Client
	frame  []byte
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage

	mu     sync.RWMutex
	logger *slog.Logger

	license         LicenseGateway
	appMetrics      *infrastructure.AppMetrics
	metrics         *Metrics
	upgrader        websocket.Upgrader
	pingPeriod      time.Duration
	pongWait        time.Duration
	metricsInterval time.Duration

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64

	quit     chan struct{}
	done     chan struct{}
	running  bool
	stopOnce sync.Once
}

// NewHub creates a new Hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = defaultMetricsInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}
	h := &Hub{
		clients:         make(map[*Client]bool),
		broadcast:       make(chan []byte, broadcastBuffer),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		direct:          make(chan directMessage, broadcastBuffer),
		logger:          logger.With(slog.String("component", "websocket.hub")),
		license:         cfg.License,
		appMetrics:      cfg.AppMetrics,
		metrics:         cfg.Metrics,
		pingPeriod:      cfg.PingPeriod,
		pongWait:        cfg.PongWait,
		metricsInterval: cfg.MetricsInterval,
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows requests without an Origin header, and any origin
// when the list is empty or contains "*".
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Start starts the hub's goroutines.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run is the hub's main loop. All client send channels are owned by it.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.totalConnections.Add(1)

			h.appMetrics.WebSocketClientDelta(client.ctx, 1)
			h.metrics.recordConnection(client.ctx)
			h.logger.InfoContext(client.ctx, "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			for _, frame := range client.greeting {
				h.deliver(client, frame)
			}
			client.greeting = nil

		case client := <-h.unregister:
			h.remove(client, "closed")

		case frame := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				h.deliver(client, frame)
			}

		case msg := <-h.direct:
			h.mu.RLock()
			_, ok := h.clients[msg.client]
			h.mu.RUnlock()
			if ok {
				h.deliver(msg.client, msg.frame)
			}
		}
	}
}

// deliver queues a frame for one client. A client whose buffer is full is
// disconnected.
func (h *Hub) deliver(client *Client, frame []byte) {
	select {
	case client.send <- frame:
		h.messagesSent.Add(1)
	default:
		h.metrics.recordDropped(client.ctx, "buffer_full")
		h.logger.WarnContext(client.ctx, "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.remove(client, "slow_consumer")
	}
}

func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	connected := time.Since(client.connectedAt)
	h.appMetrics.WebSocketClientDelta(client.ctx, -1)
	h.metrics.recordDisconnection(client.ctx, connected)
	h.logger.InfoContext(client.ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", connected))
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(messageType events.MessageType, data any) {
	frame, err := encode(messageType, data, "")
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(messageType)))
		return
	}
	h.metrics.recordMessage(context.Background(), "out", string(messageType), len(frame))
	select {
	case h.broadcast <- frame:
	case <-h.quit:
	}
}

// sendTo queues an event for a single client.
func (h *Hub) sendTo(client *Client, messageType events.MessageType, data any) {
	frame, err := encode(messageType, data, client.traceID)
	if err != nil {
		h.logger.ErrorContext(client.ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", string(messageType)))
		return
	}
	h.metrics.recordMessage(client.ctx, "out", string(messageType), len(frame))
	select {
	case h.direct <- directMessage{client: client, frame: frame}:
	case <-h.quit:
	}
}

func encode(messageType events.MessageType, data any, traceID string) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop disconnects every client and stops the hub. It is safe to call more
// than once.
func (h *Hub) Stop() {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()

	h.stopOnce.Do(func() { close(h.quit) })
	if running {
		<-h.done
	}
}

// ServeHTTP upgrades the request and attaches a new client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetReqID(r.Context())
	if traceID == "" {
		traceID = infrastructure.GenerateTraceID()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("origin", r.Header.Get("Origin")))
		return
	}

	client := NewClient(h, gorillaConn{conn}, traceID, h.logger)
	client.greeting = h.greeting(client)
	h.Attach(client)
}

// Attach registers client and starts its pumps.
func (h *Hub) Attach(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		client.conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump()
}

// greeting builds the frames a client receives right after connecting.
func (h *Hub) greeting(client *Client) [][]byte {
	frames := make([][]byte, 0, 2)
	if frame, err := encode(events.MessageTypeConnection, events.ConnectionEvent{
		Status:   "connected",
		ClientID: client.id,
		Message:  "connected to WhatsApp bot",
	}, client.traceID); err == nil {
		frames = append(frames, frame)
	}

	if h.license == nil {
		return frames
	}
	resp := h.license.Status(client.ctx)
	messageType := events.MessageTypeLicenseRequired
	if resp.IsValid {
		messageType = events.MessageTypeLicenseStatus
	}
	if frame, err := encode(messageType, licenseEvent(resp), client.traceID); err == nil {
		frames = append(frames, frame)
	}
	return frames
}

// licenseEvent projects a status response onto the realtime payload.
func licenseEvent(resp *domain.LicenseStatusResponse) events.LicenseEvent {
	if resp == nil {
		return events.LicenseEvent{Verdict: "invalid"}
	}
	ev := events.LicenseEvent{
		Valid:    resp.IsValid,
		Verdict:  resp.Verdict,
		Reason:   resp.Reason,
		Degraded: resp.Degraded,
		Message:  resp.Message,
	}
	if resp.License != nil {
		ev.Key = resp.License.Key
		if days := resp.License.DaysRemaining; days >= 0 {
			ev.DaysRemaining = &days
		}
	}
	return ev
}

// reportMetrics periodically logs hub counters.
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(h.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			h.logger.Debug("WebSocket hub metrics",
				slog.Int("active_clients", h.ClientCount()),
				slog.Int64("total_connections", h.totalConnections.Load()),
				slog.Int64("messages_sent", h.messagesSent.Load()),
				slog.Int64("messages_received", h.messagesReceived.Load()),
				slog.Int("broadcast_queue", len(h.broadcast)),
			)
		}
	}
}
