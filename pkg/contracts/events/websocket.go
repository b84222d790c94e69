// Package events defines the realtime channel contract: message types,
// the envelope, and the payload of every event.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Connection
	MessageTypeConnection MessageType = "connection"
	MessageTypeError      MessageType = "error"

	// License
	MessageTypeLicenseStatus           MessageType = "license-status"
	MessageTypeLicenseRequired         MessageType = "license-required"
	MessageTypeLicenseValidated        MessageType = "license-validated"
	MessageTypeLicenseValidationFailed MessageType = "license-validation-failed"

	// Session
	MessageTypeQR              MessageType = "qr"
	MessageTypeReady           MessageType = "ready"
	MessageTypeDisconnected    MessageType = "disconnected"
	MessageTypeMessage         MessageType = "message"
	MessageTypeIncomingMessage MessageType = "incoming-message"

	// Bulk sends to numbers
	MessageTypeBulkProgress      MessageType = "bulk-progress"
	MessageTypeBulkMessageSent   MessageType = "bulk-message-sent"
	MessageTypeBulkMessageFailed MessageType = "bulk-message-failed"
	MessageTypeBulkComplete      MessageType = "bulk-complete"

	// Bulk sends to groups
	MessageTypeGroupBulkProgress  MessageType = "group-bulk-progress"
	MessageTypeGroupMessageSent   MessageType = "group-message-sent"
	MessageTypeGroupMessageFailed MessageType = "group-message-failed"
	MessageTypeGroupBulkComplete  MessageType = "group-bulk-complete"
)

// Inbound client commands.
const (
	CommandValidateLicense = "validate-license"
	CommandHeartbeat       = "heartbeat"
)

// WebSocketMessage is the envelope of every outbound frame.
type WebSocketMessage struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ClientCommand is an inbound frame.
type ClientCommand struct {
	Type       string `json:"type"`
	LicenseKey string `json:"license_key,omitempty"`
}

// LicenseEvent is the payload of the license-* events.
type LicenseEvent struct {
	Valid    bool   `json:"valid"`
	Verdict  string `json:"verdict"`
	Reason   string `json:"reason"`
	Degraded bool   `json:"degraded"`
	Message  string `json:"message"`
	Key      string `json:"key,omitempty"`
	// DaysRemaining is omitted when the license never expires locally.
	DaysRemaining *int `json:"days_remaining,omitempty"`
}

// ConnectionEvent greets a newly connected client.
type ConnectionEvent struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
}

// IncomingMessage is a message received by the WhatsApp session.
type IncomingMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// BulkProgress is emitted before each send.
type BulkProgress struct {
	JobID      string `json:"job_id"`
	Total      int    `json:"total"`
	Current    int    `json:"current"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Percentage int    `json:"percentage"`
}

// BulkItemEvent is emitted after each send, successful or not.
type BulkItemEvent struct {
	JobID     string `json:"job_id"`
	Target    string `json:"target"`
	Name      string `json:"name,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
}

// BulkResult records the outcome for one target.
type BulkResult struct {
	Target    string    `json:"target"`
	Name      string    `json:"name,omitempty"`
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BulkSummary closes a bulk job.
type BulkSummary struct {
	JobID     string       `json:"job_id"`
	Kind      string       `json:"kind"`
	Total     int          `json:"total"`
	Sent      int          `json:"sent"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Aborted   bool         `json:"aborted"`
	Reason    string       `json:"reason,omitempty"`
	Results   []BulkResult `json:"results"`
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	// Report names the CSV report of the job, when one was written.
	Report string `json:"report,omitempty"`
}

// SessionEvent is the payload of the qr, ready and disconnected events.
type SessionEvent struct {
	State  string `json:"state"`
	QR     string `json:"qr,omitempty"`
	Reason string `json:"reason,omitempty"`
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ErrorEvent reports a rejected client command.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
