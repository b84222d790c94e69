package domain

import "time"

// SendMessageRequest is the body of POST /api/messages/send.
type SendMessageRequest struct {
	Number  string `json:"number" validate:"required,phone"`
	Message string `json:"message" validate:"required,max=4096"`
}

// BulkSendRequest is the body of POST /api/messages/bulk. Zero DelayMS
// uses the configured delay.
type BulkSendRequest struct {
	Numbers     []string `json:"numbers" validate:"required,min=1,dive,required"`
	Message     string   `json:"message" validate:"required,max=4096"`
	DelayMS     int      `json:"delay,omitempty" validate:"omitempty,min=0,max=600000"`
	StopOnError bool     `json:"stop_on_error,omitempty"`
}

// GroupSendRequest is the body of POST /api/messages/groups/send.
type GroupSendRequest struct {
	GroupID string `json:"group_id" validate:"required"`
	Message string `json:"message" validate:"required,max=4096"`
}

// GroupsSendRequest is the body of POST /api/messages/groups/send-many.
type GroupsSendRequest struct {
	GroupIDs    []string `json:"group_ids" validate:"required,min=1,max=50,dive,required"`
	Message     string   `json:"message" validate:"required,max=4096"`
	DelayMS     int      `json:"delay,omitempty" validate:"omitempty,min=0,max=600000"`
	StopOnError bool     `json:"stop_on_error,omitempty"`
}

// SendResult reports one delivered message.
type SendResult struct {
	Success   bool   `json:"success"`
	To        string `json:"to"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	Message   string `json:"message"`
}

// BulkAccepted answers a bulk request; progress arrives over the realtime
// channel.
type BulkAccepted struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// SessionStatus reports the WhatsApp Web session.
type SessionStatus struct {
	Success   bool   `json:"success"`
	IsReady   bool   `json:"is_ready"`
	HasQR     bool   `json:"has_qr"`
	Started   bool   `json:"started"`
	BulkJobID string `json:"bulk_job_id,omitempty"`
}

// AccountInfo describes the logged-in WhatsApp account.
type AccountInfo struct {
	Number   string `json:"number"`
	Name     string `json:"name,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// QRResponse carries the pending login QR code as a PNG data URL.
type QRResponse struct {
	Success bool   `json:"success"`
	QR      string `json:"qr,omitempty"`
	Message string `json:"message,omitempty"`
}

// Group summarises one WhatsApp group.
type Group struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ParticipantsCount int       `json:"participants_count"`
	Description       string    `json:"description,omitempty"`
	IsReadOnly        bool      `json:"is_read_only"`
	IsMuted           bool      `json:"is_muted"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}

// Participant is one member of a group.
type Participant struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"is_admin"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// GroupInfo is a group with its members.
type GroupInfo struct {
	Group
	Owner        string        `json:"owner,omitempty"`
	Participants []Participant `json:"participants"`
}

// GroupsResponse answers GET /api/messages/groups.
type GroupsResponse struct {
	Success bool    `json:"success"`
	Groups  []Group `json:"groups"`
	Count   int     `json:"count"`
}
