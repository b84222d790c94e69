package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

// BulkRunner is the part of *messaging.BulkSender the service drives.
type BulkRunner interface {
	Start(ctx context.Context, req messaging.BulkRequest) (string, error)
	Running() string
	Cancel() bool
}

// MessagingService exposes the WhatsApp session and bulk sends.
type MessagingService interface {
	EnsureSession(ctx context.Context) error
	Status(ctx context.Context) domain.SessionStatus
	QR(ctx context.Context) (domain.QRResponse, error)
	Info(ctx context.Context) (domain.AccountInfo, error)
	Send(ctx context.Context, req domain.SendMessageRequest) (domain.SendResult, error)
	StartBulk(ctx context.Context, req domain.BulkSendRequest) (domain.BulkAccepted, error)
	StartBulkFromXLSX(ctx context.Context, r io.Reader, message string, delay time.Duration, stopOnError bool) (domain.BulkAccepted, error)
	Groups(ctx context.Context) (domain.GroupsResponse, error)
	Group(ctx context.Context, groupID string) (domain.GroupInfo, error)
	SendToGroup(ctx context.Context, req domain.GroupSendRequest) (domain.SendResult, error)
	SendToGroups(ctx context.Context, req domain.GroupsSendRequest) (domain.BulkAccepted, error)
	CancelBulk(ctx context.Context) bool
	Logout(ctx context.Context) error
}

type messagingService struct {
	session messaging.Session
	bulk    BulkRunner
	gate    messaging.LicenseGate
	logger  *slog.Logger

	// startMu keeps concurrent activations from launching two browsers.
	startMu sync.Mutex
}

// NewMessagingService creates the messaging service.
func NewMessagingService(session messaging.Session, bulk BulkRunner, gate messaging.LicenseGate, logger *slog.Logger) MessagingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &messagingService{
		session: session,
		bulk:    bulk,
		gate:    gate,
		logger:  logger.With(slog.String("service", "messaging")),
	}
}

// EnsureSession starts the WhatsApp session if the license allows it and it
// is not running yet.
func (s *messagingService) EnsureSession(ctx context.Context) error {
	if !s.gate.IsUsable() {
		return apierrors.ErrLicenseRequired
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.session.Started() {
		return nil
	}
	s.logger.InfoContext(ctx, "starting whatsapp session")
	if err := s.session.Start(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to start whatsapp session", slog.String("error", err.Error()))
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

func (s *messagingService) Status(ctx context.Context) domain.SessionStatus {
	return domain.SessionStatus{
		Success:   true,
		IsReady:   s.session.Ready(),
		HasQR:     s.session.QR() != "",
		Started:   s.session.Started(),
		BulkJobID: s.bulk.Running(),
	}
}

func (s *messagingService) QR(ctx context.Context) (domain.QRResponse, error) {
	if s.session.Ready() {
		return domain.QRResponse{Success: true, Message: "already connected"}, nil
	}
	if err := s.EnsureSession(ctx); err != nil {
		return domain.QRResponse{}, err
	}
	qr := s.session.QR()
	if qr == "" {
		return domain.QRResponse{Success: false, Message: "QR code not available yet"}, nil
	}
	return domain.QRResponse{Success: true, QR: qr}, nil
}

func (s *messagingService) Info(ctx context.Context) (domain.AccountInfo, error) {
	return s.session.Info(ctx)
}

func (s *messagingService) Send(ctx context.Context, req domain.SendMessageRequest) (domain.SendResult, error) {
	res, err := s.session.Send(ctx, req.Number, req.Message)
	if err != nil {
		s.logger.WarnContext(ctx, "message send failed",
			slog.String("trace_id", traceIDFrom(ctx)),
			slog.String("error", err.Error()),
		)
		return domain.SendResult{}, err
	}
	return res, nil
}

func (s *messagingService) StartBulk(ctx context.Context, req domain.BulkSendRequest) (domain.BulkAccepted, error) {
	return s.startBulk(ctx, messaging.BulkRequest{
		Kind:        messaging.BulkNumbers,
		Targets:     req.Numbers,
		Message:     req.Message,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		StopOnError: req.StopOnError,
	})
}

// StartBulkFromXLSX reads recipients from the first column of an uploaded
// workbook and starts a bulk job.
func (s *messagingService) StartBulkFromXLSX(ctx context.Context, r io.Reader, message string, delay time.Duration, stopOnError bool) (domain.BulkAccepted, error) {
	recipients, err := messaging.ReadRecipientsXLSX(r)
	if err != nil {
		return domain.BulkAccepted{}, err
	}
	s.logger.InfoContext(ctx, "recipients imported",
		slog.String("sheet", recipients.Sheet),
		slog.Int("numbers", len(recipients.Numbers)),
		slog.Int("rejected", len(recipients.Rejected)),
		slog.Int("duplicates", recipients.Duplicates),
	)
	accepted, err := s.startBulk(ctx, messaging.BulkRequest{
		Kind:        messaging.BulkNumbers,
		Targets:     recipients.Numbers,
		Message:     message,
		Delay:       delay,
		StopOnError: stopOnError,
	})
	if err != nil {
		return accepted, err
	}
	if n := len(recipients.Rejected) + recipients.Duplicates; n > 0 {
		accepted.Message = fmt.Sprintf("%s; %d rows skipped", accepted.Message, n)
	}
	return accepted, nil
}

func (s *messagingService) Groups(ctx context.Context) (domain.GroupsResponse, error) {
	groups, err := s.session.Groups(ctx)
	if err != nil {
		return domain.GroupsResponse{}, err
	}
	return domain.GroupsResponse{Success: true, Groups: groups, Count: len(groups)}, nil
}

func (s *messagingService) Group(ctx context.Context, groupID string) (domain.GroupInfo, error) {
	return s.session.Group(ctx, groupID)
}

func (s *messagingService) SendToGroup(ctx context.Context, req domain.GroupSendRequest) (domain.SendResult, error) {
	return s.session.SendToGroup(ctx, req.GroupID, req.Message)
}

func (s *messagingService) SendToGroups(ctx context.Context, req domain.GroupsSendRequest) (domain.BulkAccepted, error) {
	return s.startBulk(ctx, messaging.BulkRequest{
		Kind:        messaging.BulkGroups,
		Targets:     req.GroupIDs,
		Message:     req.Message,
		Delay:       time.Duration(req.DelayMS) * time.Millisecond,
		StopOnError: req.StopOnError,
	})
}

func (s *messagingService) CancelBulk(ctx context.Context) bool {
	cancelled := s.bulk.Cancel()
	if cancelled {
		s.logger.InfoContext(ctx, "bulk job cancelled", slog.String("trace_id", traceIDFrom(ctx)))
	}
	return cancelled
}

func (s *messagingService) Logout(ctx context.Context) error {
	s.bulk.Cancel()
	if err := s.session.Logout(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "whatsapp session logged out")
	return nil
}

func (s *messagingService) startBulk(ctx context.Context, req messaging.BulkRequest) (domain.BulkAccepted, error) {
	jobID, err := s.bulk.Start(ctx, req)
	if err != nil {
		return domain.BulkAccepted{}, err
	}
	s.logger.InfoContext(ctx, "bulk job accepted",
		slog.String("trace_id", traceIDFrom(ctx)),
		slog.String("job_id", jobID),
		slog.String("kind", string(req.Kind)),
		slog.Int("total", len(req.Targets)),
	)
	return domain.BulkAccepted{
		Success: true,
		JobID:   jobID,
		Total:   len(req.Targets),
		Message: fmt.Sprintf("sending to %d recipients; follow progress on the realtime channel", len(req.Targets)),
	}, nil
}
