package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	apierrors "github.com/actiomidia/projeto-bot-whatsapp/internal/errors"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
)

const composePoll = 250 * time.Millisecond

type rawGroup struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Participants int         `json:"participants"`
	Description  string      `json:"description"`
	ReadOnly     bool        `json:"read_only"`
	Muted        bool        `json:"muted"`
	CreatedAt    int64       `json:"created_at"`
	Owner        string      `json:"owner"`
	Members      []rawMember `json:"members"`
}

type rawMember struct {
	ID           string `json:"id"`
	IsAdmin      bool   `json:"is_admin"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

func (g rawGroup) toDomain() domain.Group {
	out := domain.Group{
		ID:                g.ID,
		Name:              g.Name,
		ParticipantsCount: g.Participants,
		Description:       g.Description,
		IsReadOnly:        g.ReadOnly,
		IsMuted:           g.Muted,
	}
	if g.CreatedAt > 0 {
		out.CreatedAt = time.Unix(g.CreatedAt, 0).UTC()
	}
	return out
}

func (g rawGroup) toInfo() domain.GroupInfo {
	info := domain.GroupInfo{Group: g.toDomain(), Owner: g.Owner}
	info.Participants = make([]domain.Participant, 0, len(g.Members))
	for _, m := range g.Members {
		info.Participants = append(info.Participants, domain.Participant{
			ID:           m.ID,
			IsAdmin:      m.IsAdmin,
			IsSuperAdmin: m.IsSuperAdmin,
		})
	}
	return info
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *Session) requireReady() error {
	if !s.Ready() {
		return apierrors.ErrSessionNotReady
	}
	return nil
}

// Info returns the account linked to the session.
func (s *Session) Info(ctx context.Context) (domain.AccountInfo, error) {
	if err := s.requireReady(); err != nil {
		return domain.AccountInfo{}, err
	}
	s.mu.RLock()
	cached := s.account
	s.mu.RUnlock()
	if cached.Number != "" {
		return cached, nil
	}

	var account domain.AccountInfo
	if err := s.run(ctx, chromedp.Evaluate(accountScript, &account)); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("failed to read account info: %w", err)
	}
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
	return account, nil
}

// Send delivers a text message to a phone number.
func (s *Session) Send(ctx context.Context, number, message string) (domain.SendResult, error) {
	if err := s.requireReady(); err != nil {
		return domain.SendResult{}, err
	}
	digits, chatID, err := messaging.NormalizeNumber(number)
	if err != nil {
		return domain.SendResult{}, err
	}

	s.page.Lock()
	defer s.page.Unlock()

	title, err := s.openChat(ctx, chatID)
	if err != nil {
		return domain.SendResult{}, err
	}
	if title == "" {
		// Unknown contact: let the web client resolve the number.
		if err := s.run(ctx, chromedp.Navigate(sendURL(s.cfg.URL, digits))); err != nil {
			return domain.SendResult{}, fmt.Errorf("failed to open chat: %w", err)
		}
		s.markReinject()
	}

	id, err := s.typeAndSend(ctx, message)
	if err != nil {
		return domain.SendResult{}, err
	}

	s.logger.InfoContext(ctx, "message sent", slog.String("to", messaging.MaskNumber(digits)))
	return domain.SendResult{
		Success:   true,
		To:        digits,
		ChatID:    chatID,
		MessageID: id,
		Message:   "message sent",
	}, nil
}

// SendToGroup delivers a text message to a group the account belongs to.
func (s *Session) SendToGroup(ctx context.Context, groupID, message string) (domain.SendResult, error) {
	if err := s.requireReady(); err != nil {
		return domain.SendResult{}, err
	}
	if !messaging.IsGroupID(groupID) {
		return domain.SendResult{}, fmt.Errorf("%w: %q", apierrors.ErrGroupNotFound, groupID)
	}

	s.page.Lock()
	defer s.page.Unlock()

	name, err := s.openChat(ctx, groupID)
	if err != nil {
		return domain.SendResult{}, err
	}
	if name == "" {
		return domain.SendResult{}, fmt.Errorf("%w: %q", apierrors.ErrGroupNotFound, groupID)
	}

	id, err := s.typeAndSend(ctx, message)
	if err != nil {
		return domain.SendResult{}, err
	}

	s.logger.InfoContext(ctx, "group message sent", slog.String("group", groupID))
	return domain.SendResult{
		Success:   true,
		ChatID:    groupID,
		MessageID: id,
		GroupName: name,
		Message:   "message sent",
	}, nil
}

func (s *Session) openChat(ctx context.Context, chatID string) (string, error) {
	script, err := call(openChatFunc, chatID)
	if err != nil {
		return "", err
	}
	var title string
	if err := s.run(ctx, chromedp.Evaluate(script, &title, awaitPromise)); err != nil {
		return "", fmt.Errorf("failed to open chat: %w", err)
	}
	return title, nil
}

func (s *Session) typeAndSend(ctx context.Context, message string) (string, error) {
	if err := s.waitCompose(ctx); err != nil {
		return "", err
	}

	insert, err := call(insertTextFunc, message)
	if err != nil {
		return "", err
	}
	var inserted bool
	var before string
	if err := s.run(ctx,
		chromedp.Evaluate(lastOutgoingScript, &before),
		chromedp.Evaluate(insert, &inserted),
	); err != nil {
		return "", fmt.Errorf("failed to type message: %w", err)
	}
	if !inserted {
		return "", fmt.Errorf("failed to type message: compose box rejected input")
	}

	if err := s.run(ctx, chromedp.Click(sendButtonSelector, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to press send: %w", err)
	}
	return s.waitOutgoing(ctx, before), nil
}

// waitCompose blocks until the compose box shows up or the web client
// reports the number as invalid.
func (s *Session) waitCompose(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.SendTimeout)
	for {
		var state string
		if err := s.run(ctx, chromedp.Evaluate(composeStateScript, &state)); err != nil {
			return fmt.Errorf("failed to inspect chat: %w", err)
		}
		switch state {
		case "compose":
			return nil
		case "invalid":
			return fmt.Errorf("%w: number is not on WhatsApp", apierrors.ErrRecipientInvalid)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chat did not open within %s", s.cfg.SendTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(composePoll):
		}
	}
}

// waitOutgoing returns the ID of the newest outgoing message once it differs
// from before. An empty ID is returned if the page does not expose one in
// time; the message is still considered sent.
func (s *Session) waitOutgoing(ctx context.Context, before string) string {
	for i := 0; i < 20; i++ {
		var id string
		if err := s.run(ctx, chromedp.Evaluate(lastOutgoingScript, &id)); err == nil && id != "" && id != before {
			return id
		}
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(composePoll):
		}
	}
	return ""
}

// markReinject makes the next poll inject the helpers again after a
// navigation replaced the page.
func (s *Session) markReinject() {
	s.mu.Lock()
	s.injected = false
	s.mu.Unlock()
}

// Groups lists the groups the account belongs to.
func (s *Session) Groups(ctx context.Context) ([]domain.Group, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}
	var raw []rawGroup
	if err := s.run(ctx, chromedp.Evaluate(groupsScript, &raw)); err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]domain.Group, 0, len(raw))
	for _, g := range raw {
		groups = append(groups, g.toDomain())
	}
	return groups, nil
}

// Group returns one group with its participants.
func (s *Session) Group(ctx context.Context, groupID string) (domain.GroupInfo, error) {
	if err := s.requireReady(); err != nil {
		return domain.GroupInfo{}, err
	}
	if !messaging.IsGroupID(groupID) {
		return domain.GroupInfo{}, fmt.Errorf("%w: %q", apierrors.ErrGroupNotFound, groupID)
	}
	script, err := call(groupFunc, groupID)
	if err != nil {
		return domain.GroupInfo{}, err
	}
	var raw *rawGroup
	if err := s.run(ctx, chromedp.Evaluate(script, &raw)); err != nil {
		return domain.GroupInfo{}, fmt.Errorf("failed to read group: %w", err)
	}
	if raw == nil {
		return domain.GroupInfo{}, fmt.Errorf("%w: %q", apierrors.ErrGroupNotFound, groupID)
	}
	return raw.toInfo(), nil
}

// Logout unlinks the device. A new QR code is shown afterwards.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	s.page.Lock()
	defer s.page.Unlock()

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(logoutScript, &ok)); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to log out: web client refused")
	}
	s.mu.Lock()
	s.account = domain.AccountInfo{}
	s.mu.Unlock()
	s.setDisconnected("logout")
	return nil
}

func sendURL(base, digits string) string {
	q := url.Values{}
	q.Set("phone", digits)
	return strings.TrimRight(base, "/") + "/send?" + q.Encode()
}
