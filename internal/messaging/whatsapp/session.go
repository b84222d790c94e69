// Package whatsapp drives WhatsApp Web in a headless Chrome through chromedp.
// The browser profile lives in a persistent user-data directory so a linked
// device survives restarts.
package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/config"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/messaging"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

const (
	defaultURL            = "https://web.whatsapp.com"
	defaultPollInterval   = 2 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultSendTimeout    = 45 * time.Second
	userAgent             = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// Config configures a Session.
type Config struct {
	URL            string
	UserDataDir    string
	ChromePath     string
	Headless       bool
	SendTimeout    time.Duration
	PollInterval   time.Duration
	ReconnectDelay time.Duration
}

// ConfigFrom maps the application messaging settings.
func ConfigFrom(cfg config.MessagingConfig) Config {
	return Config{
		URL:         cfg.WebURL,
		UserDataDir: cfg.SessionDir,
		ChromePath:  cfg.ChromePath,
		Headless:    cfg.Headless,
		SendTimeout: cfg.SendTimeout,
	}
}

func (c *Config) setDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
}

// Session implements messaging.Session.
type Session struct {
	cfg       Config
	logger    *slog.Logger
	publisher messaging.Publisher

	mu        sync.RWMutex
	started   bool
	ready     bool
	injected  bool
	qr        string
	qrRef     string
	account   domain.AccountInfo
	browser   context.Context
	closeTab  context.CancelFunc
	closeExec context.CancelFunc
	stopWatch context.CancelFunc
	watchDone chan struct{}

	// page serialises actions on the single tab.
	page sync.Mutex
}

var _ messaging.Session = (*Session)(nil)

// NewSession creates an idle session. Call Start to launch the browser.
func NewSession(cfg Config, publisher messaging.Publisher, logger *slog.Logger) *Session {
	cfg.setDefaults()
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "whatsapp_session")),
	}
}

// Start launches Chrome, opens WhatsApp Web and begins watching the page
// for QR codes, readiness and incoming messages.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.cfg.UserDataDir != "" {
		if err := os.MkdirAll(s.cfg.UserDataDir, 0o700); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to create session directory: %w", err)
		}
	}
	if err := s.launchLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	watchCtx, stop := context.WithCancel(context.Background())
	s.started = true
	s.stopWatch = stop
	s.watchDone = make(chan struct{})
	s.mu.Unlock()

	go s.watch(watchCtx)
	s.logger.InfoContext(ctx, "whatsapp session started",
		slog.Bool("headless", s.cfg.Headless),
		slog.String("user_data_dir", s.cfg.UserDataDir),
	)
	return nil
}

func (s *Session) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
	)
	if s.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(s.cfg.UserDataDir))
	}
	if s.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ChromePath))
	}
	return opts
}

// launchLocked must be called with s.mu held.
func (s *Session) launchLocked(ctx context.Context) error {
	execCtx, closeExec := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions()...)
	tabCtx, closeTab := chromedp.NewContext(execCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// The first Run allocates the browser and must not carry a deadline,
	// or the browser dies with it.
	if err := chromedp.Run(tabCtx); err != nil {
		closeTab()
		closeExec()
		return fmt.Errorf("failed to start chrome: %w", err)
	}

	navCtx, cancel := context.WithTimeout(tabCtx, s.cfg.SendTimeout)
	defer cancel()
	stopOnCaller := context.AfterFunc(ctx, cancel)
	defer stopOnCaller()

	if err := chromedp.Run(navCtx, chromedp.Navigate(s.cfg.URL)); err != nil {
		closeTab()
		closeExec()
		return fmt.Errorf("failed to open %s: %w", s.cfg.URL, err)
	}

	s.browser, s.closeTab, s.closeExec = tabCtx, closeTab, closeExec
	s.ready, s.injected, s.qr, s.qrRef = false, false, "", ""
	return nil
}

// Stop closes the browser. The linked device stays logged in.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	stop, done := s.stopWatch, s.watchDone
	s.mu.Unlock()

	stop()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBrowserLocked()
	s.started = false
	s.ready = false
	s.qr = ""
	s.logger.Info("whatsapp session stopped")
	return nil
}

func (s *Session) closeBrowserLocked() {
	if s.closeTab != nil {
		s.closeTab()
	}
	if s.closeExec != nil {
		s.closeExec()
	}
	s.browser, s.closeTab, s.closeExec = nil, nil, nil
}

func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Session) QR() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qr
}

type probe struct {
	State string `json:"state"`
	Ref   string `json:"ref"`
}

type inboxEntry struct {
	From string `json:"from"`
	Body string `json:"body"`
	T    int64  `json:"t"`
}

func (s *Session) watch(ctx context.Context) {
	defer close(s.watchDone)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Skip the tick while a send owns the tab.
		if !s.page.TryLock() {
			continue
		}
		err := s.poll(ctx)
		s.page.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleBrowserLoss(ctx, err)
		}
	}
}

func (s *Session) poll(ctx context.Context) error {
	s.mu.RLock()
	browser := s.browser
	s.mu.RUnlock()
	if browser == nil {
		return errors.New("browser not running")
	}
	if browser.Err() != nil {
		return browser.Err()
	}

	var p probe
	if err := s.run(ctx, chromedp.Evaluate(probeScript, &p)); err != nil {
		if browser.Err() != nil {
			return err
		}
		// A slow page is not a lost browser.
		s.logger.DebugContext(ctx, "page probe failed", slog.String("error", err.Error()))
		return nil
	}

	switch p.State {
	case stateQR:
		s.onQR(ctx, p.Ref)
	case stateReady:
		s.onReady(ctx)
		s.drainInbox(ctx)
	}
	return nil
}

func (s *Session) onQR(ctx context.Context, ref string) {
	s.mu.RLock()
	wasReady, same := s.ready, ref != "" && ref == s.qrRef
	s.mu.RUnlock()

	if wasReady {
		s.setDisconnected("logged_out")
	}
	if same {
		return
	}

	var png []byte
	if err := s.run(ctx, chromedp.Screenshot(qrSelector, &png, chromedp.NodeVisible, chromedp.ByQuery)); err != nil {
		s.logger.WarnContext(ctx, "failed to capture qr code", slog.String("error", err.Error()))
		return
	}
	qr := qrDataURL(png)

	s.mu.Lock()
	s.qr, s.qrRef = qr, ref
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "qr code received")
	s.publisher.Broadcast(events.MessageTypeQR, events.SessionEvent{State: stateQR, QR: qr})
}

func (s *Session) onReady(ctx context.Context) {
	s.mu.RLock()
	ready, injected := s.ready, s.injected
	s.mu.RUnlock()
	if ready && injected {
		return
	}

	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(injectScript, &ok)); err != nil || !ok {
		// Modules load a little after the chat list renders.
		return
	}

	if ready {
		s.mu.Lock()
		s.injected = true
		s.mu.Unlock()
		return
	}

	var account domain.AccountInfo
	if err := s.run(ctx, chromedp.Evaluate(accountScript, &account)); err != nil {
		s.logger.WarnContext(ctx, "failed to read account info", slog.String("error", err.Error()))
	}

	s.mu.Lock()
	s.ready, s.injected = true, true
	s.qr, s.qrRef = "", ""
	s.account = account
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "whatsapp session ready", slog.String("name", account.Name))
	s.publisher.Broadcast(events.MessageTypeReady, events.SessionEvent{
		State:  stateReady,
		Number: account.Number,
		Name:   account.Name,
	})
}

func (s *Session) drainInbox(ctx context.Context) {
	var entries []inboxEntry
	if err := s.run(ctx, chromedp.Evaluate(drainInboxScript, &entries)); err != nil {
		s.logger.DebugContext(ctx, "failed to drain inbox", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		s.publisher.Broadcast(events.MessageTypeMessage, toIncoming(e))
	}
}

func (s *Session) setDisconnected(reason string) {
	s.mu.Lock()
	was := s.ready
	s.ready, s.injected = false, false
	s.mu.Unlock()
	if !was {
		return
	}
	s.logger.Warn("whatsapp session disconnected", slog.String("reason", reason))
	s.publisher.Broadcast(events.MessageTypeDisconnected, events.SessionEvent{State: "disconnected", Reason: reason})
}

// handleBrowserLoss relaunches Chrome after the reconnect delay.
func (s *Session) handleBrowserLoss(ctx context.Context, cause error) {
	s.setDisconnected("browser_lost")
	s.logger.WarnContext(ctx, "browser unavailable, relaunching",
		slog.String("error", cause.Error()),
		slog.Duration("delay", s.cfg.ReconnectDelay),
	)

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.ReconnectDelay):
	}

	s.page.Lock()
	defer s.page.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeBrowserLocked()
	if err := s.launchLocked(ctx); err != nil {
		s.logger.ErrorContext(ctx, "failed to relaunch browser", slog.String("error", err.Error()))
	}
}

// run executes actions on the tab, bounded by the send timeout and by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.RLock()
	browser := s.browser
	s.mu.RUnlock()
	if browser == nil {
		return errors.New("browser not running")
	}

	runCtx, cancel := context.WithTimeout(browser, s.cfg.SendTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func qrDataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

func toIncoming(e inboxEntry) events.IncomingMessage {
	ts := time.Now()
	if e.T > 0 {
		ts = time.Unix(e.T, 0)
	}
	return events.IncomingMessage{From: e.From, Body: e.Body, Timestamp: ts}
}
