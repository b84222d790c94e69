package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/license"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/shared/testutil"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

// LicenseFlowSuite drives a running application over real HTTP and
// websocket connections.
type LicenseFlowSuite struct {
	suite.Suite
	authority *testutil.AuthorityServer
	app       *Application
	server    *httptest.Server
	started   <-chan struct{}
}

func TestLicenseFlowSuite(t *testing.T) {
	suite.Run(t, new(LicenseFlowSuite))
}

func (s *LicenseFlowSuite) start(replies ...testutil.AuthorityReply) {
	s.authority = testutil.NewAuthorityServer(s.T(), replies...)

	session, started := idleSession()
	a, err := New(context.Background(), testConfig(s.T(), s.authority.URL, true), discardLogger(), Options{Session: session})
	s.Require().NoError(err)
	a.Start(context.Background())

	s.app = a
	s.started = started
	s.server = httptest.NewServer(a.Router)
}

func (s *LicenseFlowSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	if s.app != nil {
		s.NoError(s.app.Stop(context.Background()))
		s.app = nil
	}
}

func (s *LicenseFlowSuite) dial() *gorilla.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	resp.Body.Close()
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

// next reads frames until one of type want arrives.
func (s *LicenseFlowSuite) next(conn *gorilla.Conn, want events.MessageType) events.LicenseEvent {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		s.Require().NoError(err, "waiting for %s", want)

		var frame struct {
			Type events.MessageType `json:"type"`
			Data json.RawMessage    `json:"data"`
		}
		s.Require().NoError(json.Unmarshal(raw, &frame))
		if frame.Type != want {
			continue
		}
		var ev events.LicenseEvent
		s.Require().NoError(json.Unmarshal(frame.Data, &ev))
		return ev
	}
}

func (s *LicenseFlowSuite) get(path string) *http.Response {
	resp, err := http.Get(s.server.URL + path)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *LicenseFlowSuite) TestActivationOverWebSocket() {
	s.start(testutil.ValidReply("active", map[string]any{"customer_name": "Loja Central"}))
	conn := s.dial()

	greeting := s.next(conn, events.MessageTypeLicenseRequired)
	s.False(greeting.Valid)
	s.Equal(string(license.ReasonNoRecord), greeting.Reason)
	s.Equal(http.StatusUnauthorized, s.get("/api/messages/status").StatusCode)

	s.Require().NoError(conn.WriteJSON(events.ClientCommand{
		Type:       events.CommandValidateLicense,
		LicenseKey: testKey,
	}))

	validated := s.next(conn, events.MessageTypeLicenseValidated)
	s.True(validated.Valid)
	s.Equal(license.VerdictUsable.String(), validated.Verdict)
	s.NotContains(validated.Key, testKey)

	select {
	case <-s.started:
	case <-time.After(2 * time.Second):
		s.Fail("session was not started after activation")
	}

	resp := s.get("/api/messages/status")
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(license.VerdictUsable.String(), resp.Header.Get("X-License-Status"))
	s.Equal(1, s.authority.Calls())

	// A second client is greeted with the cached verdict.
	other := s.dial()
	s.True(s.next(other, events.MessageTypeLicenseStatus).Valid)
	s.Equal(1, s.authority.Calls())
}

func (s *LicenseFlowSuite) TestRejectedKeyOverWebSocket() {
	s.start(testutil.InvalidReply("expired", "Licença expirada"))
	conn := s.dial()
	s.next(conn, events.MessageTypeLicenseRequired)

	s.Require().NoError(conn.WriteJSON(events.ClientCommand{
		Type:       events.CommandValidateLicense,
		LicenseKey: testKey,
	}))

	failed := s.next(conn, events.MessageTypeLicenseValidationFailed)
	s.False(failed.Valid)
	s.Equal(string(license.ReasonConfirmedInvalid), failed.Reason)
	s.Equal(http.StatusUnauthorized, s.get("/api/messages/status").StatusCode)
}
