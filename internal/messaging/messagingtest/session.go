// Package messagingtest provides test doubles for the messaging collaborators.
package messagingtest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/domain"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts/events"
)

// MockSession is a testify mock of messaging.Session.
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSession) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSession) Started() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSession) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSession) QR() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Info(ctx context.Context) (domain.AccountInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.AccountInfo), args.Error(1)
}

func (m *MockSession) Send(ctx context.Context, number, message string) (domain.SendResult, error) {
	args := m.Called(ctx, number, message)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockSession) SendToGroup(ctx context.Context, groupID, message string) (domain.SendResult, error) {
	args := m.Called(ctx, groupID, message)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockSession) Groups(ctx context.Context) ([]domain.Group, error) {
	args := m.Called(ctx)
	groups, _ := args.Get(0).([]domain.Group)
	return groups, args.Error(1)
}

func (m *MockSession) Group(ctx context.Context, groupID string) (domain.GroupInfo, error) {
	args := m.Called(ctx, groupID)
	return args.Get(0).(domain.GroupInfo), args.Error(1)
}

func (m *MockSession) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Event is one broadcast seen by a Recorder.
type Event struct {
	Type events.MessageType
	Data any
}

// Recorder is a Publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Broadcast implements messaging.Publisher.
func (r *Recorder) Broadcast(messageType events.MessageType, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Type: messageType, Data: data})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(messageType events.MessageType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == messageType {
			out = append(out, e)
		}
	}
	return out
}

// Gate is a switchable license gate.
type Gate struct {
	mu     sync.Mutex
	usable bool
	// RevokeAfter makes the gate report unusable after that many checks
	// when positive.
	RevokeAfter int
	checks      int
}

// NewGate returns a gate in the given state.
func NewGate(usable bool) *Gate { return &Gate{usable: usable} }

// IsUsable implements messaging.LicenseGate.
func (g *Gate) IsUsable() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.RevokeAfter > 0 && g.checks > g.RevokeAfter {
		return false
	}
	return g.usable
}

// Set changes the gate state.
func (g *Gate) Set(usable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usable = usable
}
