package websocket

import (
	"errors"
	"sync"
	"time"
)

// mockConnection is an in-memory Connection. Reads block until a frame is
// queued or the connection is closed.
type mockConnection struct {
	mu      sync.Mutex
	reads   chan []byte
	written [][]byte
	closed  bool
}

func newMockConnection() *mockConnection {
	return &mockConnection{reads: make(chan []byte, 16)}
}

func (m *mockConnection) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("connection closed")
	}
	m.written = append(m.written, data)
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	data, ok := <-m.reads
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, data, nil
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.reads)
	}
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error {
	return nil
}

func (m *mockConnection) SetWriteDeadline(time.Time) error {
	return nil
}

func (m *mockConnection) SetReadLimit(int64) {}

func (m *mockConnection) SetPongHandler(func(string) error) {}

func (m *mockConnection) RemoteAddr() string {
	return "127.0.0.1:50000"
}

func (m *mockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
