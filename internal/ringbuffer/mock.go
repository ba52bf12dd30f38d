package ringbuffer

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Mock is an in-memory Source for tests: a preloaded header and page
// sequence with the same strict read-then-acknowledge protocol as the
// real client.
type Mock struct {
	mu     sync.Mutex
	header []byte
	pages  [][]byte

	next          int
	connected     bool
	hdrAck        bool
	pendingHeader bool
	pendingPage   bool
	disconnected  bool

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
	// PageErr, if set, is returned by NextPage once all preloaded pages
	// have been consumed, instead of io.EOF.
	PageErr error
	// AckHook, if set, runs after each page acknowledgment with the
	// number of pages acknowledged so far.
	AckHook func(acked int)
}

// NewMock builds a mock source publishing the given header and pages.
func NewMock(header []byte, pages ...[]byte) *Mock {
	return &Mock{header: header, pages: pages}
}

func (m *Mock) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *Mock) ReadHeader(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("%w: not connected", ErrProtocol)
	}
	if m.hdrAck || m.pendingHeader {
		return nil, fmt.Errorf("%w: header already read", ErrProtocol)
	}
	m.pendingHeader = true
	return m.header, nil
}

func (m *Mock) NextPage(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("%w: not connected", ErrProtocol)
	}
	if !m.hdrAck {
		return nil, fmt.Errorf("%w: header not acknowledged before data read", ErrProtocol)
	}
	if m.pendingPage {
		return nil, fmt.Errorf("%w: previous page not acknowledged", ErrProtocol)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.next >= len(m.pages) {
		if m.PageErr != nil {
			return nil, m.PageErr
		}
		return nil, io.EOF
	}
	m.pendingPage = true
	return m.pages[m.next], nil
}

func (m *Mock) Ack() error {
	m.mu.Lock()
	switch {
	case m.pendingHeader:
		m.pendingHeader = false
		m.hdrAck = true
		m.mu.Unlock()
		return nil
	case m.pendingPage:
		m.pendingPage = false
		m.next++
		acked := m.next
		hook := m.AckHook
		m.mu.Unlock()
		if hook != nil {
			hook(acked)
		}
		return nil
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: nothing to acknowledge", ErrProtocol)
	}
}

func (m *Mock) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnected = true
	return nil
}

// Acked reports how many data pages have been acknowledged.
func (m *Mock) Acked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}

// Disconnected reports whether Disconnect has been called.
func (m *Mock) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}
