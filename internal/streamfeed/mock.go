package streamfeed

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// MockPort is an in-memory Port. Reads drain the queued input and return
// io.EOF once it is empty, writes are captured.
type MockPort struct {
	mu      sync.Mutex
	input   bytes.Buffer
	written bytes.Buffer
	closed  bool
}

// NewMockPort returns a port whose reads yield input.
func NewMockPort(input string) *MockPort {
	p := &MockPort{}
	p.input.WriteString(input)
	return p
}

func (p *MockPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.input.Len() == 0 {
		return 0, io.EOF
	}
	return p.input.Read(b)
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	return p.written.Write(b)
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Written returns everything written to the port so far.
func (p *MockPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}
