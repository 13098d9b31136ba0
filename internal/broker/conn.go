package broker

import (
	"io"
	"net"
	"sync"
)

// Conn is the broker's handle on one peer connection. Results for a producer
// can be written from whichever goroutine resolved them, so Send must be safe
// for concurrent writers. The handle owns the underlying stream; sessions are
// the only readers.
type Conn interface {
	Send(line string) error
	Close() error
	RemoteAddr() string
}

type sockConn struct {
	mu sync.Mutex
	c  net.Conn
}

// WrapConn adapts a net.Conn into a write-serialized Conn.
func WrapConn(c net.Conn) Conn {
	return &sockConn{c: c}
}

func (s *sockConn) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.c, line)
	return err
}

func (s *sockConn) Close() error {
	return s.c.Close()
}

func (s *sockConn) RemoteAddr() string {
	return s.c.RemoteAddr().String()
}
