// Package ioconn wraps a Unix domain socket as the downstream
// connection Output writes events to and AckReader reads acks from.
package ioconn

import (
	"io"
	"net"
	"sync"
)

// Conn is a half-closable Unix domain socket connection. Close and
// CloseWrite are idempotent and safe to call concurrently with Read/
// Write from another goroutine, since the producer loop and the ack
// reader share one Conn without coordinating directly.
type Conn struct {
	path string

	mu   sync.Mutex
	conn *net.UnixConn
}

// New creates a Conn targeting the Unix domain socket at path. Open
// must be called before Read/Write are meaningful.
func New(path string) *Conn {
	return &Conn{path: path}
}

// Open dials the socket, replacing any existing connection.
func (c *Conn) Open() error {
	addr, err := net.ResolveUnixAddr("unix", c.path)
	if err != nil {
		return err
	}
	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// IsOpen reports whether Open has succeeded and Close has not since
// been called.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// CloseWrite half-closes the send side, letting any in-flight read
// drain while signalling the peer that no more events are coming.
func (c *Conn) CloseWrite() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.CloseWrite()
}

// Close fully closes the connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Read implements io.Reader, delegating to the underlying connection.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, io.ErrClosedPipe
	}
	return conn.Read(p)
}

// Write implements io.Writer, delegating to the underlying connection.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, io.ErrClosedPipe
	}
	return conn.Write(p)
}

var _ io.ReadWriteCloser = (*Conn)(nil)
