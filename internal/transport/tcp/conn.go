// Package tcp provides the newline-framed TCP listener for game clients.
// Each inbound line is one protocol frame; outbound frames already carry
// their trailing newline.
package tcp

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrFrameTooLong is returned when an inbound line exceeds the configured
// maximum. The connection is unusable afterwards since the reader has lost
// frame alignment.
var ErrFrameTooLong = fmt.Errorf("inbound frame exceeds maximum length")

// Conn wraps a TCP connection with line framing and per-operation
// deadlines. It satisfies the session transport contract.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrame     int
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection; maxFrame
// must be positive.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxFrame int) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxFrame:     maxFrame,
	}
}

// ReadFrame reads the next newline-terminated frame. The returned bytes do
// not include the trailing \n or \r\n.
//
// Postcondition: Returns the next frame, or an error (including io.EOF).
func (c *Conn) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}

	var frame []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		frame = append(frame, chunk...)
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			if len(frame) > c.maxFrame {
				return nil, ErrFrameTooLong
			}
			continue
		}
		return nil, err
	}
	if len(frame) > c.maxFrame {
		return nil, ErrFrameTooLong
	}

	frame = bytes.TrimRight(frame, "\r\n")
	return frame, nil
}

// WriteFrame writes one already-framed message.
//
// Precondition: frame must end with '\n'.
func (c *Conn) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.raw.Write(frame)
	return err
}

// Close closes the underlying TCP connection.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}
