// Package testutil provides integration-test helpers.
package testutil

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/sketch/internal/protocol"
)

// GameClient is a newline-framed protocol client for integration testing.
type GameClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewGameClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected GameClient or fails the test.
func NewGameClient(t *testing.T, addr string) *GameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &GameClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// Send encodes and writes one message.
//
// Postcondition: the framed message is written, or the test fails.
func (c *GameClient) Send(msgType string, data map[string]any) {
	c.t.Helper()
	frame, err := protocol.Encode(protocol.New(msgType, data))
	if err != nil {
		c.t.Fatalf("encoding %s: %v", msgType, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(frame); err != nil {
		c.t.Fatalf("sending %s: %v", msgType, err)
	}
}

// Read reads and decodes the next message, failing the test on timeout.
func (c *GameClient) Read(timeout time.Duration) *protocol.Message {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	msg, err := protocol.Decode(line)
	if err != nil {
		c.t.Fatalf("decoding frame %q: %v", line, err)
	}
	return msg
}

// WaitFor reads messages until one of the given type arrives, discarding
// everything else.
//
// Postcondition: Returns the first matching message, or fails on timeout.
func (c *GameClient) WaitFor(msgType string, timeout time.Duration) *protocol.Message {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		msg := c.Read(time.Until(deadline))
		if msg.Type == msgType {
			return msg
		}
	}
	c.t.Fatalf("no %s message arrived within %s", msgType, timeout)
	return nil
}

// Close closes the underlying connection.
func (c *GameClient) Close() {
	_ = c.conn.Close()
}
