package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/sketch/internal/protocol"
)

// fakeTransport is an in-memory Transport with scripted inbound frames and
// recorded outbound writes.
type fakeTransport struct {
	mu       sync.Mutex
	inbound  chan []byte
	written  [][]byte
	writeErr error
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan []byte, 16)}
}

func (t *fakeTransport) ReadFrame() ([]byte, error) {
	frame, ok := <-t.inbound
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (t *fakeTransport) WriteFrame(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	cp := append([]byte(nil), frame...)
	t.written = append(t.written, cp)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbound)
	}
	return nil
}

func (t *fakeTransport) RemoteAddr() string { return "test:0" }

func (t *fakeTransport) writtenFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.written...)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSendDeliversThroughWriter(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{})
	defer func() { _ = s.Close() }()

	require.NoError(t, s.Send(protocol.New(protocol.TypeAck, map[string]any{"n": 1})))
	waitFor(t, func() bool { return len(tr.writtenFrames()) == 1 })

	msg, err := protocol.Decode(tr.writtenFrames()[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeAck, msg.Type)
}

func TestSendAfterCloseFails(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{})
	require.NoError(t, s.Close())
	err := s.Send(protocol.New(protocol.TypeAck, nil))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueOverflowDisconnects(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("stalled")
	s := New(tr, zaptest.NewLogger(t), Options{QueueSize: 2})

	// The first send is consumed by the writer and fails there; the rest
	// fill the queue until one overflows.
	var overflowed bool
	for i := 0; i < 8; i++ {
		if err := s.Send(protocol.New(protocol.TypeEvent, map[string]any{"n": i})); err != nil {
			if errors.Is(err, ErrQueueFull) {
				overflowed = true
			}
			break
		}
	}
	waitFor(t, func() bool { return s.IsClosed() })
	_ = overflowed // either the stalled write or the overflow closed it
	assert.True(t, tr.isClosed())
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Close())
		}()
	}
	wg.Wait()
	assert.True(t, s.IsClosed())

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestBindPlayerOnlyOnce(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{})
	defer func() { _ = s.Close() }()

	assert.True(t, s.BindPlayer("p1", "alice"))
	assert.False(t, s.BindPlayer("p2", "bob"))
	assert.Equal(t, "p1", s.PlayerID())
	assert.Equal(t, "alice", s.PlayerName())
}

func TestReceiveDecodesFrames(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{})
	defer func() { _ = s.Close() }()

	frame, err := protocol.Encode(protocol.New(protocol.TypeChat, map[string]any{"message": "hi"}))
	require.NoError(t, err)
	tr.inbound <- frame

	msg, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeChat, msg.Type)
	assert.Equal(t, "hi", msg.Text("message"))
}

func TestReceiveSkipsBadFramesUntilThreshold(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{MaxDecodeFailures: 3})

	tr.inbound <- []byte("not json")
	tr.inbound <- []byte("{}")
	good, err := protocol.Encode(protocol.New(protocol.TypeAck, nil))
	require.NoError(t, err)
	tr.inbound <- good

	// Two bad frames are skipped, the good one comes through and resets
	// the failure counter.
	msg, err := s.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeAck, msg.Type)

	tr.inbound <- []byte("x")
	tr.inbound <- []byte("y")
	tr.inbound <- []byte("z")
	_, err = s.Receive(context.Background())
	assert.ErrorIs(t, err, ErrTooManyBadFrames)
	assert.True(t, s.IsClosed())
}

func TestReceiveHonorsContext(t *testing.T) {
	tr := newFakeTransport()
	s := New(tr, zaptest.NewLogger(t), Options{MessagesPerSecond: 0.001, Burst: 1})
	defer func() { _ = s.Close() }()

	frame, err := protocol.Encode(protocol.New(protocol.TypeAck, nil))
	require.NoError(t, err)
	tr.inbound <- frame
	_, err = s.Receive(context.Background())
	require.NoError(t, err)

	// The burst is spent; the next receive blocks on the limiter until the
	// context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tr.inbound <- frame
	_, err = s.Receive(ctx)
	assert.Error(t, err)
}
