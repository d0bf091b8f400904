// Package session bridges one client connection to the dispatcher. A
// Session owns the outbound queue and writer goroutine for its transport,
// throttles inbound traffic, and tracks the player identity bound at
// handshake time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/sketch/internal/protocol"
)

// ErrClosed is returned by Send and Receive after the session has closed.
var ErrClosed = errors.New("session closed")

// ErrQueueFull is returned by Send when the outbound queue overflows. The
// session is closed as a side effect: a consumer that cannot drain its
// queue is disconnected rather than allowed to stall the dispatcher.
var ErrQueueFull = errors.New("session outbound queue full")

// ErrTooManyBadFrames is returned by Receive when consecutive undecodable
// frames reach the configured threshold.
var ErrTooManyBadFrames = errors.New("too many undecodable frames")

// Transport is the framed byte pipe underneath a Session. ReadFrame and
// WriteFrame carry one protocol message each, without the trailing newline.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
	RemoteAddr() string
}

// Options tunes a Session. Zero values fall back to the defaults below.
type Options struct {
	QueueSize         int
	MessagesPerSecond float64
	Burst             int
	MaxDecodeFailures int
}

const (
	defaultQueueSize         = 64
	defaultMessagesPerSecond = 30
	defaultBurst             = 60
	defaultMaxDecodeFailures = 5
)

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = defaultMessagesPerSecond
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
	if o.MaxDecodeFailures <= 0 {
		o.MaxDecodeFailures = defaultMaxDecodeFailures
	}
	return o
}

// Session is one connected client. Send and Close are safe for concurrent
// use; Receive must be called from a single reader goroutine.
type Session struct {
	id        string
	transport Transport
	logger    *zap.Logger
	limiter   *rate.Limiter
	opts      Options

	outbound chan []byte
	done     chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	playerID   string
	playerName string
	roomID     string
	badFrames  int
	handshaken bool
}

// New creates a Session over the given transport and starts its writer
// goroutine.
//
// Precondition: transport and logger must be non-nil.
// Postcondition: the session is open with a generated ID and an empty
// player binding.
func New(transport Transport, logger *zap.Logger, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		id:        uuid.NewString(),
		transport: transport,
		logger:    logger.With(zap.String("remote", transport.RemoteAddr())),
		limiter:   rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.Burst),
		opts:      opts,
		outbound:  make(chan []byte, opts.QueueSize),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

// ID returns the session identifier assigned at creation.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the transport's remote address, for logging.
func (s *Session) RemoteAddr() string { return s.transport.RemoteAddr() }

// BindPlayer records the player identity established by the handshake.
// Returns false if a handshake was already completed.
func (s *Session) BindPlayer(playerID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handshaken {
		return false
	}
	s.handshaken = true
	s.playerID = playerID
	s.playerName = name
	return true
}

// PlayerID returns the bound player ID, or "" before the handshake.
func (s *Session) PlayerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerID
}

// PlayerName returns the bound display name.
func (s *Session) PlayerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerName
}

// SetRoomID records the room the player currently occupies ("" for none).
func (s *Session) SetRoomID(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
}

// RoomID returns the occupied room, or "".
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Send enqueues a message for delivery. It never blocks: when the queue is
// full the session is closed and ErrQueueFull is returned.
func (s *Session) Send(msg *protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode outbound %s: %w", msg.Type, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	select {
	case s.outbound <- frame:
		s.mu.Unlock()
		return nil
	default:
		s.mu.Unlock()
		s.logger.Warn("outbound queue overflow, disconnecting slow consumer",
			zap.String("session_id", s.id),
			zap.String("type", msg.Type))
		_ = s.Close()
		return ErrQueueFull
	}
}

// Receive blocks for the next inbound message. Inbound traffic is rate
// limited; undecodable frames are skipped until the consecutive failure
// threshold is reached, at which point the session is closed.
func (s *Session) Receive(ctx context.Context) (*protocol.Message, error) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		frame, err := s.transport.ReadFrame()
		if err != nil {
			return nil, err
		}

		msg, err := protocol.Decode(frame)
		if err == nil {
			s.mu.Lock()
			s.badFrames = 0
			s.mu.Unlock()
			return msg, nil
		}

		s.mu.Lock()
		s.badFrames++
		bad := s.badFrames
		s.mu.Unlock()
		s.logger.Debug("dropping undecodable frame",
			zap.String("session_id", s.id),
			zap.Int("consecutive", bad),
			zap.Error(err))
		if bad >= s.opts.MaxDecodeFailures {
			_ = s.Close()
			return nil, fmt.Errorf("%w: %d consecutive", ErrTooManyBadFrames, bad)
		}
	}
}

// Close shuts down the session and its transport. Safe to call more than
// once; later calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	err := s.transport.Close()
	s.wg.Wait()
	return err
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.done }

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case frame := <-s.outbound:
			if err := s.transport.WriteFrame(frame); err != nil {
				s.logger.Debug("write failed",
					zap.String("session_id", s.id),
					zap.Error(err))
				go func() { _ = s.Close() }()
				return
			}
		case <-s.done:
			// Drain what is already queued, then stop.
			for {
				select {
				case frame := <-s.outbound:
					_ = s.transport.WriteFrame(frame)
				default:
					return
				}
			}
		}
	}
}
