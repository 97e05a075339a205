package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	outboxSize   = 16
	writeTimeout = 5 * time.Second
)

var (
	errSessionClosed = errors.New("session closed")
	errOutboxFull    = errors.New("session outbox full")
)

// session is one live WebSocket bound to an area. Payloads handed to Send
// are queued on a bounded outbox and written by a single goroutine, so the
// synchronization service is never blocked by a slow or dead peer.
type session struct {
	id     string
	area   string
	conn   *websocket.Conn
	logger *slog.Logger

	out       chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(area string, conn *websocket.Conn, logger *slog.Logger) *session {
	return &session{
		id:     uuid.NewString(),
		area:   area,
		conn:   conn,
		logger: logger,
		out:    make(chan any, outboxSize),
		done:   make(chan struct{}),
	}
}

// ID implements registry.Session.
func (s *session) ID() string {
	return s.id
}

// Send implements registry.Session. It never blocks: a full outbox or a
// closed session is reported as an error and the payload is dropped.
func (s *session) Send(payload any) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.out <- payload:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errOutboxFull
	}
}

// close tears the session down exactly once. Closing the connection also
// unblocks any pending read, terminating the read loop.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writeLoop drains the outbox onto the wire until the session closes or a
// write fails.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(payload); err != nil {
				s.logger.Debug("session write failed", "area", s.area, "session", s.id, "error", err)
				s.close()
				return
			}
		}
	}
}
