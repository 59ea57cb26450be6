package transport

import (
	"net"
	"sync"
	"time"

	"peer-rpc/protocol"
)

// Stream carries frames over a byte stream such as a TCP connection.
type Stream struct {
	inbox
	conn         net.Conn      // Underlying connection
	sending      sync.Mutex    // Serializes writes so frames never interleave
	writeTimeout time.Duration // Bounds every write, 0 = none
	closeOnce    sync.Once
	closeErr     error
}

type StreamOption func(*Stream)

// WithWriteTimeout bounds each frame write. A peer that stops reading then
// fails the write instead of stalling the goroutine running Process.
func WithWriteTimeout(d time.Duration) StreamOption {
	return func(s *Stream) { s.writeTimeout = d }
}

// NewStream wraps conn and starts the goroutine reading frames from it.
func NewStream(conn net.Conn, opts ...StreamOption) *Stream {
	s := &Stream{conn: conn}
	for _, opt := range opts {
		opt(s)
	}
	go s.recvLoop()
	return s
}

// Dial connects to addr and returns a started Stream.
func Dial(network, addr string, timeout time.Duration, opts ...StreamOption) (*Stream, error) {
	conn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewStream(conn, opts...), nil
}

func (s *Stream) Send(frame []byte) error {
	s.sending.Lock()
	defer s.sending.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteFrame(s.conn, frame)
}

// recvLoop is the only reader of conn: frame boundaries can only be parsed
// sequentially. A read error closes the inbox for good.
func (s *Stream) recvLoop() {
	for {
		frame, err := protocol.ReadFrame(s.conn)
		if err != nil {
			s.inbox.close(err)
			_ = s.Close()
			return
		}
		s.push(frame)
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Conn returns the underlying connection.
func (s *Stream) Conn() net.Conn {
	return s.conn
}
