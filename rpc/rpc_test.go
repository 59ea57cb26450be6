package rpc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"peer-rpc/codec"
	"peer-rpc/message"
	"peer-rpc/protocol"
	"peer-rpc/transport"
)

// Calc is the interface both test peers are compiled against.
// Method ids by name: Add=1, Div=2, Echo=3, Notify=4.
type Calc interface {
	Add(a, b int) int
	Div(a, b int) (int, error)
	Echo(ctx context.Context, s string) string
	Notify(msg string)
}

var errDivByZero = errors.New("division by zero")

type calcImpl struct {
	mu       sync.Mutex
	notified []string
	sawConn  *Connection
	sawProc  bool
}

func (c *calcImpl) Add(a, b int) int { return a + b }

func (c *calcImpl) Div(a, b int) (int, error) {
	if b == 0 {
		return 0, errDivByZero
	}
	return a / b, nil
}

func (c *calcImpl) Echo(ctx context.Context, s string) string {
	conn, _ := FromContext(ctx)
	c.mu.Lock()
	c.sawConn = conn
	c.sawProc = conn != nil && conn.Processing()
	c.mu.Unlock()
	return s
}

func (c *calcImpl) Notify(msg string) {
	c.mu.Lock()
	c.notified = append(c.notified, msg)
	c.mu.Unlock()
}

var discard = slog.New(slog.DiscardHandler)

// fakeTransport records sent frames and serves scripted inbound frames.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound [][]byte
	closed  bool
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrClosed
	}
	f.sent = append(f.sent, append([]byte(nil), frame...))
	return nil
}

func (f *fakeTransport) Receive() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) > 0 {
		frame := f.inbound[0]
		f.inbound = f.inbound[1:]
		return frame, true
	}
	if f.closed {
		return nil, false
	}
	return nil, true
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(frame []byte) {
	f.mu.Lock()
	f.inbound = append(f.inbound, frame)
	f.mu.Unlock()
}

func (f *fakeTransport) headers(t *testing.T) []protocol.Header {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	hdrs := make([]protocol.Header, len(f.sent))
	for i, frame := range f.sent {
		h, err := protocol.ParseHeader(frame)
		require.NoError(t, err)
		hdrs[i] = h
	}
	return hdrs
}

func newFakeConn(t *testing.T, opts ...Option) (*Connection, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	opts = append([]Option{WithLogger(discard)}, opts...)
	return NewConnection(ft, nil, MustTable[Calc](), opts...), ft
}

// replyFrame builds the reply a peer would send for the call with header h.
func replyFrame(cd codec.Codec, h protocol.Header, reply *message.Reply) []byte {
	buf := protocol.NewBuffer(0)
	slot := buf.Reserve(h.CallID, true)
	writeReply(buf, cd, reply)
	slot.Patch(uint32(buf.Len()), h.Counter)
	return buf.Bytes()
}

// newPair connects a calling peer to a peer serving Calc over a pipe.
func newPair(t testing.TB, opts ...Option) (client, server *Connection, impl *calcImpl) {
	t.Helper()
	a, b := transport.NewPipe()
	impl = &calcImpl{}
	svc, err := NewService[Calc](impl)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(discard)}, opts...)
	client = NewConnection(a, nil, MustTable[Calc](), opts...)
	server = NewConnection(b, svc, nil, opts...)
	return client, server, impl
}

// pump runs a few processing passes over every connection.
func pump(conns ...*Connection) {
	for i := 0; i < 3; i++ {
		for _, c := range conns {
			c.Process(Both)
		}
	}
}
