package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"nhooyr.io/websocket"

	"peer-rpc/protocol"
)

// WebSocket carries one frame per binary WebSocket message.
type WebSocket struct {
	inbox
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	sending   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocket wraps an established WebSocket and starts its read loop.
func NewWebSocket(ctx context.Context, conn *websocket.Conn) *WebSocket {
	ctx, cancel := context.WithCancel(ctx)
	conn.SetReadLimit(protocol.MaxFrameSize)
	ws := &WebSocket{conn: conn, ctx: ctx, cancel: cancel}
	go ws.recvLoop()
	return ws
}

// DialWebSocket connects to a ws:// or wss:// URL.
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(context.Background(), conn), nil
}

// AcceptWebSocket upgrades an HTTP request and returns the server end.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocket, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(context.Background(), conn), nil
}

func (ws *WebSocket) Send(frame []byte) error {
	ws.sending.Lock()
	defer ws.sending.Unlock()
	return ws.conn.Write(ws.ctx, websocket.MessageBinary, frame)
}

func (ws *WebSocket) recvLoop() {
	for {
		typ, data, err := ws.conn.Read(ws.ctx)
		if err != nil {
			ws.inbox.close(err)
			_ = ws.Close()
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		ws.push(data)
	}
}

func (ws *WebSocket) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		err = ws.conn.Close(websocket.StatusNormalClosure, "")
		ws.cancel()
		var ce websocket.CloseError
		if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
			err = nil
		}
	})
	return err
}
