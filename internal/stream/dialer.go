package stream

import (
	"context"

	"golang.org/x/net/websocket"

	"casinogw/internal/proto"
)

// Conn is one live updates connection. Receive returns the next binary
// message.
type Conn interface {
	Receive() ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url, origin string) (Conn, error)
}

// WebsocketDialer dials with golang.org/x/net/websocket.
type WebsocketDialer struct{}

type wsConn struct {
	ws *websocket.Conn
}

func (WebsocketDialer) Dial(ctx context.Context, url, origin string) (Conn, error) {
	if origin == "" {
		origin = "http://localhost/"
	}
	cfg, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	ws.MaxPayloadBytes = proto.MaxUpdateSize
	ws.PayloadType = websocket.BinaryFrame
	return &wsConn{ws: ws}, nil
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		var msg []byte
		if err := websocket.Message.Receive(c.ws, &msg); err != nil {
			return nil, err
		}
		if len(msg) == 0 {
			continue
		}
		return msg, nil
	}
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
