package server

import (
	"time"

	"github.com/fasthttp/websocket"
)

const closeWriteWait = time.Second

// wsConn adapts fasthttp/websocket.Conn to types.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteJSON(v any) error { return w.conn.WriteJSON(v) }

// CloseWithCode sends a close frame carrying the reject code before
// tearing the socket down, so clients can distinguish rejections.
func (w *wsConn) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(closeWriteWait)
	if err := w.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		w.conn.Close()
		return err
	}
	return w.conn.Close()
}

func (w *wsConn) Close() error { return w.conn.Close() }
