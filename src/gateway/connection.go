package gateway

import (
	"sync"
	"time"

	"github.com/chatstream/gateway/src/types"
)

// connection owns one client socket from handshake to teardown. The
// state field is written only by the goroutine running Serve.
type connection struct {
	id            string
	userID        string
	group         string
	clientIP      string
	establishedAt time.Time

	conn types.Conn
	send chan types.Message
	done chan struct{}

	mu    sync.RWMutex
	state State

	subscribed bool
	leased     bool

	closeOnce sync.Once
}

func newConnection(id string, conn types.Conn, clientIP string, sendBuffer int) *connection {
	return &connection{
		id:            id,
		conn:          conn,
		clientIP:      clientIP,
		establishedAt: time.Now(),
		send:          make(chan types.Message, sendBuffer),
		done:          make(chan struct{}),
		state:         StateInit,
	}
}

func (c *connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Deliver queues a routed message for the write pump. It never blocks;
// a full queue or a closed connection drops the message.
func (c *connection) Deliver(msg types.Message) bool {
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// writePump writes queued messages to the socket until the connection
// closes. Together with the direct write of the system message before
// the pump starts, this is the only writer the socket ever has.
func (c *connection) writePump() {
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close releases the socket. Safe to call from any goroutine, any
// number of times.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// info snapshots connection metadata.
func (c *connection) info() types.ConnectionInfo {
	return types.ConnectionInfo{
		ID:            c.id,
		UserID:        c.userID,
		Group:         c.group,
		State:         c.State().String(),
		ClientIP:      c.clientIP,
		EstablishedAt: c.establishedAt,
	}
}
