package chat

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// peerConn is a connection shared by exactly two owners: the session reads
// from it and the writer writes to it. The socket is closed once both halves
// have been released.
type peerConn struct {
	net.Conn
	id      string
	refs    atomic.Int32
	onClose func()
	once    sync.Once
}

func newPeerConn(conn net.Conn, onClose func()) *peerConn {
	pc := &peerConn{
		Conn:    conn,
		id:      uuid.NewString(),
		onClose: onClose,
	}
	pc.refs.Store(2)
	return pc
}

func (c *peerConn) releaseRead() {
	if cr, ok := c.Conn.(interface{ CloseRead() error }); ok {
		_ = cr.CloseRead()
	}
	c.release()
}

func (c *peerConn) releaseWrite() {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	c.release()
}

func (c *peerConn) release() {
	if c.refs.Add(-1) == 0 {
		c.forceClose()
	}
}

// forceClose closes the socket regardless of outstanding owners.
func (c *peerConn) forceClose() {
	c.once.Do(func() {
		_ = c.Conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *peerConn) remoteAddr() string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
