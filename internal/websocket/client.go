package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one open page of one user. It lives no longer than the session
// that opened it.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	userID  int64
	expires time.Time
	send    chan []byte
}

func newClient(hub *Hub, conn *ws.Conn, userID int64, expires time.Time) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		userID:  userID,
		expires: expires,
		send:    make(chan []byte, sendBufferSize),
	}
}

// run pumps queued messages to the browser until the peer leaves, ctx ends or
// the session expires. Browsers never send anything we act on, so reads are
// handed to CloseRead, which also answers pings and close frames.
func (c *Client) run(ctx context.Context) ws.StatusCode {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx = c.conn.CloseRead(ctx)
	if !c.expires.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, c.expires)
		defer cancel()
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return ws.StatusGoingAway
			}
			if err := c.write(ctx, msg); err != nil {
				return ws.StatusAbnormalClosure
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return ws.StatusAbnormalClosure
			}
		case <-ctx.Done():
			if !c.expires.IsZero() && !time.Now().Before(c.expires) {
				return ws.StatusPolicyViolation
			}
			return ws.StatusNormalClosure
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
