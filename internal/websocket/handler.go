package websocket

import (
	"fmt"
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and streams userID's events to it until the
// connection ends or expires passes. originHosts lists the extra hosts a page
// may connect from; the request host is always allowed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int64, expires time.Time, originHosts []string) error {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originHosts})
	if err != nil {
		return fmt.Errorf("websocket accept: %w", err)
	}
	defer conn.CloseNow()

	switch code := newClient(h, conn, userID, expires).run(r.Context()); code {
	case ws.StatusPolicyViolation:
		return conn.Close(code, "session expired")
	case ws.StatusNormalClosure, ws.StatusGoingAway:
		return conn.Close(code, "")
	default:
		return nil
	}
}
