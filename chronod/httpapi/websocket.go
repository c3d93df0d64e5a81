package httpapi

import (
	"context"
	"time"

	"github.com/coder/websocket"
)

// HeartbeatInterval is the interval at which websocket pings are sent.
const HeartbeatInterval = 15 * time.Second

// Heartbeat loops to ping a WebSocket to keep it alive. The connection is
// expected to be closed by other means; ping failure just ends the loop.
func Heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := conn.Ping(ctx)
		if err != nil {
			return
		}
	}
}
