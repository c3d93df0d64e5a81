// Package events names the pubsub channels of the real-time sync fabric
// and adapts raw pubsub messages into typed callbacks.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/chronohq/chrono/chronosdk"
)

// UserChannel is the room for one user: every device the user has
// connected (tabs, extension worker, side panel) subscribes to it, across
// every backend process.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("timer_events:user:%s", userID)
}

// HandleUserEvent decodes raw room traffic into chronosdk.TimerEvent
// callbacks. Decode failures are passed through as errors so subscribers
// can resync instead of silently missing an event.
func HandleUserEvent(cb func(ctx context.Context, payload chronosdk.TimerEvent, err error)) func(ctx context.Context, message []byte, err error) {
	return func(ctx context.Context, message []byte, err error) {
		if err != nil {
			cb(ctx, chronosdk.TimerEvent{}, xerrors.Errorf("timer event pubsub: %w", err))
			return
		}
		var payload chronosdk.TimerEvent
		if err := json.Unmarshal(message, &payload); err != nil {
			cb(ctx, chronosdk.TimerEvent{}, xerrors.Errorf("unmarshal timer event: %w", err))
			return
		}

		cb(ctx, payload, nil)
	}
}
