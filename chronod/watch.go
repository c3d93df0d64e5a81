package chronod

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"cdr.dev/slog"

	"github.com/chronohq/chrono/chronod/events"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronosdk"
)

// watchBuffer bounds how far a slow socket may lag behind its room before
// events are dropped. Dropped events only cost freshness: clients refetch
// the snapshot on reconnect.
const watchBuffer = 16

func (api *API) watchTimerEvents(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
		logger = api.Logger.Named("watch").With(slog.F("user_id", userID))
	)

	eventCh := make(chan chronosdk.TimerEvent, watchBuffer)
	cancelSub, err := api.Pubsub.SubscribeWithErr(
		events.UserChannel(userID),
		events.HandleUserEvent(func(subCtx context.Context, payload chronosdk.TimerEvent, err error) {
			if err != nil {
				logger.Warn(subCtx, "room event dropped", slog.Error(err))
				api.watchEventsSent.WithLabelValues("error").Inc()
				return
			}
			select {
			case eventCh <- payload:
			default:
				// The socket is not keeping up; freshness over completeness.
				api.watchEventsSent.WithLabelValues("dropped").Inc()
			}
		}),
	)
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}
	defer cancelSub()

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusUpgradeRequired, chronosdk.Response{
			Message: "Failed to accept websocket.",
			Detail:  err.Error(),
		})
		return
	}

	api.watchConnections.Inc()
	defer api.watchConnections.Dec()

	go httpapi.Heartbeat(ctx, conn)
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	// CloseRead's context ends when the peer goes away, which the request
	// context does not observe on a hijacked connection.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Error(ctx, "marshal timer event", slog.Error(err))
				return
			}
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				logger.Debug(ctx, "write to websocket", slog.Error(err))
				return
			}
			api.watchEventsSent.WithLabelValues("sent").Inc()
		}
	}
}
