package chronosdk

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cdr.dev/slog"
	"github.com/coder/websocket"
	"golang.org/x/xerrors"

	"github.com/chronohq/chrono/chronosdk/wsjson"
)

// WatchTimerEvents joins the user's room and streams its events. The
// returned channel closes when the connection drops; callers must re-fetch
// authoritative state (active timer, entries, shortcuts) on every
// (re)connect rather than trusting event history.
func (c *Client) WatchTimerEvents(ctx context.Context, user string, logger slog.Logger) (<-chan TimerEvent, io.Closer, error) {
	u, err := c.URL.Parse(fmt.Sprintf("/api/v1/users/%s/watch", user))
	if err != nil {
		return nil, nil, xerrors.Errorf("parse url: %w", err)
	}
	// Browser websockets cannot set headers, so the token also rides a
	// query parameter. Send both; the server accepts either.
	q := u.Query()
	q.Set(SessionTokenQuery, c.SessionToken())
	u.RawQuery = q.Encode()

	//nolint:bodyclose // websocket swallows the response body on hijack.
	conn, res, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: c.HTTPClient,
		HTTPHeader: http.Header{SessionTokenHeader: []string{c.SessionToken()}},
	})
	if err != nil {
		if res != nil {
			return nil, nil, ReadBodyAsError(res)
		}
		return nil, nil, xerrors.Errorf("dial websocket: %w", err)
	}

	d := wsjson.NewDecoder[TimerEvent](conn, websocket.MessageText, logger)
	return d.Chan(), d, nil
}
