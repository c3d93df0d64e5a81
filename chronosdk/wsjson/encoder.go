package wsjson

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"

	"golang.org/x/xerrors"
)

// Encoder writes JSON values of a single type to a websocket connection.
type Encoder[T any] struct {
	conn *websocket.Conn
	typ  websocket.MessageType
}

func (e *Encoder[T]) Encode(v T) error {
	w, err := e.conn.Writer(context.Background(), e.typ)
	if err != nil {
		return xerrors.Errorf("get websocket writer: %w", err)
	}
	defer w.Close()
	j := json.NewEncoder(w)
	err = j.Encode(v)
	if err != nil {
		return xerrors.Errorf("encode json: %w", err)
	}
	return nil
}

func (e *Encoder[T]) Close(c websocket.StatusCode) error {
	return e.conn.Close(c, "")
}

// NewEncoder creates a JSON-over-websocket encoder for type T, which must
// be JSON-serializable. The Encoder is the exclusive writer: it CloseReads
// the connection, so a connection that also needs reads should build the
// encoder by hand.
func NewEncoder[T any](conn *websocket.Conn, typ websocket.MessageType) *Encoder[T] {
	// Here we close the websocket despite reading from it. The websocket
	// library will ensure that read pings are still responded to.
	conn.CloseRead(context.Background())
	return &Encoder[T]{conn: conn, typ: typ}
}
