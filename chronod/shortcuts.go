package chronod

import (
	"net/http"

	"github.com/chronohq/chrono/chronod/database/db2sdk"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
)

func (api *API) shortcuts(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	shortcuts, err := api.Timer.Shortcuts(ctx, userID)
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}
	out := make([]chronosdk.Shortcut, 0, len(shortcuts))
	for _, shortcut := range shortcuts {
		out = append(out, db2sdk.Shortcut(shortcut.Shortcut, shortcut.Task))
	}
	httpapi.Write(ctx, rw, http.StatusOK, out)
}

func (api *API) postShortcut(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	var req chronosdk.CreateShortcutRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	shortcut, err := api.Timer.CreateShortcut(ctx, timer.CreateShortcutParams{
		UserID:   userID,
		TaskID:   req.TaskID,
		Position: req.Position,
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, db2sdk.Shortcut(shortcut.Shortcut, shortcut.Task))
}

func (api *API) deleteShortcut(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	shortcutID, ok := parseUUIDParam(rw, r, "shortcut")
	if !ok {
		return
	}
	if err := api.Timer.DeleteShortcut(ctx, userID, shortcutID); err != nil {
		writeTimerError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}
