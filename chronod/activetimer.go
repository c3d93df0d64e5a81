package chronod

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/db2sdk"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
)

func (api *API) activeTimer(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	active, elapsed, err := api.Timer.ActiveTimer(ctx, userID)
	if timer.IsNotFound(err) {
		// No running timer is a normal state, not an error.
		rw.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.ActiveTimer(active, elapsed))
}

func (api *API) startTimer(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	var req chronosdk.StartTimerRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	active, err := api.Timer.StartTimer(ctx, timer.StartTimerParams{
		UserID:      userID,
		TaskID:      uuidPtrToNull(req.TaskID),
		Description: stringToNull(req.Description),
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, db2sdk.ActiveTimer(active, 0))
}

func (api *API) stopTimer(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	entry, err := api.Timer.StopTimer(ctx, userID)
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func (api *API) discardTimer(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	if err := api.Timer.DiscardTimer(ctx, userID); err != nil {
		writeTimerError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *API) updateTimer(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	var req chronosdk.UpdateTimerRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	active, err := api.Timer.UpdateTimer(ctx, timer.UpdateTimerParams{
		UserID:      userID,
		TaskID:      uuidPtrToNull(req.TaskID),
		Description: stringToNull(req.Description),
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.ActiveTimer(active, activeElapsed(api, active)))
}

func activeElapsed(api *API, active database.ActiveTimer) int64 {
	elapsed := int64(api.Clock.Now().UTC().Sub(active.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

func uuidPtrToNull(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
