package chronod

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/database/db2sdk"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
)

const dayFormat = "2006-01-02"

func (api *API) timeEntries(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	startDate, ok := parseDayParam(rw, r, "start_date")
	if !ok {
		return
	}
	endDate, ok := parseDayParam(rw, r, "end_date")
	if !ok {
		return
	}

	entries, err := api.Timer.Entries(ctx, timer.ListEntriesParams{
		UserID:    userID,
		StartDate: startDate,
		EndDate:   endDate,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}

	out := make([]chronosdk.TimeEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
	}
	httpapi.Write(ctx, rw, http.StatusOK, out)
}

func (api *API) postTimeEntry(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	var req chronosdk.CreateTimeEntryRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	// The datetime validator tag already rejected malformed dates.
	date, err := time.ParseInLocation(dayFormat, req.Date, time.UTC)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Invalid date.",
			Detail:  err.Error(),
		})
		return
	}

	entry, err := api.Timer.CreateEntry(ctx, timer.CreateEntryParams{
		UserID:        userID,
		TaskID:        uuidPtrToNull(req.TaskID),
		Date:          date,
		Hours:         req.Hours,
		BillableHours: req.BillableHours,
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func (api *API) patchTimeEntry(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	entryID, ok := parseUUIDParam(rw, r, "entry")
	if !ok {
		return
	}
	var req chronosdk.UpdateTimeEntryRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	entry, err := api.Timer.UpdateEntryHours(ctx, timer.UpdateEntryHoursParams{
		UserID:        userID,
		EntryID:       entryID,
		Hours:         req.Hours,
		BillableHours: req.BillableHours,
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func (api *API) deleteTimeEntry(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	entryID, ok := parseUUIDParam(rw, r, "entry")
	if !ok {
		return
	}
	if err := api.Timer.DeleteEntry(ctx, userID, entryID); err != nil {
		writeTimerError(rw, r, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *API) postSession(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	entryID, ok := parseUUIDParam(rw, r, "entry")
	if !ok {
		return
	}
	var req chronosdk.CreateSessionRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	entry, err := api.Timer.AddSession(ctx, timer.AddSessionParams{
		UserID:      userID,
		EntryID:     entryID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsBillable:  req.IsBillable,
		Description: stringToNull(req.Description),
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func (api *API) patchSession(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	sessionID, ok := parseUUIDParam(rw, r, "session")
	if !ok {
		return
	}
	var req chronosdk.UpdateSessionRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	entry, err := api.Timer.UpdateSession(ctx, timer.UpdateSessionParams{
		UserID:      userID,
		SessionID:   sessionID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsBillable:  req.IsBillable,
		Description: req.Description,
	})
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func (api *API) deleteSession(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	sessionID, ok := parseUUIDParam(rw, r, "session")
	if !ok {
		return
	}
	entry, err := api.Timer.DeleteSession(ctx, userID, sessionID)
	if err != nil {
		writeTimerError(rw, r, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
}

func parseUUIDParam(rw http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Invalid " + name + " id.",
			Detail:  err.Error(),
		})
		return uuid.UUID{}, false
	}
	return id, true
}

// parseDayParam reads an optional 2006-01-02 query parameter. An absent
// parameter yields the zero time, which list queries treat as an open bound.
func parseDayParam(rw http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	ctx := r.Context()
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	date, err := time.ParseInLocation(dayFormat, raw, time.UTC)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Query param " + name + " must be formatted " + dayFormat + ".",
			Detail:  err.Error(),
		})
		return time.Time{}, false
	}
	return date, true
}
