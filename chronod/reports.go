package chronod

import (
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/db2sdk"
	"github.com/chronohq/chrono/chronod/httpapi"
	"github.com/chronohq/chrono/chronod/httpmw"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
)

func (api *API) dailyReport(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	date, ok := requireDayParam(rw, r, "date")
	if !ok {
		return
	}

	entries, err := api.Timer.Entries(ctx, timer.ListEntriesParams{
		UserID:    userID,
		StartDate: date,
		EndDate:   date,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}

	report := chronosdk.DailyReport{
		DaySummary: chronosdk.DaySummary{Date: date},
		Entries:    make([]chronosdk.TimeEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		report.TotalHours += entry.Hours
		report.BillableHours += entry.BillableHours
		report.Entries = append(report.Entries, db2sdk.TimeEntry(entry.TimeEntry, entry.Sessions))
	}
	httpapi.Write(ctx, rw, http.StatusOK, report)
}

func (api *API) weeklyReport(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	start, ok := requireDayParam(rw, r, "start_date")
	if !ok {
		return
	}
	end := start.AddDate(0, 0, 6)

	entries, err := api.Timer.Entries(ctx, timer.ListEntriesParams{
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}

	report := chronosdk.WeeklyReport{
		StartDate: start,
		EndDate:   end,
		Days:      daySummaries(start, end, entries),
	}
	httpapi.Write(ctx, rw, http.StatusOK, report)
}

func (api *API) monthlyReport(rw http.ResponseWriter, r *http.Request) {
	var (
		ctx    = r.Context()
		userID = httpmw.UserParam(r)
	)

	raw := r.URL.Query().Get("month")
	start, err := time.ParseInLocation("2006-01", raw, time.UTC)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Query param month must be formatted 2006-01.",
			Detail:  err.Error(),
		})
		return
	}
	end := start.AddDate(0, 1, -1)

	entries, err := api.Timer.Entries(ctx, timer.ListEntriesParams{
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}

	projects, err := api.projectSummaries(r, entries)
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}
	report := chronosdk.MonthlyReport{
		StartDate: start,
		EndDate:   end,
		Days:      daySummaries(start, end, entries),
		Projects:  projects,
	}
	httpapi.Write(ctx, rw, http.StatusOK, report)
}

func (api *API) payrollExport(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !httpmw.RequestSession(r).Admin {
		httpapi.Forbidden(ctx, rw)
		return
	}

	start, ok := requireDayParam(rw, r, "start_date")
	if !ok {
		return
	}
	end, ok := requireDayParam(rw, r, "end_date")
	if !ok {
		return
	}

	entries, err := api.Database.GetTimeEntriesInRange(ctx, database.GetTimeEntriesInRangeParams{
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}
	sessions, err := api.Database.GetPayrollSessions(ctx, database.GetPayrollSessionsParams{
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		httpapi.InternalServerError(ctx, rw, err)
		return
	}

	// Group by user, then by day within each user. Map iteration order is
	// hidden behind a final sort so the export is deterministic.
	users := map[uuid.UUID]*chronosdk.PayrollUser{}
	userFor := func(id uuid.UUID) *chronosdk.PayrollUser {
		user, ok := users[id]
		if !ok {
			user = &chronosdk.PayrollUser{UserID: id}
			users[id] = user
		}
		return user
	}
	days := map[uuid.UUID]map[string]int{}
	for _, entry := range entries {
		user := userFor(entry.UserID)
		byDay, ok := days[entry.UserID]
		if !ok {
			byDay = map[string]int{}
			days[entry.UserID] = byDay
		}
		key := entry.Date.Format(dayFormat)
		idx, ok := byDay[key]
		if !ok {
			idx = len(user.Dates)
			byDay[key] = idx
			user.Dates = append(user.Dates, chronosdk.DaySummary{Date: entry.Date})
		}
		user.Dates[idx].TotalHours += entry.Hours
		user.Dates[idx].BillableHours += entry.BillableHours
	}
	for _, row := range sessions {
		user := userFor(row.UserID)
		user.Sessions = append(user.Sessions, chronosdk.PayrollSession{
			ClientName:  row.ClientName,
			ProjectName: row.ProjectName,
			TaskName:    row.TaskName,
			StartTime:   row.StartTime,
			EndTime:     row.EndTime,
			Duration:    row.Duration,
			IsBillable:  row.IsBillable,
			Description: row.Description.String,
		})
	}

	export := chronosdk.PayrollExport{
		StartDate: start,
		EndDate:   end,
		Users:     make([]chronosdk.PayrollUser, 0, len(users)),
	}
	for _, user := range users {
		sort.Slice(user.Dates, func(i, j int) bool {
			return user.Dates[i].Date.Before(user.Dates[j].Date)
		})
		sort.Slice(user.Sessions, func(i, j int) bool {
			return user.Sessions[i].StartTime.Before(user.Sessions[j].StartTime)
		})
		export.Users = append(export.Users, *user)
	}
	sort.Slice(export.Users, func(i, j int) bool {
		return export.Users[i].UserID.String() < export.Users[j].UserID.String()
	})
	httpapi.Write(ctx, rw, http.StatusOK, export)
}

// daySummaries buckets entries into one summary per day of the inclusive
// range, emitting zero rows for empty days so clients render full calendars.
func daySummaries(start, end time.Time, entries []timer.Entry) []chronosdk.DaySummary {
	byDay := map[string]int{}
	var summaries []chronosdk.DaySummary
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		byDay[day.Format(dayFormat)] = len(summaries)
		summaries = append(summaries, chronosdk.DaySummary{Date: day})
	}
	for _, entry := range entries {
		idx, ok := byDay[entry.Date.Format(dayFormat)]
		if !ok {
			continue
		}
		summaries[idx].TotalHours += entry.Hours
		summaries[idx].BillableHours += entry.BillableHours
	}
	return summaries
}

func (api *API) projectSummaries(r *http.Request, entries []timer.Entry) ([]chronosdk.ProjectSummary, error) {
	ctx := r.Context()
	names := map[uuid.UUID]string{}
	byProject := map[string]int{}
	var summaries []chronosdk.ProjectSummary
	for _, entry := range entries {
		name := ""
		if entry.TaskID.Valid {
			cached, ok := names[entry.TaskID.UUID]
			if !ok {
				task, err := api.Database.GetTaskByID(ctx, entry.TaskID.UUID)
				if err != nil && !errors.Is(err, sql.ErrNoRows) {
					return nil, err
				}
				cached = task.ProjectName
				names[entry.TaskID.UUID] = cached
			}
			name = cached
		}
		idx, ok := byProject[name]
		if !ok {
			idx = len(summaries)
			byProject[name] = idx
			summaries = append(summaries, chronosdk.ProjectSummary{ProjectName: name})
		}
		summaries[idx].TotalHours += entry.Hours
		summaries[idx].BillableHours += entry.BillableHours
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ProjectName < summaries[j].ProjectName
	})
	return summaries, nil
}

func requireDayParam(rw http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	ctx := r.Context()
	raw := r.URL.Query().Get(name)
	if raw == "" {
		httpapi.Write(ctx, rw, http.StatusBadRequest, chronosdk.Response{
			Message: "Query param " + name + " is required.",
		})
		return time.Time{}, false
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
