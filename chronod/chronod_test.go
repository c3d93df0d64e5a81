package chronod_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"

	"github.com/chronohq/chrono/chronod/chronodtest"
	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbgen"
	"github.com/chronohq/chrono/chronosdk"
	"github.com/chronohq/chrono/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, testutil.GoleakOptions...)
}

func TestTimerLifecycle(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC))
	deployment := chronodtest.New(t, &chronodtest.Options{Clock: clock})
	ctx := testutil.Context(t, testutil.WaitShort)
	task := dbgen.Task(t, deployment.DB, database.Task{})

	// No timer yet.
	active, err := deployment.Client.ActiveTimer(ctx, "me")
	require.NoError(t, err)
	require.Nil(t, active)

	started, err := deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{
		TaskID:      &task.ID,
		Description: "reviewing invoices",
	})
	require.NoError(t, err)
	require.Equal(t, deployment.UserID, started.UserID)

	clock.Advance(30 * time.Minute)
	active, err = deployment.Client.ActiveTimer(ctx, "me")
	require.NoError(t, err)
	require.NotNil(t, active)
	require.EqualValues(t, 1800, active.ElapsedSeconds)

	entry, err := deployment.Client.StopTimer(ctx, "me")
	require.NoError(t, err)
	require.True(t, entry.IsTimerBased)
	require.InDelta(t, 0.5, entry.Hours, 1e-9)
	require.Len(t, entry.Sessions, 1)
	require.Equal(t, "reviewing invoices", entry.Sessions[0].Description)

	active, err = deployment.Client.ActiveTimer(ctx, "me")
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestStartTimerConflict(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)

	_, err := deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{})
	require.NoError(t, err)

	_, err = deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{})
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
}

func TestStopTimerWithoutTimer(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)

	_, err := deployment.Client.StopTimer(ctx, "me")
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestManualEntries(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)
	task := dbgen.Task(t, deployment.DB, database.Task{})

	entry, err := deployment.Client.CreateTimeEntry(ctx, "me", chronosdk.CreateTimeEntryRequest{
		TaskID:        &task.ID,
		Date:          "2024-03-18",
		Hours:         2,
		BillableHours: 1,
	})
	require.NoError(t, err)
	require.False(t, entry.IsTimerBased)
	require.InDelta(t, 2, entry.Hours, 1e-9)

	// Malformed date never reaches the service.
	_, err = deployment.Client.CreateTimeEntry(ctx, "me", chronosdk.CreateTimeEntryRequest{
		Date: "18-03-2024",
	})
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	updated, err := deployment.Client.UpdateTimeEntry(ctx, "me", entry.ID, chronosdk.UpdateTimeEntryRequest{
		Hours:         4,
		BillableHours: 4,
	})
	require.NoError(t, err)
	require.InDelta(t, 4, updated.Hours, 1e-9)

	withSession, err := deployment.Client.CreateSession(ctx, "me", entry.ID, chronosdk.CreateSessionRequest{
		StartTime:  time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC),
		IsBillable: true,
	})
	require.NoError(t, err)
	require.Len(t, withSession.Sessions, 1)
	require.InDelta(t, 1, withSession.Hours, 1e-9)

	// Once sessions exist the direct edit path is closed.
	_, err = deployment.Client.UpdateTimeEntry(ctx, "me", entry.ID, chronosdk.UpdateTimeEntryRequest{Hours: 9})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)

	entries, err := deployment.Client.TimeEntries(ctx, "me", "2024-03-18", "2024-03-18")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, deployment.Client.DeleteTimeEntry(ctx, "me", entry.ID))
	entries, err = deployment.Client.TimeEntries(ctx, "me", "", "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestUserScoping(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)

	// A member cannot address another user, and learns nothing about them.
	_, err := deployment.Client.ActiveTimer(ctx, deployment.AdminID.String())
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	// An admin can act on a member's behalf.
	started, err := deployment.AdminClient.StartTimer(ctx, deployment.UserID.String(), chronosdk.StartTimerRequest{})
	require.NoError(t, err)
	require.Equal(t, deployment.UserID, started.UserID)

	// The member sees the timer the admin started for them.
	active, err := deployment.Client.ActiveTimer(ctx, "me")
	require.NoError(t, err)
	require.NotNil(t, active)

	// Ownership still follows the addressed user: the admin editing on
	// behalf of the member cannot touch the member's entries through their
	// own scope.
	entry, err := deployment.Client.CreateTimeEntry(ctx, "me", chronosdk.CreateTimeEntryRequest{
		Date:  "2024-03-18",
		Hours: 1,
	})
	require.NoError(t, err)
	_, err = deployment.AdminClient.UpdateTimeEntry(ctx, "me", entry.ID, chronosdk.UpdateTimeEntryRequest{Hours: 2})
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)

	client := deployment.NewClient(t, uuid.New(), false)
	_, err := client.ActiveTimer(ctx, "me")
	require.NoError(t, err)

	deployment.RevokeSession(client.SessionToken())
	_, err = client.ActiveTimer(ctx, "me")
	require.True(t, chronosdk.IsUnauthorized(err))
}

func TestShortcutsAPI(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)
	task := dbgen.Task(t, deployment.DB, database.Task{Name: "billing"})

	shortcut, err := deployment.Client.CreateShortcut(ctx, "me", chronosdk.CreateShortcutRequest{
		TaskID: task.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "billing", shortcut.TaskName)

	_, err = deployment.Client.CreateShortcut(ctx, "me", chronosdk.CreateShortcutRequest{
		TaskID: task.ID,
	})
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)

	shortcuts, err := deployment.Client.Shortcuts(ctx, "me")
	require.NoError(t, err)
	require.Len(t, shortcuts, 1)

	require.NoError(t, deployment.Client.DeleteShortcut(ctx, "me", shortcut.ID))
}

func TestWatchTimerEvents(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)
	logger := slogtest.Make(t, nil).Leveled(slog.LevelDebug)

	eventCh, closer, err := deployment.Client.WatchTimerEvents(ctx, "me", logger)
	require.NoError(t, err)
	defer closer.Close()

	// A second device of the same user mutates; the watcher hears it.
	second := deployment.NewClient(t, deployment.UserID, false)
	_, err = second.StartTimer(ctx, "me", chronosdk.StartTimerRequest{})
	require.NoError(t, err)

	event := testutil.RequireReceive(ctx, t, eventCh)
	require.Equal(t, chronosdk.TimerEventTimerStarted, event.Kind)
	require.NotNil(t, event.Timer)
	require.Equal(t, deployment.UserID, event.Timer.UserID)

	_, err = second.StopTimer(ctx, "me")
	require.NoError(t, err)

	event = testutil.RequireReceive(ctx, t, eventCh)
	require.Equal(t, chronosdk.TimerEventTimerStopped, event.Kind)
	event = testutil.RequireReceive(ctx, t, eventCh)
	require.Equal(t, chronosdk.TimerEventEntryCreated, event.Kind)
	require.NotNil(t, event.Entry)
}

func TestReports(t *testing.T) {
	t.Parallel()
	deployment := chronodtest.New(t, nil)
	ctx := testutil.Context(t, testutil.WaitShort)
	task := dbgen.Task(t, deployment.DB, database.Task{ProjectName: "acme-site"})

	_, err := deployment.Client.CreateTimeEntry(ctx, "me", chronosdk.CreateTimeEntryRequest{
		TaskID:        &task.ID,
		Date:          "2024-03-18",
		Hours:         2,
		BillableHours: 1,
	})
	require.NoError(t, err)
	_, err = deployment.Client.CreateTimeEntry(ctx, "me", chronosdk.CreateTimeEntryRequest{
		TaskID: &task.ID,
		Date:   "2024-03-19",
		Hours:  3,
	})
	require.NoError(t, err)

	daily, err := deployment.Client.DailyReport(ctx, "me", "2024-03-18")
	require.NoError(t, err)
	require.InDelta(t, 2, daily.TotalHours, 1e-9)
	require.InDelta(t, 1, daily.BillableHours, 1e-9)
	require.Len(t, daily.Entries, 1)

	weekly, err := deployment.Client.WeeklyReport(ctx, "me", "2024-03-18")
	require.NoError(t, err)
	require.Len(t, weekly.Days, 7)
	require.InDelta(t, 2, weekly.Days[0].TotalHours, 1e-9)
	require.InDelta(t, 3, weekly.Days[1].TotalHours, 1e-9)

	monthly, err := deployment.Client.MonthlyReport(ctx, "me", "2024-03")
	require.NoError(t, err)
	require.Len(t, monthly.Days, 31)
	require.Len(t, monthly.Projects, 1)
	require.Equal(t, "acme-site", monthly.Projects[0].ProjectName)
	require.InDelta(t, 5, monthly.Projects[0].TotalHours, 1e-9)
}

func TestPayrollExport(t *testing.T) {
	t.Parallel()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC))
	deployment := chronodtest.New(t, &chronodtest.Options{Clock: clock})
	ctx := testutil.Context(t, testutil.WaitShort)
	task := dbgen.Task(t, deployment.DB, database.Task{
		Name:        "support rotation",
		ProjectName: "helpdesk",
		ClientName:  "acme",
	})

	_, err := deployment.Client.StartTimer(ctx, "me", chronosdk.StartTimerRequest{TaskID: &task.ID})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = deployment.Client.StopTimer(ctx, "me")
	require.NoError(t, err)

	// Members cannot read the export.
	_, err = deployment.Client.PayrollExport(ctx, "2024-03-18", "2024-03-18")
	var apiErr *chronosdk.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	export, err := deployment.AdminClient.PayrollExport(ctx, "2024-03-18", "2024-03-18")
	require.NoError(t, err)
	require.Len(t, export.Users, 1)
	user := export.Users[0]
	require.Equal(t, deployment.UserID, user.UserID)
	require.Len(t, user.Dates, 1)
	require.InDelta(t, 1, user.Dates[0].TotalHours, 1e-9)
	require.Len(t, user.Sessions, 1)
	require.Equal(t, "acme", user.Sessions[0].ClientName)
	require.Equal(t, "helpdesk", user.Sessions[0].ProjectName)
	require.Equal(t, "support rotation", user.Sessions[0].TaskName)
	require.Equal(t, time.UTC, user.Sessions[0].StartTime.Location())
	require.InDelta(t, 1, user.Sessions[0].Duration, 1e-9)
}
