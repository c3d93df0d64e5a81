package timer_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/quartz"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbgen"
	"github.com/chronohq/chrono/chronod/database/dbmem"
	"github.com/chronohq/chrono/chronod/database/pubsub"
	"github.com/chronohq/chrono/chronod/events"
	"github.com/chronohq/chrono/chronod/timer"
	"github.com/chronohq/chrono/chronosdk"
	"github.com/chronohq/chrono/testutil"
)

func newService(t *testing.T) (*timer.Service, database.Store, pubsub.Pubsub, *quartz.Mock) {
	t.Helper()
	db := dbmem.New()
	ps := pubsub.NewInMemory()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 3, 18, 9, 0, 0, 0, time.UTC))
	svc := timer.New(timer.Options{
		Database: db,
		Pubsub:   ps,
		Logger:   slogtest.Make(t, nil).Leveled(slog.LevelDebug),
		Clock:    clock,
	})
	return svc, db, ps, clock
}

func watchEvents(t *testing.T, ps pubsub.Pubsub, userID uuid.UUID) <-chan chronosdk.TimerEvent {
	t.Helper()
	ch := make(chan chronosdk.TimerEvent, 16)
	cancel, err := ps.SubscribeWithErr(events.UserChannel(userID),
		events.HandleUserEvent(func(_ context.Context, payload chronosdk.TimerEvent, err error) {
			require.NoError(t, err)
			ch <- payload
		}))
	require.NoError(t, err)
	t.Cleanup(cancel)
	return ch
}

func TestStartTimer(t *testing.T) {
	t.Parallel()

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		svc, db, ps, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})
		eventCh := watchEvents(t, ps, userID)

		active, err := svc.StartTimer(ctx, timer.StartTimerParams{
			UserID:      userID,
			TaskID:      uuid.NullUUID{UUID: task.ID, Valid: true},
			Description: sql.NullString{String: "standup notes", Valid: true},
		})
		require.NoError(t, err)
		require.Equal(t, userID, active.UserID)
		require.Equal(t, task.ID, active.TaskID.UUID)

		event := testutil.RequireReceive(ctx, t, eventCh)
		require.Equal(t, chronosdk.TimerEventTimerStarted, event.Kind)
		require.NotNil(t, event.Timer)
		require.Equal(t, userID, event.Timer.UserID)
	})

	t.Run("NoTask", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		active, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: uuid.New()})
		require.NoError(t, err)
		require.False(t, active.TaskID.Valid)
	})

	t.Run("TaskNotFound", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{
			UserID: uuid.New(),
			TaskID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		})
		require.True(t, timer.IsNotFound(err))
	})

	t.Run("AlreadyRunning", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.NoError(t, err)
		_, err = svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.True(t, timer.IsConflict(err))
	})

	// At most one timer may win under concurrent starts; every loser must
	// observe a conflict, never a second row.
	t.Run("ConcurrentStarts", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		const racers = 8
		errs := make(chan error, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var won, lost int
		for err := range errs {
			if err == nil {
				won++
				continue
			}
			require.True(t, timer.IsConflict(err), "unexpected error: %v", err)
			lost++
		}
		require.Equal(t, 1, won)
		require.Equal(t, racers-1, lost)

		_, _, err := svc.ActiveTimer(ctx, userID)
		require.NoError(t, err)
	})
}

func TestStopTimer(t *testing.T) {
	t.Parallel()

	t.Run("NoTimer", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := svc.StopTimer(ctx, uuid.New())
		require.True(t, timer.IsNotFound(err))
	})

	// Start at 09:00, stop at 09:30: one entry dated today with a single
	// half-hour billable session, the timer gone and the task counter
	// updated.
	t.Run("HalfHour", func(t *testing.T) {
		t.Parallel()
		svc, db, ps, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{
			UserID: userID,
			TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		})
		require.NoError(t, err)

		eventCh := watchEvents(t, ps, userID)
		clock.Advance(30 * time.Minute)

		entry, err := svc.StopTimer(ctx, userID)
		require.NoError(t, err)
		require.Equal(t, time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC), entry.Date)
		require.True(t, entry.IsTimerBased)
		require.InDelta(t, 0.5, entry.Hours, 1e-9)
		require.InDelta(t, 0.5, entry.BillableHours, 1e-9)
		require.Len(t, entry.Sessions, 1)
		require.InDelta(t, 0.5, entry.Sessions[0].Duration, 1e-9)
		require.True(t, entry.Sessions[0].IsBillable)

		_, _, err = svc.ActiveTimer(ctx, userID)
		require.True(t, timer.IsNotFound(err))

		got, err := db.GetTaskByID(ctx, task.ID)
		require.NoError(t, err)
		require.InDelta(t, 0.5, got.ActualHours, 1e-9)

		stopped := testutil.RequireReceive(ctx, t, eventCh)
		require.Equal(t, chronosdk.TimerEventTimerStopped, stopped.Kind)
		created := testutil.RequireReceive(ctx, t, eventCh)
		require.Equal(t, chronosdk.TimerEventEntryCreated, created.Kind)
		require.NotNil(t, created.Entry)
		require.InDelta(t, 0.5, created.Entry.Hours, 1e-9)
	})

	// Two cycles on the same day and task accumulate into one entry with
	// two sessions, never a second entry.
	t.Run("SameDayAccumulation", func(t *testing.T) {
		t.Parallel()
		svc, db, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})
		taskID := uuid.NullUUID{UUID: task.ID, Valid: true}

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		clock.Advance(30 * time.Minute)
		first, err := svc.StopTimer(ctx, userID)
		require.NoError(t, err)

		clock.Advance(time.Hour)
		_, err = svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		clock.Advance(15 * time.Minute)
		second, err := svc.StopTimer(ctx, userID)
		require.NoError(t, err)

		require.Equal(t, first.ID, second.ID)
		require.Len(t, second.Sessions, 2)
		require.InDelta(t, 0.75, second.Hours, 1e-9)

		entries, err := svc.Entries(ctx, timer.ListEntriesParams{UserID: userID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	// A stop on the same day/task as an existing manual entry appends a
	// session to it and flips it to timer-based.
	t.Run("AppendsToManualEntry", func(t *testing.T) {
		t.Parallel()
		svc, db, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})
		taskID := uuid.NullUUID{UUID: task.ID, Valid: true}

		manual, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID,
			TaskID: taskID,
			Date:   clock.Now(),
			Hours:  2,
		})
		require.NoError(t, err)
		require.False(t, manual.IsTimerBased)

		_, err = svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID, TaskID: taskID})
		require.NoError(t, err)
		clock.Advance(time.Hour)
		stopped, err := svc.StopTimer(ctx, userID)
		require.NoError(t, err)

		require.Equal(t, manual.ID, stopped.ID)
		require.True(t, stopped.IsTimerBased)
		// The re-sum replaces the manual figure with the session total.
		require.InDelta(t, 1, stopped.Hours, 1e-9)
	})
}

func TestDiscardTimer(t *testing.T) {
	t.Parallel()

	t.Run("LeavesNoTrace", func(t *testing.T) {
		t.Parallel()
		svc, _, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
		require.NoError(t, svc.DiscardTimer(ctx, userID))

		_, _, err = svc.ActiveTimer(ctx, userID)
		require.True(t, timer.IsNotFound(err))
		entries, err := svc.Entries(ctx, timer.ListEntriesParams{UserID: userID})
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("NoTimer", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		err := svc.DiscardTimer(ctx, uuid.New())
		require.True(t, timer.IsNotFound(err))
	})
}

func TestUpdateTimer(t *testing.T) {
	t.Parallel()

	t.Run("KeepsStartTime", func(t *testing.T) {
		t.Parallel()
		svc, db, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})

		started, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.NoError(t, err)
		clock.Advance(5 * time.Minute)

		updated, err := svc.UpdateTimer(ctx, timer.UpdateTimerParams{
			UserID:      userID,
			TaskID:      uuid.NullUUID{UUID: task.ID, Valid: true},
			Description: sql.NullString{String: "switched tasks", Valid: true},
		})
		require.NoError(t, err)
		require.Equal(t, started.StartTime, updated.StartTime)
		require.Equal(t, task.ID, updated.TaskID.UUID)
	})

	t.Run("NoTimer", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		_, err := svc.UpdateTimer(ctx, timer.UpdateTimerParams{UserID: uuid.New()})
		require.True(t, timer.IsNotFound(err))
	})

	t.Run("TaskNotFound", func(t *testing.T) {
		t.Parallel()
		svc, _, _, _ := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.NoError(t, err)
		_, err = svc.UpdateTimer(ctx, timer.UpdateTimerParams{
			UserID: userID,
			TaskID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		})
		require.True(t, timer.IsNotFound(err))
	})
}

// Every session mutation must leave the entry's aggregates equal to the
// sums over its sessions, regardless of the operation sequence.
func TestAggregateCorrectness(t *testing.T) {
	t.Parallel()
	svc, db, _, clock := newService(t)
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()
	task := dbgen.Task(t, db, database.Task{})

	entry, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
		UserID: userID,
		TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		Date:   clock.Now(),
	})
	require.NoError(t, err)

	verify := func(got timer.Entry) {
		t.Helper()
		var hours, billable float64
		for _, session := range got.Sessions {
			hours += session.Duration
			if session.IsBillable {
				billable += session.Duration
			}
		}
		assert.InDelta(t, hours, got.Hours, 1e-9)
		assert.InDelta(t, billable, got.BillableHours, 1e-9)
	}

	base := clock.Now()
	got, err := svc.AddSession(ctx, timer.AddSessionParams{
		UserID:     userID,
		EntryID:    entry.ID,
		StartTime:  base,
		EndTime:    base.Add(time.Hour),
		IsBillable: true,
	})
	require.NoError(t, err)
	verify(got)

	got, err = svc.AddSession(ctx, timer.AddSessionParams{
		UserID:    userID,
		EntryID:   entry.ID,
		StartTime: base.Add(2 * time.Hour),
		EndTime:   base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, got.Sessions, 2)
	verify(got)
	require.InDelta(t, 2, got.Hours, 1e-9)
	require.InDelta(t, 1, got.BillableHours, 1e-9)

	newEnd := base.Add(90 * time.Minute)
	billable := true
	got, err = svc.UpdateSession(ctx, timer.UpdateSessionParams{
		UserID:     userID,
		SessionID:  got.Sessions[0].ID,
		EndTime:    &newEnd,
		IsBillable: &billable,
	})
	require.NoError(t, err)
	verify(got)
	require.InDelta(t, 2.5, got.Hours, 1e-9)
	require.InDelta(t, 1.5, got.BillableHours, 1e-9)

	got, err = svc.DeleteSession(ctx, userID, got.Sessions[1].ID)
	require.NoError(t, err)
	require.Len(t, got.Sessions, 1)
	verify(got)

	// The task counter tracks the entry totals throughout.
	taskRow, err := db.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.InDelta(t, got.Hours, taskRow.ActualHours, 1e-9)
}

func TestUpdateEntryHours(t *testing.T) {
	t.Parallel()

	t.Run("Manual", func(t *testing.T) {
		t.Parallel()
		svc, db, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})

		entry, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID,
			TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
			Date:   clock.Now(),
			Hours:  2,
		})
		require.NoError(t, err)

		updated, err := svc.UpdateEntryHours(ctx, timer.UpdateEntryHoursParams{
			UserID:        userID,
			EntryID:       entry.ID,
			Hours:         3,
			BillableHours: 1,
		})
		require.NoError(t, err)
		require.InDelta(t, 3, updated.Hours, 1e-9)

		taskRow, err := db.GetTaskByID(ctx, task.ID)
		require.NoError(t, err)
		require.InDelta(t, 3, taskRow.ActualHours, 1e-9)
	})

	t.Run("TimerBased", func(t *testing.T) {
		t.Parallel()
		svc, _, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		_, err := svc.StartTimer(ctx, timer.StartTimerParams{UserID: userID})
		require.NoError(t, err)
		clock.Advance(time.Hour)
		entry, err := svc.StopTimer(ctx, userID)
		require.NoError(t, err)

		_, err = svc.UpdateEntryHours(ctx, timer.UpdateEntryHoursParams{
			UserID:  userID,
			EntryID: entry.ID,
			Hours:   99,
		})
		require.True(t, timer.IsInvalidOperation(err))

		entries, err := svc.Entries(ctx, timer.ListEntriesParams{UserID: userID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.InDelta(t, 1, entries[0].Hours, 1e-9)
	})

	t.Run("HasSessions", func(t *testing.T) {
		t.Parallel()
		svc, _, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		entry, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID,
			Date:   clock.Now(),
		})
		require.NoError(t, err)
		_, err = svc.AddSession(ctx, timer.AddSessionParams{
			UserID:    userID,
			EntryID:   entry.ID,
			StartTime: clock.Now(),
			EndTime:   clock.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		_, err = svc.UpdateEntryHours(ctx, timer.UpdateEntryHoursParams{
			UserID:  userID,
			EntryID: entry.ID,
			Hours:   5,
		})
		require.True(t, timer.IsInvalidOperation(err))
	})

	t.Run("NotOwned", func(t *testing.T) {
		t.Parallel()
		svc, _, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)

		entry, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: uuid.New(),
			Date:   clock.Now(),
		})
		require.NoError(t, err)

		_, err = svc.UpdateEntryHours(ctx, timer.UpdateEntryHoursParams{
			UserID:  uuid.New(),
			EntryID: entry.ID,
			Hours:   5,
		})
		require.True(t, timer.IsNotFound(err))
	})
}

func TestCreateEntry(t *testing.T) {
	t.Parallel()

	t.Run("DuplicateSlot", func(t *testing.T) {
		t.Parallel()
		svc, db, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()
		task := dbgen.Task(t, db, database.Task{})
		taskID := uuid.NullUUID{UUID: task.ID, Valid: true}

		_, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID, TaskID: taskID, Date: clock.Now(), Hours: 1,
		})
		require.NoError(t, err)
		_, err = svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID, TaskID: taskID, Date: clock.Now(), Hours: 2,
		})
		require.True(t, timer.IsConflict(err))
	})

	// Two task-less entries on the same day collide on the same slot.
	t.Run("DuplicateNullTaskSlot", func(t *testing.T) {
		t.Parallel()
		svc, _, _, clock := newService(t)
		ctx := testutil.Context(t, testutil.WaitShort)
		userID := uuid.New()

		_, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID, Date: clock.Now(), Hours: 1,
		})
		require.NoError(t, err)
		_, err = svc.CreateEntry(ctx, timer.CreateEntryParams{
			UserID: userID, Date: clock.Now(), Hours: 2,
		})
		require.True(t, timer.IsConflict(err))
	})
}

func TestDeleteEntry(t *testing.T) {
	t.Parallel()
	svc, db, _, clock := newService(t)
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()
	task := dbgen.Task(t, db, database.Task{})

	entry, err := svc.CreateEntry(ctx, timer.CreateEntryParams{
		UserID: userID,
		TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		Date:   clock.Now(),
		Hours:  4,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteEntry(ctx, userID, entry.ID))

	entries, err := svc.Entries(ctx, timer.ListEntriesParams{UserID: userID})
	require.NoError(t, err)
	require.Empty(t, entries)

	taskRow, err := db.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	require.Zero(t, taskRow.ActualHours)
}

func TestShortcuts(t *testing.T) {
	t.Parallel()
	svc, db, ps, _ := newService(t)
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()
	task := dbgen.Task(t, db, database.Task{})
	eventCh := watchEvents(t, ps, userID)

	shortcut, err := svc.CreateShortcut(ctx, timer.CreateShortcutParams{
		UserID: userID,
		TaskID: task.ID,
	})
	require.NoError(t, err)
	require.Equal(t, task.Name, shortcut.Task.Name)
	event := testutil.RequireReceive(ctx, t, eventCh)
	require.Equal(t, chronosdk.TimerEventShortcutsUpdated, event.Kind)

	_, err = svc.CreateShortcut(ctx, timer.CreateShortcutParams{
		UserID: userID,
		TaskID: task.ID,
	})
	require.True(t, timer.IsConflict(err))

	err = svc.DeleteShortcut(ctx, uuid.New(), shortcut.ID)
	require.True(t, timer.IsNotFound(err))

	require.NoError(t, svc.DeleteShortcut(ctx, userID, shortcut.ID))
	shortcuts, err := svc.Shortcuts(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, shortcuts)
}
