package dbmem_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbgen"
	"github.com/chronohq/chrono/chronod/database/dbmem"
	"github.com/chronohq/chrono/chronod/database/dbtime"
	"github.com/chronohq/chrono/testutil"
)

func TestActiveTimerUniqueness(t *testing.T) {
	t.Parallel()
	db := dbmem.New()
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()

	_, err := db.InsertActiveTimer(ctx, database.InsertActiveTimerParams{
		UserID:    userID,
		StartTime: dbtime.Now(),
	})
	require.NoError(t, err)

	_, err = db.InsertActiveTimer(ctx, database.InsertActiveTimerParams{
		UserID:    userID,
		StartTime: dbtime.Now(),
	})
	require.True(t, database.IsUniqueViolation(err, database.UniqueActiveTimersUserIDKey))

	// A different user is unaffected.
	_, err = db.InsertActiveTimer(ctx, database.InsertActiveTimerParams{
		UserID:    uuid.New(),
		StartTime: dbtime.Now(),
	})
	require.NoError(t, err)
}

func TestTimeEntrySlotUniqueness(t *testing.T) {
	t.Parallel()
	db := dbmem.New()
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()
	task := dbgen.Task(t, db, database.Task{})
	date := dbtime.StartOfDay(dbtime.Now())

	_, err := db.InsertTimeEntry(ctx, database.InsertTimeEntryParams{
		UserID: userID,
		TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		Date:   date,
	})
	require.NoError(t, err)

	_, err = db.InsertTimeEntry(ctx, database.InsertTimeEntryParams{
		UserID: userID,
		TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		Date:   date,
	})
	require.True(t, database.IsUniqueViolation(err, database.UniqueTimeEntriesSlotKey))

	// Task-less entries share one slot per day too.
	_, err = db.InsertTimeEntry(ctx, database.InsertTimeEntryParams{UserID: userID, Date: date})
	require.NoError(t, err)
	_, err = db.InsertTimeEntry(ctx, database.InsertTimeEntryParams{UserID: userID, Date: date})
	require.True(t, database.IsUniqueViolation(err, database.UniqueTimeEntriesSlotKey))

	// A different day opens a fresh slot.
	_, err = db.InsertTimeEntry(ctx, database.InsertTimeEntryParams{
		UserID: userID,
		TaskID: uuid.NullUUID{UUID: task.ID, Valid: true},
		Date:   date.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
}

func TestDeleteTimeEntryCascades(t *testing.T) {
	t.Parallel()
	db := dbmem.New()
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()

	entry := dbgen.TimeEntry(t, db, database.TimeEntry{UserID: userID})
	session := dbgen.TimeEntrySession(t, db, database.TimeEntrySession{
		EntryID:   entry.ID,
		StartTime: dbtime.Now(),
		EndTime:   dbtime.Now().Add(time.Hour),
	})

	require.NoError(t, db.DeleteTimeEntry(ctx, entry.ID))

	_, err := db.GetTimeEntryByID(ctx, entry.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
	_, err = db.GetTimeEntrySessionByID(ctx, session.ID)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUpdateActiveTimerMissing(t *testing.T) {
	t.Parallel()
	db := dbmem.New()
	ctx := testutil.Context(t, testutil.WaitShort)

	_, err := db.UpdateActiveTimer(ctx, database.UpdateActiveTimerParams{UserID: uuid.New()})
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInTxSeesOwnWrites(t *testing.T) {
	t.Parallel()
	db := dbmem.New()
	ctx := testutil.Context(t, testutil.WaitShort)
	userID := uuid.New()

	err := db.InTx(func(tx database.Store) error {
		_, err := tx.InsertActiveTimer(ctx, database.InsertActiveTimerParams{
			UserID:    userID,
			StartTime: dbtime.Now(),
		})
		if err != nil {
			return err
		}
		_, err = tx.GetActiveTimerByUserID(ctx, userID)
		return err
	})
	require.NoError(t, err)

	_, err = db.GetActiveTimerByUserID(ctx, userID)
	require.NoError(t, err)
}
