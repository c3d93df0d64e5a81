// Package dbgen seeds database rows for tests.
package dbgen

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbtime"
)

// Task inserts a task, filling in any zero fields from seed with defaults.
func Task(t testing.TB, db database.Store, seed database.Task) database.Task {
	t.Helper()

	id := seed.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	name := seed.Name
	if name == "" {
		name = "task-" + id.String()[:8]
	}
	project := seed.ProjectName
	if project == "" {
		project = "project-" + id.String()[:8]
	}
	client := seed.ClientName
	if client == "" {
		client = "client-" + id.String()[:8]
	}
	task, err := db.InsertTask(context.Background(), database.InsertTaskParams{
		ID:          id,
		Name:        name,
		ProjectName: project,
		ClientName:  client,
	})
	require.NoError(t, err, "insert task")
	return task
}

// ActiveTimer inserts a running timer for seed.UserID.
func ActiveTimer(t testing.TB, db database.Store, seed database.ActiveTimer) database.ActiveTimer {
	t.Helper()

	start := seed.StartTime
	if start.IsZero() {
		start = dbtime.Now()
	}
	timer, err := db.InsertActiveTimer(context.Background(), database.InsertActiveTimerParams{
		UserID:      seed.UserID,
		TaskID:      seed.TaskID,
		Description: seed.Description,
		StartTime:   start,
	})
	require.NoError(t, err, "insert active timer")
	return timer
}

// TimeEntry inserts a time entry.
func TimeEntry(t testing.TB, db database.Store, seed database.TimeEntry) database.TimeEntry {
	t.Helper()

	date := seed.Date
	if date.IsZero() {
		date = dbtime.StartOfDay(dbtime.Now())
	}
	entry, err := db.InsertTimeEntry(context.Background(), database.InsertTimeEntryParams{
		UserID:        seed.UserID,
		TaskID:        seed.TaskID,
		Date:          date,
		Hours:         seed.Hours,
		BillableHours: seed.BillableHours,
		IsTimerBased:  seed.IsTimerBased,
	})
	require.NoError(t, err, "insert time entry")
	return entry
}

// TimeEntrySession inserts a session under seed.EntryID. Duration is derived
// from the start/end pair when unset.
func TimeEntrySession(t testing.TB, db database.Store, seed database.TimeEntrySession) database.TimeEntrySession {
	t.Helper()

	duration := seed.Duration
	if duration == 0 && !seed.EndTime.IsZero() {
		duration = seed.EndTime.Sub(seed.StartTime).Hours()
	}
	session, err := db.InsertTimeEntrySession(context.Background(), database.InsertTimeEntrySessionParams{
		EntryID:     seed.EntryID,
		StartTime:   seed.StartTime,
		EndTime:     seed.EndTime,
		Duration:    duration,
		IsBillable:  seed.IsBillable,
		Description: seed.Description,
	})
	require.NoError(t, err, "insert time entry session")
	return session
}

// Shortcut inserts a shortcut.
func Shortcut(t testing.TB, db database.Store, seed database.Shortcut) database.Shortcut {
	t.Helper()

	shortcut, err := db.InsertShortcut(context.Background(), database.InsertShortcutParams{
		UserID:   seed.UserID,
		TaskID:   seed.TaskID,
		Position: seed.Position,
	})
	require.NoError(t, err, "insert shortcut")
	return shortcut
}
