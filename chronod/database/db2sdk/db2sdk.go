// Package db2sdk converts database rows into chronosdk response types.
package db2sdk

import (
	"github.com/google/uuid"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronosdk"
)

func ActiveTimer(timer database.ActiveTimer, elapsedSeconds int64) chronosdk.ActiveTimer {
	return chronosdk.ActiveTimer{
		UserID:         timer.UserID,
		TaskID:         nullUUIDPtr(timer.TaskID),
		Description:    timer.Description.String,
		StartTime:      timer.StartTime,
		ElapsedSeconds: elapsedSeconds,
	}
}

func TimeEntry(entry database.TimeEntry, sessions []database.TimeEntrySession) chronosdk.TimeEntry {
	out := chronosdk.TimeEntry{
		ID:            entry.ID,
		UserID:        entry.UserID,
		TaskID:        nullUUIDPtr(entry.TaskID),
		Date:          entry.Date,
		Hours:         entry.Hours,
		BillableHours: entry.BillableHours,
		IsTimerBased:  entry.IsTimerBased,
		Sessions:      make([]chronosdk.TimeEntrySession, 0, len(sessions)),
		UpdatedAt:     entry.UpdatedAt,
	}
	for _, session := range sessions {
		out.Sessions = append(out.Sessions, TimeEntrySession(session))
	}
	return out
}

func TimeEntrySession(session database.TimeEntrySession) chronosdk.TimeEntrySession {
	return chronosdk.TimeEntrySession{
		ID:          session.ID,
		EntryID:     session.EntryID,
		StartTime:   session.StartTime,
		EndTime:     session.EndTime,
		Duration:    session.Duration,
		IsBillable:  session.IsBillable,
		Description: session.Description.String,
	}
}

func Shortcut(shortcut database.Shortcut, task database.Task) chronosdk.Shortcut {
	return chronosdk.Shortcut{
		ID:       shortcut.ID,
		UserID:   shortcut.UserID,
		TaskID:   shortcut.TaskID,
		TaskName: task.Name,
		Position: shortcut.Position,
	}
}

func nullUUIDPtr(id uuid.NullUUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := id.UUID
	return &v
}
