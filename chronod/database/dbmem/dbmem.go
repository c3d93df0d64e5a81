// Package dbmem is an in-memory implementation of database.Store. It backs
// single-binary deployments that opt out of Postgres, and nearly all tests.
// It enforces the same unique constraints as the schema, surfacing them as
// pq errors so callers cannot tell the backends apart.
package dbmem

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/dbtime"
)

// New returns an in-memory implementation of database.Store.
func New() database.Store {
	return &fakeQuerier{
		mutex: &sync.RWMutex{},
		data: &data{
			activeTimers: make([]database.ActiveTimer, 0),
			tasks:        make([]database.Task, 0),
			timeEntries:  make([]database.TimeEntry, 0),
			sessions:     make([]database.TimeEntrySession, 0),
			shortcuts:    make([]database.Shortcut, 0),
		},
	}
}

type rwMutex interface {
	Lock()
	RLock()
	Unlock()
	RUnlock()
}

// inTxMutex is a no op, since inside a transaction we are already locked.
type inTxMutex struct{}

func (inTxMutex) Lock()    {}
func (inTxMutex) RLock()   {}
func (inTxMutex) Unlock()  {}
func (inTxMutex) RUnlock() {}

// fakeQuerier replicates database functionality to enable quick testing.
type fakeQuerier struct {
	mutex rwMutex
	*data
}

type data struct {
	activeTimers []database.ActiveTimer
	tasks        []database.Task
	timeEntries  []database.TimeEntry
	sessions     []database.TimeEntrySession
	shortcuts    []database.Shortcut
}

// InTx holds the write lock for the whole callback. That serializes
// transactions instead of rolling them back on failure, which is close
// enough for tests; the service layer never relies on partial-write
// rollback in the in-memory store because each of its writes is preceded by
// the reads that validate it.
func (q *fakeQuerier) InTx(fn func(database.Store) error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return fn(&fakeQuerier{mutex: inTxMutex{}, data: q.data})
}

func uniqueViolation(constraint database.UniqueConstraint) error {
	return &pq.Error{
		Code:       "23505",
		Message:    "duplicate key value violates unique constraint " + string(constraint),
		Constraint: string(constraint),
	}
}

// taskKey collapses a nullable task reference into the sentinel used by the
// slot uniqueness key.
func taskKey(id uuid.NullUUID) uuid.UUID {
	if id.Valid {
		return id.UUID
	}
	return uuid.Nil
}

func (q *fakeQuerier) GetActiveTimerByUserID(_ context.Context, userID uuid.UUID) (database.ActiveTimer, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, timer := range q.activeTimers {
		if timer.UserID == userID {
			return timer, nil
		}
	}
	return database.ActiveTimer{}, sql.ErrNoRows
}

func (q *fakeQuerier) InsertActiveTimer(_ context.Context, arg database.InsertActiveTimerParams) (database.ActiveTimer, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, timer := range q.activeTimers {
		if timer.UserID == arg.UserID {
			return database.ActiveTimer{}, uniqueViolation(database.UniqueActiveTimersUserIDKey)
		}
	}
	timer := database.ActiveTimer{
		UserID:      arg.UserID,
		TaskID:      arg.TaskID,
		Description: arg.Description,
		StartTime:   arg.StartTime,
		CreatedAt:   dbtime.Now(),
	}
	q.activeTimers = append(q.activeTimers, timer)
	return timer, nil
}

func (q *fakeQuerier) UpdateActiveTimer(_ context.Context, arg database.UpdateActiveTimerParams) (database.ActiveTimer, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, timer := range q.activeTimers {
		if timer.UserID != arg.UserID {
			continue
		}
		timer.TaskID = arg.TaskID
		timer.Description = arg.Description
		q.activeTimers[i] = timer
		return timer, nil
	}
	return database.ActiveTimer{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteActiveTimerByUserID(_ context.Context, userID uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, timer := range q.activeTimers {
		if timer.UserID == userID {
			q.activeTimers = append(q.activeTimers[:i], q.activeTimers[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetTaskByID(_ context.Context, id uuid.UUID) (database.Task, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task, nil
		}
	}
	return database.Task{}, sql.ErrNoRows
}

func (q *fakeQuerier) InsertTask(_ context.Context, arg database.InsertTaskParams) (database.Task, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	task := database.Task{
		ID:          arg.ID,
		Name:        arg.Name,
		ProjectName: arg.ProjectName,
		ClientName:  arg.ClientName,
		CreatedAt:   dbtime.Now(),
	}
	q.tasks = append(q.tasks, task)
	return task, nil
}

func (q *fakeQuerier) UpdateTaskActualHours(_ context.Context, arg database.UpdateTaskActualHoursParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, task := range q.tasks {
		if task.ID == arg.ID {
			q.tasks[i].ActualHours = arg.ActualHours
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetTimeEntryByID(_ context.Context, id uuid.UUID) (database.TimeEntry, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, entry := range q.timeEntries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return database.TimeEntry{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetTimeEntryBySlot(_ context.Context, arg database.GetTimeEntryBySlotParams) (database.TimeEntry, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, entry := range q.timeEntries {
		if entry.UserID == arg.UserID &&
			taskKey(entry.TaskID) == taskKey(arg.TaskID) &&
			entry.Date.Equal(arg.Date) {
			return entry, nil
		}
	}
	return database.TimeEntry{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetTimeEntriesByUserID(_ context.Context, arg database.GetTimeEntriesByUserIDParams) ([]database.TimeEntry, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	entries := make([]database.TimeEntry, 0)
	for _, entry := range q.timeEntries {
		if entry.UserID != arg.UserID {
			continue
		}
		if !arg.StartDate.IsZero() && entry.Date.Before(arg.StartDate) {
			continue
		}
		if !arg.EndDate.IsZero() && entry.Date.After(arg.EndDate) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

func (q *fakeQuerier) GetTimeEntriesByTaskID(_ context.Context, taskID uuid.UUID) ([]database.TimeEntry, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	entries := make([]database.TimeEntry, 0)
	for _, entry := range q.timeEntries {
		if entry.TaskID.Valid && entry.TaskID.UUID == taskID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (q *fakeQuerier) GetTimeEntriesInRange(_ context.Context, arg database.GetTimeEntriesInRangeParams) ([]database.TimeEntry, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	entries := make([]database.TimeEntry, 0)
	for _, entry := range q.timeEntries {
		if entry.Date.Before(arg.StartDate) || entry.Date.After(arg.EndDate) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
	return entries, nil
}

func (q *fakeQuerier) InsertTimeEntry(_ context.Context, arg database.InsertTimeEntryParams) (database.TimeEntry, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, entry := range q.timeEntries {
		if entry.UserID == arg.UserID &&
			taskKey(entry.TaskID) == taskKey(arg.TaskID) &&
			entry.Date.Equal(arg.Date) {
			return database.TimeEntry{}, uniqueViolation(database.UniqueTimeEntriesSlotKey)
		}
	}
	now := dbtime.Now()
	entry := database.TimeEntry{
		ID:            uuid.New(),
		UserID:        arg.UserID,
		TaskID:        arg.TaskID,
		Date:          arg.Date,
		Hours:         arg.Hours,
		BillableHours: arg.BillableHours,
		IsTimerBased:  arg.IsTimerBased,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	q.timeEntries = append(q.timeEntries, entry)
	return entry, nil
}

func (q *fakeQuerier) UpdateTimeEntryAggregates(_ context.Context, arg database.UpdateTimeEntryAggregatesParams) (database.TimeEntry, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, entry := range q.timeEntries {
		if entry.ID != arg.ID {
			continue
		}
		entry.Hours = arg.Hours
		entry.BillableHours = arg.BillableHours
		entry.IsTimerBased = arg.IsTimerBased
		entry.UpdatedAt = dbtime.Now()
		q.timeEntries[i] = entry
		return entry, nil
	}
	return database.TimeEntry{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateTimeEntryHours(_ context.Context, arg database.UpdateTimeEntryHoursParams) (database.TimeEntry, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, entry := range q.timeEntries {
		if entry.ID != arg.ID {
			continue
		}
		entry.Hours = arg.Hours
		entry.BillableHours = arg.BillableHours
		entry.UpdatedAt = dbtime.Now()
		q.timeEntries[i] = entry
		return entry, nil
	}
	return database.TimeEntry{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteTimeEntry(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, entry := range q.timeEntries {
		if entry.ID != id {
			continue
		}
		q.timeEntries = append(q.timeEntries[:i], q.timeEntries[i+1:]...)
		// Sessions are owned by their entry; deleting the entry cascades.
		kept := q.sessions[:0]
		for _, session := range q.sessions {
			if session.EntryID != id {
				kept = append(kept, session)
			}
		}
		q.sessions = kept
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetTimeEntrySessionByID(_ context.Context, id uuid.UUID) (database.TimeEntrySession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, session := range q.sessions {
		if session.ID == id {
			return session, nil
		}
	}
	return database.TimeEntrySession{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetTimeEntrySessionsByEntryID(_ context.Context, entryID uuid.UUID) ([]database.TimeEntrySession, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	sessions := make([]database.TimeEntrySession, 0)
	for _, session := range q.sessions {
		if session.EntryID == entryID {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

func (q *fakeQuerier) InsertTimeEntrySession(_ context.Context, arg database.InsertTimeEntrySessionParams) (database.TimeEntrySession, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	session := database.TimeEntrySession{
		ID:          uuid.New(),
		EntryID:     arg.EntryID,
		StartTime:   arg.StartTime,
		EndTime:     arg.EndTime,
		Duration:    arg.Duration,
		IsBillable:  arg.IsBillable,
		Description: arg.Description,
		CreatedAt:   dbtime.Now(),
	}
	q.sessions = append(q.sessions, session)
	return session, nil
}

func (q *fakeQuerier) UpdateTimeEntrySession(_ context.Context, arg database.UpdateTimeEntrySessionParams) (database.TimeEntrySession, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, session := range q.sessions {
		if session.ID != arg.ID {
			continue
		}
		session.StartTime = arg.StartTime
		session.EndTime = arg.EndTime
		session.Duration = arg.Duration
		session.IsBillable = arg.IsBillable
		session.Description = arg.Description
		q.sessions[i] = session
		return session, nil
	}
	return database.TimeEntrySession{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteTimeEntrySession(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, session := range q.sessions {
		if session.ID == id {
			q.sessions = append(q.sessions[:i], q.sessions[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetShortcutByID(_ context.Context, id uuid.UUID) (database.Shortcut, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, shortcut := range q.shortcuts {
		if shortcut.ID == id {
			return shortcut, nil
		}
	}
	return database.Shortcut{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetShortcutsByUserID(_ context.Context, userID uuid.UUID) ([]database.Shortcut, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	shortcuts := make([]database.Shortcut, 0)
	for _, shortcut := range q.shortcuts {
		if shortcut.UserID == userID {
			shortcuts = append(shortcuts, shortcut)
		}
	}
	sort.Slice(shortcuts, func(i, j int) bool {
		return shortcuts[i].Position < shortcuts[j].Position
	})
	return shortcuts, nil
}

func (q *fakeQuerier) InsertShortcut(_ context.Context, arg database.InsertShortcutParams) (database.Shortcut, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, shortcut := range q.shortcuts {
		if shortcut.UserID == arg.UserID && shortcut.TaskID == arg.TaskID {
			return database.Shortcut{}, uniqueViolation(database.UniqueShortcutsUserTaskKey)
		}
	}
	shortcut := database.Shortcut{
		ID:        uuid.New(),
		UserID:    arg.UserID,
		TaskID:    arg.TaskID,
		Position:  arg.Position,
		CreatedAt: dbtime.Now(),
	}
	q.shortcuts = append(q.shortcuts, shortcut)
	return shortcut, nil
}

func (q *fakeQuerier) DeleteShortcut(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, shortcut := range q.shortcuts {
		if shortcut.ID == id {
			q.shortcuts = append(q.shortcuts[:i], q.shortcuts[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) GetPayrollSessions(_ context.Context, arg database.GetPayrollSessionsParams) ([]database.PayrollSessionRow, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	rows := make([]database.PayrollSessionRow, 0)
	for _, session := range q.sessions {
		var entry database.TimeEntry
		found := false
		for _, e := range q.timeEntries {
			if e.ID == session.EntryID {
				entry, found = e, true
				break
			}
		}
		if !found {
			continue
		}
		if entry.Date.Before(arg.StartDate) || entry.Date.After(arg.EndDate) {
			continue
		}
		row := database.PayrollSessionRow{
			UserID:      entry.UserID,
			Date:        entry.Date,
			StartTime:   session.StartTime,
			EndTime:     session.EndTime,
			Duration:    session.Duration,
			IsBillable:  session.IsBillable,
			Description: session.Description,
		}
		if entry.TaskID.Valid {
			for _, task := range q.tasks {
				if task.ID == entry.TaskID.UUID {
					row.TaskName = task.Name
					row.ProjectName = task.ProjectName
					row.ClientName = task.ClientName
					break
				}
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].UserID != rows[j].UserID {
			return rows[i].UserID.String() < rows[j].UserID.String()
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
	return rows, nil
}
