// Package timer is the orchestrator for the active-timer and time-entry
// engine: it owns the start/stop/discard lifecycle, the stop-to-entry
// materialization algorithm, session CRUD, and every consistency
// recomputation, publishing room events strictly after commit.
package timer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"github.com/coder/quartz"

	"github.com/chronohq/chrono/chronod/database"
	"github.com/chronohq/chrono/chronod/database/db2sdk"
	"github.com/chronohq/chrono/chronod/database/dbtime"
	"github.com/chronohq/chrono/chronod/database/pubsub"
	"github.com/chronohq/chrono/chronod/events"
	"github.com/chronohq/chrono/chronosdk"
)

// Service mutates the register and store inside transactions and notifies
// the user's room afterwards. It is safe for concurrent use; the only
// mutual exclusion it relies on is the storage uniqueness constraint on
// the active timer row.
type Service struct {
	db     database.Store
	pubsub pubsub.Pubsub
	logger slog.Logger
	clock  quartz.Clock
}

// Options configures a Service.
type Options struct {
	Database database.Store
	Pubsub   pubsub.Pubsub
	Logger   slog.Logger
	// Clock defaults to the real clock and is swapped for a mock in tests.
	Clock quartz.Clock
}

// New constructs a Service.
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Service{
		db:     opts.Database,
		pubsub: opts.Pubsub,
		logger: opts.Logger,
		clock:  opts.Clock,
	}
}

// Entry pairs a time entry with its sessions.
type Entry struct {
	database.TimeEntry
	Sessions []database.TimeEntrySession
}

// Shortcut pairs a shortcut with its task for display.
type Shortcut struct {
	database.Shortcut
	Task database.Task
}

type StartTimerParams struct {
	UserID      uuid.UUID
	TaskID      uuid.NullUUID
	Description sql.NullString
}

type UpdateTimerParams struct {
	UserID      uuid.UUID
	TaskID      uuid.NullUUID
	Description sql.NullString
}

type CreateEntryParams struct {
	UserID        uuid.UUID
	TaskID        uuid.NullUUID
	Date          time.Time
	Hours         float64
	BillableHours float64
}

type UpdateEntryHoursParams struct {
	UserID        uuid.UUID
	EntryID       uuid.UUID
	Hours         float64
	BillableHours float64
}

type AddSessionParams struct {
	UserID      uuid.UUID
	EntryID     uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	IsBillable  bool
	Description sql.NullString
}

type UpdateSessionParams struct {
	UserID      uuid.UUID
	SessionID   uuid.UUID
	StartTime   *time.Time
	EndTime     *time.Time
	IsBillable  *bool
	Description *string
}

type ListEntriesParams struct {
	UserID    uuid.UUID
	StartDate time.Time
	EndDate   time.Time
}

type CreateShortcutParams struct {
	UserID   uuid.UUID
	TaskID   uuid.UUID
	Position int32
}

// ActiveTimer returns the user's running timer and its elapsed seconds.
func (s *Service) ActiveTimer(ctx context.Context, userID uuid.UUID) (database.ActiveTimer, int64, error) {
	timer, err := s.db.GetActiveTimerByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ActiveTimer{}, 0, NotFoundError{Resource: "active timer"}
	}
	if err != nil {
		return database.ActiveTimer{}, 0, xerrors.Errorf("get active timer: %w", err)
	}
	return timer, s.elapsedSeconds(timer), nil
}

// StartTimer creates the user's active timer. The storage-layer uniqueness
// constraint is the only defense against two concurrent starts: the loser
// observes the violation and gets a ConflictError, it never overwrites.
func (s *Service) StartTimer(ctx context.Context, arg StartTimerParams) (database.ActiveTimer, error) {
	if err := s.validateTask(ctx, arg.TaskID); err != nil {
		return database.ActiveTimer{}, err
	}

	timer, err := s.db.InsertActiveTimer(ctx, database.InsertActiveTimerParams{
		UserID:      arg.UserID,
		TaskID:      arg.TaskID,
		Description: arg.Description,
		StartTime:   dbtime.Time(s.clock.Now().UTC()),
	})
	if database.IsUniqueViolation(err, database.UniqueActiveTimersUserIDKey) {
		return database.ActiveTimer{}, ConflictError{Message: "a timer is already running"}
	}
	if err != nil {
		return database.ActiveTimer{}, xerrors.Errorf("insert active timer: %w", err)
	}

	timerSDK := db2sdk.ActiveTimer(timer, 0)
	s.publish(ctx, arg.UserID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventTimerStarted,
		Timer: &timerSDK,
	})
	return timer, nil
}

// StopTimer deletes the active timer and materializes its span as a session
// on the (user, task, day) entry, creating the entry if the slot is empty.
// Session insert, aggregate re-sum, task recompute and timer deletion are a
// single transaction; the room hears about it only after commit.
func (s *Service) StopTimer(ctx context.Context, userID uuid.UUID) (Entry, error) {
	var (
		entry        database.TimeEntry
		sessions     []database.TimeEntrySession
		entryCreated bool
	)
	err := s.db.InTx(func(tx database.Store) error {
		timer, err := tx.GetActiveTimerByUserID(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError{Resource: "active timer"}
		}
		if err != nil {
			return xerrors.Errorf("get active timer: %w", err)
		}

		endTime := dbtime.Time(s.clock.Now().UTC())
		if endTime.Before(timer.StartTime) {
			endTime = timer.StartTime
		}
		// The entry day is the timer's calendar day: work started before
		// midnight lands on the day it started.
		date := dbtime.StartOfDay(timer.StartTime)

		entry, err = tx.GetTimeEntryBySlot(ctx, database.GetTimeEntryBySlotParams{
			UserID: userID,
			TaskID: timer.TaskID,
			Date:   date,
		})
		if errors.Is(err, sql.ErrNoRows) {
			entry, err = tx.InsertTimeEntry(ctx, database.InsertTimeEntryParams{
				UserID:       userID,
				TaskID:       timer.TaskID,
				Date:         date,
				IsTimerBased: true,
			})
			if err != nil {
				return xerrors.Errorf("insert time entry: %w", err)
			}
			entryCreated = true
		} else if err != nil {
			return xerrors.Errorf("get time entry slot: %w", err)
		}

		// Timer-produced sessions default to billable; only a later manual
		// edit can mark them otherwise.
		_, err = tx.InsertTimeEntrySession(ctx, database.InsertTimeEntrySessionParams{
			EntryID:     entry.ID,
			StartTime:   timer.StartTime,
			EndTime:     endTime,
			Duration:    endTime.Sub(timer.StartTime).Hours(),
			IsBillable:  true,
			Description: timer.Description,
		})
		if err != nil {
			return xerrors.Errorf("insert session: %w", err)
		}

		entry, sessions, err = s.resumEntry(ctx, tx, entry.ID, true)
		if err != nil {
			return err
		}
		if err := s.recomputeTaskHours(ctx, tx, entry.TaskID); err != nil {
			return err
		}

		if err := tx.DeleteActiveTimerByUserID(ctx, userID); err != nil {
			return xerrors.Errorf("delete active timer: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	s.publish(ctx, userID, chronosdk.TimerEvent{Kind: chronosdk.TimerEventTimerStopped})
	entrySDK := db2sdk.TimeEntry(entry, sessions)
	kind := chronosdk.TimerEventEntryUpdated
	if entryCreated {
		kind = chronosdk.TimerEventEntryCreated
	}
	s.publish(ctx, userID, chronosdk.TimerEvent{Kind: kind, Entry: &entrySDK})

	return Entry{TimeEntry: entry, Sessions: sessions}, nil
}

// DiscardTimer deletes the active timer without recording anything.
func (s *Service) DiscardTimer(ctx context.Context, userID uuid.UUID) error {
	err := s.db.DeleteActiveTimerByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundError{Resource: "active timer"}
	}
	if err != nil {
		return xerrors.Errorf("delete active timer: %w", err)
	}
	s.publish(ctx, userID, chronosdk.TimerEvent{Kind: chronosdk.TimerEventTimerStopped})
	return nil
}

// UpdateTimer changes the task or description of the running timer. The
// start time is never touched.
func (s *Service) UpdateTimer(ctx context.Context, arg UpdateTimerParams) (database.ActiveTimer, error) {
	if err := s.validateTask(ctx, arg.TaskID); err != nil {
		return database.ActiveTimer{}, err
	}

	timer, err := s.db.UpdateActiveTimer(ctx, database.UpdateActiveTimerParams{
		UserID:      arg.UserID,
		TaskID:      arg.TaskID,
		Description: arg.Description,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return database.ActiveTimer{}, NotFoundError{Resource: "active timer"}
	}
	if err != nil {
		return database.ActiveTimer{}, xerrors.Errorf("update active timer: %w", err)
	}

	timerSDK := db2sdk.ActiveTimer(timer, s.elapsedSeconds(timer))
	s.publish(ctx, arg.UserID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventTimerUpdated,
		Timer: &timerSDK,
	})
	return timer, nil
}

// Entries lists the user's entries, inclusive of bounds; zero bounds are
// open.
func (s *Service) Entries(ctx context.Context, arg ListEntriesParams) ([]Entry, error) {
	rows, err := s.db.GetTimeEntriesByUserID(ctx, database.GetTimeEntriesByUserIDParams{
		UserID:    arg.UserID,
		StartDate: arg.StartDate,
		EndDate:   arg.EndDate,
	})
	if err != nil {
		return nil, xerrors.Errorf("get time entries: %w", err)
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		sessions, err := s.db.GetTimeEntrySessionsByEntryID(ctx, row.ID)
		if err != nil {
			return nil, xerrors.Errorf("get sessions: %w", err)
		}
		entries = append(entries, Entry{TimeEntry: row, Sessions: sessions})
	}
	return entries, nil
}

// CreateEntry records a manual entry with directly-set hours. A second
// entry in the same (user, task, day) slot is a conflict.
func (s *Service) CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error) {
	if err := s.validateTask(ctx, arg.TaskID); err != nil {
		return Entry{}, err
	}

	var entry database.TimeEntry
	err := s.db.InTx(func(tx database.Store) error {
		var err error
		entry, err = tx.InsertTimeEntry(ctx, database.InsertTimeEntryParams{
			UserID:        arg.UserID,
			TaskID:        arg.TaskID,
			Date:          dbtime.StartOfDay(arg.Date),
			Hours:         arg.Hours,
			BillableHours: arg.BillableHours,
		})
		if database.IsUniqueViolation(err, database.UniqueTimeEntriesSlotKey) {
			return ConflictError{Message: "an entry already exists for this task and day"}
		}
		if err != nil {
			return xerrors.Errorf("insert time entry: %w", err)
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return Entry{}, err
	}

	entrySDK := db2sdk.TimeEntry(entry, nil)
	s.publish(ctx, arg.UserID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventEntryCreated,
		Entry: &entrySDK,
	})
	return Entry{TimeEntry: entry}, nil
}

// UpdateEntryHours is the direct-hours edit path. It exists only for
// manual, session-less entries: once sessions back an entry, its totals
// are provably the sum of sessions and direct edits are rejected.
func (s *Service) UpdateEntryHours(ctx context.Context, arg UpdateEntryHoursParams) (Entry, error) {
	var entry database.TimeEntry
	err := s.db.InTx(func(tx database.Store) error {
		var err error
		entry, err = s.ownedEntry(ctx, tx, arg.UserID, arg.EntryID)
		if err != nil {
			return err
		}
		if entry.IsTimerBased {
			return InvalidOperationError{Message: "hours of a timer-based entry are derived from its sessions"}
		}
		sessions, err := tx.GetTimeEntrySessionsByEntryID(ctx, entry.ID)
		if err != nil {
			return xerrors.Errorf("get sessions: %w", err)
		}
		if len(sessions) > 0 {
			return InvalidOperationError{Message: "hours of an entry with sessions are derived from its sessions"}
		}
		entry, err = tx.UpdateTimeEntryHours(ctx, database.UpdateTimeEntryHoursParams{
			ID:            entry.ID,
			Hours:         arg.Hours,
			BillableHours: arg.BillableHours,
		})
		if err != nil {
			return xerrors.Errorf("update entry hours: %w", err)
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return Entry{}, err
	}

	entrySDK := db2sdk.TimeEntry(entry, nil)
	s.publish(ctx, arg.UserID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventEntryUpdated,
		Entry: &entrySDK,
	})
	return Entry{TimeEntry: entry}, nil
}

// DeleteEntry removes an entry and its sessions and re-derives the task
// counter.
func (s *Service) DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error {
	var entry database.TimeEntry
	err := s.db.InTx(func(tx database.Store) error {
		var err error
		entry, err = s.ownedEntry(ctx, tx, userID, entryID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTimeEntry(ctx, entry.ID); err != nil {
			return xerrors.Errorf("delete entry: %w", err)
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return err
	}

	entrySDK := db2sdk.TimeEntry(entry, nil)
	s.publish(ctx, userID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventEntryDeleted,
		Entry: &entrySDK,
	})
	return nil
}

// AddSession appends a manual session to an owned entry and re-sums it.
func (s *Service) AddSession(ctx context.Context, arg AddSessionParams) (Entry, error) {
	if !arg.EndTime.After(arg.StartTime) {
		return Entry{}, InvalidOperationError{Message: "session end must be after its start"}
	}

	var (
		entry    database.TimeEntry
		sessions []database.TimeEntrySession
	)
	err := s.db.InTx(func(tx database.Store) error {
		var err error
		entry, err = s.ownedEntry(ctx, tx, arg.UserID, arg.EntryID)
		if err != nil {
			return err
		}
		start := dbtime.Time(arg.StartTime.UTC())
		end := dbtime.Time(arg.EndTime.UTC())
		_, err = tx.InsertTimeEntrySession(ctx, database.InsertTimeEntrySessionParams{
			EntryID:     entry.ID,
			StartTime:   start,
			EndTime:     end,
			Duration:    end.Sub(start).Hours(),
			IsBillable:  arg.IsBillable,
			Description: arg.Description,
		})
		if err != nil {
			return xerrors.Errorf("insert session: %w", err)
		}
		entry, sessions, err = s.resumEntry(ctx, tx, entry.ID, false)
		if err != nil {
			return err
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return Entry{}, err
	}

	s.publishEntryUpdated(ctx, arg.UserID, entry, sessions)
	return Entry{TimeEntry: entry, Sessions: sessions}, nil
}

// UpdateSession edits one session and re-sums its parent entry.
func (s *Service) UpdateSession(ctx context.Context, arg UpdateSessionParams) (Entry, error) {
	var (
		entry    database.TimeEntry
		sessions []database.TimeEntrySession
	)
	err := s.db.InTx(func(tx database.Store) error {
		session, entryRow, err := s.ownedSession(ctx, tx, arg.UserID, arg.SessionID)
		if err != nil {
			return err
		}
		if arg.StartTime != nil {
			session.StartTime = dbtime.Time(arg.StartTime.UTC())
		}
		if arg.EndTime != nil {
			session.EndTime = dbtime.Time(arg.EndTime.UTC())
		}
		if !session.EndTime.After(session.StartTime) {
			return InvalidOperationError{Message: "session end must be after its start"}
		}
		if arg.IsBillable != nil {
			session.IsBillable = *arg.IsBillable
		}
		if arg.Description != nil {
			session.Description = sql.NullString{String: *arg.Description, Valid: *arg.Description != ""}
		}
		_, err = tx.UpdateTimeEntrySession(ctx, database.UpdateTimeEntrySessionParams{
			ID:          session.ID,
			StartTime:   session.StartTime,
			EndTime:     session.EndTime,
			Duration:    session.EndTime.Sub(session.StartTime).Hours(),
			IsBillable:  session.IsBillable,
			Description: session.Description,
		})
		if err != nil {
			return xerrors.Errorf("update session: %w", err)
		}
		entry, sessions, err = s.resumEntry(ctx, tx, entryRow.ID, false)
		if err != nil {
			return err
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return Entry{}, err
	}

	s.publishEntryUpdated(ctx, arg.UserID, entry, sessions)
	return Entry{TimeEntry: entry, Sessions: sessions}, nil
}

// DeleteSession removes one session and re-sums its parent entry.
func (s *Service) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) (Entry, error) {
	var (
		entry    database.TimeEntry
		sessions []database.TimeEntrySession
	)
	err := s.db.InTx(func(tx database.Store) error {
		session, entryRow, err := s.ownedSession(ctx, tx, userID, sessionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTimeEntrySession(ctx, session.ID); err != nil {
			return xerrors.Errorf("delete session: %w", err)
		}
		entry, sessions, err = s.resumEntry(ctx, tx, entryRow.ID, false)
		if err != nil {
			return err
		}
		return s.recomputeTaskHours(ctx, tx, entry.TaskID)
	})
	if err != nil {
		return Entry{}, err
	}

	s.publishEntryUpdated(ctx, userID, entry, sessions)
	return Entry{TimeEntry: entry, Sessions: sessions}, nil
}

// Shortcuts lists the user's pinned tasks in position order.
func (s *Service) Shortcuts(ctx context.Context, userID uuid.UUID) ([]Shortcut, error) {
	rows, err := s.db.GetShortcutsByUserID(ctx, userID)
	if err != nil {
		return nil, xerrors.Errorf("get shortcuts: %w", err)
	}
	shortcuts := make([]Shortcut, 0, len(rows))
	for _, row := range rows {
		task, err := s.db.GetTaskByID(ctx, row.TaskID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, xerrors.Errorf("get task: %w", err)
		}
		shortcuts = append(shortcuts, Shortcut{Shortcut: row, Task: task})
	}
	return shortcuts, nil
}

// CreateShortcut pins a task for one-click starts.
func (s *Service) CreateShortcut(ctx context.Context, arg CreateShortcutParams) (Shortcut, error) {
	task, err := s.db.GetTaskByID(ctx, arg.TaskID)
	if errors.Is(err, sql.ErrNoRows) {
		return Shortcut{}, NotFoundError{Resource: "task"}
	}
	if err != nil {
		return Shortcut{}, xerrors.Errorf("get task: %w", err)
	}

	shortcut, err := s.db.InsertShortcut(ctx, database.InsertShortcutParams{
		UserID:   arg.UserID,
		TaskID:   arg.TaskID,
		Position: arg.Position,
	})
	if database.IsUniqueViolation(err, database.UniqueShortcutsUserTaskKey) {
		return Shortcut{}, ConflictError{Message: "task is already pinned"}
	}
	if err != nil {
		return Shortcut{}, xerrors.Errorf("insert shortcut: %w", err)
	}

	s.publish(ctx, arg.UserID, chronosdk.TimerEvent{Kind: chronosdk.TimerEventShortcutsUpdated})
	return Shortcut{Shortcut: shortcut, Task: task}, nil
}

// DeleteShortcut unpins a task.
func (s *Service) DeleteShortcut(ctx context.Context, userID, shortcutID uuid.UUID) error {
	shortcut, err := s.db.GetShortcutByID(ctx, shortcutID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && shortcut.UserID != userID) {
		return NotFoundError{Resource: "shortcut"}
	}
	if err != nil {
		return xerrors.Errorf("get shortcut: %w", err)
	}
	if err := s.db.DeleteShortcut(ctx, shortcut.ID); err != nil {
		return xerrors.Errorf("delete shortcut: %w", err)
	}
	s.publish(ctx, userID, chronosdk.TimerEvent{Kind: chronosdk.TimerEventShortcutsUpdated})
	return nil
}

func (s *Service) elapsedSeconds(timer database.ActiveTimer) int64 {
	elapsed := int64(s.clock.Now().UTC().Sub(timer.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// validateTask resolves an optional task reference.
func (s *Service) validateTask(ctx context.Context, taskID uuid.NullUUID) error {
	if !taskID.Valid {
		return nil
	}
	_, err := s.db.GetTaskByID(ctx, taskID.UUID)
	if errors.Is(err, sql.ErrNoRows) {
		return NotFoundError{Resource: "task"}
	}
	if err != nil {
		return xerrors.Errorf("get task: %w", err)
	}
	return nil
}

// ownedEntry loads an entry and hides other users' entries behind not-found.
func (*Service) ownedEntry(ctx context.Context, tx database.Store, userID, entryID uuid.UUID) (database.TimeEntry, error) {
	entry, err := tx.GetTimeEntryByID(ctx, entryID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && entry.UserID != userID) {
		return database.TimeEntry{}, NotFoundError{Resource: "time entry"}
	}
	if err != nil {
		return database.TimeEntry{}, xerrors.Errorf("get time entry: %w", err)
	}
	return entry, nil
}

// ownedSession loads a session and its entry, applying the same ownership
// rule as ownedEntry.
func (s *Service) ownedSession(ctx context.Context, tx database.Store, userID, sessionID uuid.UUID) (database.TimeEntrySession, database.TimeEntry, error) {
	session, err := tx.GetTimeEntrySessionByID(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return database.TimeEntrySession{}, database.TimeEntry{}, NotFoundError{Resource: "session"}
	}
	if err != nil {
		return database.TimeEntrySession{}, database.TimeEntry{}, xerrors.Errorf("get session: %w", err)
	}
	entry, err := s.ownedEntry(ctx, tx, userID, session.EntryID)
	if IsNotFound(err) {
		// The entry exists but belongs to someone else; report the session
		// as missing rather than leaking the entry.
		return database.TimeEntrySession{}, database.TimeEntry{}, NotFoundError{Resource: "session"}
	}
	if err != nil {
		return database.TimeEntrySession{}, database.TimeEntry{}, err
	}
	return session, entry, nil
}

// resumEntry re-reads every sibling session and rewrites the aggregates
// from scratch. Summing instead of incrementing means concurrent session
// edits converge on the correct total regardless of interleaving.
func (*Service) resumEntry(ctx context.Context, tx database.Store, entryID uuid.UUID, markTimerBased bool) (database.TimeEntry, []database.TimeEntrySession, error) {
	sessions, err := tx.GetTimeEntrySessionsByEntryID(ctx, entryID)
	if err != nil {
		return database.TimeEntry{}, nil, xerrors.Errorf("get sessions: %w", err)
	}
	entry, err := tx.GetTimeEntryByID(ctx, entryID)
	if err != nil {
		return database.TimeEntry{}, nil, xerrors.Errorf("get time entry: %w", err)
	}

	var hours, billable float64
	for _, session := range sessions {
		hours += session.Duration
		if session.IsBillable {
			billable += session.Duration
		}
	}
	entry, err = tx.UpdateTimeEntryAggregates(ctx, database.UpdateTimeEntryAggregatesParams{
		ID:            entry.ID,
		Hours:         hours,
		BillableHours: billable,
		IsTimerBased:  entry.IsTimerBased || markTimerBased,
	})
	if err != nil {
		return database.TimeEntry{}, nil, xerrors.Errorf("update aggregates: %w", err)
	}
	return entry, sessions, nil
}

// recomputeTaskHours re-derives the task's cumulative counter from every
// entry pointing at it.
func (*Service) recomputeTaskHours(ctx context.Context, tx database.Store, taskID uuid.NullUUID) error {
	if !taskID.Valid {
		return nil
	}
	entries, err := tx.GetTimeEntriesByTaskID(ctx, taskID.UUID)
	if err != nil {
		return xerrors.Errorf("get task entries: %w", err)
	}
	var total float64
	for _, entry := range entries {
		total += entry.Hours
	}
	err = tx.UpdateTaskActualHours(ctx, database.UpdateTaskActualHoursParams{
		ID:          taskID.UUID,
		ActualHours: total,
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return xerrors.Errorf("update task hours: %w", err)
	}
	return nil
}

func (s *Service) publishEntryUpdated(ctx context.Context, userID uuid.UUID, entry database.TimeEntry, sessions []database.TimeEntrySession) {
	entrySDK := db2sdk.TimeEntry(entry, sessions)
	s.publish(ctx, userID, chronosdk.TimerEvent{
		Kind:  chronosdk.TimerEventEntryUpdated,
		Entry: &entrySDK,
	})
}

// publish notifies the user's room. Delivery is advisory: failures are
// logged and swallowed, never surfaced to the mutation's caller, because
// success is defined by storage commit.
func (s *Service) publish(ctx context.Context, userID uuid.UUID, event chronosdk.TimerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error(ctx, "marshal timer event", slog.F("kind", event.Kind), slog.Error(err))
		return
	}
	if err := s.pubsub.Publish(events.UserChannel(userID), payload); err != nil {
		s.logger.Warn(ctx, "publish timer event",
			slog.F("kind", event.Kind),
			slog.F("user_id", userID),
			slog.Error(err),
		)
	}
}
