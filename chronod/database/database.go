package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Store contains every query the timer engine runs against persistent
// storage. Both the Postgres implementation and the in-memory one used by
// tests satisfy it, so the service layer stays ignorant of the backend.
type Store interface {
	// InTx runs fn inside a transaction. Every query issued through the
	// Store handed to fn is part of the transaction; returning an error
	// rolls the whole transaction back.
	InTx(fn func(Store) error) error

	GetActiveTimerByUserID(ctx context.Context, userID uuid.UUID) (ActiveTimer, error)
	// InsertActiveTimer returns a unique-constraint violation when the user
	// already has a running timer. That constraint is the authoritative
	// enforcement of the one-timer-per-user invariant; callers must detect
	// it with IsUniqueViolation rather than checking existence first.
	InsertActiveTimer(ctx context.Context, arg InsertActiveTimerParams) (ActiveTimer, error)
	UpdateActiveTimer(ctx context.Context, arg UpdateActiveTimerParams) (ActiveTimer, error)
	DeleteActiveTimerByUserID(ctx context.Context, userID uuid.UUID) error

	GetTaskByID(ctx context.Context, id uuid.UUID) (Task, error)
	InsertTask(ctx context.Context, arg InsertTaskParams) (Task, error)
	UpdateTaskActualHours(ctx context.Context, arg UpdateTaskActualHoursParams) error

	GetTimeEntryByID(ctx context.Context, id uuid.UUID) (TimeEntry, error)
	GetTimeEntryBySlot(ctx context.Context, arg GetTimeEntryBySlotParams) (TimeEntry, error)
	GetTimeEntriesByUserID(ctx context.Context, arg GetTimeEntriesByUserIDParams) ([]TimeEntry, error)
	GetTimeEntriesByTaskID(ctx context.Context, taskID uuid.UUID) ([]TimeEntry, error)
	GetTimeEntriesInRange(ctx context.Context, arg GetTimeEntriesInRangeParams) ([]TimeEntry, error)
	InsertTimeEntry(ctx context.Context, arg InsertTimeEntryParams) (TimeEntry, error)
	UpdateTimeEntryAggregates(ctx context.Context, arg UpdateTimeEntryAggregatesParams) (TimeEntry, error)
	UpdateTimeEntryHours(ctx context.Context, arg UpdateTimeEntryHoursParams) (TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id uuid.UUID) error

	GetTimeEntrySessionByID(ctx context.Context, id uuid.UUID) (TimeEntrySession, error)
	GetTimeEntrySessionsByEntryID(ctx context.Context, entryID uuid.UUID) ([]TimeEntrySession, error)
	InsertTimeEntrySession(ctx context.Context, arg InsertTimeEntrySessionParams) (TimeEntrySession, error)
	UpdateTimeEntrySession(ctx context.Context, arg UpdateTimeEntrySessionParams) (TimeEntrySession, error)
	DeleteTimeEntrySession(ctx context.Context, id uuid.UUID) error

	GetShortcutByID(ctx context.Context, id uuid.UUID) (Shortcut, error)
	GetShortcutsByUserID(ctx context.Context, userID uuid.UUID) ([]Shortcut, error)
	InsertShortcut(ctx context.Context, arg InsertShortcutParams) (Shortcut, error)
	DeleteShortcut(ctx context.Context, id uuid.UUID) error

	GetPayrollSessions(ctx context.Context, arg GetPayrollSessionsParams) ([]PayrollSessionRow, error)
}

// ActiveTimer is the single mutable piece of live state: one row per user,
// existing only while that user's timer runs.
type ActiveTimer struct {
	UserID      uuid.UUID
	TaskID      uuid.NullUUID
	Description sql.NullString
	StartTime   time.Time
	CreatedAt   time.Time
}

// TimeEntry is the durable per-user, per-task, per-calendar-day aggregate.
// Date is always UTC midnight. Hours and BillableHours are sums over the
// entry's sessions whenever any session exists; only session-less manual
// entries carry directly-set hours.
type TimeEntry struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TaskID        uuid.NullUUID
	Date          time.Time
	Hours         float64
	BillableHours float64
	IsTimerBased  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TimeEntrySession is one contiguous span of work within a TimeEntry.
type TimeEntrySession struct {
	ID          uuid.UUID
	EntryID     uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	// Duration is hours, derived from EndTime - StartTime at write time.
	Duration    float64
	IsBillable  bool
	Description sql.NullString
	CreatedAt   time.Time
}

// Task rows are owned by the surrounding platform; the engine only reads
// them to validate references, keeps ActualHours in sync, and reads the
// display labels for the payroll export.
type Task struct {
	ID          uuid.UUID
	Name        string
	ProjectName string
	ClientName  string
	ActualHours float64
	CreatedAt   time.Time
}

// Shortcut is a pinned task for one-click timer starts, unique per
// (user, task).
type Shortcut struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TaskID    uuid.UUID
	Position  int32
	CreatedAt time.Time
}

// PayrollSessionRow is a session joined with its entry and task labels,
// produced only for the payroll export read path.
type PayrollSessionRow struct {
	UserID      uuid.UUID
	Date        time.Time
	ClientName  string
	ProjectName string
	TaskName    string
	StartTime   time.Time
	EndTime     time.Time
	Duration    float64
	IsBillable  bool
	Description sql.NullString
}

type InsertActiveTimerParams struct {
	UserID      uuid.UUID
	TaskID      uuid.NullUUID
	Description sql.NullString
	StartTime   time.Time
}

type UpdateActiveTimerParams struct {
	UserID      uuid.UUID
	TaskID      uuid.NullUUID
	Description sql.NullString
}

type InsertTaskParams struct {
	ID          uuid.UUID
	Name        string
	ProjectName string
	ClientName  string
}

type UpdateTaskActualHoursParams struct {
	ID          uuid.UUID
	ActualHours float64
}

type GetTimeEntryBySlotParams struct {
	UserID uuid.UUID
	TaskID uuid.NullUUID
	Date   time.Time
}

type GetTimeEntriesByUserIDParams struct {
	UserID    uuid.UUID
	StartDate time.Time
	EndDate   time.Time
}

type GetTimeEntriesInRangeParams struct {
	StartDate time.Time
	EndDate   time.Time
}

type InsertTimeEntryParams struct {
	UserID        uuid.UUID
	TaskID        uuid.NullUUID
	Date          time.Time
	Hours         float64
	BillableHours float64
	IsTimerBased  bool
}

type UpdateTimeEntryAggregatesParams struct {
	ID            uuid.UUID
	Hours         float64
	BillableHours float64
	IsTimerBased  bool
}

type UpdateTimeEntryHoursParams struct {
	ID            uuid.UUID
	Hours         float64
	BillableHours float64
}

type InsertTimeEntrySessionParams struct {
	EntryID     uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Duration    float64
	IsBillable  bool
	Description sql.NullString
}

type UpdateTimeEntrySessionParams struct {
	ID          uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Duration    float64
	IsBillable  bool
	Description sql.NullString
}

type InsertShortcutParams struct {
	UserID   uuid.UUID
	TaskID   uuid.UUID
	Position int32
}

type GetPayrollSessionsParams struct {
	StartDate time.Time
	EndDate   time.Time
}
