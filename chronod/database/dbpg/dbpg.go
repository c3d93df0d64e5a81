// Package dbpg implements database.Store on PostgreSQL. Queries are written
// by hand; the surface is small enough that a query generator would cost
// more than it saves.
package dbpg

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/chronohq/chrono/chronod/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// New wraps an open Postgres connection in a database.Store.
func New(sdb *sql.DB) database.Store {
	return &sqlQuerier{sdb: sdb, db: sdb}
}

// Migrate applies the schema. Statements are idempotent, so re-running on
// startup is safe.
func Migrate(ctx context.Context, sdb *sql.DB) error {
	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return xerrors.Errorf("glob migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		content, err := fs.ReadFile(migrations, name)
		if err != nil {
			return xerrors.Errorf("read migration %q: %w", name, err)
		}
		if _, err := sdb.ExecContext(ctx, string(content)); err != nil {
			return xerrors.Errorf("apply migration %q: %w", name, err)
		}
	}
	return nil
}

// querier is the subset of *sql.DB and *sql.Tx the queries need, so the
// same methods serve inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQuerier struct {
	sdb *sql.DB
	db  querier
}

func (q *sqlQuerier) InTx(fn func(database.Store) error) error {
	if _, inTx := q.db.(*sql.Tx); inTx {
		// Already in a transaction; re-entrant calls join it.
		return fn(q)
	}
	tx, err := q.sdb.Begin()
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	err = fn(&sqlQuerier{sdb: q.sdb, db: tx})
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return xerrors.Errorf("rollback transaction (%s): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return xerrors.Errorf("commit transaction: %w", err)
	}
	return nil
}

const activeTimerColumns = "user_id, task_id, description, start_time, created_at"

func scanActiveTimer(row *sql.Row) (database.ActiveTimer, error) {
	var t database.ActiveTimer
	err := row.Scan(&t.UserID, &t.TaskID, &t.Description, &t.StartTime, &t.CreatedAt)
	return t, err
}

func (q *sqlQuerier) GetActiveTimerByUserID(ctx context.Context, userID uuid.UUID) (database.ActiveTimer, error) {
	return scanActiveTimer(q.db.QueryRowContext(ctx,
		`SELECT `+activeTimerColumns+` FROM active_timers WHERE user_id = $1`, userID))
}

func (q *sqlQuerier) InsertActiveTimer(ctx context.Context, arg database.InsertActiveTimerParams) (database.ActiveTimer, error) {
	return scanActiveTimer(q.db.QueryRowContext(ctx, `
		INSERT INTO active_timers (user_id, task_id, description, start_time)
		VALUES ($1, $2, $3, $4)
		RETURNING `+activeTimerColumns,
		arg.UserID, arg.TaskID, arg.Description, arg.StartTime))
}

func (q *sqlQuerier) UpdateActiveTimer(ctx context.Context, arg database.UpdateActiveTimerParams) (database.ActiveTimer, error) {
	return scanActiveTimer(q.db.QueryRowContext(ctx, `
		UPDATE active_timers SET task_id = $2, description = $3
		WHERE user_id = $1
		RETURNING `+activeTimerColumns,
		arg.UserID, arg.TaskID, arg.Description))
}

func (q *sqlQuerier) DeleteActiveTimerByUserID(ctx context.Context, userID uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM active_timers WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	return oneRow(res)
}

const taskColumns = "id, name, project_name, client_name, actual_hours, created_at"

func scanTask(row *sql.Row) (database.Task, error) {
	var t database.Task
	err := row.Scan(&t.ID, &t.Name, &t.ProjectName, &t.ClientName, &t.ActualHours, &t.CreatedAt)
	return t, err
}

func (q *sqlQuerier) GetTaskByID(ctx context.Context, id uuid.UUID) (database.Task, error) {
	return scanTask(q.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (q *sqlQuerier) InsertTask(ctx context.Context, arg database.InsertTaskParams) (database.Task, error) {
	return scanTask(q.db.QueryRowContext(ctx, `
		INSERT INTO tasks (id, name, project_name, client_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+taskColumns,
		arg.ID, arg.Name, arg.ProjectName, arg.ClientName))
}

func (q *sqlQuerier) UpdateTaskActualHours(ctx context.Context, arg database.UpdateTaskActualHoursParams) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE tasks SET actual_hours = $2 WHERE id = $1`, arg.ID, arg.ActualHours)
	if err != nil {
		return err
	}
	return oneRow(res)
}

const entryColumns = "id, user_id, task_id, date, hours, billable_hours, is_timer_based, created_at, updated_at"

func scanEntry(s interface{ Scan(...any) error }) (database.TimeEntry, error) {
	var e database.TimeEntry
	err := s.Scan(&e.ID, &e.UserID, &e.TaskID, &e.Date, &e.Hours, &e.BillableHours, &e.IsTimerBased, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (q *sqlQuerier) queryEntries(ctx context.Context, query string, args ...any) ([]database.TimeEntry, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]database.TimeEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (q *sqlQuerier) GetTimeEntryByID(ctx context.Context, id uuid.UUID) (database.TimeEntry, error) {
	return scanEntry(q.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, id))
}

func (q *sqlQuerier) GetTimeEntryBySlot(ctx context.Context, arg database.GetTimeEntryBySlotParams) (database.TimeEntry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM time_entries
		WHERE user_id = $1
		  AND COALESCE(task_id, '00000000-0000-0000-0000-000000000000'::uuid) =
		      COALESCE($2, '00000000-0000-0000-0000-000000000000'::uuid)
		  AND date = $3`,
		arg.UserID, arg.TaskID, arg.Date))
}

func (q *sqlQuerier) GetTimeEntriesByUserID(ctx context.Context, arg database.GetTimeEntriesByUserIDParams) ([]database.TimeEntry, error) {
	// Zero bounds mean unbounded. The zero time is far in the past already;
	// an open end bound becomes far-future.
	end := arg.EndDate
	if end.IsZero() {
		end = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM time_entries
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`,
		arg.UserID, arg.StartDate, end)
}

func (q *sqlQuerier) GetTimeEntriesByTaskID(ctx context.Context, taskID uuid.UUID) ([]database.TimeEntry, error) {
	return q.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE task_id = $1`, taskID)
}

func (q *sqlQuerier) GetTimeEntriesInRange(ctx context.Context, arg database.GetTimeEntriesInRangeParams) ([]database.TimeEntry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM time_entries
		WHERE date >= $1 AND date <= $2
		ORDER BY date ASC, user_id ASC`,
		arg.StartDate, arg.EndDate)
}

func (q *sqlQuerier) InsertTimeEntry(ctx context.Context, arg database.InsertTimeEntryParams) (database.TimeEntry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, `
		INSERT INTO time_entries (user_id, task_id, date, hours, billable_hours, is_timer_based)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+entryColumns,
		arg.UserID, arg.TaskID, arg.Date, arg.Hours, arg.BillableHours, arg.IsTimerBased))
}

func (q *sqlQuerier) UpdateTimeEntryAggregates(ctx context.Context, arg database.UpdateTimeEntryAggregatesParams) (database.TimeEntry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, `
		UPDATE time_entries
		SET hours = $2, billable_hours = $3, is_timer_based = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns,
		arg.ID, arg.Hours, arg.BillableHours, arg.IsTimerBased))
}

func (q *sqlQuerier) UpdateTimeEntryHours(ctx context.Context, arg database.UpdateTimeEntryHoursParams) (database.TimeEntry, error) {
	return scanEntry(q.db.QueryRowContext(ctx, `
		UPDATE time_entries
		SET hours = $2, billable_hours = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+entryColumns,
		arg.ID, arg.Hours, arg.BillableHours))
}

func (q *sqlQuerier) DeleteTimeEntry(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

const sessionColumns = "id, entry_id, start_time, end_time, duration, is_billable, description, created_at"

func scanSession(s interface{ Scan(...any) error }) (database.TimeEntrySession, error) {
	var ses database.TimeEntrySession
	err := s.Scan(&ses.ID, &ses.EntryID, &ses.StartTime, &ses.EndTime, &ses.Duration, &ses.IsBillable, &ses.Description, &ses.CreatedAt)
	return ses, err
}

func (q *sqlQuerier) GetTimeEntrySessionByID(ctx context.Context, id uuid.UUID) (database.TimeEntrySession, error) {
	return scanSession(q.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM time_entry_sessions WHERE id = $1`, id))
}

func (q *sqlQuerier) GetTimeEntrySessionsByEntryID(ctx context.Context, entryID uuid.UUID) ([]database.TimeEntrySession, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM time_entry_sessions
		WHERE entry_id = $1 ORDER BY start_time ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]database.TimeEntrySession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (q *sqlQuerier) InsertTimeEntrySession(ctx context.Context, arg database.InsertTimeEntrySessionParams) (database.TimeEntrySession, error) {
	return scanSession(q.db.QueryRowContext(ctx, `
		INSERT INTO time_entry_sessions (entry_id, start_time, end_time, duration, is_billable, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		arg.EntryID, arg.StartTime, arg.EndTime, arg.Duration, arg.IsBillable, arg.Description))
}

func (q *sqlQuerier) UpdateTimeEntrySession(ctx context.Context, arg database.UpdateTimeEntrySessionParams) (database.TimeEntrySession, error) {
	return scanSession(q.db.QueryRowContext(ctx, `
		UPDATE time_entry_sessions
		SET start_time = $2, end_time = $3, duration = $4, is_billable = $5, description = $6
		WHERE id = $1
		RETURNING `+sessionColumns,
		arg.ID, arg.StartTime, arg.EndTime, arg.Duration, arg.IsBillable, arg.Description))
}

func (q *sqlQuerier) DeleteTimeEntrySession(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM time_entry_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

const shortcutColumns = "id, user_id, task_id, position, created_at"

func scanShortcut(s interface{ Scan(...any) error }) (database.Shortcut, error) {
	var sc database.Shortcut
	err := s.Scan(&sc.ID, &sc.UserID, &sc.TaskID, &sc.Position, &sc.CreatedAt)
	return sc, err
}

func (q *sqlQuerier) GetShortcutByID(ctx context.Context, id uuid.UUID) (database.Shortcut, error) {
	return scanShortcut(q.db.QueryRowContext(ctx,
		`SELECT `+shortcutColumns+` FROM shortcuts WHERE id = $1`, id))
}

func (q *sqlQuerier) GetShortcutsByUserID(ctx context.Context, userID uuid.UUID) ([]database.Shortcut, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+shortcutColumns+` FROM shortcuts
		WHERE user_id = $1 ORDER BY position ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	shortcuts := make([]database.Shortcut, 0)
	for rows.Next() {
		shortcut, err := scanShortcut(rows)
		if err != nil {
			return nil, err
		}
		shortcuts = append(shortcuts, shortcut)
	}
	return shortcuts, rows.Err()
}

func (q *sqlQuerier) InsertShortcut(ctx context.Context, arg database.InsertShortcutParams) (database.Shortcut, error) {
	return scanShortcut(q.db.QueryRowContext(ctx, `
		INSERT INTO shortcuts (user_id, task_id, position)
		VALUES ($1, $2, $3)
		RETURNING `+shortcutColumns,
		arg.UserID, arg.TaskID, arg.Position))
}

func (q *sqlQuerier) DeleteShortcut(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM shortcuts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func (q *sqlQuerier) GetPayrollSessions(ctx context.Context, arg database.GetPayrollSessionsParams) ([]database.PayrollSessionRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT e.user_id, e.date,
		       COALESCE(t.client_name, ''), COALESCE(t.project_name, ''), COALESCE(t.name, ''),
		       s.start_time, s.end_time, s.duration, s.is_billable, s.description
		FROM time_entry_sessions s
		JOIN time_entries e ON e.id = s.entry_id
		LEFT JOIN tasks t ON t.id = e.task_id
		WHERE e.date >= $1 AND e.date <= $2
		ORDER BY e.user_id ASC, s.start_time ASC`,
		arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]database.PayrollSessionRow, 0)
	for rows.Next() {
		var row database.PayrollSessionRow
		err := rows.Scan(&row.UserID, &row.Date, &row.ClientName, &row.ProjectName, &row.TaskName,
			&row.StartTime, &row.EndTime, &row.Duration, &row.IsBillable, &row.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// oneRow converts a zero-row-affected result into sql.ErrNoRows so mutation
// queries report missing rows the same way lookups do.
func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
