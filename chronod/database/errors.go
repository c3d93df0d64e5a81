package database

import (
	"errors"

	"github.com/lib/pq"
)

// UniqueConstraint names a unique constraint in the schema. The in-memory
// store fabricates pq errors carrying these names so callers can treat both
// backends identically.
type UniqueConstraint string

const (
	// UniqueActiveTimersUserIDKey enforces at most one running timer per user.
	UniqueActiveTimersUserIDKey UniqueConstraint = "active_timers_user_id_key"
	// UniqueTimeEntriesSlotKey enforces one entry per (user, task, day) slot.
	UniqueTimeEntriesSlotKey UniqueConstraint = "time_entries_user_id_task_id_date_key"
	// UniqueShortcutsUserTaskKey enforces one shortcut per (user, task).
	UniqueShortcutsUserTaskKey UniqueConstraint = "shortcuts_user_id_task_id_key"
)

// IsUniqueViolation checks if the error is due to a unique violation.
// If one or more specific unique constraints are given as arguments,
// the error must be caused by one of them. If no constraints are given,
// this function returns true for any unique violation.
func IsUniqueViolation(err error, uniqueConstraints ...UniqueConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "unique_violation" {
			if len(uniqueConstraints) == 0 {
				return true
			}
			for _, uc := range uniqueConstraints {
				if pqErr.Constraint == string(uc) {
					return true
				}
			}
		}
	}

	return false
}
