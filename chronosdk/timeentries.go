package chronosdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// TimeEntry is the durable per-day aggregate of recorded work for a
// user/task pair. Whenever the entry has sessions, Hours and BillableHours
// are exactly the sums over them.
type TimeEntry struct {
	ID            uuid.UUID          `json:"id" format:"uuid"`
	UserID        uuid.UUID          `json:"user_id" format:"uuid"`
	TaskID        *uuid.UUID         `json:"task_id,omitempty" format:"uuid"`
	Date          time.Time          `json:"date" format:"date-time"`
	Hours         float64            `json:"hours"`
	BillableHours float64            `json:"billable_hours"`
	IsTimerBased  bool               `json:"is_timer_based"`
	Sessions      []TimeEntrySession `json:"sessions"`
	UpdatedAt     time.Time          `json:"updated_at" format:"date-time"`
}

// TimeEntrySession is one contiguous span of work within a TimeEntry.
type TimeEntrySession struct {
	ID          uuid.UUID `json:"id" format:"uuid"`
	EntryID     uuid.UUID `json:"entry_id" format:"uuid"`
	StartTime   time.Time `json:"start_time" format:"date-time"`
	EndTime     time.Time `json:"end_time" format:"date-time"`
	Duration    float64   `json:"duration"`
	IsBillable  bool      `json:"is_billable"`
	Description string    `json:"description,omitempty"`
}

type CreateTimeEntryRequest struct {
	TaskID *uuid.UUID `json:"task_id,omitempty" format:"uuid"`
	// Date is the UTC calendar day, formatted 2006-01-02.
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hours         float64 `json:"hours" validate:"gte=0"`
	BillableHours float64 `json:"billable_hours" validate:"gte=0"`
}

// UpdateTimeEntryRequest is the direct-hours edit path. It is rejected for
// timer-based entries and for entries that already carry sessions.
type UpdateTimeEntryRequest struct {
	Hours         float64 `json:"hours" validate:"gte=0"`
	BillableHours float64 `json:"billable_hours" validate:"gte=0"`
}

type CreateSessionRequest struct {
	StartTime   time.Time `json:"start_time" validate:"required" format:"date-time"`
	EndTime     time.Time `json:"end_time" validate:"required" format:"date-time"`
	IsBillable  bool      `json:"is_billable"`
	Description string    `json:"description,omitempty" validate:"omitempty,max=500"`
}

type UpdateSessionRequest struct {
	StartTime   *time.Time `json:"start_time,omitempty" format:"date-time"`
	EndTime     *time.Time `json:"end_time,omitempty" format:"date-time"`
	IsBillable  *bool      `json:"is_billable,omitempty"`
	Description *string    `json:"description,omitempty"`
}

// TimeEntries lists entries for user, optionally bounded by start/end
// (inclusive UTC days, formatted 2006-01-02).
func (c *Client) TimeEntries(ctx context.Context, user string, start, end string) ([]TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/entries", user), nil,
		WithQueryParam("start_date", start),
		WithQueryParam("end_date", end),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var entries []TimeEntry
	return entries, json.NewDecoder(res.Body).Decode(&entries)
}

// CreateTimeEntry records a manual (non-timer) entry with directly-set hours.
func (c *Client) CreateTimeEntry(ctx context.Context, user string, req CreateTimeEntryRequest) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/entries", user), req)
	if err != nil {
		return TimeEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return TimeEntry{}, ReadBodyAsError(res)
	}
	var entry TimeEntry
	return entry, json.NewDecoder(res.Body).Decode(&entry)
}

// UpdateTimeEntry edits the hours of a manual entry.
func (c *Client) UpdateTimeEntry(ctx context.Context, user string, entryID uuid.UUID, req UpdateTimeEntryRequest) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/users/%s/entries/%s", user, entryID), req)
	if err != nil {
		return TimeEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return TimeEntry{}, ReadBodyAsError(res)
	}
	var entry TimeEntry
	return entry, json.NewDecoder(res.Body).Decode(&entry)
}

// DeleteTimeEntry removes an entry and all of its sessions.
func (c *Client) DeleteTimeEntry(ctx context.Context, user string, entryID uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/users/%s/entries/%s", user, entryID), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}

// CreateSession appends a manual session to an entry. The entry's
// aggregates are re-summed server side.
func (c *Client) CreateSession(ctx context.Context, user string, entryID uuid.UUID, req CreateSessionRequest) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/entries/%s/sessions", user, entryID), req)
	if err != nil {
		return TimeEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return TimeEntry{}, ReadBodyAsError(res)
	}
	var entry TimeEntry
	return entry, json.NewDecoder(res.Body).Decode(&entry)
}

// UpdateSession edits a session and returns the re-summed parent entry.
func (c *Client) UpdateSession(ctx context.Context, user string, sessionID uuid.UUID, req UpdateSessionRequest) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/users/%s/sessions/%s", user, sessionID), req)
	if err != nil {
		return TimeEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return TimeEntry{}, ReadBodyAsError(res)
	}
	var entry TimeEntry
	return entry, json.NewDecoder(res.Body).Decode(&entry)
}

// DeleteSession removes a session and returns the re-summed parent entry.
func (c *Client) DeleteSession(ctx context.Context, user string, sessionID uuid.UUID) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/users/%s/sessions/%s", user, sessionID), nil)
	if err != nil {
		return TimeEntry{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return TimeEntry{}, ReadBodyAsError(res)
	}
	var entry TimeEntry
	return entry, json.NewDecoder(res.Body).Decode(&entry)
}
