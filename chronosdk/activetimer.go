package chronosdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ActiveTimer is a user's in-progress timer. At most one exists per user;
// its presence is the sole source of truth for "currently timing".
type ActiveTimer struct {
	UserID         uuid.UUID  `json:"user_id" format:"uuid"`
	TaskID         *uuid.UUID `json:"task_id,omitempty" format:"uuid"`
	Description    string     `json:"description,omitempty"`
	StartTime      time.Time  `json:"start_time" format:"date-time"`
	ElapsedSeconds int64      `json:"elapsed_seconds"`
}

type StartTimerRequest struct {
	TaskID      *uuid.UUID `json:"task_id,omitempty" format:"uuid"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=500"`
}

type UpdateTimerRequest struct {
	TaskID      *uuid.UUID `json:"task_id,omitempty" format:"uuid"`
	Description string     `json:"description,omitempty" validate:"omitempty,max=500"`
}

// ActiveTimer fetches the running timer for user ("me" or a UUID). A nil
// timer with a nil error means no timer is running.
func (c *Client) ActiveTimer(ctx context.Context, user string) (*ActiveTimer, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/timer", user), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var timer ActiveTimer
	return &timer, json.NewDecoder(res.Body).Decode(&timer)
}

// StartTimer starts a timer for user. The server rejects the call when a
// timer is already running.
func (c *Client) StartTimer(ctx context.Context, user string, req StartTimerRequest) (ActiveTimer, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/timer", user), req)
	if err != nil {
		return ActiveTimer{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return ActiveTimer{}, ReadBodyAsError(res)
	}
	var timer ActiveTimer
	return timer, json.NewDecoder(res.Body).Decode(&timer)
}

// StopTimer stops the running timer, materializing its span into the day's
// time entry, and returns that entry.
func (c *Client) StopTimer(ctx context.Context, user string) (TimeEntry, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/timer/stop", user), nil)
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

// DiscardTimer deletes the running timer without recording anything.
func (c *Client) DiscardTimer(ctx context.Context, user string) error {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/timer/discard", user), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}

// UpdateTimer changes the task or description of the running timer without
// touching its start time.
func (c *Client) UpdateTimer(ctx context.Context, user string, req UpdateTimerRequest) (ActiveTimer, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/users/%s/timer", user), req)
	if err != nil {
		return ActiveTimer{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return ActiveTimer{}, ReadBodyAsError(res)
	}
	var timer ActiveTimer
	return timer, json.NewDecoder(res.Body).Decode(&timer)
}
