package chronosdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Shortcut pins a task for one-click timer starts; the extension popup
// renders the user's shortcut list.
type Shortcut struct {
	ID       uuid.UUID `json:"id" format:"uuid"`
	UserID   uuid.UUID `json:"user_id" format:"uuid"`
	TaskID   uuid.UUID `json:"task_id" format:"uuid"`
	TaskName string    `json:"task_name"`
	Position int32     `json:"position"`
}

type CreateShortcutRequest struct {
	TaskID   uuid.UUID `json:"task_id" validate:"required" format:"uuid"`
	Position int32     `json:"position"`
}

// Shortcuts lists the user's shortcuts ordered by position.
func (c *Client) Shortcuts(ctx context.Context, user string) ([]Shortcut, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/users/%s/shortcuts", user), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var shortcuts []Shortcut
	return shortcuts, json.NewDecoder(res.Body).Decode(&shortcuts)
}

// CreateShortcut pins a task.
func (c *Client) CreateShortcut(ctx context.Context, user string, req CreateShortcutRequest) (Shortcut, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/users/%s/shortcuts", user), req)
	if err != nil {
		return Shortcut{}, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return Shortcut{}, ReadBodyAsError(res)
	}
	var shortcut Shortcut
	return shortcut, json.NewDecoder(res.Body).Decode(&shortcut)
}

// DeleteShortcut unpins a task.
func (c *Client) DeleteShortcut(ctx context.Context, user string, shortcutID uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/users/%s/shortcuts/%s", user, shortcutID), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}
