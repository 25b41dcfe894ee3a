package panel

import (
	"github.com/chxlky/trello-webhook-panel/internal/models"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusStopped Status = "stopped"
)

// EventView is one webhook setting shown under its webhook.
type EventView struct {
	ID        uint   `json:"id"`
	EventType string `json:"event_type"`
	Label     string `json:"label,omitempty"`
	ListName  string `json:"list_name,omitempty"`
	Status    Status `json:"status"`
}

// WebhookView groups the settings that share one external webhook.
type WebhookView struct {
	ID      string      `json:"id"`
	Board   string      `json:"board"`
	BoardID string      `json:"board_id"`
	Events  []EventView `json:"events"`
	Status  Status      `json:"status"`
}

// BuildIndex groups rows by webhook id. Groups come out in the order their webhook id first appears
// and events keep row order, so every row lands in exactly one group. Board fields are taken from
// the first row of each group.
func BuildIndex(rows []models.WebhookSetting) []WebhookView {
	views := make([]WebhookView, 0)
	pos := make(map[string]int)

	for _, row := range rows {
		i, ok := pos[row.WebhookID]
		if !ok {
			i = len(views)
			pos[row.WebhookID] = i
			views = append(views, WebhookView{
				ID:      row.WebhookID,
				Board:   row.BoardName,
				BoardID: row.BoardID,
				Status:  StatusActive,
			})
		}
		views[i].Events = append(views[i].Events, EventView{
			ID:        row.ID,
			EventType: row.EventType,
			Label:     row.Label,
			ListName:  row.ListName,
			Status:    StatusActive,
		})
	}
	return views
}

// WithStatus returns a copy of views with every webhook and event set to status. It changes
// nothing on the backend.
func WithStatus(views []WebhookView, status Status) []WebhookView {
	out := make([]WebhookView, len(views))
	for i, v := range views {
		v.Status = status
		events := make([]EventView, len(v.Events))
		for j, e := range v.Events {
			e.Status = status
			events[j] = e
		}
		v.Events = events
		out[i] = v
	}
	return out
}

// StopAll marks every webhook stopped in the view only.
func StopAll(views []WebhookView) ([]WebhookView, Notice) {
	return WithStatus(views, StatusStopped), infoNotice("All webhooks stopped", "All active webhooks have been paused")
}

// RestartAll marks every webhook active in the view only.
func RestartAll(views []WebhookView) ([]WebhookView, Notice) {
	return WithStatus(views, StatusActive), infoNotice("All webhooks restarted", "All webhooks have been reactivated")
}

// EventCount is the number of settings behind views.
func EventCount(views []WebhookView) int {
	n := 0
	for _, v := range views {
		n += len(v.Events)
	}
	return n
}
