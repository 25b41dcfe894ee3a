package queue

import (
	"context"
	"encoding/json"
)

// Task is one Trello event enriched with the webhook setting of the user it was matched to.
type Task struct {
	ID          string          `json:"id"`
	TrelloEvent json.RawMessage `json:"trello_event"`
	UserEmail   string          `json:"user_email"`
	BoardID     string          `json:"board_id"`
	BoardName   string          `json:"board_name"`
	EventType   string          `json:"event_type"`
	Label       string          `json:"label,omitempty"`
	LabelID     string          `json:"label_id,omitempty"`
	LabelName   string          `json:"label_name,omitempty"`
	ListName    string          `json:"list_name,omitempty"`
}

type Message struct {
	ID      string
	Task    Task
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, task Task) error
	Close() error
}

type Consumer interface {
	Read(ctx context.Context) ([]Message, error)
	Ack(ctx context.Context, msg Message) error
	// Requeue acknowledges msg and enqueues it again with its attempt counter incremented.
	Requeue(ctx context.Context, msg Message, errMsg string) error
	SendDLQ(ctx context.Context, msg Message, errMsg string) error
}
