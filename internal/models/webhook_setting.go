package models

import "time"

// WebhookSetting is one logical event configuration of a user, tied to an external Trello webhook.
// Many settings may share one WebhookID.
type WebhookSetting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserEmail string    `gorm:"index;not null" json:"user_email"`
	WebhookID string    `gorm:"index;not null" json:"webhook_id"`
	BoardID   string    `gorm:"index" json:"board_id"`
	BoardName string    `json:"board_name"`
	EventType string    `gorm:"index" json:"event_type"`
	Label     string    `json:"label,omitempty"`
	LabelID   string    `json:"label_id,omitempty"`
	LabelName string    `json:"label_name,omitempty"`
	ListName  string    `json:"list_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TrelloWebhook records an external webhook so later registrations for the same
// board and callback reuse it instead of creating another.
type TrelloWebhook struct {
	ID          uint      `gorm:"primaryKey"`
	BoardID     string    `gorm:"uniqueIndex:idx_board_callback;not null"`
	CallbackURL string    `gorm:"uniqueIndex:idx_board_callback;not null"`
	WebhookID   string    `gorm:"index;not null"`
	CreatedAt   time.Time
}

// TrelloWebhookEvent is the event configuration sent along with a registration.
type TrelloWebhookEvent struct {
	ID          uint   `gorm:"primaryKey"`
	WebhookID   string `gorm:"uniqueIndex:idx_webhook_event;not null"`
	EventType   string `gorm:"uniqueIndex:idx_webhook_event;not null"`
	Enabled     bool
	ExtraConfig JSONMap
	UpdatedAt   time.Time
}

// CopiedCard remembers a card copied into a user's board so a redelivered event is not copied twice.
type CopiedCard struct {
	ID           string `gorm:"primaryKey"` // id of the copy
	SourceCardID string `gorm:"uniqueIndex:idx_copy_source;not null"`
	UserEmail    string `gorm:"uniqueIndex:idx_copy_source;not null"`
	EventType    string `gorm:"uniqueIndex:idx_copy_source;not null"`
	Name         string
	URL          string
	BoardID      string
	CreatedAt    time.Time
}
