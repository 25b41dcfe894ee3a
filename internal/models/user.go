package models

import "time"

// User is keyed by the verified Google email. APIKey and Token are the linked Trello credentials and
// are empty until the user links an account.
type User struct {
	Email           string `gorm:"primaryKey"`
	APIKey          string
	Token           string
	LinkedBoardID   string
	LinkedBoardName string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) TrelloLinked() bool {
	return u.APIKey != "" && u.Token != ""
}

// UserBoard is the integration board created for a user; matched cards are copied into it.
// Lists maps list name to Trello list id.
type UserBoard struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserEmail string    `gorm:"uniqueIndex;not null" json:"user_email"`
	BoardID   string    `gorm:"not null" json:"board_id"`
	BoardName string    `gorm:"not null" json:"board_name"`
	Lists     JSONMap   `json:"lists"`
	CreatedAt time.Time `json:"created_at"`
}

func (b UserBoard) ListID(name string) (string, bool) {
	raw, ok := b.Lists[name]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}
