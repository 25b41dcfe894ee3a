package models

// WebhookRegistration is the body of POST /api/trello/webhooks.
type WebhookRegistration struct {
	CallbackURL   string         `json:"callbackURL"`
	IDModel       string         `json:"idModel"`
	Description   string         `json:"description"`
	EventSettings []EventSetting `json:"eventSettings"`
}

type EventSetting struct {
	EventType   string         `json:"event_type"`
	Enabled     bool           `json:"enabled"`
	ExtraConfig map[string]any `json:"extra_config,omitempty"`
}

// RegistrationResult is the success body of a webhook registration. ID is the external webhook id.
type RegistrationResult struct {
	Message string `json:"message,omitempty"`
	ID      string `json:"id"`
}

// SessionInfo is what GET /api/session reports.
type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	TrelloLinked  bool   `json:"trello_linked"`
}

// BoardSetup describes the integration board created (or found) by POST /trello/setup-board.
type BoardSetup struct {
	Message string            `json:"message,omitempty"`
	BoardID string            `json:"board_id"`
	Name    string            `json:"board_name"`
	Lists   map[string]string `json:"lists"`
	Created bool              `json:"created"`
}
