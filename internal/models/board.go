package models

// Board is a catalog entry: a Trello board and the names of its lists, in board order.
type Board struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Lists []string `json:"lists"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
}

// RegisteredWebhook is a webhook as Trello reports it for a token.
type RegisteredWebhook struct {
	ID          string `json:"id"`
	IDModel     string `json:"idModel"`
	Description string `json:"description"`
	CallbackURL string `json:"callbackURL"`
	Active      bool   `json:"active"`
}

// CardRef identifies a card created through the Trello API.
type CardRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
