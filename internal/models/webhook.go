package models

type TrelloCardData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortLink string `json:"shortLink"`
	IDShort   int    `json:"idShort"`
}

type TrelloBoardData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TrelloListData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TrelloMemberData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

type TrelloAction struct {
	ID   string `json:"id"`
	Type string `json:"type"` // e.g., "commentCard"
	Data struct {
		Card  TrelloCardData  `json:"card"`
		Board TrelloBoardData `json:"board"`
		List  TrelloListData  `json:"list"`
		Text  string          `json:"text"`
	} `json:"data"`
	Member        *TrelloMemberData `json:"member,omitempty"`
	MemberCreator *TrelloMemberData `json:"memberCreator,omitempty"`
}

// TrelloWebhookPayload is the body Trello posts to the callback URL.
type TrelloWebhookPayload struct {
	Action *TrelloAction `json:"action"`
	Model  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"model"`
	Webhook struct {
		ID      string `json:"id"`
		IDModel string `json:"idModel"`
	} `json:"webhook"`
}
