package models

import "strings"

// EventType is the user-facing name of a card event a webhook setting listens for.
type EventType string

const (
	EventMentionedInCard EventType = "Mentioned in a card"
	EventAddedToCard     EventType = "Added to a card"
)

var EventTypes = []EventType{EventMentionedInCard, EventAddedToCard}

var trelloActions = map[EventType]string{
	EventMentionedInCard: "commentCard",
	EventAddedToCard:     "addMemberToCard",
}

// ParseEventType accepts the display name or the Trello action type.
func ParseEventType(s string) (EventType, bool) {
	s = strings.TrimSpace(s)
	for _, et := range EventTypes {
		if strings.EqualFold(s, string(et)) || s == trelloActions[et] {
			return et, true
		}
	}
	return "", false
}

// TrelloAction is the Trello action type that triggers the event.
func (e EventType) TrelloAction() string {
	return trelloActions[e]
}

func EventTypeForAction(action string) (EventType, bool) {
	for et, a := range trelloActions {
		if a == action {
			return et, true
		}
	}
	return "", false
}
