// Package trellotest provides an in-memory Trello double for handler and worker tests.
package trellotest

import (
	"context"
	"fmt"
	"sync"

	"github.com/chxlky/trello-webhook-panel/integrations"
	"github.com/chxlky/trello-webhook-panel/internal/models"
)

// Fake records every mutating call. Set the Err* fields to make the matching call fail.
type Fake struct {
	mu sync.Mutex

	Username string
	Boards   []models.Board
	Labels   map[string][]models.Label // by board id
	Webhooks []models.RegisteredWebhook

	ErrMe       error
	ErrBoards   error
	ErrCopy     error
	ErrAttach   error
	ErrLabel    error
	ErrRegister map[string]error // by board id
	ErrDelete   error

	Copies      []CopyCall
	Attachments []AttachCall
	AddedLabels []LabelCall
	Deleted     []string
	Created     []string // boards and lists, as "board:<name>" or "list:<board>/<name>"

	seq int
}

type CopyCall struct{ SourceCardID, ListID string }

type AttachCall struct{ CardID, URL, Name string }

type LabelCall struct{ CardID, LabelID string }

var _ integrations.TrelloAPI = (*Fake)(nil)

// Factory returns a factory that hands out f for every credential pair.
func (f *Fake) Factory() integrations.TrelloFactory {
	return func(string, string) integrations.TrelloAPI { return f }
}

func (f *Fake) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *Fake) Me(context.Context) (*models.Member, error) {
	if f.ErrMe != nil {
		return nil, f.ErrMe
	}
	return &models.Member{ID: "member-" + f.Username, Username: f.Username}, nil
}

func (f *Fake) BoardsWithLists(context.Context) ([]models.Board, error) {
	if f.ErrBoards != nil {
		return nil, f.ErrBoards
	}
	return f.Boards, nil
}

func (f *Fake) BoardLabels(_ context.Context, boardID string) ([]models.Label, error) {
	return f.Labels[boardID], nil
}

func (f *Fake) RegisterWebhook(_ context.Context, boardID, callbackURL, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ErrRegister[boardID]; err != nil {
		return "", err
	}
	id := f.nextID("wh")
	f.Webhooks = append(f.Webhooks, models.RegisteredWebhook{
		ID: id, IDModel: boardID, CallbackURL: callbackURL, Description: description, Active: true,
	})
	return id, nil
}

func (f *Fake) DeleteWebhook(_ context.Context, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrDelete != nil {
		return f.ErrDelete
	}
	f.Deleted = append(f.Deleted, webhookID)
	return nil
}

func (f *Fake) ListWebhooks(context.Context) ([]models.RegisteredWebhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.RegisteredWebhook(nil), f.Webhooks...), nil
}

func (f *Fake) CreateBoard(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, "board:"+name)
	return f.nextID("board"), nil
}

func (f *Fake) CreateList(_ context.Context, boardID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, "list:"+boardID+"/"+name)
	return f.nextID("list"), nil
}

func (f *Fake) CopyCard(_ context.Context, sourceCardID, listID string) (*models.CardRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrCopy != nil {
		return nil, f.ErrCopy
	}
	f.Copies = append(f.Copies, CopyCall{SourceCardID: sourceCardID, ListID: listID})
	id := f.nextID("copy")
	return &models.CardRef{ID: id, Name: "copy of " + sourceCardID, URL: "https://trello.com/c/" + id}, nil
}

func (f *Fake) AttachURL(_ context.Context, cardID, url, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrAttach != nil {
		return f.ErrAttach
	}
	f.Attachments = append(f.Attachments, AttachCall{CardID: cardID, URL: url, Name: name})
	return nil
}

func (f *Fake) AddLabel(_ context.Context, cardID, labelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ErrLabel != nil {
		return f.ErrLabel
	}
	f.AddedLabels = append(f.AddedLabels, LabelCall{CardID: cardID, LabelID: labelID})
	return nil
}
