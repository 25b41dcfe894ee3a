package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chxlky/trello-webhook-panel/database"
	"github.com/chxlky/trello-webhook-panel/database/dbtest"
	"github.com/chxlky/trello-webhook-panel/integrations/trellotest"
	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const email = "ann@example.com"

func setup(t *testing.T) (*CardProcessor, *trellotest.Fake, *database.Store) {
	t.Helper()
	ctx := context.Background()

	store := dbtest.NewStore(t)
	_, err := store.EnsureUser(ctx, email)
	require.NoError(t, err)
	require.NoError(t, store.LinkTrello(ctx, email, "key", "tok"))
	require.NoError(t, store.SaveUserBoard(ctx, &models.UserBoard{
		UserEmail: email,
		BoardID:   "ib1",
		BoardName: "ann",
		Lists:     models.JSONMap{"Enquiry In": "enq1", "Todo": "todo1"},
	}))

	fake := &trellotest.Fake{
		Username: "ann",
		Labels:   map[string][]models.Label{"ib1": {{ID: "lbl1", Name: "Urgent"}}},
	}
	return NewCardProcessor(store, fake.Factory(), "Enquiry In"), fake, store
}

func commentTask(t *testing.T, text string) queue.Task {
	t.Helper()
	event := map[string]any{
		"webhook": map[string]any{"id": "w1", "idModel": "b1"},
		"action": map[string]any{
			"id":   "a1",
			"type": "commentCard",
			"data": map[string]any{
				"card": map[string]any{"id": "c1", "name": "Fix login", "shortLink": "abc"},
				"text": text,
			},
		},
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return queue.Task{
		ID:          "t1",
		TrelloEvent: raw,
		UserEmail:   email,
		BoardID:     "b1",
		EventType:   string(models.EventMentionedInCard),
	}
}

func TestProcessCopiesMentionedCard(t *testing.T) {
	p, fake, store := setup(t)
	task := commentTask(t, "hey @ann can you look")
	task.Label = "Urgent"

	out, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Copied)

	require.Len(t, fake.Copies, 1)
	assert.Equal(t, trellotest.CopyCall{SourceCardID: "c1", ListID: "enq1"}, fake.Copies[0])
	require.Len(t, fake.Attachments, 1)
	assert.Equal(t, "https://trello.com/c/abc", fake.Attachments[0].URL)
	assert.Equal(t, "Original Card: Fix login", fake.Attachments[0].Name)
	assert.Equal(t, []trellotest.LabelCall{{CardID: out.CardID, LabelID: "lbl1"}}, fake.AddedLabels)

	copied, err := store.HasCopied(context.Background(), email, "c1", models.EventMentionedInCard)
	require.NoError(t, err)
	assert.True(t, copied)
}

func TestProcessRedeliveryDoesNotCopyTwice(t *testing.T) {
	p, fake, _ := setup(t)
	task := commentTask(t, "@ann")

	_, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	out, err := p.Process(context.Background(), task)
	require.NoError(t, err)

	assert.False(t, out.Copied)
	assert.Len(t, fake.Copies, 1)
}

func TestProcessAddedMember(t *testing.T) {
	p, fake, _ := setup(t)
	event := `{"webhook":{"id":"w1"},"action":{"type":"addMemberToCard","data":{"card":{"id":"c9","name":"X"}},"member":{"username":"ann"}}}`
	task := queue.Task{TrelloEvent: json.RawMessage(event), UserEmail: email, EventType: string(models.EventAddedToCard), LabelID: "lbl7"}

	out, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Copied)
	assert.Equal(t, "lbl7", fake.AddedLabels[0].LabelID)
	// no short link on the event, so the card id is used
	assert.Equal(t, "https://trello.com/c/c9", fake.Attachments[0].URL)
}

func TestProcessSkips(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*queue.Task)
	}{
		{"not mentioned", func(task *queue.Task) {
			*task = commentTask(t, "hey @bob")
		}},
		{"action mismatch", func(task *queue.Task) {
			task.EventType = string(models.EventAddedToCard)
		}},
		{"unknown event type", func(task *queue.Task) {
			task.EventType = "Moved a card"
		}},
		{"missing email", func(task *queue.Task) {
			task.UserEmail = ""
		}},
		{"unknown user", func(task *queue.Task) {
			task.UserEmail = "nobody@example.com"
		}},
		{"bad payload", func(task *queue.Task) {
			task.TrelloEvent = json.RawMessage(`{"action":`)
		}},
		{"no card", func(task *queue.Task) {
			task.TrelloEvent = json.RawMessage(`{"webhook":{"id":"w1"},"action":{"type":"commentCard"}}`)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, fake, _ := setup(t)
			task := commentTask(t, "@ann")
			tt.mutate(&task)

			out, err := p.Process(context.Background(), task)
			require.NoError(t, err)
			assert.False(t, out.Copied)
			assert.NotEmpty(t, out.Reason)
			assert.Empty(t, fake.Copies)
		})
	}
}

func TestProcessWithoutEnquiryListSkips(t *testing.T) {
	_, fake, store := setup(t)
	p := NewCardProcessor(store, fake.Factory(), "Inbox")

	out, err := p.Process(context.Background(), commentTask(t, "@ann"))
	require.NoError(t, err)
	assert.False(t, out.Copied)
	assert.Empty(t, fake.Copies)
}

func TestProcessTrelloFailuresAreRetryable(t *testing.T) {
	p, fake, store := setup(t)
	fake.ErrCopy = errors.New("trello 500")

	_, err := p.Process(context.Background(), commentTask(t, "@ann"))
	require.Error(t, err)

	copied, err := store.HasCopied(context.Background(), email, "c1", models.EventMentionedInCard)
	require.NoError(t, err)
	assert.False(t, copied)
}

func TestProcessAttachAndLabelFailuresAreNotFatal(t *testing.T) {
	p, fake, _ := setup(t)
	fake.ErrAttach = errors.New("nope")
	fake.ErrLabel = errors.New("nope")
	task := commentTask(t, "@ann")
	task.LabelID = "lbl1"

	out, err := p.Process(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, out.Copied)
}
