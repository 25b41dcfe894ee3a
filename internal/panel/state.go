package panel

import (
	"strconv"

	"github.com/chxlky/trello-webhook-panel/internal/models"
)

// State is everything the panel shows. It only changes through Reduce.
type State struct {
	Authenticated bool
	Email         string
	TrelloLinked  bool
	Boards        []models.Board
	Selection     EventSelection
	Webhooks      []WebhookView
	Notices       []Notice
}

type Action interface{ isAction() }

type (
	SignedIn          struct{ Email string }
	SignedOut         struct{}
	TrelloLinked      struct{}
	BoardsLoaded      struct{ Boards []models.Board }
	SelectionChanged  struct{ Selection EventSelection }
	Registered        struct{ Outcome Outcome }
	WebhooksLoaded    struct{ Webhooks []WebhookView }
	WebhooksStopped   struct{}
	WebhooksRestarted struct{}
	NoticesCleared    struct{}
)

// Noted adds a notice produced elsewhere, such as by a deletion.
type Noted struct{ Notice Notice }

// Failed records an operation error as a notice.
type Failed struct {
	Title string
	Err   error
}

func (SignedIn) isAction()          {}
func (SignedOut) isAction()         {}
func (TrelloLinked) isAction()      {}
func (BoardsLoaded) isAction()      {}
func (SelectionChanged) isAction()  {}
func (Registered) isAction()        {}
func (WebhooksLoaded) isAction()    {}
func (WebhooksStopped) isAction()   {}
func (WebhooksRestarted) isAction() {}
func (Failed) isAction()            {}
func (Noted) isAction()             {}
func (NoticesCleared) isAction()    {}

// Reduce returns the state that follows s after a. It does not modify s.
func Reduce(s State, a Action) State {
	next := s
	next.Notices = append([]Notice(nil), s.Notices...)

	switch a := a.(type) {
	case SignedIn:
		// Confirming the same account keeps what was loaded; another account starts over.
		if !s.Authenticated || s.Email != a.Email {
			next = State{Authenticated: true, Email: a.Email, Notices: next.Notices}
		}
	case SignedOut:
		next = State{}
	case TrelloLinked:
		next.TrelloLinked = true
	case BoardsLoaded:
		next.Boards = a.Boards
		next.Notices = append(next.Notices, infoNotice("Connected to Trello!", boardCount(len(a.Boards))))
	case SelectionChanged:
		next.Selection = a.Selection
	case Registered:
		next.Notices = append(next.Notices, a.Outcome.Notices...)
		if a.Outcome.AnySuccess {
			next.Selection = EventSelection{}
		}
	case WebhooksLoaded:
		next.Webhooks = a.Webhooks
	case WebhooksStopped:
		var n Notice
		next.Webhooks, n = StopAll(s.Webhooks)
		next.Notices = append(next.Notices, n)
	case WebhooksRestarted:
		var n Notice
		next.Webhooks, n = RestartAll(s.Webhooks)
		next.Notices = append(next.Notices, n)
	case Failed:
		next.Notices = append(next.Notices, ErrorNotice(a.Title, a.Err))
	case Noted:
		next.Notices = append(next.Notices, a.Notice)
	case NoticesCleared:
		next.Notices = nil
	}
	return next
}

// Surfaces is the Gate applied to s.
func (s State) Surfaces() []Surface {
	return Gate(s.Authenticated, s.TrelloLinked)
}

func boardCount(n int) string {
	if n == 1 {
		return "Found 1 Trello board"
	}
	return "Found " + strconv.Itoa(n) + " Trello boards"
}
