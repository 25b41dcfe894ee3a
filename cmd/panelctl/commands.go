package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chxlky/trello-webhook-panel/internal/models"
	"github.com/chxlky/trello-webhook-panel/internal/panel"
	"github.com/spf13/pflag"
)

type app struct {
	backend *panel.HTTPBackend
	creds   *panel.CredentialStore
	panel   *panel.Panel
	out     io.Writer
	state   panel.State
}

var errFailed = errors.New("command failed")

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "status":
		return a.status(ctx)
	case "link":
		return a.link(ctx, args)
	case "boards":
		return a.boards(ctx)
	case "setup-board":
		return a.setupBoard(ctx)
	case "register":
		return a.register(ctx, args)
	case "webhooks":
		return a.webhooks(ctx)
	case "delete":
		return a.delete(ctx, args)
	case "stop-all":
		return a.setAll(ctx, panel.WebhooksStopped{})
	case "restart-all":
		return a.setAll(ctx, panel.WebhooksRestarted{})
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// fail records err as a notice and returns errFailed so the notice is the only message printed.
func (a *app) fail(title string, err error) error {
	a.state = panel.Reduce(a.state, panel.Failed{Title: title, Err: err})
	return errFailed
}

func (a *app) require(s panel.Surface) error {
	if !panel.Allows(a.state.Authenticated, a.state.TrelloLinked, s) {
		return a.fail("Not signed in", &panel.ValidationError{Reason: "run panelctl login first"})
	}
	return nil
}

// refreshSession asks the backend for the sign-in state, which also tells whether Trello is linked.
func (a *app) refreshSession(ctx context.Context) error {
	info, err := a.backend.Session(ctx)
	if err != nil {
		return a.fail("Could not load session", err)
	}
	if !info.Authenticated {
		a.state = panel.Reduce(a.state, panel.SignedOut{})
		return nil
	}
	a.state = panel.Reduce(a.state, panel.SignedIn{Email: info.Email})
	if info.TrelloLinked {
		a.state = panel.Reduce(a.state, panel.TrelloLinked{})
	}
	return nil
}

func (a *app) requireTrello(ctx context.Context) error {
	if err := a.refreshSession(ctx); err != nil {
		return err
	}
	if !a.state.Authenticated {
		return a.fail("Not signed in", &panel.ValidationError{Reason: "run panelctl login first"})
	}
	if !a.state.TrelloLinked {
		return a.fail("Trello not linked", &panel.ValidationError{Reason: "run panelctl link --key ... --token ..."})
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "email (servers without Google sign-in)")
	credential := fs.String("credential", "", "Google ID token")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := a.backend.Login(ctx, panel.LoginRequest{Credential: *credential, Email: *email})
	if err != nil {
		return a.fail("Login failed", err)
	}
	cookie := a.backend.SessionCookie()
	if cookie == "" {
		return a.fail("Login failed", &panel.ValidationError{
			Reason: "the server accepted the login but no session cookie was kept; a Secure cookie is dropped over plain http",
		})
	}
	if err := a.creds.Login(identity, cookie); err != nil {
		return a.fail("Could not save local state", err)
	}
	a.state = panel.Reduce(a.state, panel.SignedIn{Email: identity})
	fmt.Fprintf(a.out, "Signed in as %s\n", identity)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.backend.Logout(ctx); err != nil && panel.StatusCode(err) != 401 {
		a.state = panel.Reduce(a.state, panel.Failed{Title: "Logout failed", Err: err})
	}
	if err := a.creds.Logout(); err != nil {
		return a.fail("Could not clear local state", err)
	}
	a.state = panel.Reduce(a.state, panel.SignedOut{})
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) status(ctx context.Context) error {
	if err := a.refreshSession(ctx); err != nil {
		return err
	}
	if a.state.Authenticated {
		fmt.Fprintf(a.out, "Signed in as %s (Trello linked: %t)\n", a.state.Email, a.state.TrelloLinked)
	} else {
		fmt.Fprintln(a.out, "Not signed in")
	}

	surfaces := make([]string, 0)
	for _, s := range a.state.Surfaces() {
		surfaces = append(surfaces, string(s))
	}
	fmt.Fprintf(a.out, "Available: %s\n", strings.Join(surfaces, ", "))
	return nil
}

func (a *app) link(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("link", pflag.ContinueOnError)
	key := fs.String("key", "", "Trello API key")
	token := fs.String("token", "", "Trello token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.require(panel.SurfaceTrelloLink); err != nil {
		return err
	}

	if err := a.creds.SetTrello(*key, *token); err != nil {
		return a.fail("Missing credentials", err)
	}
	cred := a.creds.Current()
	if err := a.backend.LinkTrello(ctx, cred.APIKey, cred.Token); err != nil {
		return a.fail("Failed to save Trello credentials", err)
	}
	ok, err := a.backend.VerifyTrello(ctx)
	if err != nil || !ok {
		if err == nil {
			err = &panel.UpstreamError{Message: "Trello is not linked"}
		}
		return a.fail("Connection failed", err)
	}
	a.state = panel.Reduce(a.state, panel.TrelloLinked{})
	return a.boards(ctx)
}

func (a *app) loadBoards(ctx context.Context) ([]models.Board, error) {
	if err := a.requireTrello(ctx); err != nil {
		return nil, err
	}
	boards, err := a.backend.Boards(ctx)
	if err != nil {
		return nil, a.fail("Connection failed", err)
	}
	a.state = panel.Reduce(a.state, panel.BoardsLoaded{Boards: boards})
	return boards, nil
}

func (a *app) boards(ctx context.Context) error {
	boards, err := a.loadBoards(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLISTS")
	for _, b := range boards {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", b.ID, b.Name, strings.Join(b.Lists, ", "))
	}
	return tw.Flush()
}

func (a *app) setupBoard(ctx context.Context) error {
	if err := a.requireTrello(ctx); err != nil {
		return err
	}
	setup, err := a.backend.SetupBoard(ctx)
	if err != nil {
		return a.fail("Board setup failed", err)
	}
	fmt.Fprintf(a.out, "Board: %s (%s), default list: Enquiry In\n", setup.Name, setup.BoardID)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	event := fs.String("event", "", `event type: "Mentioned in a card" or "Added to a card"`)
	board := fs.String("board", panel.ScopeAll, `board id, or "all"`)
	list := fs.String("list", "", "list name")
	label := fs.String("label", "", "label name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	boards, err := a.loadBoards(ctx)
	if err != nil {
		return err
	}

	sel := panel.EventSelection{EventType: *event, Scope: *board, List: *list, Label: *label}
	a.state = panel.Reduce(a.state, panel.SelectionChanged{Selection: sel})

	outcome, err := a.panel.RegisterWebhook(ctx, a.state.Selection, boards, a.state.Email)
	if err != nil {
		return a.fail("Missing information", err)
	}
	a.state = panel.Reduce(a.state, panel.Registered{Outcome: outcome})
	if !outcome.AnySuccess {
		return errFailed
	}
	return nil
}

func (a *app) webhooks(ctx context.Context) error {
	if err := a.requireTrello(ctx); err != nil {
		return err
	}
	views, err := a.panel.Refresh(ctx)
	if err != nil {
		return a.fail("Failed to fetch webhooks", err)
	}
	a.state = panel.Reduce(a.state, panel.WebhooksLoaded{Webhooks: views})
	a.printWebhooks()
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	setting := fs.Uint("setting", 0, "webhook setting id")
	webhook := fs.String("webhook", "", "external webhook id (deletes all its settings)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*setting == 0) == (*webhook == "") {
		return a.fail("Missing information", &panel.ValidationError{Reason: "give exactly one of --setting or --webhook"})
	}
	if err := a.requireTrello(ctx); err != nil {
		return err
	}

	var (
		views  []panel.WebhookView
		notice panel.Notice
		err    error
	)
	if *setting != 0 {
		views, notice, err = a.panel.DeleteWebhookSetting(ctx, *setting)
	} else {
		views, notice, err = a.panel.DeleteWebhookByExternalID(ctx, *webhook)
	}
	if views != nil {
		a.state = panel.Reduce(a.state, panel.WebhooksLoaded{Webhooks: views})
	}
	if err != nil {
		return a.fail(notice.Title, err)
	}
	a.state = panel.Reduce(a.state, panel.Noted{Notice: notice})
	a.printWebhooks()
	return nil
}

// setAll changes the status shown for every webhook. The backend keeps no such status, so the
// change lasts only for this listing.
func (a *app) setAll(ctx context.Context, action panel.Action) error {
	if err := a.webhooksQuiet(ctx); err != nil {
		return err
	}
	a.state = panel.Reduce(a.state, action)
	a.printWebhooks()
	return nil
}

func (a *app) webhooksQuiet(ctx context.Context) error {
	if err := a.requireTrello(ctx); err != nil {
		return err
	}
	views, err := a.panel.Refresh(ctx)
	if err != nil {
		return a.fail("Failed to fetch webhooks", err)
	}
	a.state = panel.Reduce(a.state, panel.WebhooksLoaded{Webhooks: views})
	return nil
}

func (a *app) printWebhooks() {
	if len(a.state.Webhooks) == 0 {
		fmt.Fprintln(a.out, "No webhooks registered")
		return
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEBHOOK\tBOARD\tSETTING\tEVENT\tLIST\tLABEL\tSTATUS")
	for _, v := range a.state.Webhooks {
		for _, e := range v.Events {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n", v.ID, v.Board, e.ID, e.EventType, e.ListName, e.Label, e.Status)
		}
	}
	_ = tw.Flush()
}

func (a *app) printNotices() {
	for _, n := range a.state.Notices {
		var prefix string
		switch n.Level {
		case panel.LevelError:
			prefix = "✗ "
		case panel.LevelWarning:
			prefix = "! "
		default:
			prefix = "✓ "
		}
		fmt.Fprintln(a.out, prefix+n.String())
	}
}
