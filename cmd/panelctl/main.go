// Command panelctl drives the Trello webhook panel from a terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chxlky/trello-webhook-panel/internal/logging"
	"github.com/chxlky/trello-webhook-panel/internal/panel"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `Usage: panelctl [global flags] <command> [flags]

Commands:
  login        sign in with --email or a Google --credential
  logout       end the session and forget local state
  status       show sign-in state and available panel sections
  link         save Trello --key and --token
  boards       list Trello boards and their lists
  setup-board  create the integration board
  register     register a webhook: --event, --board (id or "all"), --list, --label
  webhooks     list registered webhooks grouped by webhook id
  delete       delete a webhook setting (--setting) or a whole webhook (--webhook)
  stop-all     mark every webhook stopped in the listing (no backend change)
  restart-all  mark every webhook active in the listing (no backend change)

Global flags:
`

func main() {
	logger := logging.Install("warn")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".panelctl.toml"
	}
	return filepath.Join(dir, "panelctl", "state.toml")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("panelctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	server := global.String("server", envOr("PANEL_SERVER", "http://localhost:5000"), "panel backend URL")
	statePath := global.String("state", envOr("PANEL_STATE", defaultStatePath()), "local state file (.toml)")
	callbackURL := global.String("callback-url", "", "Trello callback URL (default <server>/api/trello-webhook)")
	cookieName := global.String("cookie-name", "trello_panel_session", "backend session cookie name")
	timeout := global.Duration("timeout", 30*time.Second, "per-request timeout")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("no command given")
	}

	backend, err := panel.NewHTTPBackend(*server, *cookieName, *timeout)
	if err != nil {
		return err
	}
	creds, err := panel.NewCredentialStore(*statePath)
	if err != nil {
		return err
	}
	backend.SetSessionCookie(creds.State().SessionCookie)

	if *callbackURL == "" {
		*callbackURL = strings.TrimRight(*server, "/") + "/api/trello-webhook"
	}

	a := &app{
		backend: backend,
		creds:   creds,
		panel:   panel.New(backend, *callbackURL),
		out:     out,
	}
	if st := creds.State(); st.IsAuthenticated {
		a.state = panel.Reduce(a.state, panel.SignedIn{Email: st.UserEmail})
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	zap.L().Debug("Running command", zap.String("command", cmd), zap.String("server", *server))

	err = a.dispatch(ctx, cmd, cmdArgs)
	a.printNotices()
	return err
}
