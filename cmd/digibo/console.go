package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/digibo/backoffice/internal/authclient"
	"github.com/digibo/backoffice/internal/guard"
	"github.com/digibo/backoffice/internal/routes"
	"github.com/digibo/backoffice/internal/session"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the interactive backoffice console",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		sh, err := newShell(cfg.BaseURL, log, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		return sh.run(cmd.Context())
	},
}

// shell is the interactive console. It owns the client-side session
// machinery and acts as the navigator the guards redirect through.
type shell struct {
	router *routes.Router
	store  *session.Store
	guard  *guard.RouteGuard
	client *authclient.Client
	log    *zap.Logger

	in  *bufio.Scanner
	out io.Writer

	// location is the current path, without a leading slash.
	location string
}

func newShell(baseURL string, log *zap.Logger, in io.Reader, out io.Writer) (*shell, error) {
	sh := &shell{
		in:       bufio.NewScanner(in),
		out:      out,
		log:      log,
		location: routes.PathLogin,
	}
	sh.router = routes.NewRouter(routes.DefaultRegistry(), log)
	sh.store = session.New(sh.router, log)
	sh.guard = guard.NewRouteGuard(sh.store, sh, log)

	client, err := authclient.New(baseURL, sh.store, sh, log)
	if err != nil {
		return nil, err
	}
	sh.client = client
	return sh, nil
}

// NavigateTo moves the console to path. Guards and the response
// interceptor call this on denials; the go command calls it on success.
func (sh *shell) NavigateTo(path string) {
	sh.location = strings.Trim(path, "/")
	fmt.Fprintf(sh.out, "-> /%s\n", sh.location)
}

func (sh *shell) run(ctx context.Context) error {
	sh.client.Bootstrap(ctx)
	if sh.store.IsAuthenticated() {
		user := sh.store.CurrentUser()
		fmt.Fprintf(sh.out, "restored session for %s\n", user.Username)
		sh.NavigateTo(routes.PathRoot)
	}
	fmt.Fprintln(sh.out, `type "help" for the command list`)

	for {
		fmt.Fprintf(sh.out, "%s /%s> ", sh.promptUser(), sh.location)
		if !sh.in.Scan() {
			return sh.in.Err()
		}
		line := strings.TrimSpace(sh.in.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch cmd {
		case "login":
			sh.cmdLogin(ctx, arg)
		case "logout":
			sh.client.Logout(ctx)
		case "whoami":
			sh.cmdWhoami()
		case "nav":
			sh.cmdNav()
		case "go":
			sh.cmdGo(arg)
		case "refresh":
			sh.cmdRefresh(ctx)
		case "help":
			sh.cmdHelp()
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(sh.out, "unknown command %q\n", cmd)
		}
	}
}

func (sh *shell) promptUser() string {
	if user := sh.store.CurrentUser(); user != nil {
		return user.Username
	}
	return "anonymous"
}

func (sh *shell) cmdLogin(ctx context.Context, username string) {
	if username == "" {
		fmt.Fprintln(sh.out, "usage: login <username>")
		return
	}
	password, err := sh.readPassword()
	if err != nil {
		fmt.Fprintf(sh.out, "could not read password: %v\n", err)
		return
	}

	user, err := sh.client.Login(ctx, username, password)
	if err != nil {
		var authErr *authclient.AuthenticationError
		switch {
		case errors.As(err, &authErr):
			fmt.Fprintln(sh.out, authErr.Message)
		case errors.Is(err, authclient.ErrLoginSuperseded):
			fmt.Fprintln(sh.out, "login superseded by a newer attempt")
		default:
			fmt.Fprintf(sh.out, "login failed: %v\n", err)
		}
		return
	}

	fmt.Fprintf(sh.out, "logged in as %s (roles: %s)\n", user.Username, strings.Join(user.Roles, ", "))
	sh.NavigateTo(routes.PathRoot)
}

func (sh *shell) readPassword() (string, error) {
	fmt.Fprint(sh.out, "password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(sh.out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	// Not a terminal (piped input): read the next line instead.
	if !sh.in.Scan() {
		if err := sh.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sh.in.Text(), nil
}

func (sh *shell) cmdWhoami() {
	user := sh.store.CurrentUser()
	if user == nil {
		fmt.Fprintln(sh.out, "not logged in")
		return
	}
	fmt.Fprintf(sh.out, "user:        %s (%s)\n", user.Username, user.UserID)
	fmt.Fprintf(sh.out, "roles:       %s\n", strings.Join(user.Roles, ", "))
	fmt.Fprintf(sh.out, "permissions: %s\n", strings.Join(user.Permissions, ", "))
}

func (sh *shell) cmdNav() {
	items := sh.router.ActiveNavItems()
	if len(items) == 0 {
		fmt.Fprintln(sh.out, "no feature routes registered")
		return
	}
	for _, item := range items {
		fmt.Fprintf(sh.out, "  /%-12s %s\n", item.Path, item.Label)
	}
}

func (sh *shell) cmdGo(path string) {
	match, err := sh.router.Resolve(path)
	switch {
	case errors.Is(err, routes.ErrNoRoute):
		fmt.Fprintf(sh.out, "no route for %q\n", path)
		return
	case err != nil:
		fmt.Fprintf(sh.out, "navigation failed: %v\n", err)
		return
	}

	if match.Protected {
		decision := sh.guard.CanActivate(guard.Requirement{
			Roles:      match.Roles,
			RequireAll: match.RequireAll,
		})
		if !decision.Allowed() {
			// The guard already navigated to the login or unauthorized page.
			return
		}
	}
	sh.NavigateTo(match.Path)
}

func (sh *shell) cmdRefresh(ctx context.Context) {
	user, err := sh.client.Refresh(ctx)
	if err != nil {
		fmt.Fprintf(sh.out, "refresh failed: %v\n", err)
		return
	}
	fmt.Fprintf(sh.out, "session renewed for %s\n", user.Username)
}

func (sh *shell) cmdHelp() {
	fmt.Fprint(sh.out, `commands:
  login <username>   log in (prompts for the password)
  logout             log out and return to the login page
  whoami             show the current identity
  nav                list the registered feature routes
  go <path>          navigate to a path, subject to the route guard
  refresh            renew the server-held session
  quit               leave the console
`)
}
