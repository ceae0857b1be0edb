// Package main is the interactive tea admin shell. It keeps the admin
// session in a token file, routes every page through the session guard and
// signs the user out as soon as the backend rejects the token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/client/api"
	"github.com/atinyakov/teaadmin/internal/client/eventbus"
	"github.com/atinyakov/teaadmin/internal/client/guard"
	"github.com/atinyakov/teaadmin/internal/client/prompt"
	"github.com/atinyakov/teaadmin/internal/client/session"
	"github.com/atinyakov/teaadmin/internal/client/tokenstore"
	"github.com/atinyakov/teaadmin/internal/config"
	"github.com/atinyakov/teaadmin/internal/logger"
)

var (
	version   string
	buildDate string
)

// syncWriter serializes writes from the shell and from background
// refreshes.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// shell wires the session layer to a terminal.
type shell struct {
	out    io.Writer
	in     *prompt.Prompter
	client *api.Client
	sess   *session.Manager
	guard  *guard.Guard
	log    *zap.Logger
}

func newShell(opts *config.ClientOptions, in io.Reader, out io.Writer, log *zap.Logger) (*shell, func(), error) {
	store := tokenstore.New(opts.TokenFile)
	if err := store.Load(); err != nil {
		log.Warn("ignoring unreadable token file", zap.String("path", store.Path()), zap.Error(err))
	}

	bus := eventbus.New()
	apiOpts := []api.Option{api.WithTimeout(opts.Timeout), api.WithLogger(log)}
	if opts.CA != "" {
		apiOpts = append(apiOpts, api.WithRootCA(opts.CA))
	}
	client, err := api.New(opts.URL, store, bus, apiOpts...)
	if err != nil {
		return nil, nil, err
	}

	w := &syncWriter{w: out}
	sess := session.New(store, client, bus, log)
	g := guard.New(sess, bus, guard.NewHistory("/"), log)
	g.Mount()
	stopNotice := bus.Subscribe(func(ev eventbus.Unauthorized) {
		if !ev.HadToken {
			return
		}
		fmt.Fprintf(w, "\nSession expired (%s %s). Please log in again.\n", ev.Method, ev.Path)
	})

	sh := &shell{out: w, in: prompt.New(in, w), client: client, sess: sess, guard: g, log: log}
	cleanup := func() {
		stopNotice()
		g.Unmount()
		sess.Close()
	}
	return sh, cleanup, nil
}

// repl runs the interactive shell loop until exit or end of input.
func (s *shell) repl(ctx context.Context) {
	s.render(s.guard.Reload())
	for {
		if ctx.Err() != nil {
			return
		}
		line, ok := s.in.Line(s.promptLabel())
		if !ok {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if !s.dispatch(ctx, args) {
			fmt.Fprintln(s.out, "Bye")
			return
		}
	}
}

func (s *shell) promptLabel() string {
	if u := s.sess.User(); u != nil {
		return fmt.Sprintf("tea-admin(%s)%s> ", u.DisplayName(), s.guard.History().Current())
	}
	return "tea-admin> "
}

// dispatch runs one command. It returns false on exit.
func (s *shell) dispatch(ctx context.Context, args []string) bool {
	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, "Available commands: help, login, devlogin [openid], logout, whoami, perms, can <perm>, open <path>, back, where, routes, refresh, renew, exit")
	case "login":
		s.login(ctx)
	case "devlogin":
		s.devLogin(ctx, args[1:])
	case "logout":
		s.sess.Logout()
		fmt.Fprintln(s.out, "Logged out")
		s.render(s.guard.Reload())
	case "whoami":
		u := s.sess.User()
		if u == nil {
			fmt.Fprintln(s.out, "Not logged in")
			break
		}
		store := "-"
		if u.StoreID != nil {
			store = fmt.Sprint(*u.StoreID)
		}
		fmt.Fprintf(s.out, "id=%d name=%s role=%s store=%s\n", u.ID, u.DisplayName(), u.Role, store)
	case "perms":
		if s.sess.User().IsAdmin() {
			fmt.Fprintln(s.out, "admin: every permission")
			break
		}
		perms := s.sess.Permissions()
		if len(perms) == 0 {
			fmt.Fprintln(s.out, "No permissions")
			break
		}
		for _, p := range perms {
			fmt.Fprintln(s.out, p)
		}
	case "can":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		fmt.Fprintln(s.out, s.sess.HasPermission(name))
	case "open":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: open <path>")
			break
		}
		s.render(s.guard.Navigate(args[1]))
	case "back":
		d, ok := s.guard.Back()
		if !ok {
			fmt.Fprintln(s.out, "Nothing to go back to")
			break
		}
		s.render(d)
	case "where":
		fmt.Fprintf(s.out, "%s (%s)\n", s.guard.History().Current(), s.guard.State())
	case "routes":
		for _, r := range guard.Routes {
			if !strings.Contains(r.Path, ":") && s.guard.Permitted(r.Path) {
				fmt.Fprintf(s.out, "%-24s %s\n", r.Path, r.Title)
			}
		}
	case "refresh":
		s.sess.RefreshPermissions(ctx)
		fmt.Fprintf(s.out, "%d permissions\n", len(s.sess.Permissions()))
	case "renew":
		if err := s.sess.Renew(ctx); err != nil {
			fmt.Fprintln(s.out, "Renew failed:", err)
			break
		}
		fmt.Fprintln(s.out, "Token renewed")
	case "exit", "quit":
		return false
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}
	return true
}

func (s *shell) login(ctx context.Context) {
	captcha, err := s.client.Captcha(ctx)
	if err != nil {
		s.log.Debug("captcha unavailable", zap.Error(err))
	}
	req, err := s.in.Login(captcha)
	if err != nil {
		fmt.Fprintln(s.out, "Login cancelled:", err)
		return
	}
	if err := s.sess.Login(ctx, req); err != nil {
		fmt.Fprintln(s.out, "Login failed:", err)
		return
	}
	s.afterLogin()
}

func (s *shell) devLogin(ctx context.Context, args []string) {
	var openid string
	if len(args) > 0 {
		openid = args[0]
	} else {
		var err error
		if openid, err = s.in.DevLogin(); err != nil {
			fmt.Fprintln(s.out, "Login cancelled:", err)
			return
		}
	}
	if err := s.sess.DevLogin(ctx, openid); err != nil {
		fmt.Fprintln(s.out, "Login failed:", err)
		return
	}
	s.afterLogin()
}

func (s *shell) afterLogin() {
	u := s.sess.User()
	fmt.Fprintf(s.out, "Welcome, %s\n", u.DisplayName())
	s.render(s.guard.Navigate(guard.DefaultRoute(u)))
}

func (s *shell) render(d guard.Decision) {
	switch d.Action {
	case guard.ActionWait:
		fmt.Fprintln(s.out, "Loading...")
	case guard.ActionRender:
		title := d.Route.Title
		if d.Path == guard.LoginPath {
			title = "Login (type 'login' or 'devlogin')"
		}
		fmt.Fprintf(s.out, "[%s] %s\n", d.Path, title)
	case guard.ActionForbidden:
		fmt.Fprintf(s.out, "[%s] 403: requires %q\n", d.Path, d.Route.Permission)
	case guard.ActionRedirect:
		fmt.Fprintf(s.out, "-> %s\n", d.Path)
	}
}

func main() {
	opts, err := config.ParseClient(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if opts.Version {
		fmt.Printf("Tea Admin Shell\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	log := logger.New()
	if err := log.InitConsole(opts.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sh, cleanup, err := newShell(opts, os.Stdin, os.Stdout, log.Log)
	if err != nil {
		log.Log.Fatal("cannot start shell", zap.Error(err))
	}
	defer cleanup()

	sh.sess.Bootstrap(ctx)
	if opts.Refresh > 0 {
		sh.sess.StartPermissionRefresher(ctx, opts.Refresh)
	}
	sh.repl(ctx)
}
