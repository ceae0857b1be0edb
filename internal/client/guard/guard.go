// Package guard decides what the admin shell shows for a path: a waiting
// indicator, the page, or a redirect.
package guard

import (
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/client/eventbus"
	"github.com/atinyakov/teaadmin/internal/client/session"
	"github.com/atinyakov/teaadmin/internal/models"
)

// LoginPath is the login entry point.
const LoginPath = "/login"

// maxRedirects bounds a single navigation.
const maxRedirects = 4

// State of the guard.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "loading"
	}
}

// Action tells the shell what to do with a path.
type Action int

const (
	// ActionWait renders a neutral waiting indicator.
	ActionWait Action = iota
	// ActionRender renders the page at Decision.Path.
	ActionRender
	// ActionRedirect moves to Decision.Path. History was already replaced.
	ActionRedirect
	// ActionForbidden means the page exists but a permission is missing.
	ActionForbidden
)

func (a Action) String() string {
	switch a {
	case ActionRender:
		return "render"
	case ActionRedirect:
		return "redirect"
	case ActionForbidden:
		return "forbidden"
	default:
		return "wait"
	}
}

// Decision is the outcome of evaluating a path.
type Decision struct {
	State  State
	Action Action
	Path   string
	Route  Route
}

// Session is the part of the session manager the guard reads.
type Session interface {
	Loading() session.LoadState
	Token() string
	User() *models.User
	HasPermission(name string) bool
	Logout()
}

// Guard protects the shell routes.
type Guard struct {
	sess    Session
	events  session.Subscriber
	history *History
	log     *zap.Logger

	mu          sync.Mutex
	state       State
	unsubscribe func()
}

// New creates a Guard in StateLoading.
func New(sess Session, events session.Subscriber, history *History, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		sess:    sess,
		events:  events,
		history: history,
		log:     log,
		state:   StateLoading,
	}
}

// Mount starts listening for the unauthorized signal. Mounting twice keeps a
// single subscription.
func (g *Guard) Mount() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.unsubscribe != nil || g.events == nil {
		return
	}
	g.unsubscribe = g.events.Subscribe(g.onUnauthorized)
}

// Unmount stops listening for the unauthorized signal.
func (g *Guard) Unmount() {
	g.mu.Lock()
	unsub := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// State returns the state reached by the last evaluation or signal.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// History returns the navigation stack.
func (g *Guard) History() *History {
	return g.history
}

// Evaluate decides what to show for path. Redirects replace the current
// history entry.
func (g *Guard) Evaluate(path string) Decision {
	path = normalize(path)

	if g.sess.Loading() != session.LoadResolved {
		g.setState(StateLoading)
		return Decision{State: StateLoading, Action: ActionWait, Path: path}
	}

	if g.sess.Token() == "" {
		g.setState(StateUnauthenticated)
		if path == LoginPath {
			return Decision{State: StateUnauthenticated, Action: ActionRender, Path: path}
		}
		return g.redirect(StateUnauthenticated, LoginPath)
	}

	g.setState(StateAuthenticated)
	user := g.sess.User()

	if target, ok := RoleRoute(user, path); ok {
		return g.redirect(StateAuthenticated, target)
	}

	route, ok := Lookup(path)
	if !ok {
		return g.redirect(StateAuthenticated, DefaultRoute(user))
	}
	if !g.sess.HasPermission(route.Permission) {
		return Decision{State: StateAuthenticated, Action: ActionForbidden, Path: path, Route: route}
	}
	return Decision{State: StateAuthenticated, Action: ActionRender, Path: path, Route: route}
}

// Navigate pushes path and follows redirects until a page, a waiting
// indicator or a forbidden page is reached.
func (g *Guard) Navigate(path string) Decision {
	g.history.Push(normalize(path))
	return g.settle(path)
}

// Back returns to the previous history entry and evaluates it.
func (g *Guard) Back() (Decision, bool) {
	path, ok := g.history.Back()
	if !ok {
		return Decision{}, false
	}
	return g.settle(path), true
}

// Reload evaluates the current history entry again.
func (g *Guard) Reload() Decision {
	return g.settle(g.history.Current())
}

// Permitted reports whether the session user may open path.
func (g *Guard) Permitted(path string) bool {
	route, ok := Lookup(path)
	if !ok {
		return false
	}
	return g.sess.HasPermission(route.Permission)
}

func (g *Guard) settle(path string) Decision {
	d := g.Evaluate(path)
	for i := 0; i < maxRedirects && d.Action == ActionRedirect; i++ {
		d = g.Evaluate(d.Path)
	}
	return d
}

func (g *Guard) redirect(state State, target string) Decision {
	g.history.Replace(target)
	return Decision{State: state, Action: ActionRedirect, Path: target}
}

func (g *Guard) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// onUnauthorized signs the user out once per authenticated session. Further
// signals from the same burst of failing requests are ignored. A 401 that
// cleared a stored token ends a resolved session even when no path was
// evaluated since the login.
func (g *Guard) onUnauthorized(ev eventbus.Unauthorized) {
	ended := ev.HadToken && g.sess.Loading() == session.LoadResolved

	g.mu.Lock()
	if g.state != StateAuthenticated && !ended {
		g.mu.Unlock()
		return
	}
	g.state = StateUnauthenticated
	g.mu.Unlock()

	g.log.Info("session rejected by backend, signing out",
		zap.String("method", ev.Method),
		zap.String("path", ev.Path),
	)
	g.sess.Logout()
	g.history.Replace(LoginPath)
}
