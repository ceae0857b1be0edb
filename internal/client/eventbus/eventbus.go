// Package eventbus carries the process-wide "session became unauthorized"
// signal from the HTTP layer to whoever renders the session.
package eventbus

import (
	"slices"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// TopicUnauthorized is published once per authentication failure response.
const TopicUnauthorized = "session:unauthorized"

// Unauthorized describes the request that was rejected with HTTP 401.
type Unauthorized struct {
	Method string
	Path   string
	At     time.Time
	// HadToken is set on the one event that ended an active session: a
	// token was still stored when the 401 arrived. Later failures from the
	// same burst carry false.
	HadToken bool
}

// Notifier fans Unauthorized events out to subscribers.
//
// The bus serializes publishes: it holds its lock while the dispatcher runs,
// so handlers never see two events at once. Subscriptions live here because
// the bus unsubscribes by function pointer and cannot tell two
// subscriptions of the same method apart. Handlers must not publish.
type Notifier struct {
	bus evbus.Bus

	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(Unauthorized)
}

// New creates a Notifier with its own bus.
func New() *Notifier {
	n := &Notifier{
		bus:  evbus.New(),
		subs: make(map[uint64]func(Unauthorized)),
	}
	// Subscribe only fails for non-func handlers.
	_ = n.bus.Subscribe(TopicUnauthorized, n.dispatch)
	return n
}

// Publish delivers ev to every current subscriber before returning.
func (n *Notifier) Publish(ev Unauthorized) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	n.bus.Publish(TopicUnauthorized, ev)
}

// Subscribe registers fn and returns a func that removes exactly this
// subscription. Calling the returned func more than once is harmless.
func (n *Notifier) Subscribe(fn func(Unauthorized)) (unsubscribe func()) {
	n.mu.Lock()
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

func (n *Notifier) dispatch(ev Unauthorized) {
	n.mu.RLock()
	ids := make([]uint64, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	n.mu.RUnlock()

	// subscription order, so session state is cleared before the UI reacts
	slices.Sort(ids)
	for _, id := range ids {
		n.mu.RLock()
		fn, ok := n.subs[id]
		n.mu.RUnlock()
		if ok {
			fn(ev)
		}
	}
}
