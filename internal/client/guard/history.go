package guard

import "sync"

// History is the navigation stack of the shell. Redirects use Replace so
// that Back never returns to a guarded route the user was bounced from.
type History struct {
	mu      sync.Mutex
	entries []string
}

// NewHistory returns a History positioned at start.
func NewHistory(start string) *History {
	return &History{entries: []string{start}}
}

// Push appends path as the new current entry.
func (h *History) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, path)
}

// Replace overwrites the current entry.
func (h *History) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		h.entries = append(h.entries, path)
		return
	}
	h.entries[len(h.entries)-1] = path
}

// Back drops the current entry and returns the previous one. It reports
// false when there is nothing to go back to.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) < 2 {
		return h.current(), false
	}
	h.entries = h.entries[:len(h.entries)-1]
	return h.current(), true
}

// Current returns the current entry.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current()
}

// Entries returns a copy of the stack, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

func (h *History) current() string {
	if len(h.entries) == 0 {
		return ""
	}
	return h.entries[len(h.entries)-1]
}
