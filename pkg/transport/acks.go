package transport

import (
	"errors"
	"sync"
)

// ErrDuplicateToken is returned when a token is registered twice.
var ErrDuplicateToken = errors.New("operation id already pending")

// AckTable maps outstanding operation ids to their pending completions.
// Each entry resolves at most once and is removed when it resolves or is
// forgotten, so the table only ever holds in-flight operations.
type AckTable struct {
	mu      sync.Mutex
	pending map[string]chan struct{}
	stray   int
}

// NewAckTable creates an empty table.
func NewAckTable() *AckTable {
	return &AckTable{pending: make(map[string]chan struct{})}
}

// Register adds a pending entry and returns a channel closed on resolution.
func (t *AckTable) Register(token string) (<-chan struct{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[token]; ok {
		return nil, ErrDuplicateToken
	}
	ch := make(chan struct{})
	t.pending[token] = ch
	return ch, nil
}

// Resolve completes the entry for token. Unknown or already resolved
// tokens are counted as stray and reported with false.
func (t *AckTable) Resolve(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.pending[token]
	if !ok {
		t.stray++
		return false
	}
	delete(t.pending, token)
	close(ch)
	return true
}

// Forget drops a pending entry without resolving it.
func (t *AckTable) Forget(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, token)
}

// Pending returns the number of outstanding entries.
func (t *AckTable) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Stray returns how many acknowledgements matched no pending entry.
func (t *AckTable) Stray() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stray
}
