package recommend

import (
	"context"
	"sync"
)

// Guard tracks the latest computation per view key. Starting a computation cancels the
// previous one for the same key, and only the latest may publish its result.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*guardEntry
}

type guardEntry struct {
	generation uint64
	cancel     context.CancelFunc
	refs       int
}

// Token identifies one guarded computation.
type Token struct {
	guard      *Guard
	key        string
	generation uint64
	cancel     context.CancelFunc
}

func NewGuard() *Guard {
	return &Guard{entries: make(map[string]*guardEntry)}
}

// Begin starts a computation for key and returns its token and a context that is
// cancelled as soon as a newer computation for key begins. Callers must call Done.
func (g *Guard) Begin(ctx context.Context, key string) (*Token, context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok {
		entry = &guardEntry{}
		g.entries[key] = entry
	}
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.generation++
	entry.cancel = cancel
	entry.refs++

	return &Token{guard: g, key: key, generation: entry.generation, cancel: cancel}, ctx
}

// Live reports whether no newer computation for the same key has begun.
func (t *Token) Live() bool {
	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()

	entry, ok := t.guard.entries[t.key]
	return ok && entry.generation == t.generation
}

// Done releases the token. Bookkeeping for a key is dropped once all its tokens are done.
func (t *Token) Done() {
	t.cancel()

	t.guard.mu.Lock()
	defer t.guard.mu.Unlock()

	entry, ok := t.guard.entries[t.key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(t.guard.entries, t.key)
	}
}

// Pending returns the number of keys with running computations.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
