// Package arena implements the per-plugin scoped bump allocator: guest
// memory backing it is acquired once from the guest's own allocator and
// then handed out via nested, LIFO-releasable scopes so a single call
// into the guest (get_info, process, save/load) can allocate freely
// without leaking guest memory across calls.
package arena

import (
	"context"
	"fmt"
	"sync"

	"github.com/justyntemme/wclaphost/pkg/guest"
)

// Arena is a fixed-size region of guest memory, bump-allocated from a
// cursor that Scoped.Release rewinds.
type Arena struct {
	Base   uint32
	Size   uint32
	cursor uint32
}

// Alloc hands out size bytes (8-byte aligned, matching the alignment CLAP
// structs with float64 fields need) from the arena, advancing the cursor.
// It never calls back into the guest: callers exhausting an Arena should
// size their ArenaPool requests generously, since mid-scope growth would
// invalidate pointers already handed to the guest.
func (a *Arena) Alloc(size uint32) (uint32, error) {
	aligned := (a.cursor + 7) &^ 7
	if uint64(aligned)+uint64(size) > uint64(a.Size) {
		return 0, fmt.Errorf("arena: out of space: need %d, have %d", size, a.Size-aligned)
	}
	off := a.Base + aligned
	a.cursor = aligned + size
	return off, nil
}

// Reset rewinds the arena's cursor to the start, reclaiming every
// allocation made since it was last reset.
func (a *Arena) Reset() {
	a.cursor = 0
}

// Scoped is a single nested allocation scope over an Arena. Scopes nest
// strictly LIFO: releasing an outer scope while an inner one is still
// open is a programming error the caller must avoid, exactly as the
// arena's single shared cursor assumes.
type Scoped struct {
	arena    *Arena
	savedPos uint32
}

// Scope opens a new nested scope, remembering the current cursor so
// Release can rewind back to it.
func (a *Arena) Scope() *Scoped {
	return &Scoped{arena: a, savedPos: a.cursor}
}

// Alloc allocates within the scope, which is just the underlying arena's
// shared cursor.
func (s *Scoped) Alloc(size uint32) (uint32, error) {
	return s.arena.Alloc(size)
}

// WriteString allocates a NUL-terminated copy of str inside the scope and
// writes it into guest memory, returning its offset.
func (s *Scoped) WriteString(ctx context.Context, g guest.Instance, str string) (uint32, error) {
	buf := make([]byte, len(str)+1)
	copy(buf, str)
	off, err := s.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, err
	}
	if err := g.Write(ctx, off, buf); err != nil {
		return 0, err
	}
	return off, nil
}

// Release rewinds the arena back to the position it had when the scope
// was opened. Every scope opened after this one must already be
// released.
func (s *Scoped) Release() {
	s.arena.cursor = s.savedPos
}

// Ownership is a move-only token representing exclusive use of an Arena
// checked out of a Pool. Ownership must be returned exactly once, via
// Ownership.Release; a zero-value Ownership owns nothing.
type Ownership struct {
	pool  *Pool
	arena *Arena
}

// Arena returns the underlying Arena this ownership token covers.
func (o Ownership) Arena() *Arena { return o.arena }

// Release returns the arena to its pool. Calling Release on a zero-value
// Ownership is a no-op.
func (o Ownership) Release() {
	if o.pool == nil {
		return
	}
	o.pool.put(o.arena)
}

// Pool manages a set of same-sized Arenas backed by guest memory,
// recycling them across plugin instantiations instead of asking the
// guest's allocator for fresh memory every time.
type Pool struct {
	mu     sync.Mutex
	unused []*Arena
	size   uint32
}

// NewPool creates a pool that hands out arenas of the given size.
func NewPool(size uint32) *Pool {
	return &Pool{size: size}
}

// GetOrCreate returns an Ownership over a free arena, allocating a new
// one from the guest (via guest.Instance.Malloc) if none are unused.
func (p *Pool) GetOrCreate(ctx context.Context, g guest.Instance) (Ownership, error) {
	p.mu.Lock()
	if n := len(p.unused); n > 0 {
		a := p.unused[n-1]
		p.unused = p.unused[:n-1]
		p.mu.Unlock()
		a.Reset()
		return Ownership{pool: p, arena: a}, nil
	}
	p.mu.Unlock()

	base, err := g.Malloc(ctx, p.size)
	if err != nil {
		return Ownership{}, fmt.Errorf("arena: allocate pool arena: %w", err)
	}
	return Ownership{pool: p, arena: &Arena{Base: base, Size: p.size}}, nil
}

func (p *Pool) put(a *Arena) {
	a.Reset()
	p.mu.Lock()
	p.unused = append(p.unused, a)
	p.mu.Unlock()
}
