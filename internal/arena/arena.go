// Package arena implements the linear float32 memory shared by tensors and the
// compute backend.
//
// All tensor data lives in one contiguous buffer. Tensors address it through
// element offsets ("pointers") rather than Go slices, so the buffer can grow
// without invalidating any live tensor or view.
//
// Regions are handed out by a first-fit allocator over a sorted, coalescing free
// list. Every region carries a generation id; a Block whose region was freed (or
// reused by a later allocation) is reported invalid by Valid.
package arena

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Alignment is the element granularity of every allocated region.
const Alignment = 8

// DefaultCapacity is the initial buffer size used when New is given a non-positive capacity.
const DefaultCapacity = 1 << 12

// ErrInvalidBlock is returned when freeing a block that is not live.
var ErrInvalidBlock = errors.New("arena: invalid or already freed block")

// Block is a handle to an allocated region.
type Block struct {
	Offset int    // first element of the region
	Len    int    // usable length in elements
	id     uint64 // generation id, 0 for the zero Block
}

// ID returns the generation id of the block.
func (b Block) ID() uint64 {
	return b.id
}

// span is a free or live region in element units.
type span struct {
	offset int
	size   int
}

type entry struct {
	size int // aligned size
	id   uint64
}

// Stats describes arena utilization.
type Stats struct {
	Capacity int // buffer length in elements
	InUse    int // elements held by live blocks (aligned)
	Blocks   int // number of live blocks
}

// Arena is a growable linear buffer with explicit Alloc/Free.
// It is not safe for concurrent use.
type Arena struct {
	mem    []float32
	free   []span // sorted by offset, never adjacent
	live   map[int]entry
	nextID uint64
	inUse  int
	logger *slog.Logger
}

// New creates an arena with the given initial capacity in elements.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = align(capacity)
	return &Arena{
		mem:    make([]float32, capacity),
		free:   []span{{offset: 0, size: capacity}},
		live:   make(map[int]entry),
		logger: slog.Default(),
	}
}

// SetLogger replaces the logger used for growth events.
func (a *Arena) SetLogger(l *slog.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Mem returns the whole backing buffer.
//
// The returned slice is only valid until the next Alloc, which may grow the buffer.
func (a *Arena) Mem() []float32 {
	return a.mem
}

// Slice returns the usable elements of a live block.
func (a *Arena) Slice(b Block) []float32 {
	return a.mem[b.Offset : b.Offset+b.Len]
}

// Alloc reserves n zeroed elements.
func (a *Arena) Alloc(n int) (Block, error) {
	if n < 0 {
		return Block{}, fmt.Errorf("arena: negative allocation size %d", n)
	}
	size := align(max(n, 1))

	idx := a.firstFit(size)
	if idx < 0 {
		a.grow(size)
		idx = a.firstFit(size)
	}

	s := a.free[idx]
	if s.size == size {
		a.free = append(a.free[:idx], a.free[idx+1:]...)
	} else {
		a.free[idx] = span{offset: s.offset + size, size: s.size - size}
	}

	a.nextID++
	a.live[s.offset] = entry{size: size, id: a.nextID}
	a.inUse += size
	clear(a.mem[s.offset : s.offset+size])

	return Block{Offset: s.offset, Len: n, id: a.nextID}, nil
}

// Free releases a live block. Views into the region become dangling.
func (a *Arena) Free(b Block) error {
	e, ok := a.live[b.Offset]
	if !ok || e.id != b.id || b.id == 0 {
		return fmt.Errorf("%w: offset %d", ErrInvalidBlock, b.Offset)
	}
	delete(a.live, b.Offset)
	a.inUse -= e.size
	a.release(span{offset: b.Offset, size: e.size})
	return nil
}

// Valid reports whether b still refers to a live region.
func (a *Arena) Valid(b Block) bool {
	e, ok := a.live[b.Offset]
	return ok && e.id == b.id && b.id != 0
}

// Stats returns current utilization.
func (a *Arena) Stats() Stats {
	return Stats{
		Capacity: len(a.mem),
		InUse:    a.inUse,
		Blocks:   len(a.live),
	}
}

func (a *Arena) firstFit(size int) int {
	for i, s := range a.free {
		if s.size >= size {
			return i
		}
	}
	return -1
}

// grow extends the buffer so that a region of size elements fits at its end.
func (a *Arena) grow(size int) {
	oldCap := len(a.mem)
	newCap := max(oldCap*2, oldCap+size)

	grown := make([]float32, newCap)
	copy(grown, a.mem)
	a.mem = grown

	a.logger.Debug("arena grown", "from", oldCap, "to", newCap)
	a.release(span{offset: oldCap, size: newCap - oldCap})
}

// release inserts s into the free list, merging with adjacent spans.
func (a *Arena) release(s span) {
	i := sort.Search(len(a.free), func(i int) bool {
		return a.free[i].offset > s.offset
	})

	// Merge with the following span.
	if i < len(a.free) && s.offset+s.size == a.free[i].offset {
		s.size += a.free[i].size
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
	// Merge with the preceding span.
	if i > 0 && a.free[i-1].offset+a.free[i-1].size == s.offset {
		a.free[i-1].size += s.size
		return
	}

	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s
}

func align(n int) int {
	return (n + Alignment - 1) / Alignment * Alignment
}
