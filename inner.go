package arccell

import (
	"sync/atomic"
	"unsafe"
)

const (
	errReclaimed = "arccell: use of a reclaimed cell"
	errUnderflow = "arccell: Drop of a cell with no handles"
	errOverflow  = "arccell: too many handles"
)

// inner is the storage shared by every handle to a cell. All of the handle
// and value bookkeeping goes through the single state word so that a swap
// can never be observed separately from a change in the handle count.
type inner[E any] struct {
	state   atomic.Uint64
	table   slotTable
	dispose func(*E)
}

// newInner returns an inner with one handle and e installed. The dispose
// function is called with the installed entry when the last handle drops.
func newInner[E any](e *E, dispose func(*E)) *inner[E] {
	in := &inner[E]{dispose: dispose}
	in.table.init()
	s := in.table.alloc()
	in.table.store(s, unsafe.Pointer(e))
	in.state.Store(pack(1, s))
	return in
}

// entry returns what is stored in the slot.
func (in *inner[E]) entry(s uint32) *E {
	return (*E)(in.table.load(s))
}

// handles returns a snapshot of the handle count.
func (in *inner[E]) handles() uint32 {
	return handlesOf(in.state.Load())
}

// current returns the state word, the slot it names, and the entry read from
// that slot. The entry may be nil if the slot was displaced and freed between
// the two reads.
func (in *inner[E]) current() (uint64, uint32, *E) {
	w := in.state.Load()
	s := slotOf(w)
	if s == 0 {
		panic(errReclaimed)
	}
	return w, s, in.entry(s)
}

// clone adds a handle. A full count is refused before the word is touched, so
// the cell stays usable after the panic.
func (in *inner[E]) clone() {
	for {
		w := in.state.Load()
		if handlesOf(w) == ^uint32(0) {
			panic(errOverflow)
		}
		if in.state.CompareAndSwap(w, w+oneHandle) {
			return
		}
	}
}

// acquire adds a handle and returns the entry that was installed at the
// moment it was added. The entry is verified to still be in its slot after
// the increment, which rules out the slot having been freed and reused in
// between since every entry is only ever stored once.
func (in *inner[E]) acquire() *E {
	for {
		w, s, e := in.current()
		if e == nil {
			continue
		}
		if handlesOf(w) == ^uint32(0) {
			panic(errOverflow)
		}
		if !in.state.CompareAndSwap(w, w+oneHandle) {
			continue
		}
		if in.entry(s) == e {
			return e
		}

		// the handle we hold keeps this from reaching zero.
		in.drop()
	}
}

// drop removes a handle. The drop that removes the last handle also clears
// the slot in the same update and reclaims the cell.
func (in *inner[E]) drop() {
	for {
		w := in.state.Load()
		h := handlesOf(w)
		if h == 0 {
			panic(errUnderflow)
		}

		next := w - oneHandle
		if h == 1 {
			next = 0
		}
		if in.state.CompareAndSwap(w, next) {
			if h == 1 {
				in.reclaim(slotOf(w))
			}
			return
		}
	}
}

// reclaim disposes of the last installed entry and gives the slot pages
// back. It runs exactly once, after the state word has been zeroed.
func (in *inner[E]) reclaim(s uint32) {
	e := in.entry(s)
	in.table.release()
	if e != nil && in.dispose != nil {
		in.dispose(e)
	}
}

// swap installs e and returns the entry it displaced. Ownership of the
// returned entry passes to the caller.
func (in *inner[E]) swap(e *E) *E {
	if slotOf(in.state.Load()) == 0 {
		panic(errReclaimed)
	}

	s := in.table.alloc()
	in.table.store(s, unsafe.Pointer(e))
	for {
		w := in.state.Load()
		old := slotOf(w)
		if old == 0 {
			panic(errReclaimed)
		}
		if in.state.CompareAndSwap(w, withSlot(w, s)) {
			prev := in.entry(old)
			in.table.free(old)
			return prev
		}
	}
}
