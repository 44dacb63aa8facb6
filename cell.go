package arccell

// Cell is a handle to a shared, hot-swappable slot holding a *Ref[T]. Any
// number of handles may refer to the same slot, and any of them may Get or
// Set it concurrently. The installed Ref is released once the last handle is
// Dropped.
//
// A Cell is a small value, but copying it does not create a new handle: use
// Clone for that. Every handle must be Dropped exactly once, and must not be
// used after it has been Dropped. The zero value is not usable.
type Cell[T any] struct {
	in *inner[Ref[T]]
}

// New returns a Cell holding r. The caller's count on r is transferred to the
// Cell.
func New[T any](r *Ref[T]) Cell[T] {
	if r == nil {
		panic("arccell: New with a nil Ref")
	}
	return Cell[T]{in: newInner(r, (*Ref[T]).Release)}
}

// Clone returns a new handle to the same Cell.
func (c Cell[T]) Clone() Cell[T] {
	c.in.clone()
	return c
}

// Drop releases the handle. Dropping the last handle releases the installed
// Ref.
func (c Cell[T]) Drop() { c.in.drop() }

// StrongCount returns a snapshot of the number of handles. It is stale as
// soon as it returns and must not be used for synchronization.
func (c Cell[T]) StrongCount() uint64 { return uint64(c.in.handles()) }

// Get returns the currently installed Ref with a count owned by the caller,
// who must Release it. The Ref stays valid across any later Set, and even
// after every handle to the Cell has been Dropped.
func (c Cell[T]) Get() *Ref[T] {
	for {
		_, s, r := c.in.current()
		if r == nil || !r.tryRetain() {
			continue
		}

		// make sure r was still installed after we took our count on it. if
		// it was displaced in the meantime it may already be disposed of by
		// the caller of Set, so try again with whatever is current.
		if slotOf(c.in.state.Load()) == s && c.in.entry(s) == r {
			return r
		}
		r.Release()
	}
}

// Set installs r and returns the Ref it replaced. The caller's count on r is
// transferred to the Cell, and the Cell's count on the returned Ref is
// transferred to the caller, who must Release it.
func (c Cell[T]) Set(r *Ref[T]) *Ref[T] {
	if r == nil {
		panic("arccell: Set with a nil Ref")
	}
	return c.in.swap(r)
}
