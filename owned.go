package arccell

// box wraps a value stored in an Owned. A new box is allocated for every Set
// so that each one is stored in a slot exactly once.
type box[T any] struct {
	value T
}

// Owned is a handle to a shared, hot-swappable slot that exclusively owns its
// value. Unlike Cell, readers do not get their own count on the value: Get
// returns a Guard that counts as a handle to the Owned itself, which keeps
// the Owned from being reclaimed until the Guard is Released.
//
// As with Cell, copying an Owned does not create a handle, every handle must
// be Dropped exactly once, and the zero value is not usable.
type Owned[T any] struct {
	in *inner[box[T]]
}

// NewOwned returns an Owned holding value. The dispose function, if any, is
// called with the installed value when the last handle or Guard is released.
// Values displaced by Set are never passed to dispose.
func NewOwned[T any](value T, dispose func(T)) Owned[T] {
	var fn func(*box[T])
	if dispose != nil {
		fn = func(b *box[T]) { dispose(b.value) }
	}
	return Owned[T]{in: newInner(&box[T]{value: value}, fn)}
}

// Clone returns a new handle to the same Owned.
func (o Owned[T]) Clone() Owned[T] {
	o.in.clone()
	return o
}

// Drop releases the handle. If it was the last handle and no Guards are
// outstanding, the installed value is disposed.
func (o Owned[T]) Drop() { o.in.drop() }

// StrongCount returns a snapshot of the number of handles, including
// outstanding Guards. It must not be used for synchronization.
func (o Owned[T]) StrongCount() uint64 { return uint64(o.in.handles()) }

// Get returns a Guard for the currently installed value. The Guard must be
// Released exactly once.
func (o Owned[T]) Get() Guard[T] {
	return Guard[T]{in: o.in, b: o.in.acquire()}
}

// Set installs value and returns the value it replaced. The caller becomes
// responsible for disposing of the returned value, which Guards obtained
// before the Set may still be reading.
func (o Owned[T]) Set(value T) T {
	return o.in.swap(&box[T]{value: value}).value
}

// Guard gives read access to the value that was installed in an Owned when
// the Guard was obtained. It holds a handle on the Owned until it is
// Released, so the Owned cannot be reclaimed out from under it.
type Guard[T any] struct {
	in *inner[box[T]]
	b  *box[T]
}

// Value returns the guarded value.
func (g Guard[T]) Value() T { return g.b.value }

// Release invalidates the Guard and must be called exactly once. Releasing
// the last Guard after every handle has been Dropped disposes of the value
// installed at that time.
func (g Guard[T]) Release() { g.in.drop() }
