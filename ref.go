package arccell

import (
	"strconv"
	"sync/atomic"
)

// Ref is an atomically reference counted value. It is what a Cell stores, and
// what Cell.Get hands out, so that readers can keep a value alive for as long
// as they like regardless of what happens to the Cell afterwards.
//
// A Ref starts with a count of one, owned by whoever called NewRef. Every
// Retain must be balanced by a Release. The dispose function, if any, is
// called exactly once when the count reaches zero.
type Ref[T any] struct {
	refs    atomic.Int64
	value   T
	dispose func(T)
}

// NewRef returns a Ref holding value with a count of one.
func NewRef[T any](value T, dispose func(T)) *Ref[T] {
	r := &Ref[T]{value: value, dispose: dispose}
	r.refs.Store(1)
	return r
}

// Value returns the value held by the Ref. It must only be called while the
// caller owns a count on the Ref.
func (r *Ref[T]) Value() T { return r.value }

// Count returns a snapshot of the reference count. It is only advisory.
func (r *Ref[T]) Count() int64 { return r.refs.Load() }

// Retain increments the reference count and returns the Ref. The caller must
// already own a count on the Ref.
func (r *Ref[T]) Retain() *Ref[T] {
	if count := r.refs.Add(1); count < 2 {
		panic("arccell: Retain of a released Ref: " + strconv.FormatInt(count, 10))
	}
	return r
}

// tryRetain increments the reference count unless it has already reached
// zero. It is used when the caller does not own a count yet.
func (r *Ref[T]) tryRetain() bool {
	for {
		count := r.refs.Load()
		if count <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(count, count+1) {
			return true
		}
	}
}

// Release decrements the reference count, disposing of the value when it
// reaches zero.
func (r *Ref[T]) Release() {
	count := r.refs.Add(-1)
	if count == 0 {
		if r.dispose != nil {
			r.dispose(r.value)
		}
	} else if count < 0 {
		panic("arccell: Release of a released Ref: " + strconv.FormatInt(count, 10))
	}
}
