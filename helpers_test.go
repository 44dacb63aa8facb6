package arccell

import (
	"sync/atomic"
	"testing"

	"github.com/zeebo/assert"
)

// payload is checkable for torn or garbage reads: check is always derived
// from id.
type payload struct {
	id    int
	check int
}

func (p payload) valid() bool { return p.check == ^p.id }

// tally counts constructions and disposals of payloads, and notices any
// payload that is disposed more than once.
type tally struct {
	made     atomic.Int64
	disposed atomic.Int64
	doubles  atomic.Int64
	seen     []atomic.Int32
}

func newTally(n int) *tally {
	return &tally{seen: make([]atomic.Int32, n)}
}

func (tl *tally) payload() payload {
	id := int(tl.made.Add(1) - 1)
	return payload{id: id, check: ^id}
}

func (tl *tally) dispose(p payload) {
	tl.disposed.Add(1)
	if tl.seen[p.id].Add(1) != 1 {
		tl.doubles.Add(1)
	}
}

func (tl *tally) ref() *Ref[payload] {
	return NewRef(tl.payload(), tl.dispose)
}

func (tl *tally) wasDisposed(p payload) bool {
	return tl.seen[p.id].Load() > 0
}

func (tl *tally) balanced(t *testing.T) {
	t.Helper()
	assert.Equal(t, tl.doubles.Load(), int64(0))
	assert.Equal(t, tl.disposed.Load(), tl.made.Load())
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		assert.That(t, recover() != nil)
	}()
	fn()
}
