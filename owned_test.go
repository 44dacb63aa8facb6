package arccell

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func TestOwned(t *testing.T) {
	var disposed []string
	o := NewOwned("init", func(v string) { disposed = append(disposed, v) })

	assert.Equal(t, o.Set("a"), "init")
	assert.Equal(t, o.Set("b"), "a")
	assert.Equal(t, o.Set("c"), "b")
	assert.Equal(t, len(disposed), 0)

	g := o.Get()
	assert.Equal(t, g.Value(), "c")
	assert.Equal(t, o.StrongCount(), uint64(2))
	g.Release()
	assert.Equal(t, o.StrongCount(), uint64(1))

	o.Drop()
	assert.Equal(t, len(disposed), 1)
	assert.Equal(t, disposed[0], "c")
}

func TestOwnedGuardOutlivesSet(t *testing.T) {
	o := NewOwned(&payload{id: 1, check: ^1}, nil)
	other := o.Clone()
	g := o.Get()

	done := make(chan *payload)
	go func() {
		done <- other.Set(&payload{id: 2, check: ^2})
		other.Drop()
	}()
	prev := <-done

	assert.Equal(t, prev, g.Value())
	assert.Equal(t, g.Value().id, 1)
	assert.That(t, g.Value().valid())

	g2 := o.Get()
	assert.Equal(t, g2.Value().id, 2)
	g2.Release()

	g.Release()
	o.Drop()
}

func TestOwnedGuardDefersReclaim(t *testing.T) {
	disposed := 0
	o := NewOwned(7, func(v int) {
		assert.Equal(t, v, 8)
		disposed++
	})

	g := o.Get()
	other := o.Clone()

	// the guard holds the counter above zero once every handle is gone.
	o.Drop()
	other.Set(8)
	other.Drop()
	assert.Equal(t, disposed, 0)
	assert.Equal(t, g.Value(), 7)

	// releasing the guard reclaims whatever is installed at that point.
	g.Release()
	assert.Equal(t, disposed, 1)
	assertPanics(t, g.Release)
}

func TestOwnedMisuse(t *testing.T) {
	o := NewOwned(0, nil)
	o.Drop()

	assertPanics(t, o.Drop)
	assertPanics(t, func() { o.Get() })
	assertPanics(t, func() { o.Set(1) })
}

func TestOwnedLastDropReclaims(t *testing.T) {
	const k = 64

	for round := 0; round < 100; round++ {
		var disposed atomic.Int64
		o := NewOwned(round, func(int) { disposed.Add(1) })

		all := []Owned[int]{o}
		for i := 0; i < k; i++ {
			all = append(all, o.Clone())
		}
		assert.Equal(t, o.StrongCount(), uint64(k+1))

		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(len(all))
		for _, h := range all[1:] {
			go func(h Owned[int]) {
				defer wg.Done()
				<-start
				h.Drop()
			}(h)
		}
		go func() {
			defer wg.Done()
			<-start
			g := o.Get()
			if g.Value() != round {
				disposed.Add(100)
			}
			g.Release()
		}()
		close(start)
		wg.Wait()

		assert.Equal(t, disposed.Load(), int64(0))
		o.Drop()
		assert.Equal(t, disposed.Load(), int64(1))
	}
}

func TestOwnedSlotReuse(t *testing.T) {
	const sets = 2000

	np := runtime.GOMAXPROCS(-1)
	setters := 2 * np
	o := NewOwned(&payload{id: 0, check: ^0}, nil)

	var (
		wg      sync.WaitGroup
		bad     atomic.Int64
		running atomic.Int64
		next    atomic.Int64
	)

	running.Store(int64(setters))
	wg.Add(setters + np)
	for i := 0; i < setters; i++ {
		h := o.Clone()
		go func() {
			defer wg.Done()
			defer h.Drop()
			defer running.Add(-1)
			for i := 0; i < sets; i++ {
				id := int(next.Add(1))
				h.Set(&payload{id: id, check: ^id})
			}
		}()
	}
	for i := 0; i < np; i++ {
		h := o.Clone()
		go func() {
			defer wg.Done()
			defer h.Drop()
			for running.Load() > 0 {
				g := h.Get()
				first := g.Value()
				if first == nil || !first.valid() {
					bad.Add(1)
				}
				// slots are freed and reused under us, but the guard keeps
				// reporting the entry it was given.
				for j := 0; j < 4; j++ {
					if g.Value() != first {
						bad.Add(1)
					}
				}
				g.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, bad.Load(), int64(0))
	assert.Equal(t, o.StrongCount(), uint64(1))
	assert.That(t, atomic.LoadUint32(&o.in.table.high) <= uint32(setters+1))
	o.Drop()
}

func TestOwnedRandomized(t *testing.T) {
	const ops = 20000

	np := runtime.GOMAXPROCS(-1)
	tl := newTally(np*ops + 1)
	o := NewOwned(tl.payload(), tl.dispose)

	var (
		wg  sync.WaitGroup
		bad atomic.Int64
	)

	wg.Add(np)
	for i := 0; i < np; i++ {
		mine := []Owned[payload]{o.Clone()}
		go func(seed uint64) {
			defer wg.Done()
			rng := pcg.New(seed)
			var guards []Guard[payload]

			for i := 0; i < ops; i++ {
				h := mine[rng.Uint32()%uint32(len(mine))]
				switch rng.Uint32() % 5 {
				case 0:
					mine = append(mine, h.Clone())
				case 1:
					if len(mine) > 1 {
						mine[len(mine)-1].Drop()
						mine = mine[:len(mine)-1]
					}
				case 2:
					guards = append(guards, h.Get())
				case 3:
					if len(guards) > 0 {
						g := guards[len(guards)-1]
						if !g.Value().valid() {
							bad.Add(1)
						}
						g.Release()
						guards = guards[:len(guards)-1]
					}
				case 4:
					// displaced values are ours to dispose of.
					tl.dispose(h.Set(tl.payload()))
				}
			}

			for _, g := range guards {
				g.Release()
			}
			for _, h := range mine {
				h.Drop()
			}
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, bad.Load(), int64(0))
	assert.Equal(t, o.StrongCount(), uint64(1))
	o.Drop()
	tl.balanced(t)
}

func BenchmarkOwned(b *testing.B) {
	b.Run("Get", func(b *testing.B) {
		o := NewOwned(0, nil)
		defer o.Drop()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			o.Get().Release()
		}
	})

	b.Run("Set", func(b *testing.B) {
		o := NewOwned(0, nil)
		defer o.Drop()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			o.Set(i)
		}
	})

	b.Run("Parallel", func(b *testing.B) {
		b.Run("Get", func(b *testing.B) {
			o := NewOwned(0, nil)
			defer o.Drop()
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					o.Get().Release()
				}
			})
		})
	})
}
