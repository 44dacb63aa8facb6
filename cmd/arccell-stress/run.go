package main

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zeebo/pcg"

	"github.com/zeebo/arccell"
)

// report summarizes one round.
type report struct {
	made     int64
	disposed int64
	doubles  int64
	invalid  int64
	gets     int64
	sets     int64
}

// check returns an error describing anything wrong with the round.
func (r report) check() error {
	switch {
	case r.doubles > 0:
		return fmt.Errorf("%d values disposed more than once", r.doubles)
	case r.invalid > 0:
		return fmt.Errorf("%d reads returned a disposed or corrupt value", r.invalid)
	case r.made != r.disposed:
		return fmt.Errorf("made %d values but disposed %d", r.made, r.disposed)
	}
	return nil
}

// ledger hands out values and records their disposal.
type ledger struct {
	made     atomic.Int64
	disposed atomic.Int64
	doubles  atomic.Int64
	invalid  atomic.Int64
	gets     atomic.Int64
	sets     atomic.Int64
	seen     []atomic.Int32
}

func newLedger(n int) *ledger {
	return &ledger{seen: make([]atomic.Int32, n)}
}

func (l *ledger) value() int {
	return int(l.made.Add(1) - 1)
}

func (l *ledger) dispose(v int) {
	l.disposed.Add(1)
	if l.seen[v].Add(1) != 1 {
		l.doubles.Add(1)
	}
}

// read records a read of v, flagging it if v was already disposed of while the
// reader should still have been keeping it alive.
func (l *ledger) read(v int, alive bool) {
	l.gets.Add(1)
	if v < 0 || v >= len(l.seen) || (alive && l.seen[v].Load() != 0) {
		l.invalid.Add(1)
	}
}

func (l *ledger) report() report {
	return report{
		made:     l.made.Load(),
		disposed: l.disposed.Load(),
		doubles:  l.doubles.Load(),
		invalid:  l.invalid.Load(),
		gets:     l.gets.Load(),
		sets:     l.sets.Load(),
	}
}

type variant struct {
	name string
	run  func(cfg config, seed uint64) (report, error)
}

func variants(name string) []variant {
	all := []variant{
		{name: "shared", run: runShared},
		{name: "owned", run: runOwned},
	}
	if name == "both" {
		return all
	}
	for _, v := range all {
		if v.name == name {
			return []variant{v}
		}
	}
	return nil
}

// runShared exercises arccell.Cell.
func runShared(cfg config, seed uint64) (report, error) {
	l := newLedger(cfg.goroutines*cfg.ops + 1)
	cell := arccell.New(arccell.NewRef(l.value(), l.dispose))

	var wg sync.WaitGroup
	wg.Add(cfg.goroutines)
	for i := 0; i < cfg.goroutines; i++ {
		mine := []arccell.Cell[int]{cell.Clone()}
		go func(rng pcg.T) {
			defer wg.Done()
			for i := 0; i < cfg.ops; i++ {
				h := mine[rng.Uint32()%uint32(len(mine))]
				switch rng.Uint32() % 4 {
				case 0:
					mine = append(mine, h.Clone())
				case 1:
					if len(mine) > 1 {
						mine[len(mine)-1].Drop()
						mine = mine[:len(mine)-1]
					}
				case 2:
					ref := h.Get()
					l.read(ref.Value(), true)
					ref.Release()
				case 3:
					l.sets.Add(1)
					h.Set(arccell.NewRef(l.value(), l.dispose)).Release()
				}
			}
			for _, h := range mine {
				h.Drop()
			}
		}(pcg.New(seed + uint64(2*i+1)))
	}
	wg.Wait()

	if n := cell.StrongCount(); n != 1 {
		return l.report(), fmt.Errorf("expected 1 handle left, found %d", n)
	}
	cell.Drop()

	rep := l.report()
	return rep, rep.check()
}

// runOwned exercises arccell.Owned.
func runOwned(cfg config, seed uint64) (report, error) {
	l := newLedger(cfg.goroutines*cfg.ops + 1)
	o := arccell.NewOwned(l.value(), l.dispose)

	var wg sync.WaitGroup
	wg.Add(cfg.goroutines)
	for i := 0; i < cfg.goroutines; i++ {
		mine := []arccell.Owned[int]{o.Clone()}
		go func(rng pcg.T) {
			defer wg.Done()
			var guards []arccell.Guard[int]
			for i := 0; i < cfg.ops; i++ {
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
					if n := len(guards); n > 0 {
						// a guarded value may have been displaced and disposed
						// of by a setter, so only its range can be checked.
						l.read(guards[n-1].Value(), false)
						guards[n-1].Release()
						guards = guards[:n-1]
					}
				case 4:
					l.sets.Add(1)
					l.dispose(h.Set(l.value()))
				}
			}
			for _, g := range guards {
				g.Release()
			}
			for _, h := range mine {
				h.Drop()
			}
		}(pcg.New(seed + uint64(2*i+1)))
	}
	wg.Wait()

	if n := o.StrongCount(); n != 1 {
		return l.report(), fmt.Errorf("expected 1 handle left, found %d", n)
	}
	o.Drop()

	rep := l.report()
	return rep, rep.check()
}
