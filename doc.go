// package arccell provides a hot-swappable, reference counted shared cell.
//
// Consider the case where many goroutines need to read some configuration
// that is occasionally replaced, and the old configuration holds resources
// that must be closed once nobody is using it anymore. A mutex works, but
// every reader contends on it:
//
//	var (
//		mu   sync.RWMutex
//		conf *Config
//	)
//
//	func Current() *Config {
//		mu.RLock()
//		defer mu.RUnlock()
//		return conf
//	}
//
// and it still does not answer when the old configuration can be closed. The
// types in this package answer both in a lock-free way:
//
//	cell := arccell.New(arccell.NewRef(conf, closeConfig))
//
//	func Handle(cell arccell.Cell[*Config]) {
//		ref := cell.Get()
//		defer ref.Release()
//		use(ref.Value())
//	}
//
//	func Reload(cell arccell.Cell[*Config], next *Config) {
//		cell.Set(arccell.NewRef(next, closeConfig)).Release()
//	}
//
// Every handle to a cell is created by New or Clone and must be Dropped exactly
// once. When the last handle is Dropped the installed value is released.
//
// A Cell stores a *Ref, which carries its own count, so a reader may keep what
// it got from Get for as long as it likes. An Owned stores the value directly
// and hands out Guards instead, which are cheaper but count as handles on the
// Owned itself: the value installed when the last handle or Guard goes away is
// the one that gets disposed.
//
// Internally, the handle count and the current value share one atomic word.
// The value is named by a slot number rather than by its address, so that the
// garbage collector always sees the pointers and a single 64-bit compare and
// swap is enough to update both halves together.
package arccell
