package arccell

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	pageBits = 3
	pageSize = 1 << pageBits // number of slots per page
	maxSlots = 1 << 24       // bound on slots a single cell can have live at once
)

// slotPage holds a run of slots and the free list links for them. Pages are
// not generic so that every cell can share the same pool of them.
type slotPage struct {
	ptrs [pageSize]unsafe.Pointer // entry stored in the slot
	next [pageSize]uint32         // free list link when the slot is free
}

// pagePool is a pool for the slotPages.
var pagePool = sync.Pool{New: func() interface{} { return new(slotPage) }}

// newSlotPage returns an empty slotPage. It may be reused from a pool.
func newSlotPage() *slotPage {
	page, _ := pagePool.Get().(*slotPage)
	return page
}

// Release clears the slotPage and returns it to the pool for newSlotPage. It
// is important to not perform any operations on the page after it has been
// Released.
func (p *slotPage) Release() {
	*p = slotPage{}
	pagePool.Put(p)
}

// directory is the list of pages a slotTable has grown to. It is only ever
// replaced, never modified, so pages keep their position forever.
type directory []*slotPage

// slotTable maps slot numbers to entry pointers. Slot numbers start at 1 so
// that 0 can mean "no slot" in a state word. Slots are recycled through a
// lock-free free list whose head carries a tag in the high half that is
// bumped on every change, so that a stale head never compares equal.
type slotTable struct {
	head atomic.Uint64  // tag<<32 | first free slot
	dir  unsafe.Pointer // *directory
	high uint32         // number of slots ever handed out
}

// init gives the table its first page.
func (t *slotTable) init() {
	dir := directory{newSlotPage()}
	atomic.StorePointer(&t.dir, unsafe.Pointer(&dir))
}

// pages returns the current directory.
func (t *slotTable) pages() directory {
	return *(*directory)(atomic.LoadPointer(&t.dir))
}

// locate returns the page and offset that back the slot.
func (t *slotTable) locate(s uint32) (*slotPage, uint32) {
	i := s - 1
	return t.pages()[i>>pageBits], i & (pageSize - 1)
}

// alloc returns an unused slot, preferring previously freed ones.
func (t *slotTable) alloc() uint32 {
	for {
		head := t.head.Load()
		s := uint32(head)
		if s == 0 {
			break
		}
		page, off := t.locate(s)
		next := atomic.LoadUint32(&page.next[off])
		if t.head.CompareAndSwap(head, retag(head, next)) {
			return s
		}
	}

	s := atomic.AddUint32(&t.high, 1)
	if s == 0 || s > maxSlots {
		panic("arccell: slot table exhausted")
	}
	t.grow(s)
	return s
}

// grow makes sure the directory has a page for the slot. Concurrent growers
// race with a CAS on the directory and the losers put their pages back.
func (t *slotTable) grow(s uint32) {
	need := int((s-1)>>pageBits) + 1
	for {
		ptr := atomic.LoadPointer(&t.dir)
		dir := *(*directory)(ptr)
		if len(dir) >= need {
			return
		}

		next := make(directory, len(dir), need)
		copy(next, dir)
		for len(next) < need {
			next = append(next, newSlotPage())
		}
		if atomic.CompareAndSwapPointer(&t.dir, ptr, unsafe.Pointer(&next)) {
			return
		}
		for _, page := range next[len(dir):] {
			page.Release()
		}
	}
}

// load returns the entry stored in the slot, or nil if it is empty.
func (t *slotTable) load(s uint32) unsafe.Pointer {
	page, off := t.locate(s)
	return atomic.LoadPointer(&page.ptrs[off])
}

// store places the entry in the slot. The slot must have come from alloc.
func (t *slotTable) store(s uint32, p unsafe.Pointer) {
	page, off := t.locate(s)
	atomic.StorePointer(&page.ptrs[off], p)
}

// free empties the slot and pushes it on to the free list.
func (t *slotTable) free(s uint32) {
	page, off := t.locate(s)
	atomic.StorePointer(&page.ptrs[off], nil)
	for {
		head := t.head.Load()
		atomic.StoreUint32(&page.next[off], uint32(head))
		if t.head.CompareAndSwap(head, retag(head, s)) {
			return
		}
	}
}

// release returns every page to the pool. No other method may be called on
// the table afterwards.
func (t *slotTable) release() {
	ptr := atomic.SwapPointer(&t.dir, nil)
	if ptr == nil {
		return
	}
	for _, page := range *(*directory)(ptr) {
		page.Release()
	}
}

// retag returns a free list head pointing at slot with the tag bumped.
func retag(head uint64, slot uint32) uint64 {
	return (head>>slotBits+1)<<slotBits | uint64(slot)
}
