package arccell

// The state of a cell lives in a single uint64 so that the handle count and
// the slot holding the current value can only ever be observed and updated
// together. The high half is the handle count and the low half is the slot
// number of the installed value. Slot 0 means there is no value, which only
// happens once the cell has been reclaimed.
const (
	slotBits  = 32
	slotMask  = 1<<slotBits - 1
	oneHandle = 1 << slotBits
)

// pack combines a handle count and a slot number into a state word.
func pack(handles, slot uint32) uint64 {
	return uint64(handles)<<slotBits | uint64(slot)
}

// handlesOf returns the handle count stored in the state word.
func handlesOf(w uint64) uint32 { return uint32(w >> slotBits) }

// slotOf returns the slot number stored in the state word.
func slotOf(w uint64) uint32 { return uint32(w & slotMask) }

// withSlot returns the state word with its slot replaced, keeping the count.
func withSlot(w uint64, slot uint32) uint64 {
	return w&^slotMask | uint64(slot)
}
