package metadata

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	minTableSlots = 16
	emptySlot     = -1
)

// coordTable is an open-addressing hash table from fixed-width int32 keys
// (example index followed by the coordinates) to row indices.
//
// Slot count is a power of two so the probe index is hash & mask. The table
// grows when it becomes half full. Not safe for concurrent use; Metadata
// serializes access.
type coordTable struct {
	width int     // int32 components per key
	keys  []int32 // slot-major key storage, width entries per slot
	rows  []int32 // row per slot, emptySlot when free
	mask  uint64
	count int
	buf   []byte // hashing scratch, 4*width bytes
}

func newCoordTable(width int) *coordTable {
	t := &coordTable{width: width, buf: make([]byte, 4*width)}
	t.alloc(minTableSlots)
	return t
}

func (t *coordTable) alloc(slots int) {
	t.keys = make([]int32, slots*t.width)
	t.rows = make([]int32, slots)
	for i := range t.rows {
		t.rows[i] = emptySlot
	}
	t.mask = uint64(slots - 1)
	t.count = 0
}

func (t *coordTable) hash(key []int32) uint64 {
	for i, v := range key {
		binary.LittleEndian.PutUint32(t.buf[4*i:], uint32(v))
	}
	return xxhash.Sum64(t.buf)
}

func (t *coordTable) slotKey(slot uint64) []int32 {
	return t.keys[int(slot)*t.width : int(slot+1)*t.width]
}

func equalKey(a, b []int32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// find returns the slot holding key, or the free slot where it belongs.
func (t *coordTable) find(key []int32) (uint64, bool) {
	slot := t.hash(key) & t.mask
	for {
		if t.rows[slot] == emptySlot {
			return slot, false
		}
		if equalKey(t.slotKey(slot), key) {
			return slot, true
		}
		slot = (slot + 1) & t.mask
	}
}

// get returns the row stored for key.
func (t *coordTable) get(key []int32) (int32, bool) {
	slot, ok := t.find(key)
	if !ok {
		return 0, false
	}
	return t.rows[slot], true
}

// put stores key -> row unless the key is already present; it returns the
// row associated with key afterwards and whether it was inserted.
func (t *coordTable) put(key []int32, row int32) (int32, bool) {
	slot, ok := t.find(key)
	if ok {
		return t.rows[slot], false
	}
	if 2*(t.count+1) > len(t.rows) {
		t.grow()
		slot, _ = t.find(key)
	}
	copy(t.slotKey(slot), key)
	t.rows[slot] = row
	t.count++
	return row, true
}

func (t *coordTable) grow() {
	oldKeys, oldRows := t.keys, t.rows
	t.alloc(2 * len(oldRows))
	for s, row := range oldRows {
		if row == emptySlot {
			continue
		}
		key := oldKeys[s*t.width : (s+1)*t.width]
		slot, _ := t.find(key)
		copy(t.slotKey(slot), key)
		t.rows[slot] = row
		t.count++
	}
}

func (t *coordTable) len() int {
	return t.count
}
