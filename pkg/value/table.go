package value

// Table is an open-addressed, linear-probing hash table keyed by interned
// string identity, parameterized on an arbitrary payload type V (spec §9:
// "Implement once, parameterised on payload" — the intern set is the V =
// struct{} instantiation held by pkg/vm; globals, class method tables and instance
// field tables all instantiate Table[Value]).
//
// Slot states mirror spec §4.C/4.D exactly:
//   - empty:     key == nil, tombstone == false
//   - live:      key != nil
//   - tombstone: key == nil, tombstone == true (the spec's sentinel
//     Bool(true) value, represented here as a dedicated bit instead of
//     overloading the payload type, which may not be Value-shaped)
//
// Growth doubles capacity from an initial floor of 8 once the load factor
// (count/capacity, tombstones included) would exceed 0.75. Rehashing on
// growth rebuilds from live entries only, discarding tombstones — exactly
// original_source/src/table.c's adjustCapacity.
type Table[V any] struct {
	entries  []tableEntry[V]
	count    int // live entries + tombstones
	liveOnly int // live entries only, used to report Len()
}

type tableEntry[V any] struct {
	key       *OString
	value     V
	tombstone bool
}

const tableMaxLoad = 0.75

// NewTable returns an empty table. Storage is allocated lazily on first
// Set, matching the teacher/original's capacity==0 initial state.
func NewTable[V any]() *Table[V] {
	return &Table[V]{}
}

// Len reports the number of live (non-tombstone) entries.
func (t *Table[V]) Len() int { return t.liveOnly }

func (t *Table[V]) capacity() int { return len(t.entries) }

// findEntry implements the spec's probe sequence: stop at a live match;
// at an empty slot return the first tombstone seen (so repeated
// insert/delete reuses tombstone slots) else the empty slot itself; at a
// tombstone, remember it as a fallback and keep probing (a match further
// down the probe chain must still be found first).
func findEntry[V any](entries []tableEntry[V], capacity int, key *OString) *tableEntry[V] {
	index := key.Hash % uint32(capacity)
	var tombstone *tableEntry[V]
	for {
		entry := &entries[index]
		if entry.key == nil {
			if !entry.tombstone {
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			if tombstone == nil {
				tombstone = entry
			}
		} else if entry.key == key {
			return entry
		}
		index = (index + 1) % uint32(capacity)
	}
}

func (t *Table[V]) adjustCapacity(newCapacity int) {
	entries := make([]tableEntry[V], newCapacity)
	t.liveOnly = 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dst := findEntry(entries, newCapacity, old.key)
		dst.key = old.key
		dst.value = old.value
		t.liveOnly++
	}
	t.entries = entries
	t.count = t.liveOnly
}

// Set inserts or overwrites key->val. Returns true if key was not live
// before the call (a fresh slot or a reused tombstone), false if an
// existing live entry was overwritten.
func (t *Table[V]) Set(key *OString, val V) bool {
	if float64(t.count+1) > float64(t.capacity())*tableMaxLoad {
		newCap := growCapacity(t.capacity())
		t.adjustCapacity(newCap)
	}
	entry := findEntry(t.entries, t.capacity(), key)
	isNewKey := entry.key == nil
	if isNewKey && !entry.tombstone {
		t.count++
	}
	entry.key = key
	entry.value = val
	entry.tombstone = false
	if isNewKey {
		t.liveOnly++
	}
	return isNewKey
}

// Get returns the value for key and whether it was present.
func (t *Table[V]) Get(key *OString) (V, bool) {
	var zero V
	if t.capacity() == 0 {
		return zero, false
	}
	entry := findEntry(t.entries, t.capacity(), key)
	if entry.key == nil {
		return zero, false
	}
	return entry.value, true
}

// Delete replaces the entry with a tombstone. Per spec, count is not
// decremented (tombstones still count toward load factor).
func (t *Table[V]) Delete(key *OString) bool {
	if t.capacity() == 0 {
		return false
	}
	entry := findEntry(t.entries, t.capacity(), key)
	if entry.key == nil {
		return false
	}
	entry.key = nil
	entry.tombstone = true
	t.liveOnly--
	return true
}

// FindString is the sole constructor path for intern identity: it probes
// by raw bytes + hash rather than by an already-interned *OString, so the
// VM can ask "does a String with these bytes already exist?" before
// allocating a new one.
func (t *Table[V]) FindString(chars string, hash uint32) *OString {
	if t.capacity() == 0 {
		return nil
	}
	index := hash % uint32(t.capacity())
	for {
		entry := &t.entries[index]
		if entry.key == nil {
			if !entry.tombstone {
				return nil
			}
		} else if entry.key.Hash == hash && entry.key.Chars == chars {
			return entry.key
		}
		index = (index + 1) % uint32(t.capacity())
	}
}

// RemoveWhite sweeps entries whose key is unmarked (white), tombstoning
// them. Must run after mark propagation and before sweep so that strings
// kept alive only by this table are collected in the same cycle (spec
// §4.C). Only meaningful for string-identity tables (the intern set); it
// ignores the payload entirely.
func (t *Table[V]) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.IsMarked {
			t.Delete(e.key)
		}
	}
}

// Each visits every live entry, in bucket order. Used by the GC to mark
// every key and value reachable from a table (globals, method tables,
// field tables) and by INHERIT to copy a superclass's methods into a
// subclass.
func (t *Table[V]) Each(fn func(key *OString, val V)) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil {
			fn(e.key, e.value)
		}
	}
}

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}
