package memocache

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

type slot[K comparable, V any] struct {
	key  K
	val  V
	live bool
}

// Table is the unsynchronized cache table: the fast, lock-free flavor owned by
// a single goroutine. Obtain one from Shared.Local or NewTable and never hand
// it to another goroutine.
//
// Entries live in an arena indexed by a map, so a lookup hands out a Ref
// (arena index + epoch) instead of a pointer. Growth of the arena, Remove and
// Clear bump the epoch; a Ref from an older epoch panics with ErrStaleRef.
// Inserting into spare capacity keeps existing refs valid.
type Table[K comparable, V any] struct {
	name string
	kind string
	log  Logger

	init      func(K) V
	onAdded   func(K, V)
	onRemoved func(K, V)
	sizer     func(K, V) int64
	perEntry  int64

	index map[K]int32
	slots []slot[K, V]
	free  []int32
	epoch uint32

	// read from other goroutines (registry, scheduler)
	count        atomic.Int64
	bytes        atomic.Int64
	clearPending atomic.Bool
}

func newTable[K comparable, V any](kind string, opts Options[K, V]) *Table[K, V] {
	opts.Capacity = max(opts.Capacity, 0)
	t := &Table[K, V]{
		name:      opts.Name,
		kind:      kind,
		init:      opts.Init,
		onAdded:   opts.OnAdded,
		onRemoved: opts.OnRemoved,
		sizer:     opts.Sizer,
		perEntry:  entrySize[K, V](),
		index:     make(map[K]int32, opts.Capacity),
		slots:     make([]slot[K, V], 0, opts.Capacity),
	}
	if t.name == "" {
		t.name = defaultName[K, V]()
	}
	if t.init == nil {
		t.init = func(K) V {
			var v V
			return v
		}
	}
	t.log = coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"table": t.name, "kind": kind})
	return t
}

// NewTable creates a standalone goroutine-owned table and registers it.
func NewTable[K comparable, V any](reg *Registry, opts Options[K, V]) (*Table[K, V], error) {
	if reg == nil {
		return nil, configErr("table", "registry is required")
	}
	t := newTable("local", opts)
	if err := reg.register(localHandle[K, V]{t}, t.name, t.kind); err != nil {
		return nil, err
	}
	return t, nil
}

func defaultName[K comparable, V any]() string {
	return fmt.Sprintf("%v->%v", reflect.TypeFor[K](), reflect.TypeFor[V]())
}

// entrySize approximates the retained bytes of one entry: the arena slot plus
// the key and index in the map.
func entrySize[K comparable, V any]() int64 {
	k := int64(reflect.TypeFor[K]().Size())
	v := int64(reflect.TypeFor[V]().Size())
	return 2*k + v + 8
}

func (t *Table[K, V]) Name() string { return t.name }

// sync applies a clear requested from another goroutine.
func (t *Table[K, V]) sync() {
	if t.clearPending.Load() {
		t.clearPending.Store(false)
		t.clear()
	}
}

// GetOrAdd returns the value for key, creating it with the table's
// initializer on a miss. The initializer runs at most once per key until the
// key is removed or the table cleared.
func (t *Table[K, V]) GetOrAdd(key K) V {
	t.sync()
	if i, ok := t.index[key]; ok {
		return t.slots[i].val
	}
	return t.slots[t.add(key)].val
}

// GetOrAddRef is GetOrAdd returning a handle to the stored value, for
// in-place mutation without a second lookup.
func (t *Table[K, V]) GetOrAddRef(key K) Ref[K, V] {
	t.sync()
	if i, ok := t.index[key]; ok {
		return Ref[K, V]{t: t, idx: i, epoch: t.epoch}
	}
	i := t.add(key)
	return Ref[K, V]{t: t, idx: i, epoch: t.epoch}
}

// GetRef returns a handle to an existing entry. A missing key is a programming
// error and panics with ErrKeyNotFound.
func (t *Table[K, V]) GetRef(key K) Ref[K, V] {
	r, ok := t.Lookup(key)
	if !ok {
		panic(fmt.Errorf("%w: %s[%v]", ErrKeyNotFound, t.name, key))
	}
	return r
}

// Lookup is the non-panicking GetRef.
func (t *Table[K, V]) Lookup(key K) (Ref[K, V], bool) {
	t.sync()
	i, ok := t.index[key]
	if !ok {
		return Ref[K, V]{}, false
	}
	return Ref[K, V]{t: t, idx: i, epoch: t.epoch}, true
}

// Get returns the value for key without creating it.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.sync()
	if i, ok := t.index[key]; ok {
		return t.slots[i].val, true
	}
	var zero V
	return zero, false
}

// Set stores v under key, replacing any existing value.
func (t *Table[K, V]) Set(key K, v V) {
	t.sync()
	if i, ok := t.index[key]; ok {
		s := &t.slots[i]
		if t.sizer != nil {
			t.bytes.Add(t.sizer(key, v) - t.sizer(key, s.val))
		}
		s.val = v
		return
	}
	t.insert(key, v)
}

// GetFresh returns the value for key, recomputing it first when it is a
// Dirtier reporting Dirty. refresh mutates the value in place; afterwards, if
// the value is an Updater[K], Update(key) restamps it. refresh must not insert
// into this table.
func (t *Table[K, V]) GetFresh(key K, refresh func(key K, v *V)) V {
	p := t.GetOrAddRef(key).Ptr()
	refreshIfDirty(key, p, refresh)
	return *p
}

func refreshIfDirty[K comparable, V any](key K, p *V, refresh func(K, *V)) {
	d, ok := any(p).(Dirtier)
	if !ok {
		d, ok = any(*p).(Dirtier)
	}
	if !ok || !d.Dirty() {
		return
	}
	refresh(key, p)
	u, ok := any(p).(Updater[K])
	if !ok {
		u, ok = any(*p).(Updater[K])
	}
	if ok {
		u.Update(key)
	}
}

// Remove deletes key. It invalidates every outstanding Ref.
func (t *Table[K, V]) Remove(key K) bool {
	t.sync()
	i, ok := t.index[key]
	if !ok {
		return false
	}
	s := &t.slots[i]
	old := s.val
	if t.sizer != nil {
		t.bytes.Add(-t.sizer(key, old))
	}
	var zero slot[K, V]
	*s = zero
	delete(t.index, key)
	t.free = append(t.free, i)
	t.epoch++
	t.count.Add(-1)
	if t.onRemoved != nil {
		t.onRemoved(key, old)
	}
	return true
}

// Clear drops every entry and releases the backing storage. It invalidates
// every outstanding Ref.
func (t *Table[K, V]) Clear() {
	t.clearPending.Store(false)
	t.clear()
}

func (t *Table[K, V]) clear() {
	n := len(t.index)
	if n == 0 && len(t.slots) == 0 {
		return
	}
	old := t.slots
	t.index = make(map[K]int32)
	t.slots = nil
	t.free = nil
	t.epoch++
	t.count.Store(0)
	t.bytes.Store(0)
	if t.onRemoved != nil {
		for i := range old {
			if old[i].live {
				t.onRemoved(old[i].key, old[i].val)
			}
		}
	}
	t.log.Debug("table cleared", Fields{"entries": n})
}

// Len returns the number of entries. Safe to call from any goroutine.
func (t *Table[K, V]) Len() int {
	if t.clearPending.Load() {
		return 0
	}
	return int(t.count.Load())
}

// Bytes estimates the retained size of the entries. Safe to call from any
// goroutine. With a Sizer, values are measured when stored; in-place mutation
// through a Ref is not re-measured. Entries of a local table cleared from
// another goroutine stay counted until the owner applies the clear, since
// their memory is held until then.
func (t *Table[K, V]) Bytes() int64 {
	if t.sizer != nil {
		return t.bytes.Load()
	}
	return t.count.Load() * t.perEntry
}

// Range calls fn for every entry until fn returns false. fn must not insert
// into or remove from the table.
func (t *Table[K, V]) Range(fn func(key K, v *V) bool) {
	t.sync()
	for i := range t.slots {
		if s := &t.slots[i]; s.live {
			if !fn(s.key, &s.val) {
				return
			}
		}
	}
}

// add runs the initializer and inserts its result, unless the initializer
// itself populated key.
func (t *Table[K, V]) add(key K) int32 {
	v := t.init(key)
	if i, ok := t.index[key]; ok {
		return i
	}
	return t.insert(key, v)
}

func (t *Table[K, V]) insert(key K, v V) int32 {
	var i int32
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i] = slot[K, V]{key: key, val: v, live: true}
	} else {
		if len(t.slots) == cap(t.slots) {
			t.epoch++ // append is about to move the arena
		}
		i = int32(len(t.slots))
		t.slots = append(t.slots, slot[K, V]{key: key, val: v, live: true})
	}
	t.index[key] = i
	t.count.Add(1)
	if t.sizer != nil {
		t.bytes.Add(t.sizer(key, v))
	}
	if t.onAdded != nil {
		t.onAdded(key, v)
	}
	return i
}

// Ref is a handle to a value stored in a Table. It stays valid until the next
// structural mutation of that table (growth, Remove, Clear); after that every
// method panics with ErrStaleRef. The zero Ref is invalid.
type Ref[K comparable, V any] struct {
	t     *Table[K, V]
	idx   int32
	epoch uint32
}

// Valid reports whether the handle may still be used.
func (r Ref[K, V]) Valid() bool {
	return r.t != nil && r.t.epoch == r.epoch && !r.t.clearPending.Load()
}

func (r Ref[K, V]) slot() *slot[K, V] {
	if !r.Valid() {
		name := "<nil>"
		if r.t != nil {
			name = r.t.name
		}
		panic(fmt.Errorf("%w: %s", ErrStaleRef, name))
	}
	return &r.t.slots[r.idx]
}

// Ptr returns a pointer to the stored value. The pointer carries the same
// lifetime as the Ref but is not checked; prefer Get/Set for anything that
// outlives a single statement.
func (r Ref[K, V]) Ptr() *V { return &r.slot().val }

func (r Ref[K, V]) Get() V { return r.slot().val }

func (r Ref[K, V]) Set(v V) { r.slot().val = v }

func (r Ref[K, V]) Key() K { return r.slot().key }

// localHandle is what the registry sees of a goroutine-owned table: clears
// are deferred to the owner. Len drops to zero at once; Bytes only when the
// owner applies the clear.
type localHandle[K comparable, V any] struct {
	t *Table[K, V]
}

func (h localHandle[K, V]) Clear()       { h.t.clearPending.Store(true) }
func (h localHandle[K, V]) Len() int     { return h.t.Len() }
func (h localHandle[K, V]) Bytes() int64 { return h.t.Bytes() }
