package memocache

import (
	"fmt"
	"reflect"
	"sync"
)

// Clearable is the unit the registry and the eviction scheduler work with.
// Clear must be total; Len must be safe to call from any goroutine.
type Clearable interface {
	Clear()
	Len() int
}

// Sized is implemented by Clearables that can estimate their retained bytes.
type Sized interface {
	Bytes() int64
}

// Entry is one registered collection.
type Entry struct {
	Name  string
	Kind  string
	Table Clearable
}

// Bytes estimates the retained size of the collection, or 0 if it cannot.
func (e Entry) Bytes() int64 {
	if s, ok := e.Table.(Sized); ok {
		return s.Bytes()
	}
	return 0
}

// RegistryOptions configure a Registry. All fields are optional.
type RegistryOptions struct {
	Logger Logger
	Hooks  Hooks
}

// Registry is the process-wide, append-only set of cache tables. Tables join
// it when they are constructed and stay for the life of the process; there is
// no removal. Create one at startup and pass it to every constructor.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry

	log   Logger
	hooks Hooks
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		log:   coalesce[Logger](opts.Logger, NopLogger{}).With(Fields{"component": "registry"}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

// Register adds a collection that is not a memocache table. Accepted shapes:
//
//   - a Clearable;
//   - a *sync.Map;
//   - a pointer to a Go map, cleared through reflection. The scheduler clears
//     it from whichever goroutine calls NotifyDestroyed or Step, so only
//     register maps that goroutine owns.
//
// Anything else has no discoverable clear mechanism and yields a ConfigError.
func (r *Registry) Register(c any, name string) error {
	switch v := c.(type) {
	case nil:
		return configErr("registry", "nil collection")
	case *sync.Map:
		if v == nil {
			return configErr("registry", "nil *sync.Map")
		}
		return r.register(syncMap{v}, name, "sync.Map")
	case Clearable:
		return r.register(v, name, "custom")
	}

	rv := reflect.ValueOf(c)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Map {
		return &ConfigError{
			Component: "registry",
			Reason:    fmt.Sprintf("%q (%T) has no clear mechanism", name, c),
		}
	}
	return r.register(reflectMap{rv.Elem()}, name, "map")
}

func (r *Registry) register(c Clearable, name, kind string) error {
	if c == nil {
		return configErr("registry", "nil collection")
	}
	if name == "" {
		name = fmt.Sprintf("%T", c)
	}
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Name: name, Kind: kind, Table: c})
	n := len(r.entries)
	r.mu.Unlock()
	r.log.Debug("registered", Fields{"name": name, "kind": kind, "tables": n})
	return nil
}

// Tables returns a snapshot of every registered collection in registration
// order.
func (r *Registry) Tables() []Entry {
	r.mu.RLock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	r.mu.RUnlock()
	return out
}

// Len returns the number of registered collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ClearAll clears every registered collection. A collection that panics is
// logged and skipped. It returns the number of entries dropped.
func (r *Registry) ClearAll() int {
	total := 0
	for _, e := range r.Tables() {
		n, _ := r.clear(e, ClearAll)
		total += n
	}
	r.log.Info("cleared all tables", Fields{"entries": total})
	return total
}

// clear empties one collection, isolating the caller from its failures.
func (r *Registry) clear(e Entry, reason ClearReason) (n int, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("clear panicked", Fields{"name": e.Name, "kind": e.Kind, "panic": rec})
			r.hooks.ClearPanicked(e.Name, rec)
			n, ok = 0, false
		}
	}()
	n = e.Table.Len()
	e.Table.Clear()
	r.hooks.TableCleared(e.Name, n, reason)
	return n, true
}

type syncMap struct{ m *sync.Map }

func (s syncMap) Clear() { s.m.Clear() }

func (s syncMap) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

type reflectMap struct{ v reflect.Value }

func (m reflectMap) Clear() { m.v.Clear() }

func (m reflectMap) Len() int { return m.v.Len() }
