package memocache

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/unkn0wn-root/memocache/internal/hashing"
)

// Composite keys come in two flavors, each with 1-4 components:
//
//	IDKey1..IDKey4  identity keys: every component is an int32 produced by an IndexGetter.
//	Key1..Key4      value keys: components compared with ==, for types without a dense id.
//
// Both are comparable structs and are used as Go map keys directly. A table is
// typed by its key, so one table can never mix the two flavors.

// IndexGetter turns a domain entity into a small, dense, stable integer
// (typically a sequence id). It must be pure.
type IndexGetter[T any] func(T) int32

// Hasher is implemented by every key type. Hash is stable for the life of the
// process and is what deadline jitter is derived from.
type Hasher interface {
	Hash() uint64
}

var indexGetters sync.Map // reflect.Type -> IndexGetter[T]

// RegisterIndexGetter installs the IndexGetter for T. Call it during setup,
// before any identity key over T is built. A later call replaces the getter.
func RegisterIndexGetter[T any](fn IndexGetter[T]) {
	if fn == nil {
		panic(configErr("index getter", fmt.Sprintf("nil getter for %v", reflect.TypeFor[T]())))
	}
	indexGetters.Store(reflect.TypeFor[T](), fn)
}

// IndexOf returns the identity of v. It panics with ErrNoIndexGetter when no
// getter was registered for T: that is a setup mistake, not a runtime miss.
func IndexOf[T any](v T) int32 {
	g, ok := indexGetters.Load(reflect.TypeFor[T]())
	if !ok {
		panic(&ConfigError{
			Component: "index getter",
			Reason:    reflect.TypeFor[T]().String(),
			Err:       ErrNoIndexGetter,
		})
	}
	return g.(IndexGetter[T])(v)
}

type IDKey1 struct{ A int32 }

type IDKey2 struct{ A, B int32 }

type IDKey3 struct{ A, B, C int32 }

type IDKey4 struct{ A, B, C, D int32 }

func ID1[A any](a A) IDKey1 { return IDKey1{IndexOf(a)} }

func ID2[A, B any](a A, b B) IDKey2 { return IDKey2{IndexOf(a), IndexOf(b)} }

func ID3[A, B, C any](a A, b B, c C) IDKey3 {
	return IDKey3{IndexOf(a), IndexOf(b), IndexOf(c)}
}

func ID4[A, B, C, D any](a A, b B, c C, d D) IDKey4 {
	return IDKey4{IndexOf(a), IndexOf(b), IndexOf(c), IndexOf(d)}
}

func idHash(pos int, h uint64, v int32) uint64 {
	return hashing.Combine(h, pos, hashing.Mix(uint64(uint32(v))))
}

func (k IDKey1) Hash() uint64 { return idHash(0, 0, k.A) }

func (k IDKey2) Hash() uint64 { return idHash(1, idHash(0, 0, k.A), k.B) }

func (k IDKey3) Hash() uint64 {
	return idHash(2, idHash(1, idHash(0, 0, k.A), k.B), k.C)
}

func (k IDKey4) Hash() uint64 {
	return idHash(3, idHash(2, idHash(1, idHash(0, 0, k.A), k.B), k.C), k.D)
}

type Key1[T1 comparable] struct {
	A T1
}

type Key2[T1, T2 comparable] struct {
	A T1
	B T2
}

type Key3[T1, T2, T3 comparable] struct {
	A T1
	B T2
	C T3
}

type Key4[T1, T2, T3, T4 comparable] struct {
	A T1
	B T2
	C T3
	D T4
}

func K1[T1 comparable](a T1) Key1[T1] { return Key1[T1]{a} }

func K2[T1, T2 comparable](a T1, b T2) Key2[T1, T2] { return Key2[T1, T2]{a, b} }

func K3[T1, T2, T3 comparable](a T1, b T2, c T3) Key3[T1, T2, T3] {
	return Key3[T1, T2, T3]{a, b, c}
}

func K4[T1, T2, T3, T4 comparable](a T1, b T2, c T3, d T4) Key4[T1, T2, T3, T4] {
	return Key4[T1, T2, T3, T4]{a, b, c, d}
}

func (k Key1[T1]) Hash() uint64 { return hashing.Of(k.A) }

func (k Key2[T1, T2]) Hash() uint64 {
	h := hashing.Combine(0, 0, hashing.Of(k.A))
	return hashing.Combine(h, 1, hashing.Of(k.B))
}

func (k Key3[T1, T2, T3]) Hash() uint64 {
	h := hashing.Combine(0, 0, hashing.Of(k.A))
	h = hashing.Combine(h, 1, hashing.Of(k.B))
	return hashing.Combine(h, 2, hashing.Of(k.C))
}

func (k Key4[T1, T2, T3, T4]) Hash() uint64 {
	h := hashing.Combine(0, 0, hashing.Of(k.A))
	h = hashing.Combine(h, 1, hashing.Of(k.B))
	h = hashing.Combine(h, 2, hashing.Of(k.C))
	return hashing.Combine(h, 3, hashing.Of(k.D))
}

// HashOf returns the stable hash of any comparable key, preferring the key's
// own Hash method.
func HashOf[K comparable](k K) uint64 {
	if h, ok := any(k).(Hasher); ok {
		return h.Hash()
	}
	return hashing.Of(k)
}
