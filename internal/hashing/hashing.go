// Package hashing provides the stable per-component hashes used by cache keys.
//
// These hashes never sit on the lookup path (Go maps hash comparable keys
// natively); they feed jitter and diagnostics, so they favour determinism
// over raw speed. Strings and integers hash identically across processes;
// other comparable values fall back to maphash with a per-process seed.
package hashing

import (
	"hash/maphash"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

var seed = maphash.MakeSeed()

// Mix is the splitmix64 finalizer. It spreads dense small integers (entity
// ids) over the whole 64-bit range.
func Mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Of returns a stable hash of v.
func Of[T comparable](v T) uint64 {
	switch x := any(v).(type) {
	case string:
		return xxhash.Sum64String(x)
	case int:
		return Mix(uint64(x))
	case int32:
		return Mix(uint64(uint32(x)))
	case int64:
		return Mix(uint64(x))
	case uint:
		return Mix(uint64(x))
	case uint32:
		return Mix(uint64(x))
	case uint64:
		return Mix(x)
	case bool:
		if x {
			return Mix(1)
		}
		return Mix(0)
	default:
		return maphash.Comparable(seed, v)
	}
}

// Combine folds the hash of the component at position pos into h.
// Rotating by position keeps (a, b) and (b, a) apart.
func Combine(h uint64, pos int, component uint64) uint64 {
	return h ^ bits.RotateLeft64(component, pos*16)
}
