package sizer

import "github.com/vmihailenco/msgpack/v5"

// Msgpack measures values by their vmihailenco/msgpack/v5 encoding.
// The zero value is ready to use.
//
// Msgpack is compact and close to the in-memory footprint of plain structs.
// Use `msgpack:"-"` tags to leave fields out of the estimate.
type Msgpack[V any] struct{}

func (Msgpack[V]) Size(v V) (int, error) {
	b, err := msgpack.Marshal(v)
	return len(b), err
}
