package sizer

import (
	"github.com/fxamacker/cbor/v2"
)

// CBOR measures values by their fxamacker/cbor encoding.
// The zero value is NOT ready to use. Construct with NewCBOR or MustCBOR.
//
// Use deterministic=true for canonical encoding (RFC 8949 Core Deterministic)
// when estimates must be byte-for-byte stable across runs.
// Otherwise PreferredUnsortedEncOptions are used (sensible defaults).
type CBOR[V any] struct {
	enc cbor.EncMode
}

var _ Sizer[struct{}] = CBOR[struct{}]{}

// NewCBOR constructs a CBOR sizer.
//   - Deterministic is true, uses CoreDetEncOptions (RFC 8949).
//   - Otherwise uses PreferredUnsortedEncOptions (smaller/faster defaults).
//
// Time values are measured as RFC3339Nano strings.
func NewCBOR[V any](deterministic bool) (CBOR[V], error) {
	var eo cbor.EncOptions
	if deterministic {
		eo = cbor.CoreDetEncOptions()
	} else {
		eo = cbor.PreferredUnsortedEncOptions()
	}
	eo.Time = cbor.TimeRFC3339Nano

	em, err := eo.EncMode()
	if err != nil {
		return CBOR[V]{}, err
	}
	return CBOR[V]{enc: em}, nil
}

// MustCBOR is like NewCBOR but panics on error.
// Handy for package-level variables.
func MustCBOR[V any](deterministic bool) CBOR[V] {
	c, err := NewCBOR[V](deterministic)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CBOR[V]) Size(v V) (int, error) {
	b, err := c.enc.Marshal(v)
	return len(b), err
}
