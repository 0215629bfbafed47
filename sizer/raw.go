package sizer

// Bytes measures []byte values by length.
type Bytes struct{}

func (Bytes) Size(b []byte) (int, error) { return len(b), nil }

// String measures string values by length in bytes.
type String struct{}

func (String) Size(s string) (int, error) { return len(s), nil }
