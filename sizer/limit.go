package sizer

import "fmt"

// Limit wraps another sizer and rejects values whose estimate exceeds Max.
// Through Func a rejected value counts as zero bytes, so pair it with a
// separate alert when oversized values matter.
// If Max <= 0, limiting is disabled.
type Limit[V any] struct {
	// Inner is the underlying sizer being wrapped. It must be set.
	Inner Sizer[V]
	Max   int
}

func (l Limit[V]) Size(v V) (int, error) {
	n, err := l.Inner.Size(v)
	if err != nil {
		return n, err
	}
	if l.Max > 0 && n > l.Max {
		return n, fmt.Errorf("value too large: %d > %d", n, l.Max)
	}
	return n, nil
}
