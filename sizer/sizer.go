// Package sizer estimates the retained size of cached values by measuring
// their encoded form. Estimators plug into memocache.Options.Sizer through
// Func and feed the registry's utilization report.
//
// Encoding is far more expensive than a map lookup: measure values that are
// stored rarely and read often, or wrap the estimator in Limit.
package sizer

// Sizer returns the encoded length of v in bytes.
type Sizer[V any] interface {
	Size(V) (int, error)
}

// Func adapts s to the memocache.Options.Sizer signature. Values that fail to
// encode count as zero bytes.
func Func[K any, V any](s Sizer[V]) func(K, V) int64 {
	return func(_ K, v V) int64 {
		n, err := s.Size(v)
		if err != nil {
			return 0
		}
		return int64(n)
	}
}
