package sizer

import "encoding/json"

type JSON[V any] struct{}

func (JSON[V]) Size(v V) (int, error) {
	b, err := json.Marshal(v)
	return len(b), err
}
