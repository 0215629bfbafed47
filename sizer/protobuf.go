package sizer

import "google.golang.org/protobuf/proto"

// Protobuf measures messages with proto.Size, without encoding them.
type Protobuf[T proto.Message] struct{}

func (Protobuf[T]) Size(v T) (int, error) {
	return proto.Size(v), nil
}
