package sizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type route struct {
	From string `json:"from" msgpack:"from" cbor:"from"`
	To   string `json:"to" msgpack:"to" cbor:"to"`
	Hops []int  `json:"hops" msgpack:"hops" cbor:"hops"`
}

func TestEncodedSizers(t *testing.T) {
	r := route{From: "a", To: "b", Hops: []int{1, 2, 3}}

	n, err := JSON[route]{}.Size(r)
	require.NoError(t, err)
	assert.Equal(t, len(`{"from":"a","to":"b","hops":[1,2,3]}`), n)

	m, err := Msgpack[route]{}.Size(r)
	require.NoError(t, err)
	assert.Positive(t, m)

	c, err := MustCBOR[route](true).Size(r)
	require.NoError(t, err)
	assert.Positive(t, c)
	assert.Less(t, c, n)
}

func TestProtobufUsesWireSize(t *testing.T) {
	n, err := Protobuf[*wrapperspb.StringValue]{}.Size(wrapperspb.String("abc"))
	require.NoError(t, err)
	assert.Equal(t, 5, n) // tag + length + 3 bytes
}

func TestRawSizers(t *testing.T) {
	n, _ := Bytes{}.Size([]byte("hello"))
	assert.Equal(t, 5, n)
	n, _ = String{}.Size("héllo")
	assert.Equal(t, 6, n)
}

func TestLimitRejectsOversized(t *testing.T) {
	l := Limit[string]{Inner: String{}, Max: 4}
	_, err := l.Size("12345")
	assert.Error(t, err)
	n, err := l.Size("1234")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	unlimited := Limit[string]{Inner: String{}}
	_, err = unlimited.Size("12345")
	assert.NoError(t, err)
}

func TestFuncAdaptsToTableSizer(t *testing.T) {
	f := Func[int, string](Limit[string]{Inner: String{}, Max: 3})
	assert.Equal(t, int64(2), f(1, "ab"))
	assert.Equal(t, int64(0), f(1, "abcd"), "rejected values count as zero")
}
