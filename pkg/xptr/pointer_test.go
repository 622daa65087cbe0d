package xptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type descriptor struct{}
type char struct{}

func TestNullPointer(t *testing.T) {
	p := Null[descriptor]()
	assert.True(t, p.IsNull())
	assert.Equal(t, uint32(0), p.Offset)
}

func TestIndex(t *testing.T) {
	p := Pointer[descriptor]{Offset: 100}
	next := p.Index(3, 16)
	assert.Equal(t, uint32(148), next.Offset)
}

func TestField(t *testing.T) {
	p := Pointer[descriptor]{Offset: 100}
	name := Field[descriptor, char](p, 16)
	assert.Equal(t, uint32(116), name.Offset)
}

func TestCast(t *testing.T) {
	p := Pointer[descriptor]{Offset: 42}
	c := Cast[char](p)
	assert.Equal(t, uint32(42), c.Offset)
}

func TestFunctionIsNull(t *testing.T) {
	var f Function[bool, struct{}]
	assert.True(t, f.IsNull())

	f.Index = 7
	assert.False(t, f.IsNull())
}
