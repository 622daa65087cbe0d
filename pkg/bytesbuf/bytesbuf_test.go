package bytesbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResizeGrowsAndShrinks(t *testing.T) {
	b := New()

	buf := b.Resize(4)
	assert.Len(t, buf, 4)
	copy(buf, []byte{1, 2, 3, 4})

	b.Resize(2)
	assert.Equal(t, []byte{1, 2}, b.Data())

	b.Resize(4)
	assert.Equal(t, []byte{1, 2, 0, 0}, b.Data())
}

func TestSetAndString(t *testing.T) {
	b := New()
	b.Set([]byte("hello"))
	assert.Equal(t, "hello", b.String())
	assert.Equal(t, 5, b.Len())
}
