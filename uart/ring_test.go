package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing(t *testing.T) {
	r := NewRing(make([]byte, 8))
	assert.Equal(t, 8, r.Size())
	assert.Equal(t, 8, r.Space())

	assert.Equal(t, 6, r.Put([]byte("abcdef")))
	dst := make([]byte, 4)
	assert.Equal(t, 4, r.Get(dst))
	assert.Equal(t, "abcd", string(dst))

	// wraps around the end of storage
	assert.Equal(t, 6, r.Put([]byte("ghijkl")))
	assert.Equal(t, 8, r.Available())
	assert.Equal(t, 0, r.Put([]byte("m")))

	out := make([]byte, 16)
	n := r.Get(out)
	assert.Equal(t, "efghijkl", string(out[:n]))
	assert.Equal(t, 0, r.Get(out))
}

func TestRing_PartialPut(t *testing.T) {
	r := NewRing(make([]byte, 4))
	assert.Equal(t, 4, r.Put([]byte("123456")))
	r.Reset()
	assert.Equal(t, 0, r.Available())
	assert.Equal(t, 4, r.Space())

	var nilRing *Ring
	assert.Equal(t, 0, nilRing.Size())
}
