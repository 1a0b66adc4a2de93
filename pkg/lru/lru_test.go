package lru

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplacer_VictimIsLeastRecentlyUsed(t *testing.T) {
	r := New[int]()
	r.Insert(1)
	r.Insert(2)
	r.Insert(3)

	// Touch 1 again -> MRU, so 2 becomes the LRU end.
	r.Insert(1)

	v, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = r.Victim()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = r.Victim()
	assert.False(t, ok)
}

func TestReplacer_Erase(t *testing.T) {
	r := New[string]()
	r.Insert("a")
	r.Insert("b")

	assert.True(t, r.Erase("a"))
	assert.False(t, r.Erase("a"))
	assert.Equal(t, 1, r.Size())

	v, ok := r.Victim()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestReplacer_Size(t *testing.T) {
	r := New[int]()
	assert.Equal(t, 0, r.Size())
	r.Insert(1)
	r.Insert(2)
	assert.Equal(t, 2, r.Size())
	r.Insert(1) // re-insert, not a new entry
	assert.Equal(t, 2, r.Size())
}
