package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_FindAfterInsert(t *testing.T) {
	d := New[string](2)
	d.Insert(1, "one")
	d.Insert(2, "two")

	v, ok := d.Find(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = d.Find(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = d.Find(3)
	assert.False(t, ok)
}

func TestDirectory_SplitGrowsGlobalDepth(t *testing.T) {
	d := New[int](2)
	for k := uint32(1); k <= 9; k++ {
		d.Insert(k, int(k))
	}

	for k := uint32(1); k <= 9; k++ {
		v, ok := d.Find(k)
		require.True(t, ok, "key %d should be found", k)
		assert.Equal(t, int(k), v)
	}
	assert.Greater(t, d.GlobalDepth(), 0)
	assert.Equal(t, len(d.dir), 1<<uint(d.GlobalDepth()))
}

func TestDirectory_CollidingLowBitsForceRepeatedSplits(t *testing.T) {
	// 6, 10, 14 share low-bit tails (0110, 1010, 1110 all end "10") and
	// collide in the same bucket until the directory is deep enough to
	// tell them apart.
	d := New[string](2)
	d.Insert(6, "a")
	d.Insert(10, "b")
	d.Insert(14, "c")

	for k, want := range map[uint32]string{6: "a", 10: "b", 14: "c"} {
		v, ok := d.Find(k)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	// After the dust settles, directory slots 0 and 1 own empty buckets
	// (everything with those low bits moved to deeper siblings during the
	// repeated splits); only slots 2 (holding 10) and 6 (holding 6, 14)
	// are non-empty, so NumBuckets must report 2, not 4.
	assert.Equal(t, 3, d.GlobalDepth())
	assert.Equal(t, 2, d.NumBuckets())
}

func TestDirectory_RemoveThenFindMisses(t *testing.T) {
	d := New[int](4)
	d.Insert(5, 50)
	assert.True(t, d.Remove(5))
	assert.False(t, d.Remove(5))

	_, ok := d.Find(5)
	assert.False(t, ok)
}

func TestDirectory_NumBucketsCountsDistinctBucketsOnly(t *testing.T) {
	d := New[int](1)
	assert.Equal(t, 0, d.NumBuckets()) // empty buckets are not counted

	d.Insert(1, 1)
	d.Insert(2, 2) // forces at least one split since capacity is 1
	assert.Greater(t, d.NumBuckets(), 1)

	// Every directory slot's local depth must be <= global depth.
	for s := 0; s < len(d.dir); s++ {
		assert.LessOrEqual(t, d.LocalDepth(s), d.GlobalDepth())
	}
}

func TestDirectory_LocalDepthOutOfRange(t *testing.T) {
	d := New[int](2)
	assert.Equal(t, -1, d.LocalDepth(99))
}

func TestDirectory_OverwriteExistingKeyDoesNotSplit(t *testing.T) {
	d := New[int](2)
	d.Insert(1, 1)
	d.Insert(1, 2)
	assert.Equal(t, 1, d.NumBuckets())

	v, ok := d.Find(1)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
