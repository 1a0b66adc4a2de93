package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPage_InsertReadTuple(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), p.PageID())

	s0, err := p.InsertTuple([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, s0)

	s1, err := p.InsertTuple([]byte("world!"))
	require.NoError(t, err)
	assert.Equal(t, 1, s1)

	got0, err := p.ReadTuple(s0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got0))

	got1, err := p.ReadTuple(s1)
	require.NoError(t, err)
	assert.Equal(t, "world!", string(got1))

	assert.Equal(t, 2, p.NumSlots())
}

func TestPage_UpdateTupleGrowsViaRedirect(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 1)
	require.NoError(t, err)

	slot, err := p.InsertTuple([]byte("short"))
	require.NoError(t, err)

	require.NoError(t, p.UpdateTuple(slot, []byte("a much longer replacement value")))

	got, err := p.ReadTuple(slot)
	require.NoError(t, err)
	assert.Equal(t, "a much longer replacement value", string(got))
}

func TestPage_DeleteTuple(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 1)
	require.NoError(t, err)

	slot, err := p.InsertTuple([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, p.DeleteTuple(slot))

	_, err = p.ReadTuple(slot)
	assert.ErrorIs(t, err, ErrBadSlot)
}

func TestPage_LSNPersistsAcrossReload(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 1)
	require.NoError(t, err)

	p.SetLSN(42)
	assert.Equal(t, int64(42), p.LSN())

	// Simulate a fresh Page wrapping the same bytes after eviction/reload.
	reloaded := &Page{Buf: p.Buf}
	reloaded.hydrateLSN()
	assert.Equal(t, int64(42), reloaded.LSN())
}

func TestPage_FreeSpaceShrinksOnInsert(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 1)
	require.NoError(t, err)

	before := p.FreeSpace()
	_, err = p.InsertTuple(make([]byte, 100))
	require.NoError(t, err)
	after := p.FreeSpace()

	assert.Equal(t, before-100-SlotSize, after)
}

func TestPage_InsertTooLargeFails(t *testing.T) {
	buf := make([]byte, PageSize)
	p, err := NewPage(buf, 1)
	require.NoError(t, err)

	_, err = p.InsertTuple(make([]byte, PageSize))
	assert.ErrorIs(t, err, ErrTupleTooLarge)
}
