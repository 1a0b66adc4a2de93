package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadSavePageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "segment"}
	m := NewManager()

	pageID := m.AllocatePage()
	p, err := m.LoadPage(fs, pageID)
	require.NoError(t, err)
	assert.Equal(t, pageID, p.PageID())

	_, err = p.InsertTuple([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, m.SavePage(fs, pageID, p))

	reloaded, err := m.LoadPage(fs, pageID)
	require.NoError(t, err)
	got, err := reloaded.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestManager_AllocatePageIsMonotonicAndReusesFreed(t *testing.T) {
	m := NewManager()
	a := m.AllocatePage()
	b := m.AllocatePage()
	assert.NotEqual(t, a, b)

	m.DeallocatePage(a)
	c := m.AllocatePage()
	assert.Equal(t, a, c, "deallocated page-ids should be reused before advancing the counter")
}

func TestManager_LogReadWrite(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()
	require.NoError(t, m.OpenLog(dir))
	defer m.CloseLog()

	n, err := m.WriteLog([]byte("hello-log"))
	require.NoError(t, err)
	assert.Equal(t, len("hello-log"), n)
	require.NoError(t, m.SyncLog())

	buf := make([]byte, len("hello-log"))
	ok := m.ReadLog(buf, 0)
	assert.True(t, ok)
	assert.Equal(t, "hello-log", string(buf))

	assert.False(t, m.ReadLog(make([]byte, 4), 1000))
}

type fakeWALSyncer struct {
	persistent   int64
	forceFlushed []int64
}

func (f *fakeWALSyncer) PersistentLSN() int64 { return f.persistent }
func (f *fakeWALSyncer) ForceFlush(uptoLSN int64) error {
	f.forceFlushed = append(f.forceFlushed, uptoLSN)
	f.persistent = uptoLSN
	return nil
}

func TestManager_SavePageForceFlushesStaleLSNBeforeWriteBack(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "segment"}
	m := NewManager()
	wal := &fakeWALSyncer{persistent: 0}
	m.SetWALSyncer(wal)

	pageID := m.AllocatePage()
	p, err := m.LoadPage(fs, pageID)
	require.NoError(t, err)
	p.SetLSN(42)

	require.NoError(t, m.SavePage(fs, pageID, p))
	assert.Equal(t, []int64{42}, wal.forceFlushed, "a page whose LSN exceeds what is durable must force a flush before write-back")

	wal.forceFlushed = nil
	require.NoError(t, m.SavePage(fs, pageID, p))
	assert.Empty(t, wal.forceFlushed, "a page already covered by the durable LSN must not force another flush")
}

func TestManager_SavePageSkipsWALCheckWhenNoSyncerWired(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "segment"}
	m := NewManager()

	pageID := m.AllocatePage()
	p, err := m.LoadPage(fs, pageID)
	require.NoError(t, err)
	p.SetLSN(99)

	assert.NoError(t, m.SavePage(fs, pageID, p))
}

func TestManager_CountPages(t *testing.T) {
	dir := t.TempDir()
	fs := LocalFileSet{Dir: dir, Base: "segment"}
	m := NewManager()

	n, err := m.CountPages(fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	p, err := m.LoadPage(fs, 0)
	require.NoError(t, err)
	require.NoError(t, m.SavePage(fs, 0, p))

	n, err = m.CountPages(fs)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)
}
