package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddbstore/internal/bufferpool"
	"ddbstore/internal/disk"
	"ddbstore/internal/wal"
	"ddbstore/internal/wal/record"
)

// TestRecovery_RedoBothInsertsUndoUncommitted mirrors the spec's
// concrete recovery scenario: BEGIN T1, INSERT T1 rid=(5,0) "x", COMMIT
// T1, BEGIN T2, INSERT T2 rid=(5,1) "y", crash. Redo applies both
// inserts; undo removes rid=(5,1) since T2 never committed.
func TestRecovery_RedoBothInsertsUndoUncommitted(t *testing.T) {
	dir := t.TempDir()
	fs := disk.LocalFileSet{Dir: dir, Base: "segment"}
	dm := disk.NewManager()

	walDir := dir + "/wal"
	wm, err := wal.NewManager(dm, walDir, 4096, 50*time.Millisecond)
	require.NoError(t, err)

	begin1 := wm.Append(&record.Record{Header: record.Header{TxnID: 1, PrevLSN: record.InvalidLSN, Type: record.Begin}})
	insert1 := wm.Append(&record.Record{
		Header: record.Header{TxnID: 1, PrevLSN: int32(begin1), Type: record.Insert},
		RID:    record.RID{PageID: 5, Slot: 0},
		Tuple:  []byte("x"),
	})
	wm.Append(&record.Record{Header: record.Header{TxnID: 1, PrevLSN: int32(insert1), Type: record.Commit}})

	begin2 := wm.Append(&record.Record{Header: record.Header{TxnID: 2, PrevLSN: record.InvalidLSN, Type: record.Begin}})
	lastLSN := wm.Append(&record.Record{
		Header: record.Header{TxnID: 2, PrevLSN: int32(begin2), Type: record.Insert},
		RID:    record.RID{PageID: 5, Slot: 1},
		Tuple:  []byte("y"),
	})
	require.NoError(t, wm.ForceFlush(lastLSN))
	require.NoError(t, wm.Close()) // simulates the crash: no further writes

	// Bring up a fresh pool over the same data, with page 5 pre-allocated
	// on disk (as it would be from the original run before the crash).
	pool := bufferpool.New(dm, fs, 4, nil)
	seed, _ := disk.NewPage(make([]byte, disk.PageSize), 5)
	require.NoError(t, dm.SavePage(fs, 5, seed))

	r := New(pool, wm.Path())
	require.NoError(t, r.Run())

	page, ok := pool.Fetch(5)
	require.True(t, ok)
	defer pool.Unpin(5, false)

	got, err := page.ReadTuple(0)
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))

	_, err = page.ReadTuple(1)
	assert.ErrorIs(t, err, disk.ErrBadSlot, "rid (5,1) should have been undone since T2 never committed")
}
