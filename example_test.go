package ddbstore_test

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ddbstore/internal/bufferpool"
	"ddbstore/internal/btree"
	"ddbstore/internal/disk"
	"ddbstore/internal/heap"
	locking "ddbstore/internal/lock"
	"ddbstore/internal/txn"
	"ddbstore/internal/wal"
	"ddbstore/internal/wal/record"
)

// Example wires every component together the way a caller above this
// module would: a heap.Table holds rows, a btree.Tree indexes them by an
// int64 key, the lock manager gates the write under a transaction, and
// both table and tree log a mutation's record (stamping the resulting
// LSN onto the page via disk.Page.SetLSN) before unpinning it dirty.
func Example() {
	dir, err := os.MkdirTemp("", "ddbstore-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	dm := disk.NewManager()
	fs := disk.LocalFileSet{Dir: dir, Base: "segment"}

	wm, err := wal.NewManager(dm, filepath.Join(dir, "wal"), 64*1024, 50*time.Millisecond)
	if err != nil {
		panic(err)
	}
	defer wm.Close()

	pool := bufferpool.New(dm, fs, 32, wm)
	locks := locking.NewManager(false)

	table, err := heap.NewTable(pool, wm)
	if err != nil {
		panic(err)
	}
	index, err := btree.Open(pool, "by_id", btree.Int64Codec(), wm)
	if err != nil {
		panic(err)
	}

	t := txn.New()
	rid := heap.TID{PageID: 1, Slot: 0}
	if !locks.LockExclusive(t, rid) {
		panic("lock denied")
	}

	begin := wm.Append(&record.Record{Header: record.Header{TxnID: t.ID(), PrevLSN: record.InvalidLSN, Type: record.Begin}})
	t.SetPrevLSN(begin)

	tuple := []byte("alice")
	actualRID, insertLSN, err := table.Insert(t.ID(), t.PrevLSN(), tuple)
	if err != nil {
		panic(err)
	}
	t.SetPrevLSN(insertLSN)

	if err := index.Insert(1, btree.RID{PageID: actualRID.PageID, Slot: actualRID.Slot}); err != nil {
		panic(err)
	}

	commitLSN := wm.Append(&record.Record{Header: record.Header{TxnID: t.ID(), PrevLSN: int32(t.PrevLSN()), Type: record.Commit}})
	if err := wm.ForceFlush(commitLSN); err != nil {
		panic(err)
	}
	t.SetState(txn.Committed)
	locks.Unlock(t, rid)

	found, err := index.Get(1)
	if err != nil {
		panic(err)
	}
	row, err := table.ReadTuple(heap.TID{PageID: found.PageID, Slot: found.Slot})
	if err != nil {
		panic(err)
	}
	fmt.Println(string(row))
	// Output: alice
}
