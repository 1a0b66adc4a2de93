// Package heap is a minimal page-backed tuple store kept only as an
// external collaborator: something concrete for the buffer pool, lock
// manager and recovery to mutate in tests and the package example.
// It intentionally has no row/schema encoding (that is the SQL layer's
// job, out of scope here) — tuples are opaque byte slices.
package heap

import (
	"errors"
	"sync"

	"ddbstore/internal/disk"
	"ddbstore/internal/wal/record"
)

// Pool is the slice of the buffer pool a Table needs. Satisfied
// structurally by *bufferpool.Pool.
type Pool interface {
	Fetch(pageID uint32) (*disk.Page, bool)
	NewPage() (uint32, *disk.Page, bool)
	Unpin(pageID uint32, dirty bool) bool
}

// WAL is the slice of the log manager a Table needs to satisfy the
// write-ahead invariant: every tuple mutation is appended before the page
// that carries it is unpinned dirty. Satisfied structurally by
// *wal.Manager.
type WAL interface {
	Append(rec *record.Record) int64
}

// Table is an unordered sequence of heap pages. It keeps its own page
// directory in memory; a real catalog would persist this, but that is
// the SQL layer's concern.
type Table struct {
	pool Pool
	wal  WAL

	mu      sync.Mutex
	pageIDs []uint32
}

// NewTable allocates a fresh, empty table. wal may be nil, in which case
// no mutation is ever logged (useful in tests that don't exercise
// durability); the caller is then responsible for not relying on crash
// recovery for this table.
func NewTable(pool Pool, wal WAL) (*Table, error) {
	id, _, ok := pool.NewPage()
	if !ok {
		return nil, ErrPoolExhausted
	}
	// A freshly zeroed page carries no tuple yet: losing it to a crash
	// before any real mutation reaches it just reinitializes to the same
	// zero state on reload, so this one unpin needs no log record.
	pool.Unpin(id, true)
	return &Table{pool: pool, wal: wal, pageIDs: []uint32{id}}, nil
}

// OpenTable reattaches to an existing set of heap pages, e.g. after
// recovery has rebuilt the directory from the log.
func OpenTable(pool Pool, wal WAL, pageIDs []uint32) *Table {
	cp := make([]uint32, len(pageIDs))
	copy(cp, pageIDs)
	return &Table{pool: pool, wal: wal, pageIDs: cp}
}

func (t *Table) PageIDs() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint32, len(t.pageIDs))
	copy(out, t.pageIDs)
	return out
}

func (t *Table) append(rec *record.Record) int64 {
	if t.wal == nil {
		return int64(record.InvalidLSN)
	}
	return t.wal.Append(rec)
}

// Insert appends tuple to the first page with room, allocating a fresh
// page if every existing page is full. The INSERT record is appended to
// the log, and the resulting LSN stamped onto the page, before the page
// is unpinned dirty.
func (t *Table) Insert(txnID int32, prevLSN int64, tuple []byte) (TID, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pid := range t.pageIDs {
		page, ok := t.pool.Fetch(pid)
		if !ok {
			return TID{}, 0, ErrPoolExhausted
		}
		slot, err := page.InsertTuple(tuple)
		if err == nil {
			rid := TID{PageID: pid, Slot: uint16(slot)}
			lsn := t.append(&record.Record{
				Header: record.Header{TxnID: txnID, PrevLSN: int32(prevLSN), Type: record.Insert},
				RID:    record.RID{PageID: int32(pid), Slot: int32(slot)},
				Tuple:  tuple,
			})
			page.SetLSN(lsn)
			t.pool.Unpin(pid, true)
			return rid, lsn, nil
		}
		t.pool.Unpin(pid, false)
		if !errors.Is(err, disk.ErrNoSpace) {
			return TID{}, 0, err
		}
	}

	id, page, ok := t.pool.NewPage()
	if !ok {
		return TID{}, 0, ErrPoolExhausted
	}
	slot, err := page.InsertTuple(tuple)
	if err != nil {
		t.pool.Unpin(id, false)
		return TID{}, 0, err
	}
	rid := TID{PageID: id, Slot: uint16(slot)}
	lsn := t.append(&record.Record{
		Header: record.Header{TxnID: txnID, PrevLSN: int32(prevLSN), Type: record.Insert},
		RID:    record.RID{PageID: int32(id), Slot: int32(slot)},
		Tuple:  tuple,
	})
	page.SetLSN(lsn)
	t.pool.Unpin(id, true)
	t.pageIDs = append(t.pageIDs, id)
	return rid, lsn, nil
}

func (t *Table) ReadTuple(rid TID) ([]byte, error) {
	page, ok := t.pool.Fetch(rid.PageID)
	if !ok {
		return nil, ErrPoolExhausted
	}
	defer t.pool.Unpin(rid.PageID, false)
	return page.ReadTuple(int(rid.Slot))
}

// UpdateTuple overwrites rid's tuple, logging an UPDATE record (old bytes
// captured before the page is mutated, since ReadTuple aliases the page
// buffer rather than copying it) before the page is unpinned dirty.
func (t *Table) UpdateTuple(txnID int32, prevLSN int64, rid TID, tuple []byte) (int64, error) {
	page, ok := t.pool.Fetch(rid.PageID)
	if !ok {
		return 0, ErrPoolExhausted
	}
	oldView, err := page.ReadTuple(int(rid.Slot))
	if err != nil {
		t.pool.Unpin(rid.PageID, false)
		return 0, err
	}
	old := append([]byte(nil), oldView...)

	if err := page.UpdateTuple(int(rid.Slot), tuple); err != nil {
		t.pool.Unpin(rid.PageID, false)
		return 0, err
	}
	lsn := t.append(&record.Record{
		Header:   record.Header{TxnID: txnID, PrevLSN: int32(prevLSN), Type: record.Update},
		RID:      record.RID{PageID: int32(rid.PageID), Slot: int32(rid.Slot)},
		OldTuple: old,
		NewTuple: tuple,
	})
	page.SetLSN(lsn)
	t.pool.Unpin(rid.PageID, true)
	return lsn, nil
}

// DeleteTuple is an alias for MarkDeleteTuple: the page format only has
// one physical delete path (flagging the slot deleted), so there is no
// separate "apply delete" step to distinguish it from a mark-delete.
func (t *Table) DeleteTuple(txnID int32, prevLSN int64, rid TID) (int64, error) {
	return t.MarkDeleteTuple(txnID, prevLSN, rid)
}

// MarkDeleteTuple flags rid's slot deleted, logging a MARKDELETE record
// (capturing the live tuple bytes recovery needs to undo it) before the
// page is unpinned dirty.
func (t *Table) MarkDeleteTuple(txnID int32, prevLSN int64, rid TID) (int64, error) {
	page, ok := t.pool.Fetch(rid.PageID)
	if !ok {
		return 0, ErrPoolExhausted
	}
	oldView, err := page.ReadTuple(int(rid.Slot))
	if err != nil {
		t.pool.Unpin(rid.PageID, false)
		return 0, err
	}
	old := append([]byte(nil), oldView...)

	if err := page.DeleteTuple(int(rid.Slot)); err != nil {
		t.pool.Unpin(rid.PageID, false)
		return 0, err
	}
	lsn := t.append(&record.Record{
		Header: record.Header{TxnID: txnID, PrevLSN: int32(prevLSN), Type: record.MarkDelete},
		RID:    record.RID{PageID: int32(rid.PageID), Slot: int32(rid.Slot)},
		Tuple:  old,
	})
	page.SetLSN(lsn)
	t.pool.Unpin(rid.PageID, true)
	return lsn, nil
}

// RollbackDeleteTuple restores tuple over rid's slot, the exact inverse
// of MarkDeleteTuple, logging a ROLLBACKDELETE record before the page is
// unpinned dirty.
func (t *Table) RollbackDeleteTuple(txnID int32, prevLSN int64, rid TID, tuple []byte) (int64, error) {
	page, ok := t.pool.Fetch(rid.PageID)
	if !ok {
		return 0, ErrPoolExhausted
	}
	if err := page.RestoreTuple(int(rid.Slot), tuple); err != nil {
		t.pool.Unpin(rid.PageID, false)
		return 0, err
	}
	lsn := t.append(&record.Record{
		Header: record.Header{TxnID: txnID, PrevLSN: int32(prevLSN), Type: record.RollbackDelete},
		RID:    record.RID{PageID: int32(rid.PageID), Slot: int32(rid.Slot)},
		Tuple:  tuple,
	})
	page.SetLSN(lsn)
	t.pool.Unpin(rid.PageID, true)
	return lsn, nil
}
