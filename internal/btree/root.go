package btree

import (
	"ddbstore/internal/bx"
	"ddbstore/internal/disk"
)

// Page disk.HeaderPageID (0) holds the (index-name -> root-page-id) table
// every Tree consults on Open. It is a perfectly ordinary heap-style page,
// so it reuses disk.Page's existing slotted tuple API rather than a
// purpose-built catalog: one tuple per index, [nameLen:u16][name][root:i32],
// found by a linear scan over its (small) slot array. This is intentionally
// not a general catalog; a handful of named indexes is the expected scale.
func loadRootPageID(pool Pool, name string) (int32, error) {
	page, ok := pool.Fetch(disk.HeaderPageID)
	if !ok {
		return 0, ErrPoolExhausted
	}
	defer pool.Unpin(disk.HeaderPageID, false)

	for i := 0; i < page.NumSlots(); i++ {
		tup, err := page.ReadTuple(i)
		if err != nil {
			continue
		}
		n, root, ok := decodeRootEntry(tup)
		if ok && n == name {
			return root, nil
		}
	}
	return disk.InvalidPageID, nil
}

func storeRootPageID(pool Pool, wal WAL, name string, root int32) error {
	page, ok := pool.Fetch(disk.HeaderPageID)
	if !ok {
		return ErrPoolExhausted
	}

	for i := 0; i < page.NumSlots(); i++ {
		tup, err := page.ReadTuple(i)
		if err != nil {
			continue
		}
		if n, _, ok := decodeRootEntry(tup); ok && n == name {
			if err := page.UpdateTuple(i, encodeRootEntry(name, root)); err != nil {
				pool.Unpin(disk.HeaderPageID, false)
				return err
			}
			writeBack(pool, wal, disk.HeaderPageID, page)
			return nil
		}
	}
	if _, err := page.InsertTuple(encodeRootEntry(name, root)); err != nil {
		pool.Unpin(disk.HeaderPageID, false)
		return err
	}
	writeBack(pool, wal, disk.HeaderPageID, page)
	return nil
}

func encodeRootEntry(name string, root int32) []byte {
	buf := make([]byte, 2+len(name)+4)
	bx.PutU16(buf, uint16(len(name)))
	copy(buf[2:], name)
	bx.PutI32(buf[2+len(name):], root)
	return buf
}

func decodeRootEntry(tup []byte) (name string, root int32, ok bool) {
	if len(tup) < 6 {
		return "", 0, false
	}
	n := int(bx.U16(tup))
	if len(tup) != 2+n+4 {
		return "", 0, false
	}
	return string(tup[2 : 2+n]), bx.I32(tup[2+n:]), true
}
