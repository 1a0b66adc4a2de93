package btree

import (
	"cmp"

	"ddbstore/internal/bx"
	"ddbstore/internal/disk"
)

// B+Tree pages reuse disk.Page as a raw fixed-size buffer but bypass its
// slotted tuple API entirely: that API is shaped for heap tuples (variable
// length, grow-from-the-top, redirect-on-update) while an index page needs
// a sorted, fixed-stride array of same-size entries it can binary-search
// and shift in place. Both node kinds share a small common header written
// directly into Buf starting right after disk.HeaderSize:
//
//	20: pageType  uint8
//	21: pad       uint8
//	22: size      uint16  (number of live entries)
//	24: maxSize   uint16  (capacity before a split is required)
//	26: parentPageID int32  (disk.InvalidPageID at the root)
//	30: (leaf only) nextLeafPageID int32
//	30 or 34: entries, sorted ascending by key
//
// Leaf entries are key|RID; internal entries are key|childPageID, where
// an internal node's entry 0 key is unused (the separator convention:
// child i holds keys in [key(i), key(i+1)) for i>0, and everything below
// key(1) for i==0).
const (
	offPageType      = 20
	offPad           = 21
	offSize          = 22
	offMaxSize       = 24
	offParentPageID  = 26
	leafEntriesStart = 34
	offNextLeaf      = 30
	internalEntriesStart = 30
)

const (
	pageTypeLeaf     uint8 = 1
	pageTypeInternal uint8 = 2
)

// RID is the on-disk leaf payload: a page id plus a slot index into that
// page's slot array, matching heap.TID's shape exactly (so leaf entries
// convert to/from heap.TID with a field copy, no translation).
type RID struct {
	PageID uint32
	Slot   uint16
}

func leafEntrySize(keySize int) int     { return keySize + ridSize }
func internalEntrySize(keySize int) int { return keySize + 4 }

// LeafMaxSize returns the entry capacity of a leaf page for the given key
// size, reserving one slot so an over-full insert can be detected before
// it corrupts the page, per the spec's "one slot reserved for overflow
// detection before a split" requirement.
func LeafMaxSize(keySize int) int {
	capacity := (disk.PageSize - leafEntriesStart) / leafEntrySize(keySize)
	return capacity - 1
}

// InternalMaxSize returns the child-pointer capacity of an internal page.
// Internal pages are not given a reserved overflow slot: the spec singles
// out leaf splits for that treatment and says nothing about internal
// pages needing it, so the full physical capacity is usable.
func InternalMaxSize(keySize int) int {
	return (disk.PageSize - internalEntriesStart) / internalEntrySize(keySize)
}

func pageType(p *disk.Page) uint8 { return p.Buf[offPageType] }
func setPageType(p *disk.Page, t uint8) { p.Buf[offPageType] = t }

func nodeSize(p *disk.Page) int     { return int(bx.U16At(p.Buf, offSize)) }
func setNodeSize(p *disk.Page, n int) { bx.PutU16At(p.Buf, offSize, uint16(n)) }

func nodeMaxSize(p *disk.Page) int     { return int(bx.U16At(p.Buf, offMaxSize)) }
func setNodeMaxSize(p *disk.Page, n int) { bx.PutU16At(p.Buf, offMaxSize, uint16(n)) }

func parentPageID(p *disk.Page) int32     { return bx.I32At(p.Buf, offParentPageID) }
func setParentPageID(p *disk.Page, id int32) { bx.PutI32At(p.Buf, offParentPageID, id) }

func nextLeafPageID(p *disk.Page) int32     { return bx.I32At(p.Buf, offNextLeaf) }
func setNextLeafPageID(p *disk.Page, id int32) { bx.PutI32At(p.Buf, offNextLeaf, id) }

func isLeaf(p *disk.Page) bool { return pageType(p) == pageTypeLeaf }

// LeafNode is the decoded in-memory view of a leaf page. Mutations go
// through Keys/RIDs and are written back wholesale with encodeLeaf, rather
// than shifting bytes in place, since every mutating path (insert, remove,
// split, merge, redistribute) already needs the whole sorted entry list in
// hand to decide what goes where.
type LeafNode[K cmp.Ordered] struct {
	PageID         uint32
	ParentPageID   int32
	NextLeafPageID int32
	Keys           []K
	RIDs           []RID
}

func decodeLeaf[K cmp.Ordered](p *disk.Page, codec KeyCodec[K]) *LeafNode[K] {
	n := nodeSize(p)
	entrySize := leafEntrySize(codec.Size)
	keys := make([]K, n)
	rids := make([]RID, n)
	for i := 0; i < n; i++ {
		off := leafEntriesStart + i*entrySize
		keys[i] = codec.Decode(p.Buf[off : off+codec.Size])
		pageID, slot := decodeRID(p.Buf[off+codec.Size : off+entrySize])
		rids[i] = RID{PageID: pageID, Slot: slot}
	}
	return &LeafNode[K]{
		PageID:         p.PageID(),
		ParentPageID:   parentPageID(p),
		NextLeafPageID: nextLeafPageID(p),
		Keys:           keys,
		RIDs:           rids,
	}
}

func encodeLeaf[K cmp.Ordered](p *disk.Page, codec KeyCodec[K], n *LeafNode[K]) {
	setPageType(p, pageTypeLeaf)
	setNodeSize(p, len(n.Keys))
	setNodeMaxSize(p, LeafMaxSize(codec.Size))
	setParentPageID(p, n.ParentPageID)
	setNextLeafPageID(p, n.NextLeafPageID)

	entrySize := leafEntrySize(codec.Size)
	for i := range n.Keys {
		off := leafEntriesStart + i*entrySize
		copy(p.Buf[off:off+codec.Size], codec.Encode(n.Keys[i]))
		encodeRID(n.RIDs[i].PageID, n.RIDs[i].Slot, p.Buf[off+codec.Size:off+entrySize])
	}
}

// InternalNode is the decoded in-memory view of an internal page.
// Children[i] holds keys < Keys[i+1] and >= Keys[i] for i>0, and every key
// below Keys[1] for i==0; Keys[0] is unused and kept zero.
type InternalNode[K cmp.Ordered] struct {
	PageID       uint32
	ParentPageID int32
	Keys         []K
	Children     []int32
}

func decodeInternal[K cmp.Ordered](p *disk.Page, codec KeyCodec[K]) *InternalNode[K] {
	n := nodeSize(p)
	entrySize := internalEntrySize(codec.Size)
	keys := make([]K, n)
	children := make([]int32, n)
	for i := 0; i < n; i++ {
		off := internalEntriesStart + i*entrySize
		keys[i] = codec.Decode(p.Buf[off : off+codec.Size])
		children[i] = bx.I32At(p.Buf, off+codec.Size)
	}
	return &InternalNode[K]{
		PageID:       p.PageID(),
		ParentPageID: parentPageID(p),
		Keys:         keys,
		Children:     children,
	}
}

func encodeInternal[K cmp.Ordered](p *disk.Page, codec KeyCodec[K], n *InternalNode[K]) {
	setPageType(p, pageTypeInternal)
	setNodeSize(p, len(n.Keys))
	setNodeMaxSize(p, InternalMaxSize(codec.Size))
	setParentPageID(p, n.ParentPageID)

	entrySize := internalEntrySize(codec.Size)
	for i := range n.Keys {
		off := internalEntriesStart + i*entrySize
		copy(p.Buf[off:off+codec.Size], codec.Encode(n.Keys[i]))
		bx.PutI32At(p.Buf, off+codec.Size, n.Children[i])
	}
}

// findChild returns the index of the child to descend into for key,
// i.e. the largest i such that Keys[i] <= key (i=0 always qualifies
// since Keys[0] is the unused lower-bound separator).
func (n *InternalNode[K]) findChild(key K) int {
	idx := 0
	for i := 1; i < len(n.Keys); i++ {
		if cmp.Compare(n.Keys[i], key) <= 0 {
			idx = i
		} else {
			break
		}
	}
	return idx
}

// indexOfChild returns the slot holding childPageID, or -1.
func (n *InternalNode[K]) indexOfChild(childPageID int32) int {
	for i, c := range n.Children {
		if c == childPageID {
			return i
		}
	}
	return -1
}
