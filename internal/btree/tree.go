// Package btree implements a disk-backed B+Tree index: internal pages
// hold only separator keys and child page ids, leaf pages hold keys and
// record ids, and leaves are chained left-to-right for range scans. It
// generalizes the shape of the pack's buffer-pool-backed storage (every
// page is pinned/unpinned through the same Pool a heap.Table uses) to a
// generic ordered key type via an injected KeyCodec, since the concrete
// on-disk layout needs a fixed-width encoding that Go generics alone
// cannot produce for an arbitrary cmp.Ordered type.
//
// All structural mutation (Insert, Remove) holds one tree-wide mutex
// rather than per-page crab latches: the distilled requirement is only
// that operations be linearizable with respect to each other, and a
// single mutex satisfies that with far less code to get right without a
// toolchain to verify it against. disk.Page still carries its own
// reader-writer latch field, matching the page data model, but it is not
// exercised by this coarse-grained tree.
package btree

import (
	"cmp"
	"log/slog"
	"sync"

	"ddbstore/internal/disk"
	"ddbstore/internal/wal/record"
)

// Pool is the subset of bufferpool.Pool a Tree needs: fetch, allocate,
// unpin, and deallocate pages by id.
type Pool interface {
	Fetch(pageID uint32) (*disk.Page, bool)
	NewPage() (uint32, *disk.Page, bool)
	Unpin(pageID uint32, dirty bool) bool
	Delete(pageID uint32) bool
}

// WAL is the slice of the log manager a Tree needs to satisfy the
// write-ahead invariant on its own structural mutations. Satisfied
// structurally by *wal.Manager.
type WAL interface {
	Append(rec *record.Record) int64
}

// Tree is a single named B+Tree index over a Pool. Multiple Trees can
// share one Pool (and one header page) by name, the way the spec's
// (index-name -> root-page-id) header table implies.
type Tree[K cmp.Ordered] struct {
	pool  Pool
	wal   WAL
	codec KeyCodec[K]
	name  string

	mu         sync.Mutex
	rootPageID int32
}

// Open loads (or creates) the named tree's root page id from the header
// page and returns a handle to it. An absent name starts as an empty
// tree (rootPageID == disk.InvalidPageID) and is persisted on first
// Insert. wal may be nil, disabling logging for this tree's structural
// mutations (useful in tests that don't exercise durability).
func Open[K cmp.Ordered](pool Pool, name string, codec KeyCodec[K], wal WAL) (*Tree[K], error) {
	root, err := loadRootPageID(pool, name)
	if err != nil {
		return nil, err
	}
	return &Tree[K]{pool: pool, wal: wal, codec: codec, name: name, rootPageID: root}, nil
}

func (t *Tree[K]) RootPageID() int32 { return t.rootPageID }

// writeBack appends an IndexWrite record carrying page's full
// post-mutation image, stamps the resulting LSN onto the page, and only
// then unpins it dirty. B+Tree structural mutations are whole-page
// physical rewrites of keys, children and redirect slots, coarser than
// the RID+tuple-shaped taxonomy heap.Table logs under, so the index logs
// a full image instead of a logical delta. These records carry no real
// transaction id and are never walked by crash-recovery undo: index
// structure maintenance is redo-only here, the same convention real
// ARIES implementations use for splits and merges, since physically
// reversing one is its own hazard.
func writeBack(pool Pool, w WAL, pageID uint32, page *disk.Page) {
	if w != nil {
		lsn := w.Append(&record.Record{
			Header:    record.Header{TxnID: record.InvalidTxnID, PrevLSN: record.InvalidLSN, Type: record.IndexWrite},
			RID:       record.RID{PageID: int32(pageID)},
			PageImage: append([]byte(nil), page.Buf...),
		})
		page.SetLSN(lsn)
	}
	pool.Unpin(pageID, true)
}

func (t *Tree[K]) leafMinSize() int     { return (LeafMaxSize(t.codec.Size) + 1) / 2 }
func (t *Tree[K]) internalMinSize() int { return (InternalMaxSize(t.codec.Size) + 1) / 2 }

// descend walks from the root to the leaf that would contain key,
// returning that leaf's page id. Internal pages are fetched and
// immediately unpinned since the coarse tree mutex already excludes
// concurrent structural mutation.
func (t *Tree[K]) descend(key K) (uint32, error) {
	pageID := uint32(t.rootPageID)
	for {
		page, ok := t.pool.Fetch(pageID)
		if !ok {
			return 0, ErrPoolExhausted
		}
		if isLeaf(page) {
			t.pool.Unpin(pageID, false)
			return pageID, nil
		}
		node := decodeInternal(page, t.codec)
		t.pool.Unpin(pageID, false)
		pageID = uint32(node.Children[node.findChild(key)])
	}
}

func searchLeaf[K cmp.Ordered](keys []K, key K) (idx int, found bool) {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		switch cmp.Compare(keys[mid], key) {
		case 0:
			return mid, true
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

func insertAt[T any](s []T, idx int, v T) []T {
	s = append(s, v)
	copy(s[idx+1:], s[idx:len(s)-1])
	s[idx] = v
	return s
}

func removeAt[T any](s []T, idx int) []T {
	return append(s[:idx], s[idx+1:]...)
}

// Get performs a point lookup.
func (t *Tree[K]) Get(key K) (RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == disk.InvalidPageID {
		return RID{}, ErrKeyNotFound
	}
	leafPageID, err := t.descend(key)
	if err != nil {
		return RID{}, err
	}
	page, ok := t.pool.Fetch(leafPageID)
	if !ok {
		return RID{}, ErrPoolExhausted
	}
	defer t.pool.Unpin(leafPageID, false)

	leaf := decodeLeaf(page, t.codec)
	idx, found := searchLeaf(leaf.Keys, key)
	if !found {
		return RID{}, ErrKeyNotFound
	}
	return leaf.RIDs[idx], nil
}

// Insert adds key/rid, splitting leaves and internal nodes bottom-up as
// needed. Returns ErrDuplicateKey if key already exists.
func (t *Tree[K]) Insert(key K, rid RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == disk.InvalidPageID {
		pageID, page, ok := t.pool.NewPage()
		if !ok {
			return ErrPoolExhausted
		}
		leaf := &LeafNode[K]{
			PageID:         pageID,
			ParentPageID:   disk.InvalidPageID,
			NextLeafPageID: disk.InvalidPageID,
			Keys:           []K{key},
			RIDs:           []RID{rid},
		}
		encodeLeaf(page, t.codec, leaf)
		writeBack(t.pool, t.wal, pageID, page)
		t.rootPageID = int32(pageID)
		return storeRootPageID(t.pool, t.wal, t.name, t.rootPageID)
	}

	leafPageID, err := t.descend(key)
	if err != nil {
		return err
	}

	page, ok := t.pool.Fetch(leafPageID)
	if !ok {
		return ErrPoolExhausted
	}
	leaf := decodeLeaf(page, t.codec)
	t.pool.Unpin(leafPageID, false)

	idx, found := searchLeaf(leaf.Keys, key)
	if found {
		return ErrDuplicateKey
	}
	leaf.Keys = insertAt(leaf.Keys, idx, key)
	leaf.RIDs = insertAt(leaf.RIDs, idx, rid)

	if len(leaf.Keys) <= LeafMaxSize(t.codec.Size) {
		return t.writeLeaf(leaf)
	}
	return t.splitLeaf(leaf)
}

func (t *Tree[K]) writeLeaf(n *LeafNode[K]) error {
	page, ok := t.pool.Fetch(n.PageID)
	if !ok {
		return ErrPoolExhausted
	}
	encodeLeaf(page, t.codec, n)
	writeBack(t.pool, t.wal, n.PageID, page)
	return nil
}

func (t *Tree[K]) writeInternal(n *InternalNode[K]) error {
	page, ok := t.pool.Fetch(n.PageID)
	if !ok {
		return ErrPoolExhausted
	}
	encodeInternal(page, t.codec, n)
	writeBack(t.pool, t.wal, n.PageID, page)
	return nil
}

func (t *Tree[K]) setParent(pageID uint32, parentID int32) {
	page, ok := t.pool.Fetch(pageID)
	if !ok {
		return
	}
	setParentPageID(page, parentID)
	writeBack(t.pool, t.wal, pageID, page)
}

func (t *Tree[K]) splitLeaf(leaf *LeafNode[K]) error {
	// The left leaf keeps the ceiling half, matching the spec's worked
	// example (max-leaf-size m, insert 1..m+1 -> left gets ceil((m+1)/2)).
	mid := (len(leaf.Keys) + 1) / 2

	rightPageID, rightPage, ok := t.pool.NewPage()
	if !ok {
		return ErrPoolExhausted
	}
	right := &LeafNode[K]{
		PageID:         rightPageID,
		ParentPageID:   leaf.ParentPageID,
		NextLeafPageID: leaf.NextLeafPageID,
		Keys:           append([]K(nil), leaf.Keys[mid:]...),
		RIDs:           append([]RID(nil), leaf.RIDs[mid:]...),
	}
	leaf.Keys = leaf.Keys[:mid:mid]
	leaf.RIDs = leaf.RIDs[:mid:mid]
	leaf.NextLeafPageID = int32(rightPageID)

	encodeLeaf(rightPage, t.codec, right)
	writeBack(t.pool, t.wal, rightPageID, rightPage)
	if err := t.writeLeaf(leaf); err != nil {
		return err
	}
	slog.Debug("btree.splitLeaf", "left", leaf.PageID, "right", rightPageID, "sepKey", right.Keys[0])

	return t.insertIntoParent(leaf.PageID, right.Keys[0], rightPageID, leaf.ParentPageID)
}

// insertIntoParent links a freshly split right page into leftPageID's
// parent under separator key sepKey, creating a new root if leftPageID
// was the root, and recursing upward through further splits.
func (t *Tree[K]) insertIntoParent(leftPageID uint32, sepKey K, rightPageID uint32, leftParentID int32) error {
	if leftParentID == disk.InvalidPageID {
		var zero K
		newRootID, newRootPage, ok := t.pool.NewPage()
		if !ok {
			return ErrPoolExhausted
		}
		root := &InternalNode[K]{
			PageID:       newRootID,
			ParentPageID: disk.InvalidPageID,
			Keys:         []K{zero, sepKey},
			Children:     []int32{int32(leftPageID), int32(rightPageID)},
		}
		encodeInternal(newRootPage, t.codec, root)
		writeBack(t.pool, t.wal, newRootID, newRootPage)

		t.setParent(leftPageID, int32(newRootID))
		t.setParent(rightPageID, int32(newRootID))

		t.rootPageID = int32(newRootID)
		slog.Debug("btree.newRoot", "root", newRootID, "left", leftPageID, "right", rightPageID)
		return storeRootPageID(t.pool, t.wal, t.name, t.rootPageID)
	}

	parentID := uint32(leftParentID)
	page, ok := t.pool.Fetch(parentID)
	if !ok {
		return ErrPoolExhausted
	}
	node := decodeInternal(page, t.codec)
	t.pool.Unpin(parentID, false)

	leftIdx := node.indexOfChild(int32(leftPageID))
	node.Keys = insertAt(node.Keys, leftIdx+1, sepKey)
	node.Children = insertAt(node.Children, leftIdx+1, int32(rightPageID))
	t.setParent(rightPageID, int32(parentID))

	if len(node.Keys) <= InternalMaxSize(t.codec.Size) {
		return t.writeInternal(node)
	}
	return t.splitInternal(node)
}

func (t *Tree[K]) splitInternal(node *InternalNode[K]) error {
	var zero K
	mid := len(node.Keys) / 2
	sepUp := node.Keys[mid]

	rightKeys := append([]K(nil), node.Keys[mid:]...)
	rightKeys[0] = zero
	rightChildren := append([]int32(nil), node.Children[mid:]...)

	node.Keys = node.Keys[:mid:mid]
	node.Children = node.Children[:mid:mid]

	newRightID, newRightPage, ok := t.pool.NewPage()
	if !ok {
		return ErrPoolExhausted
	}
	right := &InternalNode[K]{
		PageID:       newRightID,
		ParentPageID: node.ParentPageID,
		Keys:         rightKeys,
		Children:     rightChildren,
	}
	encodeInternal(newRightPage, t.codec, right)
	writeBack(t.pool, t.wal, newRightID, newRightPage)

	for _, c := range rightChildren {
		t.setParent(uint32(c), int32(newRightID))
	}

	if err := t.writeInternal(node); err != nil {
		return err
	}

	return t.insertIntoParent(node.PageID, sepUp, newRightID, node.ParentPageID)
}

// Remove deletes key, rebalancing via redistribution or merge when a leaf
// or internal node falls below its minimum occupancy, per the standard
// B+Tree deletion algorithm. The root is exempt from the minimum: an
// internal root that drops to a single child collapses into that child
// (adjustRoot), and a leaf root whose last entry is removed is deleted,
// leaving the tree empty.
func (t *Tree[K]) Remove(key K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rootPageID == disk.InvalidPageID {
		return ErrKeyNotFound
	}

	leafPageID, err := t.descend(key)
	if err != nil {
		return err
	}
	page, ok := t.pool.Fetch(leafPageID)
	if !ok {
		return ErrPoolExhausted
	}
	leaf := decodeLeaf(page, t.codec)
	t.pool.Unpin(leafPageID, false)

	idx, found := searchLeaf(leaf.Keys, key)
	if !found {
		return ErrKeyNotFound
	}
	leaf.Keys = removeAt(leaf.Keys, idx)
	leaf.RIDs = removeAt(leaf.RIDs, idx)

	if leaf.PageID == uint32(t.rootPageID) {
		if len(leaf.Keys) == 0 {
			t.pool.Delete(leaf.PageID)
			t.rootPageID = disk.InvalidPageID
			return storeRootPageID(t.pool, t.wal, t.name, t.rootPageID)
		}
		return t.writeLeaf(leaf)
	}
	if len(leaf.Keys) >= t.leafMinSize() {
		return t.writeLeaf(leaf)
	}
	return t.fixLeafUnderflow(leaf)
}

func (t *Tree[K]) fetchLeaf(pageID uint32) (*LeafNode[K], error) {
	page, ok := t.pool.Fetch(pageID)
	if !ok {
		return nil, ErrPoolExhausted
	}
	n := decodeLeaf(page, t.codec)
	t.pool.Unpin(pageID, false)
	return n, nil
}

func (t *Tree[K]) fetchInternal(pageID uint32) (*InternalNode[K], error) {
	page, ok := t.pool.Fetch(pageID)
	if !ok {
		return nil, ErrPoolExhausted
	}
	n := decodeInternal(page, t.codec)
	t.pool.Unpin(pageID, false)
	return n, nil
}

func (t *Tree[K]) fixLeafUnderflow(leaf *LeafNode[K]) error {
	parent, err := t.fetchInternal(uint32(leaf.ParentPageID))
	if err != nil {
		return err
	}
	idx := parent.indexOfChild(int32(leaf.PageID))

	if idx > 0 {
		left, err := t.fetchLeaf(uint32(parent.Children[idx-1]))
		if err != nil {
			return err
		}
		if len(left.Keys) > t.leafMinSize() {
			n := len(left.Keys) - 1
			movedKey, movedRID := left.Keys[n], left.RIDs[n]
			left.Keys = left.Keys[:n]
			left.RIDs = left.RIDs[:n]
			leaf.Keys = insertAt(leaf.Keys, 0, movedKey)
			leaf.RIDs = insertAt(leaf.RIDs, 0, movedRID)
			parent.Keys[idx] = movedKey
			if err := t.writeLeaf(left); err != nil {
				return err
			}
			if err := t.writeLeaf(leaf); err != nil {
				return err
			}
			return t.writeInternal(parent)
		}
	}
	if idx < len(parent.Children)-1 {
		right, err := t.fetchLeaf(uint32(parent.Children[idx+1]))
		if err != nil {
			return err
		}
		if len(right.Keys) > t.leafMinSize() {
			movedKey, movedRID := right.Keys[0], right.RIDs[0]
			right.Keys = right.Keys[1:]
			right.RIDs = right.RIDs[1:]
			leaf.Keys = append(leaf.Keys, movedKey)
			leaf.RIDs = append(leaf.RIDs, movedRID)
			parent.Keys[idx+1] = right.Keys[0]
			if err := t.writeLeaf(right); err != nil {
				return err
			}
			if err := t.writeLeaf(leaf); err != nil {
				return err
			}
			return t.writeInternal(parent)
		}
	}

	// Neither sibling can spare an entry: merge instead.
	if idx > 0 {
		left, err := t.fetchLeaf(uint32(parent.Children[idx-1]))
		if err != nil {
			return err
		}
		left.Keys = append(left.Keys, leaf.Keys...)
		left.RIDs = append(left.RIDs, leaf.RIDs...)
		left.NextLeafPageID = leaf.NextLeafPageID
		if err := t.writeLeaf(left); err != nil {
			return err
		}
		t.pool.Delete(leaf.PageID)
		parent.Keys = removeAt(parent.Keys, idx)
		parent.Children = removeAt(parent.Children, idx)
		return t.fixInternalAfterRemoval(parent)
	}

	right, err := t.fetchLeaf(uint32(parent.Children[idx+1]))
	if err != nil {
		return err
	}
	leaf.Keys = append(leaf.Keys, right.Keys...)
	leaf.RIDs = append(leaf.RIDs, right.RIDs...)
	leaf.NextLeafPageID = right.NextLeafPageID
	if err := t.writeLeaf(leaf); err != nil {
		return err
	}
	t.pool.Delete(right.PageID)
	parent.Keys = removeAt(parent.Keys, idx+1)
	parent.Children = removeAt(parent.Children, idx+1)
	return t.fixInternalAfterRemoval(parent)
}

func (t *Tree[K]) fixInternalAfterRemoval(node *InternalNode[K]) error {
	if node.PageID == uint32(t.rootPageID) {
		return t.adjustRoot(node)
	}
	if len(node.Children) >= t.internalMinSize() {
		return t.writeInternal(node)
	}
	return t.fixInternalUnderflow(node)
}

// adjustRoot collapses an internal root that has shrunk to a single
// child, promoting that child to root. A root with two or more children
// is written back unchanged: it does not violate a tree invariant.
func (t *Tree[K]) adjustRoot(root *InternalNode[K]) error {
	// This node's Size() (len(Keys), equivalently len(Children)) counts
	// the slot-0 entry, whose key is an unused sentinel but whose child
	// is real, so a root holding exactly one child reports Size() == 1.
	if len(root.Children) != 1 {
		return t.writeInternal(root)
	}
	newRootID := root.Children[0]
	t.setParent(uint32(newRootID), disk.InvalidPageID)
	t.pool.Delete(root.PageID)
	t.rootPageID = newRootID
	slog.Debug("btree.adjustRoot.collapse", "oldRoot", root.PageID, "newRoot", newRootID)
	return storeRootPageID(t.pool, t.wal, t.name, t.rootPageID)
}

func (t *Tree[K]) fixInternalUnderflow(node *InternalNode[K]) error {
	var zero K
	parent, err := t.fetchInternal(uint32(node.ParentPageID))
	if err != nil {
		return err
	}
	idx := parent.indexOfChild(int32(node.PageID))

	if idx > 0 {
		left, err := t.fetchInternal(uint32(parent.Children[idx-1]))
		if err != nil {
			return err
		}
		if len(left.Children) > t.internalMinSize() {
			n := len(left.Children) - 1
			movedChild := left.Children[n]
			movedKey := left.Keys[n]
			left.Children = left.Children[:n]
			left.Keys = left.Keys[:n]

			separator := parent.Keys[idx]
			node.Children = insertAt(node.Children, 0, movedChild)
			node.Keys = append([]K{zero, separator}, node.Keys[1:]...)
			parent.Keys[idx] = movedKey
			t.setParent(uint32(movedChild), int32(node.PageID))

			if err := t.writeInternal(left); err != nil {
				return err
			}
			if err := t.writeInternal(node); err != nil {
				return err
			}
			return t.writeInternal(parent)
		}
	}
	if idx < len(parent.Children)-1 {
		right, err := t.fetchInternal(uint32(parent.Children[idx+1]))
		if err != nil {
			return err
		}
		if len(right.Children) > t.internalMinSize() {
			movedChild := right.Children[0]
			separator := parent.Keys[idx+1]
			node.Children = append(node.Children, movedChild)
			node.Keys = append(node.Keys, separator)
			t.setParent(uint32(movedChild), int32(node.PageID))

			right.Children = right.Children[1:]
			parent.Keys[idx+1] = right.Keys[1]
			right.Keys = append([]K{zero}, right.Keys[2:]...)

			if err := t.writeInternal(right); err != nil {
				return err
			}
			if err := t.writeInternal(node); err != nil {
				return err
			}
			return t.writeInternal(parent)
		}
	}

	if idx > 0 {
		left, err := t.fetchInternal(uint32(parent.Children[idx-1]))
		if err != nil {
			return err
		}
		separator := parent.Keys[idx]
		left.Keys = append(left.Keys, append([]K{separator}, node.Keys[1:]...)...)
		left.Children = append(left.Children, node.Children...)
		for _, c := range node.Children {
			t.setParent(uint32(c), int32(left.PageID))
		}
		if err := t.writeInternal(left); err != nil {
			return err
		}
		t.pool.Delete(node.PageID)
		parent.Keys = removeAt(parent.Keys, idx)
		parent.Children = removeAt(parent.Children, idx)
		return t.fixInternalAfterRemoval(parent)
	}

	right, err := t.fetchInternal(uint32(parent.Children[idx+1]))
	if err != nil {
		return err
	}
	separator := parent.Keys[idx+1]
	node.Keys = append(node.Keys, append([]K{separator}, right.Keys[1:]...)...)
	node.Children = append(node.Children, right.Children...)
	for _, c := range right.Children {
		t.setParent(uint32(c), int32(node.PageID))
	}
	if err := t.writeInternal(node); err != nil {
		return err
	}
	t.pool.Delete(right.PageID)
	parent.Keys = removeAt(parent.Keys, idx+1)
	parent.Children = removeAt(parent.Children, idx+1)
	return t.fixInternalAfterRemoval(parent)
}
