package disk

import (
	"sync"
	"sync/atomic"

	"ddbstore/internal/bx"
)

// Header offsets.
const (
	offFlags   = 0
	offPageID  = 2
	offLower   = 6
	offUpper   = 8
	offSpecial = 10
	offLSN     = 12
)

// Slot flags.
const (
	SlotFlagNormal  uint16 = 0
	SlotFlagDeleted uint16 = 1 << 0
	SlotFlagMoved   uint16 = 1 << 1
)

type Slot struct {
	Offset uint16
	Length uint16
	Flags  uint16
}

// Page is a fixed-size, slotted-layout unit of disk and buffer transfer:
//
//	+------------------+ 0
//	| flags/pageID/LSN |
//	| lower/upper/...  |
//	| slot array       | <- grows down from lower
//	+------------------+ <-- pd_lower
//	|   free space     |
//	+------------------+ <-- pd_upper
//	|   tuple bytes    | <- grows up from PageSize towards lower
//	+------------------+ PageSize
//
// Page also carries the out-of-band metadata the spec assigns to a page:
// page-LSN (durable ordering) and a reader-writer latch for physical
// consistency during structural mutation. Pin-count and the dirty flag are
// NOT stored here — they belong to the buffer pool's frame bookkeeping,
// which is serialized by the pool's own mutex.
type Page struct {
	Buf   []byte // exactly PageSize bytes
	Latch sync.RWMutex

	lsn atomic.Int64
}

func NewPage(buf []byte, pageID uint32) (*Page, error) {
	if len(buf) != PageSize {
		return nil, ErrWrongSize
	}
	p := &Page{Buf: buf}
	p.init(pageID)
	return p, nil
}

func (p *Page) flags() uint16     { return bx.U16At(p.Buf, offFlags) }
func (p *Page) setFlags(v uint16) { bx.PutU16At(p.Buf, offFlags, v) }

func (p *Page) PageID() uint32 { return bx.U32At(p.Buf, offPageID) }
func (p *Page) setPageID(v uint32) { bx.PutU32At(p.Buf, offPageID, v) }

func (p *Page) lower() uint16     { return bx.U16At(p.Buf, offLower) }
func (p *Page) setLower(v uint16) { bx.PutU16At(p.Buf, offLower, v) }

func (p *Page) upper() uint16     { return bx.U16At(p.Buf, offUpper) }
func (p *Page) setUpper(v uint16) { bx.PutU16At(p.Buf, offUpper, v) }

func (p *Page) special() uint16     { return bx.U16At(p.Buf, offSpecial) }
func (p *Page) setSpecial(v uint16) { bx.PutU16At(p.Buf, offSpecial, v) }

// LSN returns the page-LSN of the most recent log record that modified this
// page's bytes. It is persisted in the header (offLSN) so it survives
// eviction and reload; hydrateLSN primes the in-memory cache after a read
// from disk, and SetLSN keeps both copies in lockstep on every write.
func (p *Page) LSN() int64 { return p.lsn.Load() }

func (p *Page) SetLSN(lsn int64) {
	p.lsn.Store(lsn)
	bx.PutU64(p.Buf[offLSN:offLSN+8], uint64(lsn))
}

func (p *Page) hydrateLSN() { p.lsn.Store(bx.I64(p.Buf[offLSN : offLSN+8])) }

func (p *Page) init(pageID uint32) {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
	p.setFlags(0)
	p.setPageID(pageID)
	p.setLower(HeaderSize)
	p.setUpper(PageSize)
	p.setSpecial(PageSize)
	p.lsn.Store(0)
}

// Reset re-initializes the page in place, discarding all slots and tuples.
func (p *Page) Reset(pageID uint32) { p.init(pageID) }

func (p *Page) FreeSpace() int { return int(p.upper() - p.lower()) }

func (p *Page) NumSlots() int { return int(p.lower()-HeaderSize) / SlotSize }

func (p *Page) IsUninitialized() bool { return p.lower() == 0 && p.upper() == 0 }

func (p *Page) slotOff(idx int) int { return HeaderSize + idx*SlotSize }

func (p *Page) getSlot(i int) (Slot, error) {
	if i < 0 || i >= p.NumSlots() {
		return Slot{}, ErrBadSlot
	}
	o := p.slotOff(i)
	if o+SlotSize > int(p.lower()) {
		return Slot{}, ErrCorruption
	}
	return Slot{
		Offset: bx.U16At(p.Buf, o+0),
		Length: bx.U16At(p.Buf, o+2),
		Flags:  bx.U16At(p.Buf, o+4),
	}, nil
}

func (p *Page) putSlot(idx int, s Slot) error {
	if idx < 0 || idx > p.NumSlots() {
		return ErrBadSlot
	}
	off := p.slotOff(idx)
	if idx == p.NumSlots() && off+SlotSize > int(p.upper()) {
		return ErrNoSpace
	}
	if off+SlotSize > len(p.Buf) {
		return ErrCorruption
	}
	bx.PutU16At(p.Buf, off+0, s.Offset)
	bx.PutU16At(p.Buf, off+2, s.Length)
	bx.PutU16At(p.Buf, off+4, s.Flags)
	return nil
}

func (p *Page) appendSlot(off, length, flags uint16) (int, error) {
	i := p.NumSlots()
	if err := p.putSlot(i, Slot{Offset: off, Length: length, Flags: flags}); err != nil {
		return -1, err
	}
	p.setLower(p.lower() + SlotSize)
	return i, nil
}

func (p *Page) markRedirect(oldIdx, newIdx int) error {
	return p.putSlot(oldIdx, Slot{Offset: uint16(newIdx), Length: 0, Flags: SlotFlagMoved})
}

// InsertTuple appends an opaque byte tuple and returns its slot index.
func (p *Page) InsertTuple(tup []byte) (slot int, err error) {
	maxInline := PageSize - HeaderSize - SlotSize
	if len(tup) > maxInline {
		return -1, ErrTupleTooLarge
	}
	need := len(tup) + SlotSize
	if p.FreeSpace() < need {
		return -1, ErrNoSpace
	}
	u := int(p.upper()) - len(tup)
	copy(p.Buf[u:], tup)
	p.setUpper(uint16(u))
	return p.appendSlot(uint16(u), uint16(len(tup)), SlotFlagNormal)
}

// ReadTuple follows SlotFlagMoved redirects until it reaches live tuple
// bytes; UpdateTuple writes such a redirect when the new tuple does not
// fit in the old slot.
func (p *Page) ReadTuple(slot int) ([]byte, error) {
	visited := 0
	for {
		s, err := p.getSlot(slot)
		if err != nil {
			return nil, err
		}
		switch s.Flags {
		case SlotFlagNormal:
			if s.Offset == 0 || s.Length == 0 {
				return nil, ErrCorruption
			}
			start, end := int(s.Offset), int(s.Offset)+int(s.Length)
			if start < int(p.upper()) || end > PageSize || start >= end {
				return nil, ErrCorruption
			}
			return p.Buf[start:end], nil
		case SlotFlagMoved:
			if s.Length != 0 || s.Offset == 0 {
				return nil, ErrCorruption
			}
			slot = int(s.Offset)
			visited++
			if visited > p.NumSlots() {
				return nil, ErrCorruption
			}
		case SlotFlagDeleted:
			return nil, ErrBadSlot
		default:
			return nil, ErrCorruption
		}
	}
}

func (p *Page) UpdateTuple(slot int, newTuple []byte) error {
	s, err := p.getSlot(slot)
	if err != nil {
		return err
	}
	if s.Flags != SlotFlagNormal || s.Offset == 0 || s.Length == 0 {
		return ErrBadSlot
	}
	if len(newTuple) <= int(s.Length) {
		copy(p.Buf[int(s.Offset):], newTuple)
		return p.putSlot(slot, Slot{Offset: s.Offset, Length: uint16(len(newTuple)), Flags: SlotFlagNormal})
	}
	newSlot, err := p.InsertTuple(newTuple)
	if err != nil {
		return err
	}
	return p.markRedirect(slot, newSlot)
}

// RestoreTuple unconditionally rewrites slot to point at a fresh copy of
// tup, clearing any Deleted/Moved flag. Used by recovery to undo a
// mark-delete/apply-delete or to redo/undo an update, where the slot's
// current flags cannot be trusted to be SlotFlagNormal the way
// UpdateTuple requires.
func (p *Page) RestoreTuple(slot int, tup []byte) error {
	if _, err := p.getSlot(slot); err != nil {
		return err
	}
	if p.FreeSpace() < len(tup) {
		return ErrNoSpace
	}
	u := int(p.upper()) - len(tup)
	copy(p.Buf[u:], tup)
	p.setUpper(uint16(u))
	return p.putSlot(slot, Slot{Offset: uint16(u), Length: uint16(len(tup)), Flags: SlotFlagNormal})
}

func (p *Page) DeleteTuple(slot int) error {
	if _, err := p.getSlot(slot); err != nil {
		return err
	}
	return p.putSlot(slot, Slot{Offset: 0, Length: 0, Flags: SlotFlagDeleted})
}
