package disk

import "errors"

const (
	OneKB = 1 << 10
	OneMB = 1 << 20
	OneGB = 1 << 30

	// PageSize is the build-time page size constant. 4 KiB matches the
	// spec's default; callers needing a different size recompile with a
	// different value here.
	PageSize = 4096

	// SegmentSize bounds how many pages live in one on-disk segment file
	// before a new one is opened.
	SegmentSize        = OneGB
	MaxPagesPerSegment = SegmentSize / PageSize

	// HeaderSize = flags(2) + pageID(4) + lower(2) + upper(2) + special(2) + lsn(8); see page.go offsets.
	HeaderSize = 20
	SlotSize   = 6  // 3 * uint16: offset, length, flags

	// InvalidPageID is the sentinel returned when no page/child exists.
	InvalidPageID int32 = -1

	// HeaderPageID is reserved for the (index-name -> root-page-id) table
	// used to locate a B+Tree's root on open.
	HeaderPageID uint32 = 0

	FileMode0644 = 0o644
	FileMode0664 = 0o664
	FileMode0755 = 0o755
)

var (
	ErrTupleTooLarge = errors.New("disk: tuple too large for inline storage")
	ErrNoSpace       = errors.New("disk: not enough free space on page")
	ErrBadSlot       = errors.New("disk: invalid slot index")
	ErrCorruption    = errors.New("disk: corrupt slot or tuple bounds")
	ErrWrongSize     = errors.New("disk: buffer size != PageSize")
	ErrInvalidPageID = errors.New("disk: invalid page id")
)
