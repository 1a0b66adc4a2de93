// Package disk is the Disk Manager collaborator: fixed-size page I/O,
// page-id allocation, and append-only log file I/O. Everything above this
// package (buffer pool, B+Tree, heap, WAL) reaches disk only through here.
package disk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet is a local directory + base file name; segments are stored
// as Base, Base.1, Base.2, ...
type LocalFileSet struct {
	Dir  string
	Base string
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	name := SegFileName(lfs.Base, segNo)
	path := filepath.Join(lfs.Dir, name)
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
}

// FsKeyOf returns a stable cache key for a FileSet, for callers that need
// to tag frames by relation.
func FsKeyOf(fs FileSet) (string, LocalFileSet, bool) {
	lfs, ok := fs.(LocalFileSet)
	if !ok {
		return "", LocalFileSet{}, false
	}
	dir := filepath.Clean(lfs.Dir)
	return dir + "|" + lfs.Base, LocalFileSet{Dir: dir, Base: lfs.Base}, true
}

// WALSyncer lets the Disk Manager enforce the write-ahead invariant at
// the one place it actually matters: the moment a page's bytes reach
// disk. A page carries the LSN of the last log record that modified it
// (disk.Page.LSN); that record must be durable before the page itself
// is allowed to be durable. The buffer pool wires its log manager in
// via SetWALSyncer so every SavePage call honors this, not only the
// ones reached through the pool's own eviction path.
type WALSyncer interface {
	PersistentLSN() int64
	ForceFlush(uptoLSN int64) error
}

// Manager is the Disk Manager: it maps a logical pageID to (segment,
// offset) within a FileSet, allocates fresh page-ids, and owns the
// append-only log file used by the Log Manager.
type Manager struct {
	nextPageID atomic.Uint32

	freeMu sync.Mutex
	free   []uint32

	logMu   sync.Mutex
	logFile *os.File

	walMu sync.RWMutex
	wal   WALSyncer
}

func NewManager() *Manager {
	m := &Manager{}
	m.nextPageID.Store(uint32(HeaderPageID) + 1)
	return m
}

// SetWALSyncer wires w into the manager so SavePage force-flushes the log
// before writing back a page whose LSN has not yet been made durable.
// Passing nil (the default) disables the check entirely, which is useful
// for tests that never touch the log.
func (m *Manager) SetWALSyncer(w WALSyncer) {
	m.walMu.Lock()
	m.wal = w
	m.walMu.Unlock()
}

func (m *Manager) walSyncer() WALSyncer {
	m.walMu.RLock()
	defer m.walMu.RUnlock()
	return m.wal
}

func pagesPerSegment() int { return SegmentSize / PageSize }

func locate(pageID uint32) (segNo int32, offset int32) {
	pps := pagesPerSegment()
	segNo = int32(pageID) / int32(pps)
	pageInSeg := int32(pageID) % int32(pps)
	offset = pageInSeg * PageSize
	return segNo, offset
}

// AllocatePage hands out a fresh page-id, reusing a deallocated one if
// available before advancing the monotonic counter.
func (m *Manager) AllocatePage() uint32 {
	m.freeMu.Lock()
	if n := len(m.free); n > 0 {
		id := m.free[n-1]
		m.free = m.free[:n-1]
		m.freeMu.Unlock()
		return id
	}
	m.freeMu.Unlock()
	return m.nextPageID.Add(1) - 1
}

// DeallocatePage returns a page-id to the free list for future reuse.
func (m *Manager) DeallocatePage(pageID uint32) {
	m.freeMu.Lock()
	m.free = append(m.free, pageID)
	m.freeMu.Unlock()
}

// ReadPage reads exactly PageSize bytes into dst, zero-filling past EOF so
// never-written pages read back as zero.
func (m *Manager) ReadPage(fs FileSet, pageID uint32, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("disk: dst must be exactly %d bytes", PageSize)
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.ReadAt(dst, int64(off))
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

func (m *Manager) WritePage(fs FileSet, pageID uint32, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("disk: src must be exactly %d bytes", PageSize)
	}
	segNo, off := locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.WriteAt(src, int64(off))
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page into memory. A page whose on-disk bytes are all
// zero is treated as uninitialized and gets its header stamped with
// pageID.
func (m *Manager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	buf := make([]byte, PageSize)
	if err := m.ReadPage(fs, pageID, buf); err != nil {
		return nil, err
	}
	p := &Page{Buf: buf}
	if p.IsUninitialized() {
		p.init(pageID)
	} else {
		p.hydrateLSN()
	}
	return p, nil
}

// SavePage writes p back to fs. If a WALSyncer is wired in and p's
// page-LSN is newer than what the log has made durable, the log is
// force-flushed up to that LSN first: the page's bytes may not reach
// disk ahead of the record that describes how they got that way.
func (m *Manager) SavePage(fs FileSet, pageID uint32, p *Page) error {
	if len(p.Buf) != PageSize {
		return fmt.Errorf("disk: page buffer must be %d bytes", PageSize)
	}
	if w := m.walSyncer(); w != nil {
		if lsn := p.LSN(); lsn > w.PersistentLSN() {
			if err := w.ForceFlush(lsn); err != nil {
				return err
			}
		}
	}
	return m.WritePage(fs, pageID, p.Buf)
}

// CountPages scans the segments of fs in order and returns the total page
// count. The scan stops at the first segment that is missing or empty.
func (m *Manager) CountPages(fs FileSet) (uint32, error) {
	var total uint32
	for segNo := int32(0); ; segNo++ {
		f, err := fs.OpenSegment(segNo)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		info, statErr := f.Stat()
		_ = f.Close()
		if statErr != nil {
			return 0, statErr
		}
		if info.Size() <= 0 {
			break
		}
		total += uint32(info.Size() / int64(PageSize))
	}
	return total, nil
}

// OpenLog opens (creating if needed) the append-only log file used by the
// Log Manager. Only one log file is open per Manager.
func (m *Manager) OpenLog(dir string) error {
	if err := os.MkdirAll(dir, FileMode0755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "wal.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, FileMode0644)
	if err != nil {
		return err
	}
	m.logMu.Lock()
	m.logFile = f
	m.logMu.Unlock()
	return nil
}

// WriteLog appends all of buf to the log file and returns the
// number of bytes written.
func (m *Manager) WriteLog(buf []byte) (int, error) {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if m.logFile == nil {
		return 0, fmt.Errorf("disk: log file not open")
	}
	return m.logFile.Write(buf)
}

// ReadLog reads len(buf) bytes at offset from the log file, reporting
// whether a full read succeeded.
func (m *Manager) ReadLog(buf []byte, offset int64) bool {
	m.logMu.Lock()
	f := m.logFile
	m.logMu.Unlock()
	if f == nil {
		return false
	}
	n, err := f.ReadAt(buf, offset)
	return err == nil && n == len(buf)
}

// SyncLog fsyncs the log file, making everything written so far durable.
func (m *Manager) SyncLog() error {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if m.logFile == nil {
		return nil
	}
	return m.logFile.Sync()
}

func (m *Manager) CloseLog() error {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	if m.logFile == nil {
		return nil
	}
	err := m.logFile.Close()
	m.logFile = nil
	return err
}
