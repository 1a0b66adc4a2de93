// Package locking implements per-record S/X locking with wait-die
// deadlock avoidance and an optional strict-2PL unlock guard. It has no
// teacher file to generalize (the pack carries no lock manager); the
// control flow is grounded directly on the distilled spec's wait-die
// description and its condition-variable concurrency model, alongside
// the teacher's orphaned pin-count primitive (refcount.go) which this
// package now puts to use backing the buffer pool's frame pin-count.
package locking

import (
	"sync"

	"ddbstore/internal/heap"
	"ddbstore/internal/txn"
)

// Manager grants and revokes S/X locks on heap.TID record-ids. Every
// wait blocks on the same condition variable; grants broadcast to all
// waiters because heterogeneous queues make targeted wakeups unsafe.
type Manager struct {
	mu        sync.Mutex
	cv        *sync.Cond
	strict2PL bool
	table     map[heap.TID]*lockRequest
}

func NewManager(strict2PL bool) *Manager {
	m := &Manager{
		strict2PL: strict2PL,
		table:     make(map[heap.TID]*lockRequest),
	}
	m.cv = sync.NewCond(&m.mu)
	return m
}

// LockShared acquires a shared lock on rid for t, blocking if necessary.
// Returns false if wait-die aborts t.
func (m *Manager) LockShared(t *txn.Transaction, rid heap.TID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lr, ok := m.table[rid]
	if !ok {
		lr = newLockRequest()
		m.table[rid] = lr
	}

	if len(lr.granted) == 0 {
		lr.mode = Shared
		lr.granted[t.ID()] = &request{txn: t, mode: Shared, granted: true}
		lr.oldestGranted = t.ID()
		t.AddSharedLock(rid)
		return true
	}
	if lr.mode == Shared {
		lr.granted[t.ID()] = &request{txn: t, mode: Shared, granted: true}
		if t.ID() < lr.oldestGranted {
			lr.oldestGranted = t.ID()
		}
		t.AddSharedLock(rid)
		return true
	}

	// Exclusive is held: wait-die against the sole holder.
	if t.ID() > lr.oldestGranted {
		t.SetState(txn.Aborted)
		return false
	}
	req := &request{txn: t, mode: Shared}
	lr.queue = append(lr.queue, req)
	if !m.waitFor(t, req) {
		lr.removeFromQueue(req)
		return false
	}
	t.AddSharedLock(rid)
	return true
}

// LockExclusive acquires an exclusive lock on rid for t, blocking if
// necessary. Returns false if wait-die aborts t.
func (m *Manager) LockExclusive(t *txn.Transaction, rid heap.TID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lr, ok := m.table[rid]
	if !ok {
		lr = newLockRequest()
		m.table[rid] = lr
	}

	if len(lr.granted) == 0 {
		lr.mode = Exclusive
		lr.granted[t.ID()] = &request{txn: t, mode: Exclusive, granted: true}
		lr.oldestGranted = t.ID()
		t.AddExclusiveLock(rid)
		return true
	}
	if lr.anyGrantedOlderThan(t.ID()) {
		t.SetState(txn.Aborted)
		return false
	}
	req := &request{txn: t, mode: Exclusive}
	lr.queue = append(lr.queue, req)
	if !m.waitFor(t, req) {
		lr.removeFromQueue(req)
		return false
	}
	t.AddExclusiveLock(rid)
	return true
}

// LockUpgrade promotes t's shared lock on rid to exclusive. t must
// currently hold the shared lock.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid heap.TID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lr, ok := m.table[rid]
	if !ok || !t.HasShared(rid) {
		return false
	}

	if len(lr.granted) == 1 {
		lr.mode = Exclusive
		t.RemoveSharedLock(rid)
		t.AddExclusiveLock(rid)
		return true
	}

	delete(lr.granted, t.ID())
	lr.recomputeOldest()
	t.RemoveSharedLock(rid)

	req := &request{txn: t, mode: Exclusive}
	lr.queue = append([]*request{req}, lr.queue...)
	if !m.waitFor(t, req) {
		lr.removeFromQueue(req)
		return false
	}
	t.AddExclusiveLock(rid)
	return true
}

// Unlock releases t's lock on rid. Under strict 2PL, unlock is rejected
// unless t has already committed or aborted.
func (m *Manager) Unlock(t *txn.Transaction, rid heap.TID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lr, ok := m.table[rid]
	if !ok {
		return false
	}
	if m.strict2PL {
		s := t.State()
		if s != txn.Committed && s != txn.Aborted {
			return false
		}
	}
	if _, held := lr.granted[t.ID()]; !held {
		return false
	}

	delete(lr.granted, t.ID())
	t.RemoveSharedLock(rid)
	t.RemoveExclusiveLock(rid)

	if len(lr.granted) == 0 && len(lr.queue) > 0 {
		lr.grantHead()
	} else {
		lr.recomputeOldest()
	}
	m.cv.Broadcast()
	return true
}

// waitFor blocks on the manager's condition variable until req is
// granted or t is aborted (by wait-die or externally), re-checking t's
// state on every wakeup per the spurious-wakeup protocol.
func (m *Manager) waitFor(t *txn.Transaction, req *request) bool {
	for !req.granted {
		if t.State() == txn.Aborted {
			return false
		}
		m.cv.Wait()
	}
	if t.State() == txn.Aborted {
		return false
	}
	return true
}
