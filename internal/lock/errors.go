package locking

import "errors"

var (
	ErrNotHoldingShared = errors.New("lock: transaction does not hold a shared lock to upgrade")
	ErrStrict2PL         = errors.New("lock: strict 2PL forbids unlock before commit or abort")
	ErrNotGranted        = errors.New("lock: transaction does not hold this lock")
)
