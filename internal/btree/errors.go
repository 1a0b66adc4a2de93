package btree

import "errors"

var (
	ErrDuplicateKey  = errors.New("btree: key already exists")
	ErrKeyNotFound   = errors.New("btree: key not found")
	ErrPoolExhausted = errors.New("btree: buffer pool has no free or victim frame")
	ErrEmptyTree     = errors.New("btree: tree is empty")
)
