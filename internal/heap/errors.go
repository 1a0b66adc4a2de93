package heap

import "errors"

var ErrPoolExhausted = errors.New("heap: buffer pool has no free or victim frame")
