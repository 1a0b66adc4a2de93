package bufferpool

import "errors"

var ErrInvalidPageID = errors.New("bufferpool: invalid page id")
