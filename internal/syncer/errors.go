package syncer

import "errors"

var (
	ErrEmptyBatch  = errors.New("import batch has no items")
	ErrInvalidItem = errors.New("invalid import item")
)
