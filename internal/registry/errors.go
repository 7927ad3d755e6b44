package registry

import "errors"

var (
	ErrFetchFailed   = errors.New("registry page fetch failed")
	ErrMissingSerial = errors.New("row has no serial number")
)
