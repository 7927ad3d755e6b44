package progress

import "errors"

var ErrAlreadyRunning = errors.New("a sync run is already in progress")
