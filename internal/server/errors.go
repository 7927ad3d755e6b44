package server

import (
	"errors"
	"net/http"

	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/storage"
	"github.com/jaki95/registry-sync/internal/syncer"
)

var ErrInvalidPagination = errors.New("invalid pagination parameters")

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, syncer.ErrEmptyBatch), errors.Is(err, ErrInvalidPagination):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
