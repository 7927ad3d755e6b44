package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/syncer"
)

// runSync starts a registry sync. The request blocks until the run ends
// unless async=true is passed, in which case 202 is returned with the run ID.
func (s *Server) runSync(c *gin.Context) {
	var req syncer.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if req.MaxPages != nil && *req.MaxPages < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "maxPages must not be negative"})
		return
	}

	run, err := s.deps.Orchestrator.Prepare(req)
	if err != nil {
		if errors.Is(err, progress.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "A sync is already running"})
			return
		}
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			if _, err := run.Execute(s.runCtx); err != nil {
				slog.Error("Background sync failed", "runId", run.ID(), "error", err)
			}
		}()

		c.JSON(http.StatusAccepted, RunAcceptedResponse{
			Message: "Sync started",
			RunID:   run.ID(),
		})
		return
	}

	summary, err := run.Execute(s.runCtx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, RunFailedResponse{Error: err.Error(), Summary: summary})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// syncProgress returns the snapshot of the current or last run.
func (s *Server) syncProgress(c *gin.Context) {
	snap, ok := s.deps.Tracker.Snapshot()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": progress.StatusIdle})
		return
	}
	c.JSON(http.StatusOK, ProgressResponse{Snapshot: snap, Percent: snap.Percent()})
}

// importBatch reconciles a batch of already-parsed records.
func (s *Server) importBatch(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	summary, err := s.deps.Importer.ImportJSON(s.runCtx, req.Items)
	switch {
	case errors.Is(err, syncer.ErrEmptyBatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "items must be a non-empty array"})
	case errors.Is(err, progress.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "A sync is already running"})
	case err != nil:
		c.JSON(statusFor(err), ImportFailedResponse{Error: err.Error(), Summary: summary})
	default:
		c.JSON(http.StatusOK, summary)
	}
}

// listOperators returns stored records, paginated by page and pageSize.
func (s *Server) listOperators(c *gin.Context) {
	page, pageSize, err := pagination(c)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	ctx := c.Request.Context()
	total, err := s.deps.Store.Count(ctx)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	operators, err := s.deps.Store.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, OperatorListResponse{
		Operators:  operators,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

func (s *Server) getOperator(c *gin.Context) {
	record, err := s.deps.Store.Get(c.Request.Context(), c.Param("serialNumber"))
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) deleteOperator(c *gin.Context) {
	serial := c.Param("serialNumber")
	if err := s.deps.Store.Delete(c.Request.Context(), serial); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}

	slog.Info("Deleted operator record", "serial", serial)
	c.JSON(http.StatusOK, MessageResponse{Message: fmt.Sprintf("Operator %s deleted", serial)})
}

func pagination(c *gin.Context) (page, pageSize int, err error) {
	page, pageSize = 1, DefaultPageSize

	if p := c.Query("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil || page < 1 {
			return 0, 0, fmt.Errorf("%w: page must be a positive integer", ErrInvalidPagination)
		}
	}
	if ps := c.Query("pageSize"); ps != "" {
		pageSize, err = strconv.Atoi(ps)
		if err != nil || pageSize < 1 || pageSize > MaxPageSize {
			return 0, 0, fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalidPagination, MaxPageSize)
		}
	}
	return page, pageSize, nil
}
