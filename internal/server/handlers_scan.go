package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/franz/crate/internal/scan"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

type scanStartBody struct {
	Recursive *bool  `json:"recursive"`
	MaxDepth  *int   `json:"maxDepth"`
	ArtistID  *int64 `json:"artistId"`
}

func (s *Server) handleScanStart(c *gin.Context) {
	body := scanStartBody{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, util.NewValidationError("invalid scan request: %v", err))
			return
		}
	}

	opts := scan.Options{Recursive: true, MaxDepth: 3}
	if body.Recursive != nil {
		opts.Recursive = *body.Recursive
	}
	if body.MaxDepth != nil {
		if *body.MaxDepth < 1 || *body.MaxDepth > 20 {
			respondError(c, util.NewValidationError("maxDepth must be between 1 and 20"))
			return
		}
		opts.MaxDepth = *body.MaxDepth
	}
	if body.ArtistID != nil {
		if *body.ArtistID <= 0 {
			respondError(c, util.NewValidationError("artistId must be positive"))
			return
		}
		opts.ArtistID = *body.ArtistID
	}

	c.JSON(http.StatusOK, s.scanner.Start(opts))
}

func (s *Server) handleScanCancel(c *gin.Context) {
	cancelled := s.scanner.Cancel()
	status := store.ScanStatusIdle
	if cancelled {
		status = store.ScanStatusRunning
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": cancelled, "status": status})
}

func (s *Server) handleScanStatus(c *gin.Context) {
	state, err := s.scanner.Status()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleScanSkipped(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(c, util.NewValidationError("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	skipped, err := s.store.ListSkipped(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if skipped == nil {
		skipped = []*store.SkippedFile{}
	}
	c.JSON(http.StatusOK, gin.H{"skipped": skipped})
}
