package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

func (s *Server) handleExpectedSync(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := s.disco.SyncExpectedForArtist(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleExpectedSummary(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	summary, err := s.disco.ComputeSummary(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type expectedAlbumBody struct {
	ExpectedAlbumID int64 `json:"expectedAlbumId"`
}

func (s *Server) handleExpectedIgnore(c *gin.Context) {
	s.handleIgnoreToggle(c, s.disco.IgnoreExpectedAlbum)
}

func (s *Server) handleExpectedUnignore(c *gin.Context) {
	s.handleIgnoreToggle(c, s.disco.UnignoreExpectedAlbum)
}

func (s *Server) handleIgnoreToggle(c *gin.Context, toggle func(artistID, expectedAlbumID int64) error) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var body expectedAlbumBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ExpectedAlbumID <= 0 {
		respondError(c, util.NewValidationError("body must contain expectedAlbumId"))
		return
	}
	if err := toggle(id, body.ExpectedAlbumID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleGetArtistSettings(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	settings, err := s.disco.GetArtistSettings(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handlePostArtistSettings(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var body struct {
		IncludeLive         *bool `json:"includeLive"`
		IncludeCompilations *bool `json:"includeCompilations"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, util.NewValidationError("invalid settings payload: %v", err))
		return
	}
	settings, err := s.disco.UpdateArtistSettings(id, body.IncludeLive, body.IncludeCompilations)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// handleWishlistAdd accepts either a synced expected album reference or
// the legacy manual form with artistId and title.
func (s *Server) handleWishlistAdd(c *gin.Context) {
	var body struct {
		ExpectedAlbumID int64  `json:"expectedAlbumId"`
		ArtistID        int64  `json:"artistId"`
		Title           string `json:"title"`
		Year            *int   `json:"year"`
		Source          string `json:"source"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, util.NewValidationError("invalid wishlist payload: %v", err))
		return
	}

	switch {
	case body.ExpectedAlbumID > 0:
		if err := s.disco.AddExpectedToWishlist(body.ExpectedAlbumID); err != nil {
			respondError(c, err)
			return
		}
	case body.ArtistID > 0:
		if err := s.disco.AddManualWanted(body.ArtistID, body.Title, body.Year, body.Source); err != nil {
			respondError(c, err)
			return
		}
	default:
		respondError(c, util.NewValidationError("body must contain expectedAlbumId or artistId with title"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleWishlistList(c *gin.Context) {
	items, err := s.store.ListWishlist()
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []*store.WishlistAlbum{}
	}
	c.JSON(http.StatusOK, gin.H{"wishlist": items})
}
