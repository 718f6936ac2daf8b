package server

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

func parseIDParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, util.NewValidationError("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func (s *Server) handleGetSettings(c *gin.Context) {
	settings, err := s.store.GetSettings()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// settingsPatch is a partial update; absent fields keep their values.
// Unknown fields are silently ignored.
type settingsPatch struct {
	MusicDir      *string `json:"musicDir"`
	ScanRecursive *bool   `json:"scanRecursive"`
	ScanMaxDepth  *int    `json:"scanMaxDepth"`
}

func (s *Server) handlePutSettings(c *gin.Context) {
	var patch settingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, util.NewValidationError("invalid settings payload: %v", err))
		return
	}

	settings, err := s.store.GetSettings()
	if err != nil {
		respondError(c, err)
		return
	}

	if patch.MusicDir != nil {
		dir := *patch.MusicDir
		if dir == "" {
			respondError(c, util.NewValidationError("musicDir must not be empty"))
			return
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			respondError(c, util.NewValidationError("musicDir %q is not a readable directory", dir))
			return
		}
		settings.MusicDir = dir
	}
	if patch.ScanRecursive != nil {
		settings.ScanRecursive = *patch.ScanRecursive
	}
	if patch.ScanMaxDepth != nil {
		if *patch.ScanMaxDepth < 1 || *patch.ScanMaxDepth > 20 {
			respondError(c, util.NewValidationError("scanMaxDepth must be between 1 and 20"))
			return
		}
		settings.ScanMaxDepth = *patch.ScanMaxDepth
	}

	settings.UpdatedAt = time.Now().Unix()
	if err := s.store.SaveSettings(settings); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.GetLibraryStats()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleDashboard(c *gin.Context) {
	stats, err := s.store.GetLibraryStats()
	if err != nil {
		respondError(c, err)
		return
	}
	recent, err := s.store.RecentAlbums(10)
	if err != nil {
		respondError(c, err)
		return
	}
	missingTotal, err := s.disco.MissingTotal()
	if err != nil {
		respondError(c, err)
		return
	}
	wishlistCount, err := s.store.CountWishlist()
	if err != nil {
		respondError(c, err)
		return
	}

	pending := 0
	if s.watcher != nil {
		pending = s.watcher.PendingChanges()
	}
	if recent == nil {
		recent = []*store.Album{}
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":          stats,
		"recentAlbums":   recent,
		"missingTotal":   missingTotal,
		"wishlistCount":  wishlistCount,
		"pendingChanges": pending,
	})
}

func (s *Server) handleListAlbums(c *gin.Context) {
	filter := store.AlbumFilter{Search: c.Query("search")}

	if page := c.Query("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			respondError(c, util.NewValidationError("invalid page %q", page))
			return
		}
		filter.Page = n
	}
	if size := c.Query("pageSize"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 1 || n > 500 {
			respondError(c, util.NewValidationError("invalid pageSize %q", size))
			return
		}
		filter.PageSize = n
	}
	if owned := c.Query("owned"); owned != "" {
		switch owned {
		case "0":
			v := false
			filter.Owned = &v
		case "1":
			v := true
			filter.Owned = &v
		default:
			respondError(c, util.NewValidationError("owned must be 0 or 1"))
			return
		}
	}

	albums, total, err := s.store.ListAlbums(filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if albums == nil {
		albums = []*store.Album{}
	}
	c.JSON(http.StatusOK, gin.H{
		"albums": albums,
		"total":  total,
	})
}

func (s *Server) handleSetAlbumOwned(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var body struct {
		Owned *bool `json:"owned"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Owned == nil {
		respondError(c, util.NewValidationError("body must contain owned:bool"))
		return
	}

	found, err := s.store.SetAlbumOwned(id, *body.Owned)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		respondError(c, util.NewNotFoundError("album %d not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "owned": *body.Owned})
}

func (s *Server) handleListArtists(c *gin.Context) {
	artists, err := s.store.ListArtists()
	if err != nil {
		respondError(c, err)
		return
	}
	if artists == nil {
		artists = []*store.Artist{}
	}
	c.JSON(http.StatusOK, gin.H{"artists": artists})
}

func (s *Server) handleGetArtist(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	artist, err := s.store.GetArtistByID(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if artist == nil || artist.Deleted {
		respondError(c, util.NewNotFoundError("artist %d not found", id))
		return
	}

	albums, err := s.store.GetAlbumsForArtist(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if albums == nil {
		albums = []*store.Album{}
	}
	c.JSON(http.StatusOK, gin.H{"artist": artist, "albums": albums})
}

func (s *Server) handleGetArtistBySlug(c *gin.Context) {
	slug := c.Param("slug")
	artist, err := s.store.GetArtistBySlug(slug)
	if err != nil {
		respondError(c, err)
		return
	}
	if artist == nil {
		respondError(c, util.NewNotFoundError("artist %q not found", slug))
		return
	}
	c.JSON(http.StatusOK, artist)
}

func (s *Server) handleArtistOverview(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	overview, err := s.disco.ArtistOverview(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}
