package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/franz/crate/internal/discography"
	"github.com/franz/crate/internal/scan"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

// Watcher is the slice of the filesystem watcher the API exposes
type Watcher interface {
	PendingChanges() int
}

// Config wires the server's collaborators
type Config struct {
	Store       *store.Store
	Scanner     *scan.Scanner
	Discography *discography.Service
	Watcher     Watcher // optional
	Version     string
	GitSHA      string
}

// Server is the HTTP surface over the reconciliation engine
type Server struct {
	store   *store.Store
	scanner *scan.Scanner
	disco   *discography.Service
	watcher Watcher
	version string
	gitSHA  string
	engine  *gin.Engine
}

// New builds the router. Handlers are thin: they translate HTTP to
// service calls and map error kinds back to status codes.
func New(cfg Config) *Server {
	if !util.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		store:   cfg.Store,
		scanner: cfg.Scanner,
		disco:   cfg.Discography,
		watcher: cfg.Watcher,
		version: cfg.Version,
		gitSHA:  cfg.GitSHA,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.GET("/settings", s.handleGetSettings)
		api.PUT("/settings", s.handlePutSettings)
		api.GET("/stats", s.handleStats)
		api.GET("/dashboard", s.handleDashboard)

		api.POST("/scan/start", s.handleScanStart)
		api.POST("/scan/cancel", s.handleScanCancel)
		api.GET("/scan/status", s.handleScanStatus)
		api.GET("/scan/skipped", s.handleScanSkipped)

		api.GET("/library/albums", s.handleListAlbums)
		api.PUT("/library/albums/:id/owned", s.handleSetAlbumOwned)
		api.GET("/library/artists", s.handleListArtists)
		api.GET("/library/artists/:id", s.handleGetArtist)
		api.GET("/artist/by-slug/:slug", s.handleGetArtistBySlug)
		api.GET("/artist/:id/overview", s.handleArtistOverview)

		api.POST("/expected/artist/:id/sync", s.handleExpectedSync)
		api.GET("/expected/artist/:id/summary", s.handleExpectedSummary)
		api.POST("/expected/artist/:id/ignore", s.handleExpectedIgnore)
		api.POST("/expected/artist/:id/unignore", s.handleExpectedUnignore)
		api.GET("/expected/artist/:id/settings", s.handleGetArtistSettings)
		api.POST("/expected/artist/:id/settings", s.handlePostArtistSettings)

		api.POST("/wishlist", s.handleWishlistAdd)
		api.GET("/wishlist", s.handleWishlistList)
	}

	s.engine = r
	return s
}

// Handler exposes the router for tests and for the main listener
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf(":%d", port)
	util.InfoLog("Listening on %s", addr)
	return s.engine.Run(addr)
}

// respondError maps the error taxonomy to HTTP statuses. Upstream errors
// keep their status and body snippet in the payload for the caller's log.
func respondError(c *gin.Context, err error) {
	appErr := util.AsAppError(err)
	if appErr == nil {
		util.ErrorLog("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case util.KindValidation:
		status = http.StatusBadRequest
	case util.KindNotFound:
		status = http.StatusNotFound
	case util.KindConflict:
		status = http.StatusConflict
	case util.KindUpstream:
		status = http.StatusBadGateway
	case util.KindUpstreamTimeout:
		status = http.StatusGatewayTimeout
	case util.KindInternal:
		util.ErrorLog("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	body := gin.H{"error": appErr.Message}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	if appErr.StatusCode != 0 {
		body["upstreamStatus"] = appErr.StatusCode
	}
	c.JSON(status, body)
}

func (s *Server) handleHealth(c *gin.Context) {
	pending := 0
	if s.watcher != nil {
		pending = s.watcher.PendingChanges()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
		"gitSha":  s.gitSHA,
		"features": gin.H{
			"expectedSync": true,
			"wishlist":     true,
			"watcher":      s.watcher != nil,
		},
		"pendingChanges": pending,
	})
}
