// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the ad-mediation pipeline over HTTP: scheduling
// requests from the player, play telemetry, per-business settings,
// revenue stats and a websocket event feed.
package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
	"github.com/tavari-hq/admix/pkg/revenue"
	"github.com/tavari-hq/admix/pkg/storage"
)

// Server wires the manager registry into HTTP handlers.
type Server struct {
	registry *ads.Registry
	hub      *Hub
	metrics  *metric.Metrics
	log      log.Logger
}

// NewServer creates the API server. hub may be nil when the event feed
// is not wanted.
func NewServer(registry *ads.Registry, hub *Hub, metrics *metric.Metrics, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NoLog
	}
	return &Server{
		registry: registry,
		hub:      hub,
		metrics:  metrics,
		log:      logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	if s.metrics != nil {
		router.Use(metricsMiddleware(s.metrics))
	}

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
	})

	v1 := router.Group("/api/v1")
	{
		biz := v1.Group("/businesses/:business_id")
		biz.POST("/next-ad", s.handleNextAd)
		biz.POST("/plays/:play_id", s.handleReportPlay)
		biz.GET("/settings", s.handleGetSettings)
		biz.PUT("/settings", s.handlePutSettings)
		biz.GET("/revenue", s.handleRevenueStats)
		biz.GET("/providers/health", s.handleProviderHealth)
		biz.DELETE("/cache", s.handleClearCache)
		biz.DELETE("", s.handleDestroy)

		if s.hub != nil {
			v1.GET("/events", func(c *gin.Context) {
				s.hub.Serve(c.Writer, c.Request)
			})
		}
	}

	return router
}

// manager resolves (creating on first use) the business's manager.
func (s *Server) manager(c *gin.Context) (*ads.Manager, bool) {
	businessID := c.Param("business_id")
	m, err := s.registry.Initialize(c.Request.Context(), businessID)
	if err != nil {
		if errors.Is(err, ads.ErrMissingBusinessID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}
	return m, true
}

type nextAdRequest struct {
	TrackCount int  `json:"track_count"`
	Force      bool `json:"force"`
}

// handleNextAd makes one scheduling decision. 200 carries an ad; 204
// means nothing to play, whatever the reason.
func (s *Server) handleNextAd(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}

	// An empty body means "track count zero, no force".
	var req nextAdRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	served := m.GetNextAd(c.Request.Context(), req.TrackCount, req.Force)
	if served == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, served)
}

type reportPlayRequest struct {
	Completed     bool    `json:"completed"`
	PlayedSeconds float64 `json:"played_seconds"`
	Error         string  `json:"error"`
}

// handleReportPlay accepts completion telemetry and forwards it to the
// provider without waiting.
func (s *Server) handleReportPlay(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}

	var req reportPlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	m.ReportPlay(c.Param("play_id"), ads.PlayData{
		Completed:      req.Completed,
		PlayedDuration: time.Duration(req.PlayedSeconds * float64(time.Second)),
		Error:          req.Error,
	})
	c.Status(http.StatusAccepted)
}

type settingsPayload struct {
	Enabled          bool `json:"enabled"`
	Frequency        int  `json:"frequency"`
	MaxAdsPerHour    int  `json:"max_ads_per_hour"`
	VolumeAdjustment int  `json:"volume_adjustment"`
}

func (s *Server) handleGetSettings(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	settings := m.Settings()
	c.JSON(http.StatusOK, settingsPayload{
		Enabled:          settings.Enabled,
		Frequency:        settings.Frequency,
		MaxAdsPerHour:    settings.MaxAdsPerHour,
		VolumeAdjustment: settings.VolumeAdjustment,
	})
}

func (s *Server) handlePutSettings(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}

	var req settingsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Frequency < 0 || req.MaxAdsPerHour < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "frequency and max_ads_per_hour must not be negative"})
		return
	}

	err := m.UpdateSettings(c.Request.Context(), storage.AdSettings{
		Enabled:          req.Enabled,
		Frequency:        req.Frequency,
		MaxAdsPerHour:    req.MaxAdsPerHour,
		VolumeAdjustment: req.VolumeAdjustment,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (s *Server) handleRevenueStats(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}

	timeframe, err := revenue.ParseTimeframe(c.DefaultQuery("timeframe", string(revenue.TimeframeToday)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stats, err := m.RevenueStats(c.Request.Context(), timeframe)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleProviderHealth(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.HealthCheck(c.Request.Context()))
}

func (s *Server) handleClearCache(c *gin.Context) {
	m, ok := s.manager(c)
	if !ok {
		return
	}
	m.ClearCache(c.Query("provider"))
	c.Status(http.StatusNoContent)
}

// handleDestroy tears the business's manager down; the next request
// rebuilds it from scratch.
func (s *Server) handleDestroy(c *gin.Context) {
	s.registry.Destroy(c.Param("business_id"))
	c.Status(http.StatusNoContent)
}
