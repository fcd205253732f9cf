package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"homeradius/server/config"
	"homeradius/server/internal/geocoding"
	"homeradius/server/internal/isochrone"
	"homeradius/server/internal/models"
	"homeradius/server/internal/search"
)

type Handler struct {
	orchestrator *search.Orchestrator
	tracker      *search.JobTracker
	logger       *logrus.Logger
}

type SearchRequest struct {
	Anchors []models.Anchor     `json:"anchors"`
	Params  models.SearchParams `json:"params"`
	Page    int                 `json:"page"`
}

type PolygonRequest struct {
	Anchors []models.Anchor `json:"anchors" binding:"required"`
	Save    bool            `json:"save"`
}

func NewHandler(orchestrator *search.Orchestrator, tracker *search.JobTracker, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		orchestrator: orchestrator,
		tracker:      tracker,
		logger:       logger,
	}
}

func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid search request"})
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	anchors := req.Anchors
	if len(anchors) == 0 {
		anchors = config.GetAnchors()
	}

	result, err := h.orchestrator.Search(c.Request.Context(), anchors, req.Params, req.Page)
	if err != nil {
		var geoErr *geocoding.GeocodeError
		if errors.As(err, &geoErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": geoErr.Error()})
			return
		}
		h.logger.WithError(err).Error("Search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RefreshPolygons re-resolves the anchor set, bypassing the isochrone
// cache, and optionally saves the anchors as the new default.
func (h *Handler) RefreshPolygons(c *gin.Context) {
	var req PolygonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid polygon request"})
		return
	}

	result, err := h.orchestrator.RefreshPolygons(c.Request.Context(), req.Anchors)
	if err != nil {
		var geoErr *geocoding.GeocodeError
		if errors.As(err, &geoErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": geoErr.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to refresh polygons")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh polygons"})
		return
	}

	if req.Save {
		if err := config.SaveAnchors(req.Anchors); err != nil {
			h.logger.WithError(err).Error("Failed to save anchors")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"polygons": result.Polygons,
		"warnings": result.Warnings,
		"display":  isochrone.MergeForDisplay(result.Polygons),
	})
}

// StartPrefetch launches a background prefetch of every listings page
// and returns the job ID for polling.
func (h *Handler) StartPrefetch(c *gin.Context) {
	id := h.tracker.StartPrefetch()
	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

func (h *Handler) GetPrefetchJob(c *gin.Context) {
	job, ok := h.tracker.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// StreamPrefetchJob reports job progress as server-sent events until
// the job completes.
func (h *Handler) StreamPrefetchJob(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.tracker.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}
		job, ok := h.tracker.Get(id)
		if !ok {
			return false
		}
		c.SSEvent("progress", job)
		return !job.Done
	})
}

func (h *Handler) ClearListingsCache(c *gin.Context) {
	if err := h.orchestrator.ClearListingsCache(); err != nil {
		h.logger.WithError(err).Error("Failed to clear listings cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear listings cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handler) ClearIsochroneCache(c *gin.Context) {
	if err := h.orchestrator.ClearIsochroneCache(); err != nil {
		h.logger.WithError(err).Error("Failed to clear isochrone cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear isochrone cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
