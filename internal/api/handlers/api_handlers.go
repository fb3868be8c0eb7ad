package handlers

import (
	"context"
	"net/http"
	"strconv"

	"presence-gate/internal/api/middleware"
	"presence-gate/internal/core/models"
	"presence-gate/internal/core/processor"
	"presence-gate/internal/db/repository"
	"presence-gate/internal/utils"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Pipeline ist die Steuerfläche der Frame-Pipeline
type Pipeline interface {
	Status() processor.Status
	Commit(ctx context.Context) processor.CommitResult
	Pause()
	Resume()
	Reset()
}

// APIHandler behandelt API-Anfragen für das System
type APIHandler struct {
	pipeline        Pipeline
	repo            repository.Repository
	requirePresence bool
}

// NewAPIHandler erstellt einen neuen API-Handler. repo darf nil sein, dann
// sind die Journal-Endpunkte nicht verfügbar.
func NewAPIHandler(pipeline Pipeline, repo repository.Repository, requirePresence bool) *APIHandler {
	return &APIHandler{
		pipeline:        pipeline,
		repo:            repo,
		requirePresence: requirePresence,
	}
}

// RegisterRoutes registriert alle API-Routen
func (h *APIHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Pipeline
	router.GET("/status", h.GetStatus)
	router.POST("/commit", h.Commit)
	router.POST("/reset", h.Reset)
	router.POST("/pause", h.Pause)
	router.POST("/resume", h.Resume)

	// Journal
	router.GET("/commits", h.ListCommits)
	router.GET("/commits/stats", h.GetCommitStats)
	router.GET("/commits/:id", h.GetCommit)

	// System
	router.GET("/system", h.GetSystem)
}

// GetStatus liefert den Pipeline-Status samt lokalisierter Anzeigetexte
func (h *APIHandler) GetStatus(c *gin.Context) {
	status := h.pipeline.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"labels":   middleware.Labels(c, status),
		"language": c.GetString("language"),
	})
}

// Commit bewertet den zuletzt zugelassenen Frame
func (h *APIHandler) Commit(c *gin.Context) {
	if h.requirePresence && !h.pipeline.Status().Present {
		c.JSON(http.StatusConflict, gin.H{"error": middleware.Translate(c, "error_not_present", nil)})
		return
	}

	res := h.pipeline.Commit(c.Request.Context())
	log.Debugf("Commit %s via API: accepted=%t no_frame=%t", res.ID, res.Accepted(), res.NoFrame)
	c.JSON(http.StatusOK, res)
}

// Reset verwirft Gate-Gedächtnis, Entprellung und zugelassenen Frame
func (h *APIHandler) Reset(c *gin.Context) {
	h.pipeline.Reset()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Pause stoppt die Analyse, Frames werden sofort freigegeben
func (h *APIHandler) Pause(c *gin.Context) {
	h.pipeline.Pause()
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": true})
}

// Resume setzt die Analyse fort
func (h *APIHandler) Resume(c *gin.Context) {
	h.pipeline.Resume()
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": false})
}

// ListCommits liefert eine Seite des Commit-Journals, neueste zuerst
func (h *APIHandler) ListCommits(c *gin.Context) {
	if !h.journalAvailable(c) {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	commits, total, err := h.repo.GetCommits(c.Request.Context(), limit, offset)
	if err != nil {
		log.Errorf("Failed to list commits: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list commits"})
		return
	}
	if commits == nil {
		commits = []models.CommitEvent{}
	}
	c.JSON(http.StatusOK, gin.H{
		"commits": commits,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetCommit liefert einen einzelnen Journal-Eintrag
func (h *APIHandler) GetCommit(c *gin.Context) {
	if !h.journalAvailable(c) {
		return
	}
	event, err := h.repo.GetCommitByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("Failed to load commit %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load commit"})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.Translate(c, "error_not_found", nil)})
		return
	}
	c.JSON(http.StatusOK, event)
}

// GetCommitStats fasst das Journal zusammen
func (h *APIHandler) GetCommitStats(c *gin.Context) {
	if !h.journalAvailable(c) {
		return
	}
	stats, err := h.repo.GetStatistics(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to load commit statistics: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetSystem liefert System- und Pipeline-Statistiken
func (h *APIHandler) GetSystem(c *gin.Context) {
	c.JSON(http.StatusOK, utils.GetSystemStats(h.pipeline))
}

func (h *APIHandler) journalAvailable(c *gin.Context) bool {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Commit journal disabled"})
		return false
	}
	return true
}
