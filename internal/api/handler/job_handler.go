package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/insightq/analysis-jobs/internal/domain"
	"github.com/insightq/analysis-jobs/internal/store"
	"github.com/insightq/analysis-jobs/internal/submit"
)

// JobHandler serves the submission write path and the status read path.
type JobHandler struct {
	logger    *slog.Logger
	submitter *submit.Submitter
	store     store.JobStore
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		submitter: deps.Submitter,
		store:     deps.Store,
	}
}

// Submit returns the handler for POST /process-<category>. The whole JSON
// body is the category payload; schema checks happen here, never downstream.
func (h *JobHandler) Submit(category domain.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
			return
		}

		job, err := h.submitter.Submit(c.Request.Context(), category, body)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				h.logger.Info("submission rejected",
					slog.String("category", string(category)),
					slog.String("error", err.Error()),
				)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			// The store or queue could not durably record the job; never
			// acknowledge work we cannot deliver.
			h.logger.Error("submission failed",
				slog.String("category", string(category)),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit job"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"jobId":  job.ID,
			"status": "queued",
		})
	}
}

// GetStatus handles GET /task-status/:job_id. It reads the store only; the
// queue and publisher are never consulted.
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
			return
		}

		h.logger.Error("status lookup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get task status"})
		return
	}

	c.JSON(http.StatusOK, job)
}
