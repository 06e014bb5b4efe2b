package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/http/response"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
)

type JobHandler struct {
	jobs repos.JobRunRepo
}

func NewJobHandler(jobs repos.JobRunRepo) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, jobID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_job_failed", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "not_found", errors.New("job not found"))
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
