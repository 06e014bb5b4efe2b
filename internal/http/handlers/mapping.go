package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/http/response"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/mapping"
	"github.com/carelattice/taxonomy-backend/internal/modules/promotion"
	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type MappingHandler struct {
	log       *logger.Logger
	mapping   mapping.Usecases
	promotion promotion.Usecases
	enq       runtime.Enqueuer
}

func NewMappingHandler(
	log *logger.Logger,
	mappingUC mapping.Usecases,
	promotionUC promotion.Usecases,
	enq runtime.Enqueuer,
) *MappingHandler {
	return &MappingHandler{
		log:       log.With("handler", "MappingHandler"),
		mapping:   mappingUC,
		promotion: promotionUC,
		enq:       enq,
	}
}

// POST /v1/mappings/:id/review
func (h *MappingHandler) ReviewMapping(c *gin.Context) {
	mappingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_mapping_id", err)
		return
	}
	var req struct {
		Approve *bool `json:"approve"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	// A missing approve field must not read as a rejection.
	if req.Approve == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("approve is required"))
		return
	}
	out, err := h.mapping.ReviewMapping(c.Request.Context(), mapping.ReviewMappingInput{
		MappingID: mappingID,
		Approve:   *req.Approve,
		Actor:     ctxutil.GetActor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"mapping": out.Mapping})
}

// GET /v1/mappings/production?master_node_id=&limit=100&offset=0
func (h *MappingHandler) ListProduction(c *gin.Context) {
	var masterNodeID int64
	if v := strings.TrimSpace(c.Query("master_node_id")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_master_node_id", err)
			return
		}
		masterNodeID = n
	}
	limit := 100
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	offset := 0
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	rows, err := h.promotion.ListProduction(c.Request.Context(), masterNodeID, limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_production_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"production_mappings": rows, "count": len(rows)})
}

// POST /v1/mappings/promote
func (h *MappingHandler) Promote(c *gin.Context) {
	job, err := h.enq.EnqueueOnce(c.Request.Context(), jobs.KindMappingPromote, jobs.PromoteRefID, nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	if job == nil {
		response.RespondOK(c, gin.H{"enqueued": false, "reason": "promotion already queued or running"})
		return
	}
	response.RespondOK(c, gin.H{"enqueued": true, "job": job})
}
