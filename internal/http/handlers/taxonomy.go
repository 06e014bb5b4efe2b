package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/http/response"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/ingest"
	"github.com/carelattice/taxonomy-backend/internal/modules/mapping"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type TaxonomyHandler struct {
	log        *logger.Logger
	ingest     ingest.Usecases
	mapping    mapping.Usecases
	taxonomies repos.TaxonomyRepo
	versions   repos.VersionRepo
	enq        runtime.Enqueuer
}

func NewTaxonomyHandler(
	log *logger.Logger,
	ingestUC ingest.Usecases,
	mappingUC mapping.Usecases,
	taxonomies repos.TaxonomyRepo,
	versions repos.VersionRepo,
	enq runtime.Enqueuer,
) *TaxonomyHandler {
	return &TaxonomyHandler{
		log:        log.With("handler", "TaxonomyHandler"),
		ingest:     ingestUC,
		mapping:    mappingUC,
		taxonomies: taxonomies,
		versions:   versions,
		enq:        enq,
	}
}

// GET /v1/taxonomies?customer_id=&kind=&status=&limit=100&offset=0
func (h *TaxonomyHandler) ListTaxonomies(c *gin.Context) {
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
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	taxonomies, err := h.taxonomies.List(dbc,
		strings.TrimSpace(c.Query("customer_id")),
		strings.TrimSpace(c.Query("kind")),
		strings.TrimSpace(c.Query("status")),
		limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_taxonomies_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"taxonomies": taxonomies, "count": len(taxonomies)})
}

// GET /v1/taxonomies/:id/tree
func (h *TaxonomyHandler) GetTree(c *gin.Context) {
	taxonomyID, err := parseTaxonomyID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_taxonomy_id", err)
		return
	}
	out, err := h.ingest.GetTaxonomyTree(c.Request.Context(), taxonomyID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /v1/taxonomies/:id/versions?limit=50&offset=0
func (h *TaxonomyHandler) ListVersions(c *gin.Context) {
	taxonomyID, err := parseTaxonomyID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_taxonomy_id", err)
		return
	}
	limit := 50
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
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	versions, err := h.versions.ListByTaxonomy(dbc, taxonomyID, limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_versions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"versions": versions, "count": len(versions)})
}

// POST /v1/taxonomies/:id/remap
func (h *TaxonomyHandler) Remap(c *gin.Context) {
	taxonomyID, err := parseTaxonomyID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_taxonomy_id", err)
		return
	}
	if taxonomyID == silver.MasterTaxonomyID {
		response.RespondError(c, http.StatusBadRequest, "invalid_taxonomy_id",
			errors.New("master taxonomy is the mapping target, not a remap subject"))
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	tax, err := h.taxonomies.GetByID(dbc, taxonomyID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_taxonomy_failed", err)
		return
	}
	if tax == nil {
		response.RespondError(c, http.StatusNotFound, "not_found",
			errors.New("taxonomy not found"))
		return
	}
	job, err := h.enq.EnqueueOnce(c.Request.Context(), jobs.KindTaxonomyRemap,
		strconv.FormatInt(taxonomyID, 10), nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	if job == nil {
		response.RespondOK(c, gin.H{"enqueued": false, "reason": "remap already queued or running"})
		return
	}
	response.RespondOK(c, gin.H{"enqueued": true, "job": job})
}

// GET /v1/taxonomies/:id/mappings?status=&limit=100&offset=0
func (h *TaxonomyHandler) ListMappings(c *gin.Context) {
	taxonomyID, err := parseTaxonomyID(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_taxonomy_id", err)
		return
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
	mappings, err := h.mapping.ListMappings(c.Request.Context(), taxonomyID,
		strings.TrimSpace(c.Query("status")), limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_mappings_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"mappings": mappings, "count": len(mappings)})
}

func parseTaxonomyID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
}
