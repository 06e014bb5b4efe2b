package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/carelattice/taxonomy-backend/internal/clients/gcp"
	"github.com/carelattice/taxonomy-backend/internal/data/repos"
	"github.com/carelattice/taxonomy-backend/internal/domain/jobs"
	"github.com/carelattice/taxonomy-backend/internal/http/response"
	"github.com/carelattice/taxonomy-backend/internal/jobs/runtime"
	"github.com/carelattice/taxonomy-backend/internal/modules/ingest"
	"github.com/carelattice/taxonomy-backend/internal/pkg/dbctx"
	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

type LoadHandler struct {
	log    *logger.Logger
	ingest ingest.Usecases
	rows   repos.LoadRowRepo
	enq    runtime.Enqueuer

	// bucket is nil when no GCS source bucket is configured; file-reference
	// ingest is rejected in that case.
	bucket gcp.BucketService
}

func NewLoadHandler(
	log *logger.Logger,
	ingestUC ingest.Usecases,
	rows repos.LoadRowRepo,
	enq runtime.Enqueuer,
	bucket gcp.BucketService,
) *LoadHandler {
	return &LoadHandler{
		log:    log.With("handler", "LoadHandler"),
		ingest: ingestUC,
		rows:   rows,
		enq:    enq,
		bucket: bucket,
	}
}

// POST /v1/loads
func (h *LoadHandler) OpenLoad(c *gin.Context) {
	var req struct {
		TaxonomyType string              `json:"taxonomy_type"`
		CustomerID   string              `json:"customer_id"`
		TaxonomyID   int64               `json:"taxonomy_id"`
		RequestID    string              `json:"request_id"`
		LoadKind     string              `json:"load_kind"`
		Layout       *ingest.LayoutSpec  `json:"layout"`
		Headers      []string            `json:"headers"`
		Rows         []map[string]string `json:"rows"`
		CallbackURL  string              `json:"callback_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	// The identity fields travel through the same file-name convention the
	// object path uses, so both ingest doors validate identically.
	if strings.ContainsAny(req.CustomerID, " \t") {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("customer_id may not contain whitespace"))
		return
	}
	fileName := req.TaxonomyType + " " + req.CustomerID + " " + strconv.FormatInt(req.TaxonomyID, 10) + ".json"

	out, err := h.ingest.LoadOpen(c.Request.Context(), ingest.LoadOpenInput{
		FileName:    fileName,
		Layout:      req.Layout,
		Headers:     req.Headers,
		Rows:        req.Rows,
		LoadKind:    req.LoadKind,
		InputFormat: "json",
		RequestID:   req.RequestID,
		CallbackURL: req.CallbackURL,
		Actor:       ctxutil.GetActor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.respondOpened(c, out)
}

// POST /v1/loads/file
func (h *LoadHandler) OpenLoadFromFile(c *gin.Context) {
	var req struct {
		Bucket      string             `json:"bucket"`
		Object      string             `json:"object"`
		URL         string             `json:"url"`
		RequestID   string             `json:"request_id"`
		LoadKind    string             `json:"load_kind"`
		Layout      *ingest.LayoutSpec `json:"layout"`
		CallbackURL string             `json:"callback_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if h.bucket == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "storage_disabled",
			errors.New("no source bucket configured"))
		return
	}

	ref := gcp.ObjectRef{Bucket: req.Bucket, Object: req.Object}
	if strings.TrimSpace(req.URL) != "" {
		parsed, err := gcp.ParseSourceURL(req.URL)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_source_url", err)
			return
		}
		ref = parsed
	}
	if strings.Trim(strings.TrimSpace(ref.Object), "/") == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("object key or url required"))
		return
	}

	rc, err := h.bucket.Download(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			response.RespondError(c, http.StatusNotFound, "object_not_found", err)
			return
		}
		response.RespondError(c, http.StatusBadGateway, "download_failed", err)
		return
	}
	defer rc.Close()

	headers, rows, err := decodeCSV(rc)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_csv", err)
		return
	}

	out, err := h.ingest.LoadOpen(c.Request.Context(), ingest.LoadOpenInput{
		FileName:    ref.Object,
		Layout:      req.Layout,
		Headers:     headers,
		Rows:        rows,
		LoadKind:    req.LoadKind,
		InputFormat: "csv",
		RequestID:   req.RequestID,
		SourceURL:   ref.String(),
		CallbackURL: req.CallbackURL,
		Actor:       ctxutil.GetActor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.respondOpened(c, out)
}

func (h *LoadHandler) respondOpened(c *gin.Context, out *ingest.LoadOpenOutput) {
	job, err := h.enq.EnqueueOnce(c.Request.Context(), jobs.KindLoadProcess, out.Load.ID.String(), nil)
	if err != nil {
		h.log.Error("enqueue load_process failed", "load_id", out.Load.ID.String(), "error", err.Error())
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"load":      out.Load,
		"taxonomy":  out.Taxonomy,
		"row_count": out.RowCount,
		"job":       job,
	})
}

// GET /v1/loads/:id
func (h *LoadHandler) GetLoad(c *gin.Context) {
	loadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_load_id", err)
		return
	}
	out, err := h.ingest.GetLoadStatus(c.Request.Context(), loadID)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"load":    out.Load,
		"details": out.Details,
		"counts":  out.Counts,
	})
}

// GET /v1/loads/:id/rows?status=failed&limit=100&offset=0
func (h *LoadHandler) ListLoadRows(c *gin.Context) {
	loadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_load_id", err)
		return
	}
	status := strings.TrimSpace(c.Query("status"))
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
	rows, err := h.rows.ListByLoad(dbc, loadID, status, limit, offset)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_rows_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"rows": rows, "count": len(rows)})
}

// POST /v1/loads/:id/withdraw
func (h *LoadHandler) WithdrawLoad(c *gin.Context) {
	loadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_load_id", err)
		return
	}
	out, err := h.ingest.LoadWithdraw(c.Request.Context(), ingest.LoadWithdrawInput{
		LoadID: loadID,
		Actor:  ctxutil.GetActor(c.Request.Context()),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"load": out.Load})
}
