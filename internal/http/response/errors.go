package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// RespondDomainError maps domain sentinels onto HTTP statuses so handlers
// do not repeat the same errors.Is ladder everywhere.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrUnauthorized):
		RespondError(c, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, pkgerrors.ErrTaxonomyBusy),
		errors.Is(err, pkgerrors.ErrVersionLockTimeout):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument),
		errors.Is(err, pkgerrors.ErrLoadInvalid),
		errors.Is(err, pkgerrors.ErrLoadNameInvalid),
		pkgerrors.IsLayoutError(err),
		pkgerrors.IsRowLocal(err):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
