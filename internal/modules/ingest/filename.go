package ingest

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/domain/bronze"
	"github.com/carelattice/taxonomy-backend/internal/domain/silver"
	"github.com/carelattice/taxonomy-backend/internal/normalization"
	pkgerrors "github.com/carelattice/taxonomy-backend/internal/pkg/errors"
)

// LoadName is the taxonomy identity carried by an uploaded file's name, of
// the form "Master|Customer <owner_id> <taxonomy_id> [free text].<ext>".
// Master files must carry the reserved sentinels for owner and taxonomy id.
type LoadName struct {
	TaxonomyKind string
	CustomerID   string
	TaxonomyID   int64
	Note         string
	Ext          string
}

// ParseLoadName extracts the load identity from a file name or object path.
// The kind token is case-insensitive; everything after the taxonomy id is
// kept as a free-form note. Inconsistent sentinel usage (a Master file not
// using -1/-1, or a Customer file using them) is rejected rather than
// silently coerced.
func ParseLoadName(name string) (LoadName, error) {
	base := normalization.Normalize(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if base == "" || base == "." || base == "/" {
		return LoadName{}, fmt.Errorf("%w: empty name", pkgerrors.ErrLoadNameInvalid)
	}
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	fields := strings.Fields(stem)
	if len(fields) < 3 {
		return LoadName{}, fmt.Errorf("%w: %q needs kind, owner and taxonomy id", pkgerrors.ErrLoadNameInvalid, base)
	}

	var kind string
	switch strings.ToLower(fields[0]) {
	case "master":
		kind = bronze.TaxonomyKindMaster
	case "customer":
		kind = bronze.TaxonomyKindCustomer
	default:
		return LoadName{}, fmt.Errorf("%w: unknown kind %q", pkgerrors.ErrLoadNameInvalid, fields[0])
	}

	owner := fields[1]
	if len(owner) > 255 {
		return LoadName{}, fmt.Errorf("%w: owner id longer than 255 chars", pkgerrors.ErrLoadNameInvalid)
	}

	taxonomyID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return LoadName{}, fmt.Errorf("%w: taxonomy id %q is not an integer", pkgerrors.ErrLoadNameInvalid, fields[2])
	}

	switch kind {
	case bronze.TaxonomyKindMaster:
		if owner != silver.MasterCustomerID || taxonomyID != silver.MasterTaxonomyID {
			return LoadName{}, fmt.Errorf("%w: master files use owner %s and taxonomy %d",
				pkgerrors.ErrLoadNameInvalid, silver.MasterCustomerID, silver.MasterTaxonomyID)
		}
	case bronze.TaxonomyKindCustomer:
		if owner == silver.MasterCustomerID || taxonomyID == silver.MasterTaxonomyID {
			return LoadName{}, fmt.Errorf("%w: customer files may not use reserved identifiers", pkgerrors.ErrLoadNameInvalid)
		}
		if taxonomyID <= 0 {
			return LoadName{}, fmt.Errorf("%w: taxonomy id must be positive", pkgerrors.ErrLoadNameInvalid)
		}
	}

	return LoadName{
		TaxonomyKind: kind,
		CustomerID:   owner,
		TaxonomyID:   taxonomyID,
		Note:         strings.Join(fields[3:], " "),
		Ext:          strings.ToLower(strings.TrimPrefix(ext, ".")),
	}, nil
}
