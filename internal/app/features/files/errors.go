package files

import (
	"errors"
	"net/http"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	"github.com/dalemusser/stratadrive/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fail maps a drive error to its HTTP response. Unclassified errors are
// logged and reported as 500 without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *drive.ValidationError
	switch {
	case errors.As(err, &ve):
		jsonutil.ValidationError(w, map[string]string{ve.Field: ve.Message})
	case errors.Is(err, drive.ErrValidation):
		jsonutil.BadRequest(w, err.Error())
	case errors.Is(err, drive.ErrNotAuthenticated):
		jsonutil.Unauthorized(w, err.Error())
	case errors.Is(err, drive.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	case errors.Is(err, drive.ErrQuotaExceeded):
		jsonutil.TooLarge(w, err.Error())
	case errors.Is(err, drive.ErrInsufficientCredits):
		jsonutil.PaymentRequired(w, err.Error())
	case errors.Is(err, drive.ErrNotInBin):
		jsonutil.Error(w, http.StatusConflict, "not_in_bin", err.Error())
	case errors.Is(err, drive.ErrAlreadyDeleted):
		jsonutil.Error(w, http.StatusConflict, "already_deleted", err.Error())
	case errors.Is(err, drive.ErrCircularReference):
		jsonutil.Error(w, http.StatusUnprocessableEntity, "circular_reference", err.Error())
	default:
		h.errLog.Log(r, "drive operation failed", err)
		jsonutil.InternalError(w, "internal error")
	}
}

// pathID parses the {id} URL parameter. A malformed id names no row, so
// it gets the same 404 as an id that matches nothing; the body and query
// parsers below follow the same rule.
func pathID(w http.ResponseWriter, r *http.Request, notFound error) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, notFound.Error())
		return primitive.NilObjectID, false
	}
	return id, true
}

// optionalID parses an optional folder reference from a body or query;
// empty means the root.
func optionalID(w http.ResponseWriter, raw string, notFound error) (*primitive.ObjectID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		jsonutil.NotFound(w, notFound.Error())
		return nil, false
	}
	return &id, true
}

func optionalIDPtr(w http.ResponseWriter, raw *string, notFound error) (*primitive.ObjectID, bool) {
	if raw == nil {
		return nil, true
	}
	return optionalID(w, *raw, notFound)
}
