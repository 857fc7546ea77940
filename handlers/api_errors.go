package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/camden-git/entomobackend/annotation"
	"github.com/camden-git/entomobackend/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps editor and persistence errors onto the API envelope.
// Anything unrecognised is logged and reported as a 500 without detail.
func writeDomainError(w http.ResponseWriter, log *slog.Logger, err error) {
	var perr *annotation.PersistenceError
	switch {
	case errors.Is(err, annotation.ErrInvalid):
		WriteAPIError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, services.ErrSessionNotFound):
		WriteAPIError(w, http.StatusNotFound, "session_not_found", "Session not found or expired")
	case errors.Is(err, services.ErrUploadNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		WriteAPIError(w, http.StatusNotFound, "upload_not_found", "Upload not found")
	case errors.Is(err, annotation.ErrNotFound):
		WriteAPIError(w, http.StatusNotFound, "detection_not_found", err.Error())
	case errors.Is(err, annotation.ErrConcurrentSave):
		WriteAPIError(w, http.StatusConflict, "save_in_progress", "A save for this session is already in flight")
	case errors.Is(err, annotation.ErrUnresolvedIDs):
		WriteAPIError(w, http.StatusConflict, "reconcile_required", "Created detections have no server id yet; reconcile the session before saving again")
	case errors.Is(err, annotation.ErrSaveAborted):
		WriteAPIError(w, http.StatusServiceUnavailable, "save_aborted", "The save was cancelled; changes are kept")
	case errors.As(err, &perr):
		log.Warn("persistence failed", "upload_id", perr.UploadID, "error", perr.Err)
		WriteAPIError(w, http.StatusBadGateway, "persistence_failed", "Changes could not be saved; they are kept for retry")
	default:
		log.Error("unhandled error", "error", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
