package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dharsanguruparan/FolderDrop/internal/common"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("encode response", slog.String("error", err.Error()))
	}
}

// respondError maps a service error onto a status code. Token and scope
// failures share one message so callers cannot tell which check failed.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path), slog.Int("status", status), slog.String("error", err.Error()))
	}
	respondJSON(w, status, errorBody{Error: msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrAccessDenied),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenExhausted):
		return http.StatusForbidden, common.ErrAccessDenied.Error()
	case errors.Is(err, common.ErrDownloadPaused):
		return http.StatusLocked, common.ErrDownloadPaused.Error()
	case errors.Is(err, common.ErrUploadPaused):
		return http.StatusLocked, common.ErrUploadPaused.Error()
	case errors.Is(err, common.ErrDownloadLimitExceeded):
		return http.StatusGone, common.ErrDownloadLimitExceeded.Error()
	case errors.Is(err, common.ErrEmptyFolder):
		return http.StatusNotFound, common.ErrEmptyFolder.Error()
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, common.ErrNotFound.Error()
	case errors.Is(err, common.ErrAlreadyExists):
		return http.StatusConflict, common.ErrAlreadyExists.Error()
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests, common.ErrRateLimited.Error()
	case errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, common.ErrTooLarge.Error()
	case errors.Is(err, common.ErrForbiddenType),
		errors.Is(err, common.ErrEmptyUpload),
		errors.Is(err, common.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrArchiveBuildFailed):
		return http.StatusBadGateway, common.ErrArchiveBuildFailed.Error()
	case errors.Is(err, common.ErrInfrastructure):
		return http.StatusServiceUnavailable, common.ErrInfrastructure.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
