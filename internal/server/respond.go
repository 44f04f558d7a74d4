package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/domain"
)

// User-visible messages.
const (
	msgNoFile        = "No file part"
	msgNoText        = "No text was extracted from the uploaded PDFs. Please try again."
	MsgIngested      = "Processing complete! You can now ask questions."
	msgNoQuestion    = "No question provided."
	msgIndexLoad     = "Error loading document index."
	msgIngestFailed  = "Failed to process the uploaded PDFs. Please try again."
	msgService       = "The language service is unavailable. Please try again later."
	msgTimeout       = "The request timed out. Please try again."
	msgTooLarge      = "The upload is too large."
	msgInternalError = "Internal server error."
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Classify maps a pipeline error to a status, an error code and the
// message shown to the user.
func Classify(err error) (int, string, string) {
	var se *domain.ServiceError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNoFile):
		return http.StatusBadRequest, "no_file", msgNoFile
	case errors.Is(err, domain.ErrNoQuestion):
		return http.StatusBadRequest, "no_question", msgNoQuestion
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "upload_too_large", msgTooLarge
	case errors.Is(err, domain.ErrNoExtractableText):
		return http.StatusUnprocessableEntity, "no_text", msgNoText
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "index_unavailable", msgIndexLoad
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", msgTimeout
	case errors.As(err, &se):
		return http.StatusBadGateway, "service_error", msgService
	case errors.Is(err, domain.ErrIndexBuild), errors.Is(err, domain.ErrIndexPersist):
		return http.StatusInternalServerError, "ingest_failed", msgIngestFailed
	default:
		return http.StatusInternalServerError, "internal_error", msgInternalError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code, msg := Classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "request_id", GetRequestID(c), "error", err)
	}
	respondError(c, status, code, msg)
}

func respondError(c *gin.Context, status int, code, msg string) {
	if wantsJSON(c) {
		c.JSON(status, ErrorResponse{ErrorCode: code, Message: msg, RequestID: GetRequestID(c)})
		return
	}
	c.String(status, msg)
}

// wantsJSON reports whether the client sent or asked for JSON. Form
// clients get plain text.
func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		return true
	}
	return c.NegotiateFormat(gin.MIMEPlain, gin.MIMEJSON) == gin.MIMEJSON
}
