package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies pipeline failures by how far they propagate.
type Kind string

const (
	KindUploadTransport   Kind = "upload_transport"
	KindProcessingFailed  Kind = "processing_failed"
	KindSearchUnavailable Kind = "search_unavailable"
	KindTitleGeneration   Kind = "title_generation_failed"
	KindChatTurn          Kind = "chat_turn"
	KindValidation        Kind = "validation"
	KindBusy              Kind = "busy"
	KindNotReady          Kind = "not_ready"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Fatal reports whether the error halts document ingestion.
func (e *Error) Fatal() bool {
	if e == nil {
		return false
	}
	return e.Kind == KindUploadTransport || e.Kind == KindProcessingFailed
}

// StatusCode maps the kind to an HTTP status for handlers.
func (e *Error) StatusCode() int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindBusy:
		return http.StatusTooManyRequests
	case KindNotReady:
		return http.StatusConflict
	case KindProcessingFailed:
		return http.StatusUnprocessableEntity
	case KindUploadTransport, KindSearchUnavailable, KindTitleGeneration, KindChatTurn:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// StatusCode returns the HTTP status for any error.
func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}

// Message returns the user-facing message of err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
