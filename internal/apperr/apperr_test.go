package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorKindsAndPropagation(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("pipeline: %w", New(KindUploadTransport, "upload failed", cause))

	if !IsKind(err, KindUploadTransport) {
		t.Fatalf("expected upload transport kind")
	}
	if IsKind(err, KindChatTurn) {
		t.Fatalf("unexpected chat turn kind")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause not reachable through Unwrap")
	}
	var appErr *Error
	if !errors.As(err, &appErr) || !appErr.Fatal() {
		t.Fatalf("upload transport must be fatal")
	}
	if Message(err) != "upload failed" {
		t.Fatalf("unexpected message %q", Message(err))
	}
}

func TestBestEffortKindsAreNotFatal(t *testing.T) {
	for _, kind := range []Kind{KindSearchUnavailable, KindTitleGeneration, KindChatTurn} {
		if New(kind, "x", nil).Fatal() {
			t.Fatalf("%s should not be fatal", kind)
		}
	}
	if !New(KindProcessingFailed, "x", nil).Fatal() {
		t.Fatalf("processing failure should be fatal")
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(New(KindBusy, "busy", nil)); got != http.StatusTooManyRequests {
		t.Fatalf("busy status = %d", got)
	}
	if got := StatusCode(New(KindValidation, "bad", nil)); got != http.StatusBadRequest {
		t.Fatalf("validation status = %d", got)
	}
	if got := StatusCode(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("plain error status = %d", got)
	}
}
