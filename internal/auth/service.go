package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service identifies browser sessions by cookie and issues CSRF tokens for them.
// There are no accounts; the session id is the only identity.
type Service struct {
	sessionTTL        time.Duration
	cookieName        string
	csrfCookieName    string
	csrfHeaderName    string
	csrfFormFieldName string
}

// NewService constructs a session service with the supplied cookie lifetime.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		sessionTTL:        ttl,
		cookieName:        "docuexplore_session",
		csrfCookieName:    "csrf_token",
		csrfHeaderName:    "X-CSRF-Token",
		csrfFormFieldName: "csrf_token",
	}
}

// NewSessionID returns a fresh random session identifier.
func (s *Service) NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID rejects cookie values this service could not have issued.
func (s *Service) ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// SessionCookieName returns the cookie name storing session ids.
func (s *Service) SessionCookieName() string {
	return s.cookieName
}

func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

func (s *Service) CSRFFormFieldName() string {
	return s.csrfFormFieldName
}
