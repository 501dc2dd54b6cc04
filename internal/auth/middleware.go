package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	sessionIDContextKey = "session_id"
	csrfTokenContextKey = "csrf_token"
)

// Middleware makes sure every request carries a session id and a CSRF token,
// issuing new cookies when they are missing or malformed.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(s.cookieName)
		if err != nil || !s.ValidSessionID(sessionID) {
			sessionID = s.NewSessionID()
		}
		csrfToken, err := c.Cookie(s.csrfCookieName)
		if err != nil || csrfToken == "" {
			csrfToken, err = s.NewCSRFToken()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
				return
			}
		}
		// Refresh both cookies so an active session keeps its lifetime.
		s.setSessionCookies(c, sessionID, csrfToken)
		c.Set(sessionIDContextKey, sessionID)
		c.Set(csrfTokenContextKey, csrfToken)
		c.Next()
	}
}

// SessionIDFromContext retrieves the session id stored by the middleware.
func SessionIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(sessionIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok && id != ""
}

// CSRFTokenFromContext retrieves the token to embed in rendered forms.
func CSRFTokenFromContext(c *gin.Context) string {
	val, ok := c.Get(csrfTokenContextKey)
	if !ok {
		return ""
	}
	token, _ := val.(string)
	return token
}

// ClearSession expires the session cookies.
func (s *Service) ClearSession(c *gin.Context) {
	for _, name := range []string{s.cookieName, s.csrfCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == s.cookieName,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (s *Service) setSessionCookies(c *gin.Context, sessionID, csrfToken string) {
	ttl := int(s.sessionTTL.Seconds())
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.csrfCookieName,
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}
