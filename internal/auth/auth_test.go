package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(s.Middleware(), s.CSRFMiddleware())
	handler := func(c *gin.Context) {
		id, _ := SessionIDFromContext(c)
		c.String(http.StatusOK, id)
	}
	r.GET("/", handler)
	r.POST("/form", handler)
	return r
}

func cookieValue(rec *httptest.ResponseRecorder, name string) string {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func TestMiddlewareIssuesSessionCookies(t *testing.T) {
	s := NewService(time.Hour)
	r := newTestRouter(s)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	id := cookieValue(rec, s.SessionCookieName())
	if !s.ValidSessionID(id) || rec.Body.String() != id {
		t.Fatalf("expected a uuid session id, cookie=%q body=%q", id, rec.Body.String())
	}
	if cookieValue(rec, s.CSRFCookieName()) == "" {
		t.Fatalf("expected csrf cookie")
	}
}

func TestMiddlewareKeepsExistingSession(t *testing.T) {
	s := NewService(time.Hour)
	r := newTestRouter(s)
	id := s.NewSessionID()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: s.SessionCookieName(), Value: id})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != id {
		t.Fatalf("expected session %s kept, got %s", id, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: s.SessionCookieName(), Value: "not-a-uuid"})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() == "not-a-uuid" {
		t.Fatalf("malformed session id must be replaced")
	}
}

func TestCSRFMiddleware(t *testing.T) {
	s := NewService(time.Hour)
	r := newTestRouter(s)
	token := "abc123"

	post := func(field, header string) int {
		form := url.Values{}
		if field != "" {
			form.Set(s.CSRFFormFieldName(), field)
		}
		req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if header != "" {
			req.Header.Set(s.CSRFHeaderName(), header)
		}
		req.AddCookie(&http.Cookie{Name: s.CSRFCookieName(), Value: token})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := post("", ""); code != http.StatusForbidden {
		t.Fatalf("missing token: expected 403, got %d", code)
	}
	if code := post("wrong", ""); code != http.StatusForbidden {
		t.Fatalf("wrong token: expected 403, got %d", code)
	}
	if code := post(token, ""); code != http.StatusOK {
		t.Fatalf("form token: expected 200, got %d", code)
	}
	if code := post("", token); code != http.StatusOK {
		t.Fatalf("header token: expected 200, got %d", code)
	}
}
