package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docuexplore/internal/apperr"
	"docuexplore/internal/logger"
	"docuexplore/internal/models"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	DefaultMaxResults  = 5
)

// Provider runs a single search request against one backend.
type Provider interface {
	Name() string
	Query(ctx context.Context, query string) (*models.SearchResultSet, error)
}

// HTTPError is returned by providers when the backend answers with a non-2xx status.
// Only these errors are retried.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "search: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("search http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Searcher wraps a provider with the retry policy used for related-article lookups.
type Searcher struct {
	provider    Provider
	maxRetries  int
	backoffBase time.Duration
	sleep       func(context.Context, time.Duration) error
	log         *logger.Logger
}

// NewSearcher builds a Searcher; non-positive values fall back to the defaults.
func NewSearcher(provider Provider, maxRetries int, backoffBase time.Duration, log *logger.Logger) *Searcher {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	return &Searcher{
		provider:    provider,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		sleep:       sleepContext,
		log:         logger.OrNop(log).With("component", "search", "provider", provider.Name()),
	}
}

// Search returns the result set for query, or nil with a search-unavailable error.
// A blank query returns nil, nil without contacting the provider.
// HTTP errors are retried with exponential backoff; any other error gives up at once.
func (s *Searcher) Search(ctx context.Context, query string) (*models.SearchResultSet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		result, err := s.provider.Query(ctx, query)
		if err == nil {
			if result != nil && result.Query == "" {
				result.Query = query
			}
			return result, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) {
			s.log.Error("search failed", "query", query, "error", err)
			return nil, apperr.New(apperr.KindSearchUnavailable, "related articles are unavailable", err)
		}
		if attempt == s.maxRetries-1 {
			break
		}

		wait := (1 << attempt) * s.backoffBase
		s.log.Warn("search request retrying",
			"attempt", attempt+1,
			"max_retries", s.maxRetries,
			"status", httpErr.StatusCode,
			"sleep", wait.String(),
		)
		if err := s.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	s.log.Error("search gave up", "query", query, "attempts", s.maxRetries, "error", lastErr)
	return nil, apperr.New(apperr.KindSearchUnavailable, "related articles are unavailable", lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
