// Package semantic provides the optional similarity collaborator that
// scores how close a context's free text sits to a feature description.
// The collaborator is best effort. Callers treat failures and timeouts as
// a zero contribution, never as a request failure.
package semantic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryasuneesh/feature-discovery/internal/log"
)

// ErrUnavailable is returned when the collaborator cannot produce a
// similarity within its deadline.
var ErrUnavailable = errors.New("semantic similarity unavailable")

// DefaultTimeout bounds one similarity call.
const DefaultTimeout = 2 * time.Second

// DefaultCacheSize is the default number of cached similarity results.
const DefaultCacheSize = 4096

// Similarity computes a similarity in [0, 1] between a context's free
// text and a feature description.
type Similarity interface {
	Similarity(ctx context.Context, contextText, featureText string) (float64, error)
}

// Cached wraps a Similarity with an LRU keyed by context hash and feature
// text, and enforces a per-call deadline. Failures within the deadline
// and deadline expiry both surface as ErrUnavailable.
type Cached struct {
	inner   Similarity
	cache   *lru[string, float64]
	timeout time.Duration
	logger  *slog.Logger
}

// CachedOptions configures the caching wrapper.
type CachedOptions struct {
	Timeout   time.Duration
	CacheSize int
	Logger    *slog.Logger
}

// NewCached wraps inner with caching and a deadline.
func NewCached(inner Similarity, opts CachedOptions) *Cached {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		inner:   inner,
		cache:   newLRU[string, float64](size),
		timeout: timeout,
		logger:  logger,
	}
}

func cacheKey(contextText, featureText string) string {
	h := sha256.New()
	h.Write([]byte(contextText))
	h.Write([]byte{0})
	h.Write([]byte(featureText))
	return hex.EncodeToString(h.Sum(nil))
}

// Similarity returns the cached result when present, otherwise calls the
// inner collaborator under the deadline and caches a successful result.
func (c *Cached) Similarity(ctx context.Context, contextText, featureText string) (float64, error) {
	key := cacheKey(contextText, featureText)
	if v, ok := c.cache.get(key); ok {
		return v, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.inner.Similarity(callCtx, contextText, featureText)
	if err != nil {
		log.LogCollaboratorDegraded(c.logger, err)
		return 0, ErrUnavailable
	}
	v = clamp01(v)
	c.cache.put(key, v)
	return v, nil
}

// CacheLen returns the number of cached results.
func (c *Cached) CacheLen() int {
	return c.cache.len()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// HTTPClient calls an external similarity service over HTTP. The service
// accepts a JSON pair and returns {"similarity": <float>}.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a client for the given endpoint URL.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{},
	}
}

type similarityRequest struct {
	ContextText string `json:"context_text"`
	FeatureText string `json:"feature_text"`
}

type similarityResponse struct {
	Similarity float64 `json:"similarity"`
}

// Similarity posts the text pair to the service. The caller's context
// carries the deadline.
func (h *HTTPClient) Similarity(ctx context.Context, contextText, featureText string) (float64, error) {
	body, err := json.Marshal(similarityRequest{
		ContextText: contextText,
		FeatureText: featureText,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("similarity service returned %d", resp.StatusCode)
	}

	var out similarityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Similarity, nil
}

// Fixed returns a predetermined similarity per feature text, with a
// fallback default. Useful in tests and for offline operation.
type Fixed struct {
	Values  map[string]float64
	Default float64
	// Delay simulates a slow collaborator.
	Delay time.Duration
	// Err, when set, is returned on every call.
	Err error
}

// Similarity returns the configured value for featureText.
func (f *Fixed) Similarity(ctx context.Context, contextText, featureText string) (float64, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.Err != nil {
		return 0, f.Err
	}
	if v, ok := f.Values[featureText]; ok {
		return v, nil
	}
	return f.Default, nil
}
