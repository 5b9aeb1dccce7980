package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// MaxArtifactSize caps the bytes read from a network source.
const MaxArtifactSize = 64 << 20

// HTTPFile resolves a single named locator from a URL.
type HTTPFile struct {
	// Locator is the only locator this source answers.
	Locator string
	// URL points at the component binary.
	URL string
	// Enabled gates all network access.
	Enabled bool

	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFile builds a network source. perMinute <= 0 disables rate limiting.
func NewHTTPFile(locator, url string, enabled bool, timeout time.Duration, perMinute int) *HTTPFile {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := &HTTPFile{
		Locator: locator,
		URL:     url,
		Enabled: enabled,
		client:  &http.Client{Timeout: timeout},
	}
	if perMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return h
}

// Name implements Source.
func (h *HTTPFile) Name() string {
	return "http-file"
}

// Fetch implements Source with a conditional GET against the cached ETag.
func (h *HTTPFile) Fetch(ctx context.Context, locator string, cached *Artifact) (Fetched, error) {
	if !h.Enabled {
		return Fetched{}, ErrNetworkDisabled
	}
	if locator != h.Locator {
		return Fetched{}, fmt.Errorf("%w: %s is not served by %s", ErrNotFound, locator, h.URL)
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return Fetched{}, Transient(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	etag := ""
	if cached != nil {
		etag = cached.Provenance.ETag
	}
	body, newTag, status, err := h.get(ctx, h.URL, etag)
	if err != nil {
		return Fetched{}, err
	}
	if status == http.StatusNotModified {
		return Fetched{NotModified: true, ETag: etag}, nil
	}

	sig, _, sigStatus, err := h.get(ctx, h.URL+signatureSuffix, "")
	if err != nil || sigStatus != http.StatusOK {
		sig = nil
	}
	return Fetched{Bytes: body, Signature: sig, ETag: newTag}, nil
}

func (h *HTTPFile) get(ctx context.Context, url, etag string) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("build request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	client := h.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", 0, Transient(fmt.Errorf("fetch %s: %w", url, err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, etag, resp.StatusCode, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", resp.StatusCode, fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode >= 500:
		return nil, "", resp.StatusCode, Transient(fmt.Errorf("fetch %s: status %d", url, resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, "", resp.StatusCode, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtifactSize+1))
	if err != nil {
		return nil, "", resp.StatusCode, Transient(fmt.Errorf("read %s: %w", url, err))
	}
	if len(body) > MaxArtifactSize {
		return nil, "", resp.StatusCode, errors.New("component exceeds the maximum artifact size")
	}
	return body, strings.TrimSpace(resp.Header.Get("ETag")), resp.StatusCode, nil
}
