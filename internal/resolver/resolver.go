package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/codex-k8s/mcp-exec/internal/mcperr"
)

var (
	// ErrNotFound is returned by sources that do not hold the locator.
	ErrNotFound = errors.New("component not found")
	// ErrNetworkDisabled is returned by network sources when networking is off.
	ErrNetworkDisabled = errors.New("network resolution is disabled")
)

// Artifact is a resolved component binary.
type Artifact struct {
	// Bytes is the raw component binary. It must not be modified.
	Bytes []byte
	// Digest is the content digest of Bytes.
	Digest digest.Digest
	// Signature is an optional detached signature over Digest.
	Signature []byte
	// Provenance records where the bytes came from.
	Provenance Provenance
}

// Provenance describes the origin of an artifact.
type Provenance struct {
	// Locator is the logical component locator.
	Locator string
	// Source names the source variant that produced the bytes.
	Source string
	// CacheHit is true when the cached bytes were reused.
	CacheHit bool
	// FetchedAt is when the bytes were last fetched.
	FetchedAt time.Time
	// ETag is the validator returned by network sources.
	ETag string
}

// Fetched is the raw outcome of a source fetch.
type Fetched struct {
	// Bytes is the fetched content. Empty when NotModified.
	Bytes []byte
	// Signature is a detached signature found next to the content.
	Signature []byte
	// ETag is an optional validator for conditional refetches.
	ETag string
	// NotModified reports that the cached artifact is still current.
	NotModified bool
}

// Source obtains component bytes for a locator. New resolution backends
// (registries, object stores) implement Source and plug into New unchanged.
type Source interface {
	// Name identifies the source variant.
	Name() string
	// Fetch returns the bytes for locator. cached is the previous artifact
	// for the same locator, if any.
	Fetch(ctx context.Context, locator string, cached *Artifact) (Fetched, error)
}

type transientError struct {
	err error
}

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks a source error as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// fetchTimeout bounds a shared fetch once it is detached from its callers.
var fetchTimeout = 2 * time.Minute

// Resolver resolves locators through a Source and caches artifacts by locator.
type Resolver struct {
	source Source
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*Artifact
	group singleflight.Group
}

// New creates a resolver that owns its cache.
func New(source Source, logger *slog.Logger) *Resolver {
	return &Resolver{
		source: source,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]*Artifact),
	}
}

// Resolve returns the artifact for locator. Concurrent calls for the same
// locator share one fetch.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Artifact, error) {
	if r == nil || r.source == nil {
		return nil, mcperr.ResolutionFailed(locator, false, errors.New("no tool store configured"))
	}
	if locator == "" {
		return nil, mcperr.ResolutionFailed(locator, false, errors.New("component locator is empty"))
	}
	// The shared fetch outlives any single caller; each caller stops
	// waiting on its own context.
	ch := r.group.DoChan(locator, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return r.fetch(fetchCtx, locator)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, mcperr.ResolutionFailed(locator, false, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	art := *res.Val.(*Artifact)
	if res.Shared && r.logger != nil {
		r.logger.Debug("artifact fetch shared", "component", locator)
	}
	return &art, nil
}

// Cached returns the cached artifact for locator without fetching.
func (r *Resolver) Cached(locator string) (*Artifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	art, ok := r.cache[locator]
	if !ok {
		return nil, false
	}
	cp := *art
	return &cp, true
}

// Invalidate drops the cache entry for locator so the next Resolve fetches
// without a previous artifact.
func (r *Resolver) Invalidate(locator string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, locator)
}

func (r *Resolver) fetch(ctx context.Context, locator string) (*Artifact, error) {
	cached, _ := r.Cached(locator)

	fetched, err := r.source.Fetch(ctx, locator, cached)
	if err != nil {
		return nil, mcperr.ResolutionFailed(locator, IsTransient(err), err)
	}

	if fetched.NotModified {
		if cached == nil {
			return nil, mcperr.ResolutionFailed(locator, false, errors.New("source reported not modified without a cached artifact"))
		}
		hit := *cached
		hit.Provenance.CacheHit = true
		return &hit, nil
	}

	if err := CheckHeader(fetched.Bytes); err != nil {
		return nil, mcperr.ResolutionFailed(locator, false, err)
	}

	sum := digest.FromBytes(fetched.Bytes)
	if cached != nil && cached.Digest == sum {
		hit := *cached
		hit.Provenance.CacheHit = true
		if fetched.ETag != "" {
			hit.Provenance.ETag = fetched.ETag
		}
		hit.Signature = fetched.Signature
		r.store(locator, &hit)
		return &hit, nil
	}

	art := &Artifact{
		Bytes:     fetched.Bytes,
		Digest:    sum,
		Signature: fetched.Signature,
		Provenance: Provenance{
			Locator:   locator,
			Source:    r.source.Name(),
			FetchedAt: r.now(),
			ETag:      fetched.ETag,
		},
	}
	if cached != nil && r.logger != nil {
		r.logger.Info("artifact changed", "component", locator, "previous_digest", cached.Digest.String(), "digest", sum.String())
	}
	r.store(locator, art)
	return art, nil
}

func (r *Resolver) store(locator string, art *Artifact) {
	entry := *art
	entry.Provenance.CacheHit = false
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[locator] = &entry
}

var (
	wasmMagic        = []byte{0x00, 'a', 's', 'm'}
	moduleVersion    = []byte{0x01, 0x00, 0x00, 0x00}
	componentVersion = []byte{0x0d, 0x00, 0x01, 0x00}
)

// CheckHeader verifies that data starts with a WebAssembly module or
// component preamble.
func CheckHeader(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("invalid component: %d bytes is shorter than the wasm preamble", len(data))
	}
	if string(data[:4]) != string(wasmMagic) {
		return errors.New("invalid component: missing wasm magic")
	}
	version := string(data[4:8])
	if version != string(moduleVersion) && version != string(componentVersion) {
		return fmt.Errorf("invalid component: unknown wasm version %x", data[4:8])
	}
	return nil
}
