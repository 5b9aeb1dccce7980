package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opencontainers/go-digest"

	"github.com/codex-k8s/mcp-exec/internal/audit"
	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/dispatch"
	"github.com/codex-k8s/mcp-exec/internal/idempotency"
	"github.com/codex-k8s/mcp-exec/internal/maputil"
	"github.com/codex-k8s/mcp-exec/internal/mcperr"
	"github.com/codex-k8s/mcp-exec/internal/protocol"
	"github.com/codex-k8s/mcp-exec/internal/resolver"
	"github.com/codex-k8s/mcp-exec/internal/runtime/executor"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/secrets"
	"github.com/codex-k8s/mcp-exec/internal/security"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
	"github.com/codex-k8s/mcp-exec/internal/verify"
)

// Options carries optional collaborators of a Runner.
type Options struct {
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Audit records pipeline events.
	Audit audit.Logger
	// Cache stores idempotent call envelopes.
	Cache *idempotency.Cache
	// HTTPClient serves the http-request capability.
	HTTPClient *http.Client
}

// Runner resolves, verifies, dispatches and executes requests, retrying
// transient failures. It owns the resolver cache.
type Runner struct {
	cfg      ExecConfig
	host     sandbox.Host
	resolver *resolver.Resolver
	logger   *slog.Logger
	audit    audit.Logger
	cache    *idempotency.Cache
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	modules  map[digest.Digest]sandbox.Module
	metadata map[digest.Digest]*describe.Metadata
	digests  map[string]digest.Digest
}

// NewRunner creates a runner over host.
func NewRunner(cfg ExecConfig, host sandbox.Host, opts Options) *Runner {
	cfg.Runtime = cfg.Runtime.WithDefaults()
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Runtime.PerCallTimeout}
	}
	return &Runner{
		cfg:      cfg,
		host:     host,
		resolver: resolver.New(cfg.Store, opts.Logger),
		logger:   opts.Logger,
		audit:    opts.Audit,
		cache:    opts.Cache,
		client:   client,
		now:      time.Now,
		modules:  make(map[digest.Digest]sandbox.Module),
		metadata: make(map[digest.Digest]*describe.Metadata),
		digests:  make(map[string]digest.Digest),
	}
}

// Close releases compiled modules.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for d, mod := range r.modules {
		errs = append(errs, mod.Close(ctx))
		delete(r.modules, d)
	}
	return errors.Join(errs...)
}

// Run executes req and always returns an envelope.
func (r *Runner) Run(ctx context.Context, req Request) protocol.Envelope {
	rev, err := protocol.ParseRevision(req.Protocol)
	if err != nil {
		return mcperr.Envelope(mcperr.ConfigError(err.Error(), map[string]any{"protocol": req.Protocol}), protocol.Latest)
	}
	n, err := req.normalize()
	if err != nil {
		return mcperr.Envelope(err, rev)
	}

	var tc tenant.Ctx
	hasTenant := req.Tenant != nil
	if hasTenant {
		tc = *req.Tenant
	}
	// Only the retry loop advances the attempt counter.
	tc.Attempt = 0
	tc = tc.WithDefaults()

	logger := r.log().With("component", n.Component, "tool", n.Action, "operation", string(n.op), "correlation_id", tc.CorrelationID)
	logger.Info("exec request", "args", security.RedactJSON(n.args), "tenant", tc.Tenant)

	cacheable := n.op == OperationCall && r.cache != nil && hasTenant && strings.TrimSpace(tc.IdempotencyKey) != ""
	if cacheable {
		cached, ok, err := r.lookup(ctx, n, tc, logger)
		if err != nil {
			return r.failed(ctx, n, tc, err, rev, logger)
		}
		if ok {
			return cached
		}
	}

	if wall := r.cfg.Runtime.WallClockTimeout; wall > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wall)
		defer cancel()
		limit := r.now().Add(wall)
		if tc.Deadline == nil || limit.Before(*tc.Deadline) {
			tc.Deadline = &limit
		}
	}

	res, served, err := r.retry(ctx, n, tc, hasTenant, rev, logger)
	if err != nil {
		return r.failed(ctx, n, tc, err, rev, logger)
	}

	env := res.Envelope()
	logger.Info("exec ok")
	r.record(ctx, audit.Event{Type: audit.EventExecOK, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID})
	if cacheable && res.Kind == executor.ResultCompleted {
		key, err := buildCacheKey(n.Component, n.Action, served, &tc, n.args)
		if err != nil {
			logger.Warn("cache key build failed", "error", err)
			return env
		}
		r.cache.Set(n.Component, key, env)
		r.record(ctx, audit.Event{Type: audit.EventCacheStore, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Digest: served.String()})
	}
	return env
}

// lookup returns a cached envelope for the artifact the locator currently
// resolves to. The artifact must pass verification before any cached result
// is served. Transient resolution failures are left to the retry loop.
func (r *Runner) lookup(ctx context.Context, n normalized, tc tenant.Ctx, logger *slog.Logger) (protocol.Envelope, bool, error) {
	art, _, err := r.prepare(ctx, n.Component, tc)
	if err != nil {
		if mcperr.IsTransient(err) {
			return protocol.Envelope{}, false, nil
		}
		return protocol.Envelope{}, false, err
	}
	key, err := buildCacheKey(n.Component, n.Action, art.Digest, &tc, n.args)
	if err != nil {
		logger.Warn("cache key build failed", "error", err)
		return protocol.Envelope{}, false, nil
	}
	cached, ok := r.cache.Get(key)
	if !ok {
		return protocol.Envelope{}, false, nil
	}
	logger.Info("exec cache hit", "digest", art.Digest.String())
	r.record(ctx, audit.Event{Type: audit.EventCacheHit, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Digest: art.Digest.String()})
	return cached, true, nil
}

func (r *Runner) failed(ctx context.Context, n normalized, tc tenant.Ctx, err error, rev protocol.Revision, logger *slog.Logger) protocol.Envelope {
	mapped, ok := mcperr.As(err)
	if !ok {
		mapped = mcperr.RouterError("", err)
	}
	if n.Action != "" {
		mapped = mapped.WithTool(n.Action)
	}
	logger.Warn("exec failed", "kind", mapped.Kind.String(), "error", err)
	r.record(ctx, audit.Event{Type: audit.EventExecError, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Reason: err.Error()})
	return mcperr.Envelope(mapped, rev)
}

// retry runs attempts until success, a permanent error, exhausted attempts,
// or the tenant deadline. It returns the digest of the artifact that
// produced the result, or the last real error.
func (r *Runner) retry(ctx context.Context, n normalized, tc tenant.Ctx, hasTenant bool, rev protocol.Revision, logger *slog.Logger) (executor.Result, digest.Digest, error) {
	policy := r.cfg.Runtime
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseBackoff
	bo.MaxInterval = policy.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			tc = tc.NextAttempt()
		}
		if tc.Expired(r.now()) {
			break
		}

		res, served, err := r.attempt(ctx, n, tc, hasTenant, rev, logger.With("attempt", tc.Attempt))
		if err == nil {
			return res, served, nil
		}
		lastErr = err
		if !mcperr.IsTransient(err) || attempt == policy.MaxAttempts-1 {
			break
		}

		wait := bo.NextBackOff()
		if left, ok := tc.Remaining(r.now()); ok && wait >= left {
			logger.Info("retry budget exhausted", "attempt", tc.Attempt, "backoff", wait)
			break
		}
		logger.Info("retrying transient failure", "attempt", tc.Attempt, "backoff", wait, "error", err)
		r.record(ctx, audit.Event{Type: audit.EventRetry, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Attempt: tc.Attempt, Reason: err.Error()})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return executor.Result{}, "", lastErr
		case <-timer.C:
		}
	}
	if lastErr == nil {
		lastErr = mcperr.RouterError("deadline passed before the first attempt", context.DeadlineExceeded)
	}
	return executor.Result{}, "", lastErr
}

func (r *Runner) attempt(ctx context.Context, n normalized, tc tenant.Ctx, hasTenant bool, rev protocol.Revision, logger *slog.Logger) (executor.Result, digest.Digest, error) {
	art, mod, err := r.prepare(ctx, n.Component, tc)
	if err != nil {
		return executor.Result{}, "", err
	}

	comp := r.cfg.component(n.Component)
	kind := dispatch.Dispatch(mod.Exports(), comp.LegacyEntry)
	logger.Debug("dispatch", "kind", kind.String(), "digest", art.Digest.String())
	r.record(ctx, audit.Event{Type: audit.EventDispatch, Component: n.Component, Tool: n.Action, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Attempt: tc.Attempt, Digest: art.Digest.String(), Reason: kind.String()})

	declared := append([]describe.SecretRequirement(nil), comp.Secrets...)
	if meta := r.describe(ctx, art.Digest, mod, tc); meta != nil {
		declared = append(declared, meta.Secrets...)
	}
	imports := r.imports(n.Component, tc, hasTenant, declared, logger)

	var res executor.Result
	switch kind.Convention {
	case dispatch.Router:
		router := executor.Router{Logger: logger, ValidateArguments: r.cfg.Runtime.ValidateArguments}
		if n.op == OperationList {
			res, err = router.ListTools(ctx, mod, imports, rev)
		} else {
			res, err = router.CallTool(ctx, mod, imports, n.Action, n.args, rev)
		}
	case dispatch.Legacy:
		if n.op == OperationList {
			return executor.Result{}, "", mcperr.ConfigError("list operation is not supported by legacy components",
				map[string]any{"component": n.Component, "entry": kind.Entry})
		}
		res, err = executor.Legacy{Entry: kind.Entry, Logger: logger}.Exec(ctx, mod, imports, n.args, rev)
	default:
		return executor.Result{}, "", mcperr.Unsupported(n.Component, kind.Exports)
	}
	if err != nil {
		return executor.Result{}, "", err
	}
	return res, art.Digest, nil
}

// prepare resolves, verifies and compiles a component. Nothing is compiled
// for an artifact that fails verification.
func (r *Runner) prepare(ctx context.Context, locator string, tc tenant.Ctx) (*resolver.Artifact, sandbox.Module, error) {
	art, err := r.resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, nil, err
	}
	r.record(ctx, audit.Event{Type: audit.EventResolve, Component: locator, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Attempt: tc.Attempt, Digest: art.Digest.String(), Reason: fmt.Sprintf("source=%s cache_hit=%t", art.Provenance.Source, art.Provenance.CacheHit)})

	if err := verify.Verify(art, r.cfg.Verify); err != nil {
		r.record(ctx, audit.Event{Type: audit.EventVerifyFailed, Component: locator, Tenant: tc.Tenant, CorrelationID: tc.CorrelationID, Attempt: tc.Attempt, Digest: art.Digest.String(), Reason: err.Error()})
		r.resolver.Invalidate(locator)
		if n := r.cache.ForgetComponent(locator); n > 0 {
			r.log().Warn("component failed verification, dropped cached results", "component", locator, "entries", n)
		}
		return nil, nil, err
	}

	r.forgetStale(locator, art.Digest)
	mod, err := r.module(ctx, art)
	if err != nil {
		return nil, nil, err
	}
	return art, mod, nil
}

// forgetStale drops cached results of a replaced artifact and its compiled
// module once no other locator refers to its digest. The module is not
// closed because in-flight instances may still use it.
func (r *Runner) forgetStale(locator string, current digest.Digest) {
	r.mu.Lock()
	prev, ok := r.digests[locator]
	r.digests[locator] = current
	shared := false
	for other, d := range r.digests {
		if other != locator && d == prev {
			shared = true
			break
		}
	}
	r.mu.Unlock()
	if !ok || prev == current {
		return
	}
	if n := r.cache.ForgetComponent(locator); n > 0 {
		r.log().Info("component changed, dropped cached results", "component", locator, "entries", n)
	}
	if shared {
		return
	}
	if _, dropped := maputil.Pop(&r.mu, r.modules, prev); dropped {
		r.log().Info("component changed, dropped compiled module", "component", locator, "previous_digest", prev.String(), "digest", current.String())
	}
	maputil.Pop(&r.mu, r.metadata, prev)
}

func (r *Runner) module(ctx context.Context, art *resolver.Artifact) (sandbox.Module, error) {
	r.mu.Lock()
	mod, ok := r.modules[art.Digest]
	r.mu.Unlock()
	if ok {
		return mod, nil
	}

	loaded, err := r.host.Load(ctx, art.Bytes)
	if err != nil {
		return nil, mcperr.RouterError("load component "+art.Provenance.Locator, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.modules[art.Digest]; ok {
		_ = loaded.Close(ctx)
		return existing, nil
	}
	r.modules[art.Digest] = loaded
	return loaded, nil
}

// describe returns cached metadata for a digest, calling the describe export
// once. Metadata never gates control flow.
func (r *Runner) describe(ctx context.Context, d digest.Digest, mod sandbox.Module, tc tenant.Ctx) *describe.Metadata {
	r.mu.Lock()
	meta, ok := r.metadata[d]
	r.mu.Unlock()
	if ok {
		return meta
	}
	meta = describe.Describe(ctx, mod, sandbox.Imports{Tenant: tc}, r.logger)
	r.mu.Lock()
	r.metadata[d] = meta
	r.mu.Unlock()
	return meta
}

// Describe returns the metadata of a component, or nil when it exports none.
func (r *Runner) Describe(ctx context.Context, locator string) (*describe.Metadata, error) {
	art, mod, err := r.prepare(ctx, locator, tenant.Ctx{})
	if err != nil {
		return nil, err
	}
	return r.describe(ctx, art.Digest, mod, tenant.Ctx{}), nil
}

// Ready reports whether locator still resolves and passes verification.
func (r *Runner) Ready(ctx context.Context, locator string) error {
	art, err := r.resolver.Resolve(ctx, locator)
	if err != nil {
		return err
	}
	return verify.Verify(art, r.cfg.Verify)
}

func (r *Runner) imports(locator string, tc tenant.Ctx, hasTenant bool, declared []describe.SecretRequirement, logger *slog.Logger) sandbox.Imports {
	grants := r.cfg.grants(locator)
	imports := sandbox.Imports{Tenant: tc, Grants: grants}

	var scope *tenant.Ctx
	if hasTenant {
		scope = &tc
	}
	imports.Secret = secrets.Gate(r.cfg.Secrets, declared, scope, logger)

	if grants.Network && r.cfg.NetworkEnabled {
		imports.HTTP = sandbox.HTTPClientFunc(r.client)
	}
	return imports
}

func (r *Runner) record(ctx context.Context, event audit.Event) {
	if r.audit != nil {
		r.audit.Record(ctx, event)
	}
}

func (r *Runner) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.New(slog.DiscardHandler)
}
