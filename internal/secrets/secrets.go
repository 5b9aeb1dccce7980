package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/codex-k8s/mcp-exec/internal/describe"
	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

var (
	// ErrNotFound is returned when a secret does not exist in the scope.
	ErrNotFound = errors.New("secret not found")
	// ErrReadOnly is returned by stores that cannot be written.
	ErrReadOnly = errors.New("secret store is read-only")
)

// Store holds secrets scoped by tenant context.
type Store interface {
	Read(ctx context.Context, scope tenant.Ctx, key string) ([]byte, error)
	Write(ctx context.Context, scope tenant.Ctx, key string, value []byte) error
	Delete(ctx context.Context, scope tenant.Ctx, key string) error
}

// MapStore is an in-memory Store.
type MapStore struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewMapStore creates an empty in-memory store.
func NewMapStore() *MapStore {
	return &MapStore{secrets: make(map[string][]byte)}
}

func scopedKey(scope tenant.Ctx, key string) string {
	return strings.Join([]string{scope.Env, scope.Tenant, scope.Team, key}, "/")
}

// Read implements Store.
func (s *MapStore) Read(_ context.Context, scope tenant.Ctx, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.secrets[scopedKey(scope, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

// Write implements Store.
func (s *MapStore) Write(_ context.Context, scope tenant.Ctx, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[scopedKey(scope, key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements Store.
func (s *MapStore) Delete(_ context.Context, scope tenant.Ctx, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, scopedKey(scope, key))
	return nil
}

// EnvStore reads secrets from environment variables named Prefix + KEY,
// with the key upper-cased and dashes and dots replaced by underscores.
// It ignores the scope and cannot be written.
type EnvStore struct {
	Prefix string
}

// Name returns the environment variable consulted for key.
func (s EnvStore) Name(key string) string {
	normalized := strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(key))
	return s.Prefix + normalized
}

// Read implements Store.
func (s EnvStore) Read(_ context.Context, _ tenant.Ctx, key string) ([]byte, error) {
	value, ok := os.LookupEnv(s.Name(key))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return []byte(value), nil
}

// Write implements Store.
func (s EnvStore) Write(context.Context, tenant.Ctx, string, []byte) error {
	return ErrReadOnly
}

// Delete implements Store.
func (s EnvStore) Delete(context.Context, tenant.Ctx, string) error {
	return ErrReadOnly
}

// Gate builds the get-secret handler for one call. A secret is returned only
// when a store is configured, a tenant is present, and the component
// declared the key for a scope matching the tenant.
func Gate(store Store, declared []describe.SecretRequirement, tc *tenant.Ctx, logger *slog.Logger) sandbox.SecretFunc {
	return func(ctx context.Context, key string) ([]byte, bool) {
		if store == nil || tc == nil {
			return nil, false
		}
		if !Declared(declared, key, *tc) {
			if logger != nil {
				logger.Warn("undeclared secret requested", "secret", key)
			}
			return nil, false
		}
		value, err := store.Read(ctx, *tc, key)
		if err != nil {
			if logger != nil && !errors.Is(err, ErrNotFound) {
				logger.Warn("secret read failed", "secret", key, "error", err)
			}
			return nil, false
		}
		return value, true
	}
}

// Declared reports whether key is declared for the tenant's scope.
func Declared(declared []describe.SecretRequirement, key string, tc tenant.Ctx) bool {
	for _, req := range declared {
		if req.Key != key {
			continue
		}
		if scopeMatches(req.Scope, tc) {
			return true
		}
	}
	return false
}

func scopeMatches(scope describe.Scope, tc tenant.Ctx) bool {
	if scope.Env == describe.RuntimeScope || scope.Env == "" {
		return true
	}
	if scope.Env != tc.Env || scope.Tenant != tc.Tenant {
		return false
	}
	return scope.Team == "" || scope.Team == tc.Team
}
