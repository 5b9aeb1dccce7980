package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
	"github.com/codex-k8s/mcp-exec/internal/schema"
)

// RuntimeScope marks a secret scoped to whatever tenant runs the tool.
const RuntimeScope = "runtime"

// Secret formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatBytes = "bytes"
)

// Scope limits a secret to an environment, tenant and optional team.
type Scope struct {
	Env    string `json:"env" yaml:"env" toml:"env"`
	Tenant string `json:"tenant" yaml:"tenant" toml:"tenant"`
	Team   string `json:"team,omitempty" yaml:"team" toml:"team"`
}

// SecretRequirement is a secret a component declares it needs.
type SecretRequirement struct {
	Key         string          `json:"key" yaml:"key" toml:"key"`
	Required    bool            `json:"required" yaml:"required" toml:"required"`
	Scope       Scope           `json:"scope" yaml:"scope" toml:"scope"`
	Format      string          `json:"format" yaml:"format" toml:"format"`
	Description string          `json:"description,omitempty" yaml:"description" toml:"description"`
	Schema      json.RawMessage `json:"schema,omitempty" yaml:"-" toml:"-"`
	Examples    []string        `json:"examples,omitempty" yaml:"examples" toml:"examples"`
}

// Metadata is the normalized describe document.
type Metadata struct {
	// Raw is the document as returned by the guest.
	Raw json.RawMessage `json:"raw"`
	// ConfigSchema is the component configuration schema, if valid.
	ConfigSchema json.RawMessage `json:"config_schema,omitempty"`
	// Defaults are default configuration values.
	Defaults json.RawMessage `json:"defaults,omitempty"`
	// Capabilities lists declared capability names.
	Capabilities []string `json:"capabilities,omitempty"`
	// Secrets are the normalized secret requirements.
	Secrets []SecretRequirement `json:"secret_requirements"`
	// LegacySecrets is true when Secrets was mapped from list_secrets.
	LegacySecrets bool `json:"legacy_secrets,omitempty"`

	config *schema.Schema
}

// ValidateConfig checks cfg against the config schema. Nil schema accepts all.
func (m *Metadata) ValidateConfig(cfg json.RawMessage) error {
	if m == nil || m.config == nil {
		return nil
	}
	return m.config.Validate(cfg)
}

// Describe calls the describe export on a fresh instance of mod. It returns
// nil when the export is absent or faults.
func Describe(ctx context.Context, mod sandbox.Module, imports sandbox.Imports, logger *slog.Logger) *Metadata {
	if !mod.HasExport(sandbox.ExportDescribe) {
		return nil
	}
	inst, err := mod.Instantiate(ctx, imports)
	if err != nil {
		logWarn(logger, "describe instantiate failed", "error", err)
		return nil
	}
	defer func() { _ = inst.Close(ctx) }()

	raw, err := inst.Call(ctx, sandbox.ExportDescribe)
	if err != nil {
		logWarn(logger, "describe call failed", "error", err)
		return nil
	}
	meta, err := Parse(raw, logger)
	if err != nil {
		logWarn(logger, "describe returned an invalid document", "error", err)
		return nil
	}
	return meta
}

// Parse normalizes a describe document.
func Parse(raw []byte, logger *slog.Logger) (*Metadata, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode describe document: %w", err)
	}

	meta := &Metadata{Raw: append(json.RawMessage(nil), raw...)}

	if v, ok := doc["secret_requirements"]; ok {
		meta.Secrets = normalizeRequirements(v)
	} else if v, ok := doc["list_secrets"]; ok {
		meta.Secrets = normalizeRequirements(v)
		meta.LegacySecrets = true
		logWarn(logger, "legacy secrets descriptors were mapped; emit secret_requirements in describe-json")
	}
	if meta.Secrets == nil {
		meta.Secrets = []SecretRequirement{}
	}

	if v, ok := doc["capabilities"]; ok {
		meta.Capabilities = stringList(v)
	}
	if v, ok := doc["config_schema"]; ok && !isNull(v) {
		compiled, err := schema.Compile("config_schema.json", v)
		if err != nil {
			logWarn(logger, "config_schema dropped", "error", err)
		} else {
			meta.ConfigSchema = v
			meta.config = compiled
		}
	}
	if v, ok := doc["defaults"]; ok && !isNull(v) {
		if err := meta.ValidateConfig(v); err != nil {
			logWarn(logger, "defaults dropped, they do not match config_schema", "error", err)
		} else {
			meta.Defaults = v
		}
	}
	return meta, nil
}

func normalizeRequirements(raw json.RawMessage) []SecretRequirement {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil
		}
		inner, ok := wrapper["secret_requirements"]
		if !ok {
			inner, ok = wrapper["secrets"]
		}
		if !ok || json.Unmarshal(inner, &items) != nil {
			return nil
		}
	}

	out := make([]SecretRequirement, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		req, ok := parseRequirement(item)
		if !ok {
			continue
		}
		key := req.Key + "\x00" + req.Scope.Env + "\x00" + req.Scope.Tenant + "\x00" + req.Scope.Team
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, req)
	}
	return out
}

type requirementDoc struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Required    *bool             `json:"required"`
	Optional    *bool             `json:"optional"`
	Scope       *scopeDoc         `json:"scope"`
	Env         *string           `json:"env"`
	Tenant      *string           `json:"tenant"`
	Team        *string           `json:"team"`
	Format      string            `json:"format"`
	Description string            `json:"description"`
	Schema      json.RawMessage   `json:"schema"`
	Examples    []json.RawMessage `json:"examples"`
}

type scopeDoc struct {
	Env    *string `json:"env"`
	Tenant *string `json:"tenant"`
	Team   *string `json:"team"`
}

func parseRequirement(raw json.RawMessage) (SecretRequirement, bool) {
	var key string
	if err := json.Unmarshal(raw, &key); err == nil {
		if !validKey(key) {
			return SecretRequirement{}, false
		}
		return SecretRequirement{Key: key, Required: true, Scope: runtimeScope(), Format: FormatText}, true
	}

	var doc requirementDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SecretRequirement{}, false
	}
	key = doc.Key
	if key == "" {
		key = doc.Name
	}
	if !validKey(key) {
		return SecretRequirement{}, false
	}

	required := true
	switch {
	case doc.Required != nil:
		required = *doc.Required
	case doc.Optional != nil:
		required = !*doc.Optional
	}

	scope, ok := parseScope(doc.Scope)
	if !ok {
		scope, ok = parseScope(&scopeDoc{Env: doc.Env, Tenant: doc.Tenant, Team: doc.Team})
	}
	if !ok {
		scope = runtimeScope()
	}

	format, ok := parseFormat(doc.Format)
	if !ok {
		format = FormatText
	}

	examples := make([]string, 0, len(doc.Examples))
	for _, ex := range doc.Examples {
		var s string
		if json.Unmarshal(ex, &s) == nil {
			examples = append(examples, s)
		} else {
			examples = append(examples, string(ex))
		}
	}
	if len(examples) == 0 {
		examples = nil
	}

	return SecretRequirement{
		Key:         key,
		Required:    required,
		Scope:       scope,
		Format:      format,
		Description: doc.Description,
		Schema:      doc.Schema,
		Examples:    examples,
	}, true
}

func parseScope(doc *scopeDoc) (Scope, bool) {
	if doc == nil || doc.Env == nil || doc.Tenant == nil {
		return Scope{}, false
	}
	scope := Scope{Env: *doc.Env, Tenant: *doc.Tenant}
	if doc.Team != nil {
		scope.Team = *doc.Team
	}
	return scope, true
}

func parseFormat(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json":
		return FormatJSON, true
	case "text":
		return FormatText, true
	case "opaque", "binary", "bytes", "byte", "bin":
		return FormatBytes, true
	default:
		return "", false
	}
}

func runtimeScope() Scope {
	return Scope{Env: RuntimeScope, Tenant: RuntimeScope}
}

// validKey accepts non-empty keys without whitespace or path separators.
func validKey(key string) bool {
	if strings.TrimSpace(key) == "" {
		return false
	}
	return !strings.ContainsAny(key, " \t\r\n/\\")
}

func stringList(raw json.RawMessage) []string {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func logWarn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
