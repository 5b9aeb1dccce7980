package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/codex-k8s/mcp-exec/internal/maputil"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Render expands template actions in a manifest before it is parsed.
// {{ env "KEY" }} fails the render when KEY is unset; envOr supplies a
// fallback.
func Render(name string, raw []byte, lookup LookupFunc) ([]byte, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}
	missing := map[string]struct{}{}
	funcs := template.FuncMap{
		"env": func(key string) string {
			value, ok := lookup(key)
			if !ok {
				missing[key] = struct{}{}
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := lookup(key); ok {
				return value
			}
			return def
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
	}

	if strings.TrimSpace(name) == "" {
		name = "manifest"
	}
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, nil); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing env vars: %s", strings.Join(maputil.SortedKeys(missing), ", "))
	}
	return buf.Bytes(), nil
}
