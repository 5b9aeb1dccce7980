package runtime

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/codex-k8s/mcp-exec/internal/maputil"
	"github.com/codex-k8s/mcp-exec/internal/tenant"
)

// buildCacheKey derives the idempotency cache key for a call against the
// artifact with digest artifact. It returns an empty key when the tenant
// carries no idempotency key.
func buildCacheKey(component, tool string, artifact digest.Digest, tc *tenant.Ctx, args json.RawMessage) (string, error) {
	if tc == nil || strings.TrimSpace(tc.IdempotencyKey) == "" {
		return "", nil
	}
	decoded, err := decodeArguments(args)
	if err != nil {
		return "", err
	}
	data, err := canonicalJSON(map[string]any{
		"component":       component,
		"tool":            tool,
		"digest":          artifact.String(),
		"env":             tc.Env,
		"tenant":          tc.Tenant,
		"team":            tc.Team,
		"user":            tc.User,
		"idempotency_key": tc.IdempotencyKey,
		"arguments":       decoded,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%s", component, tool, hex.EncodeToString(sum[:])), nil
}

func decodeArguments(args json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return value, nil
}

func canonicalJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return []byte(strconv.Quote(v)), nil
	case json.Number:
		return []byte(v.String()), nil
	case bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return json.Marshal(v)
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			data, err := canonicalJSON(item)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		return canonicalMapJSON(v)
	case map[any]any:
		converted := make(map[string]any, len(v))
		for key, item := range v {
			converted[fmt.Sprint(key)] = item
		}
		return canonicalMapJSON(converted)
	default:
		return json.Marshal(v)
	}
}

func canonicalMapJSON(value map[string]any) ([]byte, error) {
	keys := maputil.SortedKeys(value)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		data, err := canonicalJSON(value[key])
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
