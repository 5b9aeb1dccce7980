package dispatch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

func TestDispatch(t *testing.T) {
	cases := []struct {
		name    string
		exports []string
		entry   string
		want    Kind
	}{
		{
			name:    "router only",
			exports: []string{sandbox.ExportListTools, sandbox.ExportCallTool, "memory"},
			want:    Kind{Convention: Router},
		},
		{
			name:    "router wins over legacy",
			exports: []string{"exec", sandbox.ExportCallTool, sandbox.ExportListTools},
			want:    Kind{Convention: Router},
		},
		{
			name:    "legacy default entry",
			exports: []string{"alloc", "exec", "memory"},
			want:    Kind{Convention: Legacy, Entry: "exec"},
		},
		{
			name:    "custom legacy entry",
			exports: []string{"run", "exec"},
			entry:   "run",
			want:    Kind{Convention: Legacy, Entry: "run"},
		},
		{
			name:    "half a router is not a router",
			exports: []string{sandbox.ExportListTools, "memory"},
			want:    Kind{Convention: Unsupported, Exports: []string{"memory", sandbox.ExportListTools}},
		},
		{
			name:    "nothing",
			exports: nil,
			want:    Kind{Convention: Unsupported, Exports: []string{}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Dispatch(tc.exports, tc.entry)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("kind mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDispatchDoesNotReorderInput(t *testing.T) {
	exports := []string{"z", "a"}
	got := Dispatch(exports, "")
	assert.DeepEqual(t, got.Exports, []string{"a", "z"})
	assert.DeepEqual(t, exports, []string{"z", "a"})
	assert.Equal(t, got.String(), "unsupported(2 exports)")
}
