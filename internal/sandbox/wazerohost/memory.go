package wazerohost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/codex-k8s/mcp-exec/internal/sandbox"
)

// pack encodes a guest string as ptr<<32 | len.
func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// writeString copies data into guest memory allocated by the guest.
func writeString(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	alloc := mod.ExportedFunction(sandbox.ExportAlloc)
	if alloc == nil {
		return 0, errNoAlloc
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("alloc %d bytes: %w", len(data), err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("alloc returned %d values", len(res))
	}
	ptr := uint32(res[0])
	if len(data) == 0 {
		return ptr, nil
	}
	mem := mod.Memory()
	if mem == nil || !mem.Write(ptr, data) {
		return 0, fmt.Errorf("write %d bytes at %d: out of range", len(data), ptr)
	}
	return ptr, nil
}

// readPacked copies a packed guest string out of guest memory.
func readPacked(mod api.Module, packed uint64) ([]byte, error) {
	ptr, length := unpack(packed)
	if length == 0 {
		return []byte{}, nil
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("guest exports no memory")
	}
	view, ok := mem.Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("result [%d,+%d) is outside guest memory", ptr, length)
	}
	return append([]byte(nil), view...), nil
}
