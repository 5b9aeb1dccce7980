package wazerohost

// A minimal wasm binary assembler for tests. Every module gets one exported
// memory page, a bump-allocator global starting at heapBase, and an exported
// alloc function.

const (
	valI32 = 0x7f
	valI64 = 0x7e

	heapBase   = 1024
	dataOffset = 16
)

type wasmImport struct {
	module, name    string
	params, results []byte
}

type wasmFunc struct {
	export          string
	params, results []byte
	body            []byte
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if done {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items [][]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb(uint64(len(payload)))...)
	return append(out, payload...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)
	return append(out, results...)
}

// allocFunc is a bump allocator over global 0.
func allocFunc() wasmFunc {
	return wasmFunc{
		export:  "alloc",
		params:  []byte{valI32},
		results: []byte{valI32},
		body: []byte{
			0x23, 0x00, // global.get 0
			0x23, 0x00, // global.get 0
			0x20, 0x00, // local.get 0
			0x6a,       // i32.add
			0x24, 0x00, // global.set 0
			0x0b,
		},
	}
}

// echoBody returns its (ptr, len) arguments packed as i64.
func echoBody() []byte {
	return []byte{
		0x20, 0x00, // local.get 0
		0xad,       // i64.extend_i32_u
		0x42, 0x20, // i64.const 32
		0x86,       // i64.shl
		0x20, 0x01, // local.get 1
		0xad,       // i64.extend_i32_u
		0x84,       // i64.or
		0x0b,
	}
}

// constStringBody returns the packed location of a data segment string.
func constStringBody(length int) []byte {
	out := []byte{0x42}
	out = append(out, sleb(int64(dataOffset)<<32|int64(length))...)
	return append(out, 0x0b)
}

// callImportBody forwards its parameters to import idx.
func callImportBody(idx byte, params int) []byte {
	var out []byte
	for i := 0; i < params; i++ {
		out = append(out, 0x20, byte(i))
	}
	return append(out, 0x10, idx, 0x0b)
}

func trapBody() []byte {
	return []byte{0x00, 0x0b} // unreachable
}

func buildModule(imports []wasmImport, funcs []wasmFunc, data string) []byte {
	funcs = append([]wasmFunc{allocFunc()}, funcs...)

	var types, importEntries, funcIdx, exports, codes [][]byte
	for i, imp := range imports {
		types = append(types, funcType(imp.params, imp.results))
		entry := append(name(imp.module), name(imp.name)...)
		entry = append(entry, 0x00)
		entry = append(entry, uleb(uint64(i))...)
		importEntries = append(importEntries, entry)
	}
	for i, fn := range funcs {
		typeIdx := len(imports) + i
		types = append(types, funcType(fn.params, fn.results))
		funcIdx = append(funcIdx, uleb(uint64(typeIdx)))
		exp := append(name(fn.export), 0x00)
		exp = append(exp, uleb(uint64(len(imports)+i))...)
		exports = append(exports, exp)
		body := append([]byte{0x00}, fn.body...) // no locals
		codes = append(codes, append(uleb(uint64(len(body))), body...))
	}
	exports = append(exports, append(name("memory"), 0x02, 0x00))

	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(types))...)
	if len(importEntries) > 0 {
		out = append(out, section(2, vec(importEntries))...)
	}
	out = append(out, section(3, vec(funcIdx))...)
	out = append(out, section(5, vec([][]byte{{0x00, 0x01}}))...)
	global := append([]byte{valI32, 0x01, 0x41}, sleb(heapBase)...)
	global = append(global, 0x0b)
	out = append(out, section(6, vec([][]byte{global}))...)
	out = append(out, section(7, vec(exports))...)
	out = append(out, section(10, vec(codes))...)
	if data != "" {
		seg := append([]byte{0x00, 0x41}, sleb(dataOffset)...)
		seg = append(seg, 0x0b)
		seg = append(seg, name(data)...)
		out = append(out, section(11, vec([][]byte{seg}))...)
	}
	return out
}
