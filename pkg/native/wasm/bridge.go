package wasm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// ErrModuleClosed is returned by Call once the module instance is closed.
var ErrModuleClosed = errors.New("WASM module is closed")

// Bridge marshals calls between Go and the engine module.
//
// Every engine export has the signature fn(args_ptr u32, args_len u32) -> u64
// where args is a JSON array of the call arguments and the return value is
// (result_ptr << 32) | result_len pointing at a JSON envelope. The host frees
// the result buffer with the module's free export after reading it.
type Bridge struct {
	// mu serializes calls; a module instance is not reentrant.
	mu sync.Mutex

	module  api.Module
	memory  api.Memory
	malloc  api.Function
	free    api.Function
	exports map[string]api.Function

	// timeout bounds each call.
	timeout time.Duration
}

// Envelope is the JSON document every export returns.
type Envelope struct {
	Status   int64           `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
	Value    int64           `json:"value,omitempty"`
	Code     int64           `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// NewBridge binds to the memory management exports of module.
func NewBridge(module api.Module, timeout time.Duration) (*Bridge, error) {
	b := &Bridge{
		module:  module,
		timeout: timeout,
		exports: make(map[string]api.Function),
	}

	b.memory = module.Memory()
	if b.memory == nil {
		return nil, fmt.Errorf("WASM module does not export memory")
	}

	b.malloc = module.ExportedFunction("malloc")
	if b.malloc == nil {
		return nil, fmt.Errorf("WASM module does not export malloc function")
	}

	b.free = module.ExportedFunction("free")
	if b.free == nil {
		return nil, fmt.Errorf("WASM module does not export free function")
	}

	return b, nil
}

// Call invokes export with args encoded as a JSON array.
func (b *Bridge) Call(ctx context.Context, export string, args ...any) (Envelope, error) {
	if args == nil {
		args = []any{}
	}
	input, err := json.Marshal(args)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal arguments for %s: %w", export, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.module.IsClosed() {
		return Envelope{}, fmt.Errorf("%s: %w", export, ErrModuleClosed)
	}

	fn, err := b.lookup(export)
	if err != nil {
		return Envelope{}, err
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	output, err := b.callWASMFunction(ctx, fn, input)
	if err != nil {
		return Envelope{}, fmt.Errorf("%s failed: %w", export, err)
	}

	return decodeEnvelope(output)
}

// Closed reports whether the module instance has been closed, for example
// after a call ran past the timeout.
func (b *Bridge) Closed() bool {
	return b.module.IsClosed()
}

func (b *Bridge) lookup(export string) (api.Function, error) {
	if fn, ok := b.exports[export]; ok {
		return fn, nil
	}
	fn := b.module.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("WASM module does not export %s function", export)
	}
	b.exports[export] = fn
	return fn, nil
}

// callWASMFunction writes input into module memory, calls fn and reads the
// packed result.
func (b *Bridge) callWASMFunction(ctx context.Context, fn api.Function, input []byte) ([]byte, error) {
	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := b.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate WASM memory: %w", err)
		}
		defer func() { _ = b.deallocate(ctx, ptr) }()

		inputPtr = ptr
		inputLen = uint32(len(input))

		if !b.memory.Write(inputPtr, input) {
			return nil, fmt.Errorf("failed to write input to WASM memory")
		}
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("WASM function call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("WASM function returned no results")
	}

	outputPtr, outputLen := unpack(results[0])
	if outputLen == 0 {
		return []byte("{}"), nil
	}

	view, ok := b.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read output from WASM memory")
	}
	// Read returns a view into linear memory; copy before freeing.
	output := make([]byte, len(view))
	copy(output, view)

	_ = b.deallocate(ctx, outputPtr)

	return output, nil
}

func (b *Bridge) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return ptr, nil
}

func (b *Bridge) deallocate(ctx context.Context, ptr uint32) error {
	if _, err := b.free.Call(ctx, uint64(ptr)); err != nil {
		return fmt.Errorf("free failed: %w", err)
	}
	return nil
}

// pack builds the u64 returned by exports.
func pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v & 0xFFFFFFFF)
}

// decodeEnvelope parses an export's result. The response field may hold
// either an embedded JSON document or a JSON string.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal result envelope: %w", err)
	}
	return env, nil
}

// responseText renders the envelope response as the document string callers
// receive.
func (e Envelope) responseText() string {
	if len(e.Response) == 0 || string(e.Response) == "null" {
		return ""
	}
	if e.Response[0] == '"' {
		var s string
		if err := json.Unmarshal(e.Response, &s); err == nil {
			return s
		}
	}
	return string(e.Response)
}
