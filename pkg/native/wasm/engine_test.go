package wasm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/erbridge/erbridge/pkg/failure"
	"github.com/erbridge/erbridge/pkg/telemetry"
)

// Layout of the test engine's data segments.
const (
	versionOffset = 16
	licenseOffset = 256
	logOffset     = 512
	heapStart     = 1024

	versionEnvelope = `{"status":0,"response":{"VERSION":"4.1.0","BUILD_NUMBER":"wasm"}}`
	licenseEnvelope = `{"status":-2,"code":999,"message":"0999E|License expired"}`
	logMessage      = "get_version called"
)

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func vec(items ...[]byte) []byte {
	return cat(uleb(uint64(len(items))), cat(items...))
}

func name(s string) []byte {
	return cat(uleb(uint64(len(s))), []byte(s))
}

func section(id byte, body []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(body))), body)
}

func i32Const(v int32) []byte {
	return cat([]byte{0x41}, sleb(int64(v)))
}

func i64Const(v int64) []byte {
	return cat([]byte{0x42}, sleb(v))
}

// body encodes a function body without locals.
func body(code ...[]byte) []byte {
	b := cat([]byte{0x00}, cat(code...), []byte{0x0b})
	return cat(uleb(uint64(len(b))), b)
}

func dataSegment(offset int32, data string) []byte {
	return cat([]byte{0x00}, i32Const(offset), []byte{0x0b}, name(data))
}

// testEngineModule assembles a minimal engine module. It exports memory
// with a bump allocator, product_get_version (logs through host_log and
// returns a document), product_get_license (returns a failure envelope) and
// product_destroy (never returns).
func testEngineModule() []byte {
	const (
		i32 = 0x7f
		i64 = 0x7e
	)
	types := vec(
		[]byte{0x60, 1, i32, 1, i32},      // 0: malloc
		[]byte{0x60, 1, i32, 0},           // 1: free
		[]byte{0x60, 2, i32, i32, 1, i64}, // 2: exports
		[]byte{0x60, 3, i32, i32, i32, 0}, // 3: host_log
	)
	imports := vec(cat(name("env"), name("host_log"), []byte{0x00, 3}))
	funcs := vec([]byte{0}, []byte{1}, []byte{2}, []byte{2}, []byte{2})
	memory := vec([]byte{0x00, 1})
	globals := vec(cat([]byte{i32, 0x01}, i32Const(heapStart), []byte{0x0b}))
	exports := vec(
		cat(name("memory"), []byte{0x02, 0}),
		cat(name("malloc"), []byte{0x00, 1}),
		cat(name("free"), []byte{0x00, 2}),
		cat(name("product_get_version"), []byte{0x00, 3}),
		cat(name("product_get_license"), []byte{0x00, 4}),
		cat(name("product_destroy"), []byte{0x00, 5}),
	)
	code := vec(
		// malloc: old := heap; heap += size; return old
		body([]byte{0x23, 0, 0x23, 0, 0x20, 0, 0x6a, 0x24, 0}),
		// free
		body(),
		// product_get_version
		body(
			i32Const(1), i32Const(logOffset), i32Const(int32(len(logMessage))), []byte{0x10, 0},
			i64Const(int64(pack(versionOffset, uint32(len(versionEnvelope))))),
		),
		// product_get_license
		body(i64Const(int64(pack(licenseOffset, uint32(len(licenseEnvelope)))))),
		// product_destroy: loop forever
		body([]byte{0x03, 0x40, 0x0c, 0, 0x0b}, i64Const(0)),
	)
	data := vec(
		dataSegment(versionOffset, versionEnvelope),
		dataSegment(licenseOffset, licenseEnvelope),
		dataSegment(logOffset, logMessage),
	)

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(1, types),
		section(2, imports),
		section(3, funcs),
		section(5, memory),
		section(6, globals),
		section(7, exports),
		section(10, code),
		section(11, data),
	)
}

// openTestEngine writes the test module and its manifest and opens them.
func openTestEngine(t *testing.T, cfg *HostConfig) *Library {
	t.Helper()

	module := testEngineModule()
	sum := sha256.Sum256(module)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "engine.wasm"), module, 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := fmt.Sprintf("name: test-engine\nversion: 0.0.1\nentrypoint: engine.wasm\nchecksum: %s\n", hex.EncodeToString(sum[:]))
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := Open(context.Background(), path, cfg)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = lib.Close(context.Background()) })
	return lib
}

func TestLibraryCallsEngine(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "engine.log")
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "debug", Format: "json", Output: logPath})
	if err != nil {
		t.Fatal(err)
	}
	lib := openTestEngine(t, &HostConfig{Logger: logger})
	ctx := context.Background()

	if !lib.Manifest().Verified {
		t.Error("manifest checksum not verified")
	}

	product, err := lib.NewProduct(ctx)
	if err != nil {
		t.Fatalf("NewProduct() error = %v", err)
	}

	t.Run("document", func(t *testing.T) {
		res := product.GetVersion(ctx)
		if res.Status != 0 {
			t.Fatalf("GetVersion() status = %d, exception %q", res.Status, product.LastException())
		}
		if res.Response != `{"VERSION":"4.1.0","BUILD_NUMBER":"wasm"}` {
			t.Errorf("GetVersion() response = %s", res.Response)
		}
		logs, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(logs), logMessage) {
			t.Errorf("host_log output = %q, want %q", logs, logMessage)
		}
	})

	t.Run("failure", func(t *testing.T) {
		res := product.GetLicense(ctx)
		if res.Status != -2 {
			t.Fatalf("GetLicense() status = %d, want -2", res.Status)
		}
		if code := product.LastExceptionCode(); code != 999 {
			t.Errorf("LastExceptionCode() = %d, want 999", code)
		}
		if msg := product.LastException(); msg != "0999E|License expired" {
			t.Errorf("LastException() = %q", msg)
		}

		err := failure.FromNative(res.Status, product, "getLicense()", nil)
		if failure.KindOf(err) != failure.KindLicense {
			t.Errorf("FromNative() kind = %s, want %s", failure.KindOf(err), failure.KindLicense)
		}
		if product.LastExceptionCode() != 0 {
			t.Error("exception not cleared after translation")
		}
	})

	t.Run("missing export", func(t *testing.T) {
		res := product.Init(ctx, "test", "{}", false)
		if res != statusHostFailure {
			t.Fatalf("Init() status = %d, want %d", res, statusHostFailure)
		}
		if !strings.Contains(product.LastException(), "product_init") {
			t.Errorf("LastException() = %q", product.LastException())
		}
		if product.LastExceptionCode() != 0 {
			t.Errorf("LastExceptionCode() = %d, want 0 while the module is open", product.LastExceptionCode())
		}
	})
}

func TestTimedOutCallClosesModule(t *testing.T) {
	lib := openTestEngine(t, &HostConfig{Timeout: 100 * time.Millisecond})
	ctx := context.Background()

	product, err := lib.NewProduct(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if st := product.Destroy(ctx); st != statusHostFailure {
		t.Fatalf("Destroy() status = %d, want %d", st, statusHostFailure)
	}
	if product.LastExceptionCode() != CodeModuleClosed {
		t.Errorf("LastExceptionCode() = %d, want %d", product.LastExceptionCode(), CodeModuleClosed)
	}

	res := product.GetVersion(ctx)
	err = failure.FromNative(res.Status, product, "getVersion()", nil)
	if failure.KindOf(err) != failure.KindUnrecoverable {
		t.Errorf("call after timeout error = %v, want unrecoverable", err)
	}
	if !strings.Contains(err.Error(), ErrModuleClosed.Error()) {
		t.Errorf("error = %v, want it to mention the closed module", err)
	}
}
