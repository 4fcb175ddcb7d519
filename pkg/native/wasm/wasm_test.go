package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const manifestYAML = `
name: er-engine
version: 4.1.0
description: Entity resolution engine
entrypoint: engine.wasm
memory_limit_pages: 1024
call_timeout: 45s
`

func TestParseManifest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m, err := ParseManifest([]byte(manifestYAML))
		if err != nil {
			t.Fatalf("ParseManifest() error = %v", err)
		}
		if m.Name != "er-engine" || m.Version != "4.1.0" {
			t.Errorf("got %s %s, want er-engine 4.1.0", m.Name, m.Version)
		}
		if m.MemoryLimitPages != 1024 {
			t.Errorf("MemoryLimitPages = %d, want 1024", m.MemoryLimitPages)
		}
		if m.Timeout() != 45*time.Second {
			t.Errorf("Timeout() = %s, want 45s", m.Timeout())
		}
	})

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "version: 1\nentrypoint: e.wasm\n", "name is required"},
		{"missing version", "name: e\nentrypoint: e.wasm\n", "version is required"},
		{"missing entrypoint", "name: e\nversion: 1\n", "entrypoint is required"},
		{"bad timeout", "name: e\nversion: 1\nentrypoint: e.wasm\ncall_timeout: soon\n", "call_timeout"},
		{"bad yaml", "name: [", "parse manifest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			if err == nil {
				t.Fatal("ParseManifest() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestManifestChecksum(t *testing.T) {
	module := []byte("\x00asm engine bytes")
	sum := sha256.Sum256(module)

	m := &Manifest{Name: "e", Version: "1", Entrypoint: "e.wasm", Checksum: hex.EncodeToString(sum[:])}
	if err := m.VerifyChecksum(module); err != nil {
		t.Fatalf("VerifyChecksum() error = %v", err)
	}
	if !m.Verified {
		t.Error("Verified = false after successful check")
	}

	m.Verified = false
	if err := m.VerifyChecksum([]byte("tampered")); err == nil {
		t.Error("VerifyChecksum() accepted a tampered module")
	}
	if m.Verified {
		t.Error("Verified = true after failed check")
	}

	unchecked := &Manifest{Name: "e", Version: "1", Entrypoint: "e.wasm"}
	if err := unchecked.VerifyChecksum([]byte("anything")); err != nil {
		t.Errorf("VerifyChecksum() without checksum error = %v", err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	module := []byte("not really wasm")
	if err := os.WriteFile(filepath.Join(dir, "engine.wasm"), module, 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte(manifestYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if m.ModulePath != filepath.Join(dir, "engine.wasm") {
		t.Errorf("ModulePath = %s", m.ModulePath)
	}

	got, err := m.ReadModule()
	if err != nil {
		t.Fatalf("ReadModule() error = %v", err)
	}
	if string(got) != string(module) {
		t.Errorf("ReadModule() = %q", got)
	}

	if err := os.Remove(filepath.Join(dir, "engine.wasm")); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("LoadManifest() expected error for missing module")
	}
}

func TestNewHostRejectsInvalidModule(t *testing.T) {
	ctx := context.Background()
	m := &Manifest{Name: "broken", Version: "0.0.1", Entrypoint: "broken.wasm"}

	_, err := NewHost(ctx, m, []byte("definitely not wasm"), nil)
	if err == nil {
		t.Fatal("NewHost() expected error for invalid module")
	}
	if !strings.Contains(err.Error(), "instantiate WASM module") {
		t.Errorf("error = %v", err)
	}
}

func TestNewHostChecksumMismatch(t *testing.T) {
	m := &Manifest{Name: "e", Version: "1", Entrypoint: "e.wasm", Checksum: strings.Repeat("0", 64)}

	_, err := NewHost(context.Background(), m, []byte("module"), nil)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("NewHost() error = %v, want checksum mismatch", err)
	}
}

func TestPackUnpack(t *testing.T) {
	ptr, length := unpack(pack(0x1000, 42))
	if ptr != 0x1000 || length != 42 {
		t.Errorf("unpack(pack()) = %#x, %d", ptr, length)
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		status   int64
		response string
		value    int64
		code     int64
	}{
		{
			name:     "embedded document",
			data:     `{"status":0,"response":{"RESOLVED_ENTITY":{"ENTITY_ID":1}}}`,
			response: `{"RESOLVED_ENTITY":{"ENTITY_ID":1}}`,
		},
		{
			name:     "string document",
			data:     `{"status":0,"response":"{\"VERSION\":\"4.1.0\"}"}`,
			response: `{"VERSION":"4.1.0"}`,
		},
		{
			name:  "scalar value",
			data:  `{"status":0,"value":7}`,
			value: 7,
		},
		{
			name:   "failure",
			data:   `{"status":-2,"code":33,"message":"0033E|Unknown record"}`,
			status: -2,
			code:   33,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decodeEnvelope([]byte(tt.data))
			if err != nil {
				t.Fatalf("decodeEnvelope() error = %v", err)
			}
			if env.Status != tt.status {
				t.Errorf("Status = %d, want %d", env.Status, tt.status)
			}
			if got := env.responseText(); got != tt.response {
				t.Errorf("responseText() = %q, want %q", got, tt.response)
			}
			if env.Value != tt.value {
				t.Errorf("Value = %d, want %d", env.Value, tt.value)
			}
			if env.Code != tt.code {
				t.Errorf("Code = %d, want %d", env.Code, tt.code)
			}
		})
	}

	if _, err := decodeEnvelope([]byte("not json")); err == nil {
		t.Error("decodeEnvelope() expected error")
	}
}
