package wasm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest describes an engine build shipped as a WASM module.
type Manifest struct {
	// Name is the engine name.
	Name string `yaml:"name"`

	// Version is the engine build version.
	Version string `yaml:"version"`

	// Description is free text.
	Description string `yaml:"description,omitempty"`

	// Entrypoint is the path to the .wasm file, relative to the manifest.
	Entrypoint string `yaml:"entrypoint"`

	// Checksum is the hex sha256 of the module. Optional.
	Checksum string `yaml:"checksum,omitempty"`

	// MemoryLimitPages caps linear memory in 64KiB pages.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty"`

	// CallTimeout bounds each exported call, e.g. "30s".
	CallTimeout string `yaml:"call_timeout,omitempty"`

	// Path is the file the manifest was read from.
	Path string `yaml:"-"`

	// ModulePath is the resolved entrypoint.
	ModulePath string `yaml:"-"`

	// Verified is set once the module checksum has been checked.
	Verified bool `yaml:"-"`
}

// LoadManifest reads a manifest file and resolves its entrypoint.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	m.Path = path

	if filepath.IsAbs(m.Entrypoint) {
		m.ModulePath = m.Entrypoint
	} else {
		m.ModulePath = filepath.Join(filepath.Dir(path), m.Entrypoint)
	}

	if _, err := os.Stat(m.ModulePath); err != nil {
		return nil, fmt.Errorf("WASM module not found at %s: %w", m.ModulePath, err)
	}

	return m, nil
}

// ParseManifest parses and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("engine name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("engine version is required")
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("entrypoint is required")
	}
	if m.CallTimeout != "" {
		if _, err := time.ParseDuration(m.CallTimeout); err != nil {
			return fmt.Errorf("invalid call_timeout %q: %w", m.CallTimeout, err)
		}
	}
	return nil
}

// Timeout returns the configured call timeout, or zero when unset.
func (m *Manifest) Timeout() time.Duration {
	if m.CallTimeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(m.CallTimeout)
	return d
}

// VerifyChecksum checks the module against the manifest checksum. A
// manifest without a checksum accepts any module.
func (m *Manifest) VerifyChecksum(module []byte) error {
	if m.Checksum == "" {
		return nil
	}

	hash := sha256.Sum256(module)
	computed := hex.EncodeToString(hash[:])
	if computed != m.Checksum {
		return fmt.Errorf("WASM module checksum mismatch: expected %s, got %s", m.Checksum, computed)
	}

	m.Verified = true
	return nil
}

// ReadModule reads the entrypoint and verifies its checksum.
func (m *Manifest) ReadModule() ([]byte, error) {
	if m.ModulePath == "" {
		return nil, fmt.Errorf("manifest %s has no resolved module path", m.Name)
	}
	module, err := os.ReadFile(m.ModulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}
	if err := m.VerifyChecksum(module); err != nil {
		return nil, err
	}
	return module, nil
}
