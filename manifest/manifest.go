// Package manifest handles litevm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "litevm.toml"

// Manifest represents a litevm.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Image   ImageConfig `toml:"image"`
	VM      VMConfig    `toml:"vm"`

	// Dir is the directory containing the litevm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// ImageConfig says where the program image comes from: either a file
// path or a named image inside a store database. Entry overrides the
// entry point recorded in the image.
type ImageConfig struct {
	Path  string `toml:"path"`
	Store string `toml:"store"`
	Name  string `toml:"name"`
	Entry string `toml:"entry"`
}

// VMConfig tunes the runtime.
type VMConfig struct {
	MaxStackDepth int  `toml:"max-stack-depth"`
	Trace         bool `toml:"trace"`
}

// Load parses a litevm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a litevm.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks that the manifest names exactly one image source and
// that the tuning values are sane.
func (m *Manifest) Validate() error {
	hasPath := m.Image.Path != ""
	hasStore := m.Image.Store != ""
	if hasPath && hasStore {
		return fmt.Errorf("image: path and store are mutually exclusive")
	}
	if hasStore && m.Image.Name == "" {
		return fmt.Errorf("image: store requires a name")
	}
	if m.VM.MaxStackDepth < 0 {
		return fmt.Errorf("vm: max-stack-depth must not be negative")
	}
	return nil
}

// ImagePath returns the absolute path of the image file, or "" when the
// manifest uses a store instead.
func (m *Manifest) ImagePath() string {
	if m.Image.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Image.Path) {
		return m.Image.Path
	}
	return filepath.Join(m.Dir, m.Image.Path)
}

// StorePath returns the absolute path of the image store database, or
// "" when the manifest uses a file image.
func (m *Manifest) StorePath() string {
	if m.Image.Store == "" {
		return ""
	}
	if filepath.IsAbs(m.Image.Store) {
		return m.Image.Store
	}
	return filepath.Join(m.Dir, m.Image.Store)
}
