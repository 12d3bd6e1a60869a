// Package manifest reads the plugin manifest, the manifest.json file that
// ships next to the plugin executable and carries the plugin's identity.
package manifest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FileName is the manifest file name expected beside the executable.
const FileName = "manifest.json"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("manifest: invalid")

//go:embed schema.json
var schemaJSON string

// Manifest is the plugin's identity.
type Manifest struct {
	Name        string `json:"name" validate:"required"`
	Version     string `json:"version" validate:"required"`
	ID          string `json:"id" validate:"required"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Main        string `json:"main" validate:"required"`
}

// Loader provides the manifest to the plugin runtime.
type Loader interface {
	Load() (*Manifest, error)
}

// FileLoader loads the manifest from Path, or from DefaultPath when Path is
// empty.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load() (*Manifest, error) {
	if l.Path == "" {
		return LoadDefault()
	}
	return Load(l.Path)
}

// DefaultPath returns manifest.json in the executable's directory.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), FileName), nil
}

// LoadDefault loads the manifest from DefaultPath.
func LoadDefault() (*Manifest, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse validates data against the manifest schema and decodes it.
func Parse(data []byte) (*Manifest, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %w", ErrInvalid, err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: does not match schema: %w", ErrInvalid, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	m.trim()
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &m, nil
}

func (m *Manifest) trim() {
	m.Name = strings.TrimSpace(m.Name)
	m.Version = strings.TrimSpace(m.Version)
	m.ID = strings.TrimSpace(m.ID)
	m.Main = strings.TrimSpace(m.Main)
}

var validate = validator.New()

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("manifest.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to load manifest schema: %w", err)
	}
	schema, err := compiler.Compile("manifest.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return schema, nil
})
