package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, `{
		"name": "sample",
		"version": "0.0.1",
		"id": "8f8e2a4c-5d3b-4c1e-9f0a-1b2c3d4e5f60",
		"description": "Sample plugin",
		"author": "ardeck",
		"main": "sample-plugin"
	}`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, &Manifest{
		Name:        "sample",
		Version:     "0.0.1",
		ID:          "8f8e2a4c-5d3b-4c1e-9f0a-1b2c3d4e5f60",
		Description: "Sample plugin",
		Author:      "ardeck",
		Main:        "sample-plugin",
	}, m)

	m, err = FileLoader{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, "sample", m.Name)
}

func TestParse_OptionalFields(t *testing.T) {
	m, err := Parse([]byte(`{"name":"n","version":"1","id":"P1","main":"m","author":null}`))
	require.NoError(t, err)
	assert.Empty(t, m.Description)
	assert.Empty(t, m.Author)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":      `{"name":`,
		"missing id":    `{"name":"n","version":"1","main":"m"}`,
		"missing main":  `{"name":"n","version":"1","id":"P1"}`,
		"empty version": `{"name":"n","version":"","id":"P1","main":"m"}`,
		"blank id":      `{"name":"n","version":"1","id":"   ","main":"m"}`,
		"id not string": `{"name":"n","version":"1","id":7,"main":"m"}`,
		"array":         `[]`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			m, err := Parse([]byte(body))
			assert.Nil(t, m)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, FileName, filepath.Base(path))
}
