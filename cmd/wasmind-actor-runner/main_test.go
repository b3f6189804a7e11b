package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadOptionalReturnsNilForEmptyPath(t *testing.T) {
	data, err := readOptional("")
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestReadOptionalReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envelope.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o644))

	data, err := readOptional(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(data))
}

func TestLoadActorPluginRequiresPath(t *testing.T) {
	_, err := loadActorPlugin("")
	require.Error(t, err)
}

func TestLoadActorPluginRejectsMissingFile(t *testing.T) {
	_, err := loadActorPlugin(filepath.Join(t.TempDir(), "missing.so"))
	require.Error(t, err)
}
