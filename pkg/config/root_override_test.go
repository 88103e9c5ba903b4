package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/atomicobject/fswatchd/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRootOverrideReturnsNilWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	o, err := config.LoadRootOverride(dir)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestLoadRootOverrideParsesJSON(t *testing.T) {
	dir := t.TempDir()
	content := `{"gc_age_seconds": 120, "root_files": [".git"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.RootConfigFileName), []byte(content), 0644))

	o, err := config.LoadRootOverride(dir)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 120, o.GCAgeSeconds)
	assert.Equal(t, []string{".git"}, o.RootFiles)
}

func TestFindRootFilesWalksUpward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte(""), 0644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	dir, ok := config.FindRootFiles(nested, []string{config.RootConfigFileName, ".git"})
	require.True(t, ok)
	assert.Equal(t, root, dir)
}
