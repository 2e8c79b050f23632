package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- 100x\n- moon\n- rug pull\n"), 0o644))

	keywords, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"100x", "moon", "rug pull"}, keywords)
}

func TestLoadLexicon_MissingFile(t *testing.T) {
	_, err := LoadLexicon(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read lexicon")
}

func TestLoadLexicon_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]\n"), 0o644))

	_, err := LoadLexicon(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}
