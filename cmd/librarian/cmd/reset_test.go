package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetCmd_RequiresYes(t *testing.T) {
	// Given: a reset command invoked without --yes
	cmd := newResetCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	// When: executing
	err := cmd.Execute()

	// Then: it refuses and explains why
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestResetCmd_RemovesCacheFiles(t *testing.T) {
	// Given: a cache dir with an index db and a library db directory
	dir := t.TempDir()
	t.Setenv("LIBRARIAN_CACHE_DIR", dir)

	idx, err := openIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	lib, err := openLibrary("some-source")
	require.NoError(t, err)
	require.NoError(t, lib.Close())

	// When: running reset --yes
	cmd := newResetCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--yes"})
	err = cmd.Execute()

	// Then: it succeeds and reopening the index starts from empty
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "reset complete")

	reopened, err := openIndex()
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	sources, err := reopened.ListSources(cmd.Context())
	require.NoError(t, err)
	assert.Empty(t, sources)
}
