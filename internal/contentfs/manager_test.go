package contentfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	return m
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestNewManager_RemovesLeftovers(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "temp"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "staging"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "backup"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "current"), 0o755))

	m, err := NewManager(root)
	require.NoError(t, err)

	assert.NoDirExists(t, m.TempDir())
	assert.NoDirExists(t, m.StagingDir())
	assert.NoDirExists(t, filepath.Join(root, "backup"))
	assert.True(t, m.HasCurrent(), "current/ must survive startup recovery")
}

func TestPrepareTempDirectory_Empties(t *testing.T) {
	m := newManager(t)
	write(t, m.TempDir(), "stale.json", "{}")

	require.NoError(t, m.PrepareTempDirectory())

	entries, err := os.ReadDir(m.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareTempDirectoryWithGit_CopiesGitDir(t *testing.T) {
	m := newManager(t)
	write(t, m.CurrentDir(), ".git/HEAD", "ref: refs/heads/main")
	write(t, m.CurrentDir(), "doc.json", "{}")

	require.NoError(t, m.PrepareTempDirectoryWithGit())

	head, err := os.ReadFile(filepath.Join(m.TempDir(), ".git", "HEAD"))
	require.NoError(t, err)
	assert.Equal(t, "ref: refs/heads/main", string(head))
	assert.NoFileExists(t, filepath.Join(m.TempDir(), "doc.json"), "only .git is carried over")
}

func TestSwapDirectories_ReplacesCurrent(t *testing.T) {
	m := newManager(t)
	write(t, m.CurrentDir(), "old.json", "old")
	require.NoError(t, m.PrepareTempDirectory())
	write(t, m.TempDir(), "new.json", "new")

	require.NoError(t, m.SwapDirectories())

	assert.FileExists(t, filepath.Join(m.CurrentDir(), "new.json"))
	assert.NoFileExists(t, filepath.Join(m.CurrentDir(), "old.json"))
	assert.NoDirExists(t, m.TempDir())
	assert.NoDirExists(t, filepath.Join(m.Root(), "backup"))
}

func TestSwapDirectories_FirstSwapWithoutCurrent(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.PrepareTempDirectory())
	write(t, m.TempDir(), "doc.json", "{}")

	require.NoError(t, m.SwapDirectories())
	assert.FileExists(t, filepath.Join(m.CurrentDir(), "doc.json"))
}

func TestSwapDirectories_MissingTempRestoresCurrent(t *testing.T) {
	m := newManager(t)
	write(t, m.CurrentDir(), "keep.json", "{}")

	err := m.SwapDirectories() // temp/ was never prepared
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(m.CurrentDir(), "keep.json"), "failed swap must restore the old snapshot")
}

func TestMetadataRoundTrip(t *testing.T) {
	m := newManager(t)
	require.NoError(t, os.MkdirAll(m.CurrentDir(), 0o755))

	assert.Equal(t, "", m.GetCurrentVersion())

	meta := &Metadata{
		CommitHash: "0123456789abcdef0123456789abcdef01234567",
		FetchTime:  time.Now().UTC().Truncate(time.Second),
		Branch:     "main",
		Repository: "acme/ord-metadata",
		TotalFiles: 12,
	}
	require.NoError(t, m.SaveMetadata(meta))

	got, err := m.GetMetadata()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, meta, got)
	assert.Equal(t, meta.CommitHash, m.GetCurrentVersion())
}

func TestCleanupTempDirectory(t *testing.T) {
	m := newManager(t)
	write(t, m.TempDir(), "partial.json", "{}")
	write(t, m.StagingDir(), "leftover.json", "{}")

	require.NoError(t, m.CleanupTempDirectory())
	assert.NoDirExists(t, m.TempDir())
	assert.NoDirExists(t, m.StagingDir())
}

func TestCountFiles(t *testing.T) {
	m := newManager(t)
	write(t, m.CurrentDir(), "a.json", "{}")
	write(t, m.CurrentDir(), "sub/b.json", "{}")
	write(t, m.CurrentDir(), ".git/HEAD", "ref")
	write(t, m.CurrentDir(), MetadataFileName, "{}")

	n, err := CountFiles(m.CurrentDir())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
