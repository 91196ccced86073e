package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForCommit(t *testing.T) {
	assert.Equal(t, "abc123:documents", ForCommit("abc123", "documents"))
	assert.Equal(t, "abc123:.", ForCommit("abc123", ""))
	assert.Equal(t, "abc123", CommitOf("abc123:documents"))
	assert.Equal(t, "abc123", CommitOf("abc123"))
}

func TestPrefixOverlap(t *testing.T) {
	assert.True(t, PrefixOverlap("deadbeef11:docs", "deadbeef11:docs"))
	assert.True(t, PrefixOverlap("deadbee1234:docs", "deadbee9999:docs"))
	assert.False(t, PrefixOverlap("deadbee1234:docs", "cafebabe123:docs"))
	assert.False(t, PrefixOverlap("abc:docs", "abc:other")) // too short for prefix rule
}

func TestForDirectory_StableAndSensitive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"a":1}`)
	writeFile(t, dir, "sub/b.json", `{"b":2}`)

	first, err := ForDirectory(dir)
	require.NoError(t, err)
	second, err := ForDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second, "unchanged tree must produce identical fingerprints")

	// Touch a file far enough in the future that mtime-ms definitely moves.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.json"), future, future))

	third, err := ForDirectory(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, third, "mtime change must change the fingerprint")
}

func TestForDirectory_NewFileChangesFingerprint(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{}`)

	before, err := ForDirectory(dir)
	require.NoError(t, err)

	writeFile(t, dir, "c.json", `{}`)
	after, err := ForDirectory(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestForDirectory_SkipsGitDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{}`)
	before, err := ForDirectory(dir)
	require.NoError(t, err)

	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")
	after, err := ForDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, before, after, ".git contents must not affect the fingerprint")
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
