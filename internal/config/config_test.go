package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_LocalDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "sourceType: local\ndirectory: "+dir+"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, SourceLocal, cfg.SourceType)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, DefaultUpdateDelay, cfg.UpdateDelay)
	require.Equal(t, DefaultSubdirectory, cfg.DocumentsSubdirectory)
	require.Equal(t, []AuthMethod{AuthOpen}, cfg.AuthMethods)

	timeout, err := cfg.ParseRequestTimeout()
	require.NoError(t, err)
	require.Equal(t, DefaultRequestTimeout, timeout)
}

func TestLoad_GitHubRepositoryParsing(t *testing.T) {
	path := writeConfig(t, `
sourceType: github
githubRepository: acme/ord-metadata
githubBranch: release
updateDelay: 30
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "acme", cfg.Owner())
	require.Equal(t, "ord-metadata", cfg.Repo())
	require.Equal(t, "release", cfg.GithubBranch)
	require.Equal(t, 30*time.Second, cfg.UpdateDelayDuration())
	require.Equal(t, DefaultGithubAPIURL, cfg.GithubAPIURL)
}

func TestLoad_ValidationFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown source type", "sourceType: svn\n"},
		{"missing github repository", "sourceType: github\n"},
		{"malformed github repository", "sourceType: github\ngithubRepository: just-a-name\n"},
		{"open is exclusive", "sourceType: local\ndirectory: " + dir + "\nauthMethods: [open, basic]\n"},
		{"unknown auth method", "sourceType: local\ndirectory: " + dir + "\nauthMethods: [oauth]\n"},
		{"duplicate auth method", "sourceType: local\ndirectory: " + dir + "\nauthMethods: [basic, basic]\n"},
		{"bad sync interval", "sourceType: local\ndirectory: " + dir + "\nsyncInterval: soon\n"},
		{"bad request timeout", "sourceType: local\ndirectory: " + dir + "\nrequestTimeout: -3s\n"},
		{"unknown key", "sourceType: local\ndirectory: " + dir + "\nbogusKey: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingLocalDirectoryFails(t *testing.T) {
	path := writeConfig(t, "sourceType: local\ndirectory: /does/not/exist\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ORDSERVE_GITHUB_TOKEN", "tkn-from-env")
	t.Setenv("ORDSERVE_BASE_URL", "https://ord.example.com")

	path := writeConfig(t, "sourceType: local\ndirectory: "+dir+"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "tkn-from-env", cfg.GithubToken)
	require.Equal(t, "https://ord.example.com", cfg.BaseURL)
}
