package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
forge:
  type: github
  token: abc123
  owner: theodi
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Workers.Count)
	require.Equal(t, 100, cfg.Workers.QueueSize)
	require.Equal(t, "datapub", cfg.NATS.SubjectPrefix)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("DATAPUB_TEST_TOKEN", "secret-token")
	path := writeConfig(t, `
forge:
  type: github
  token: ${DATAPUB_TEST_TOKEN}
  owner: theodi
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-token", cfg.Forge.Token)
}

func TestValidateRejectsMissingToken(t *testing.T) {
	path := writeConfig(t, `
forge:
  type: github
  owner: theodi
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "requires a token")
}

func TestValidateRejectsUnknownForge(t *testing.T) {
	path := writeConfig(t, `
forge:
  type: subversion
  owner: theodi
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown forge type")
}

func TestValidateGitForgeNeedsBaseURL(t *testing.T) {
	path := writeConfig(t, `
forge:
  type: git
  owner: theodi
`)
	_, err := Load(path)
	require.Error(t, err)

	path = writeConfig(t, `
forge:
  type: git
  base_url: https://git.example.org
  owner: theodi
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ForgeGit, cfg.Forge.Type)
}

func TestBuildConfigDurations(t *testing.T) {
	b := BuildConfig{PollInterval: "2s", PollDeadline: "30s"}
	require.Equal(t, "2s", b.Interval().String())
	require.Equal(t, "30s", b.Deadline().String())

	// invalid values fall back to defaults
	b = BuildConfig{PollInterval: "soon"}
	require.Equal(t, "5s", b.Interval().String())
	require.Equal(t, "5m0s", b.Deadline().String())
}
