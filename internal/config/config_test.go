package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "ws://localhost:8001", cfg.VTS.Endpoint)
	assert.Equal(t, policy.DefaultRetry(), cfg.Retry)
	assert.Equal(t, 5, cfg.Device.Columns)
	assert.Equal(t, 3, cfg.Device.Rows)
	assert.Equal(t, "profile_uuids.json", cfg.Paths.IDMap)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
vts:
  endpoint: ws://192.168.1.20:8001
retry:
  max_attempts: 5
  load_timeout: 12s
device:
  columns: 8
  rows: 4
paths:
  output_dir: out
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://192.168.1.20:8001", cfg.VTS.Endpoint)
	assert.Equal(t, "Mirabox", cfg.VTS.PluginDeveloper)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 12*time.Second, cfg.Retry.LoadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Retry.BusyBackoff)
	assert.Equal(t, 8, cfg.Device.Columns)
	assert.Equal(t, 4, cfg.Device.Rows)
	assert.Equal(t, "out", cfg.Paths.OutputDir)

	client := cfg.Client()
	assert.Equal(t, cfg.VTS.Endpoint, client.Endpoint)
	assert.Equal(t, cfg.Retry, client.Retry)
	assert.Equal(t, cfg.VTS.Endpoint, cfg.Generator().Endpoint)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("VTSDECK_VTS_ENDPOINT", "ws://10.0.0.2:8001")
	t.Setenv("VTSDECK_RETRY_PROBE_EVERY", "2")
	t.Setenv("VTS_LIVE2D_ROOT", "/models")

	cfg, err := Load(writeConfig(t, "logging:\n  level: warn\n"))
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.2:8001", cfg.VTS.Endpoint)
	assert.Equal(t, 2, cfg.Retry.ProbeEvery)
	assert.Equal(t, "/models", cfg.Paths.ModelRoot)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"http endpoint": "vts:\n  endpoint: http://localhost:8001\n",
		"zero attempts": "retry:\n  max_attempts: 0\n",
		"tiny grid":     "device:\n  columns: 1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "vts: [unclosed"))
	assert.Error(t, err)
}

func TestInstallDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.InstallDir = "/tmp/profiles"

	dir, err := cfg.InstallDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/profiles", dir)
}

func TestClassifierFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := Default()

	c, err := cfg.Classifier(ctx)
	require.NoError(t, err)
	class, err := c.Evaluate(ctx, policy.Failure{Kind: domain.FailureKindConnection})
	require.NoError(t, err)
	assert.Equal(t, domain.FailureClassFatal, class)

	path := filepath.Join(t.TempDir(), "custom.rego")
	require.NoError(t, os.WriteFile(path, []byte("package vts_failure\n\ndefault class = \"skip\"\n"), 0o644))
	cfg.Policy.File = path

	c, err = cfg.Classifier(ctx)
	require.NoError(t, err)
	class, err = c.Evaluate(ctx, policy.Failure{Kind: domain.FailureKindConnection})
	require.NoError(t, err)
	assert.Equal(t, domain.FailureClassSkip, class)
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetLevel(logrus.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(Logging{Level: "warn", Format: "json"}, false, &buf))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	logrus.Warn("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	require.NoError(t, SetupLogging(Logging{Level: "warn", Format: "text"}, true, &buf))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	assert.Error(t, SetupLogging(Logging{Level: "loud"}, false, nil))
	assert.Error(t, SetupLogging(Logging{Level: "info", Format: "xml"}, false, nil))
}
