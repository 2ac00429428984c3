package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  env: prod\n"))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9921", cfg.App.HTTPAddr)
	assert.Equal(t, "https://localhost:5000", cfg.Broker.BaseURL)
	assert.Equal(t, 10, cfg.Broker.TimeoutSeconds)
	assert.Equal(t, 30, cfg.Calc.WindowDays)
	assert.Equal(t, "1d", cfg.Calc.BarSize)
	assert.InDelta(t, 0.03, cfg.Calc.RiskFreeRate, 1e-9)
	assert.Equal(t, 100, cfg.Hedge.RingCapacity)
}

func TestLoadOverrides(t *testing.T) {
	doc := `
app:
  log_level: debug
  http_addr: ":8080"
broker:
  base_url: https://gateway:5000
  insecure_skip_verify: true
  account_id: DU12345
calc:
  risk_free_rate: 0.05
  window_days: 60
  bar_size: 1h
  parkinson: true
hedge:
  profiles_path: /etc/hedgerd/profiles.yaml
  store_path: /data/hedgerd.db
`
	cfg, err := Load(writeConfig(t, doc))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.True(t, cfg.Broker.InsecureSkipVerify)
	assert.Equal(t, "DU12345", cfg.Broker.AccountID)
	assert.Equal(t, 60, cfg.Calc.WindowDays)
	assert.Equal(t, "1h", cfg.Calc.BarSize)
	assert.True(t, cfg.Calc.Parkinson)
	assert.Equal(t, "/data/hedgerd.db", cfg.Hedge.StorePath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"bad log level", "app:\n  log_level: chatty\n"},
		{"bad broker url", "broker:\n  base_url: gateway:5000\n"},
		{"bad rate", "calc:\n  risk_free_rate: 1.5\n"},
		{"bad bar size", "calc:\n  bar_size: 2h\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.Error(t, err)
}
