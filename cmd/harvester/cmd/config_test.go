package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"planharvest/internal/harvest"
	"planharvest/internal/scrapers/planbuild"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)

	require.Equal(t, planbuild.DefaultBaseUrl, cfg.Portal.BaseUrl)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "data.sqlite", cfg.Database.File)
	require.Empty(t, cfg.Jurisdictions)
	require.Equal(t, string(harvest.RelayAlways), cfg.Harvest.RelayPolicy)
	require.Equal(t, 1, cfg.Harvest.AttachmentWorkers)
	require.Equal(t, DefaultSchedule, cfg.Schedule)

	// neither the relay nor the jurisdictions have a default
	err = cfg.validate()
	require.ErrorContains(t, err, "relay.url")
	require.ErrorContains(t, err, "jurisdictions is required")
}

func TestLoadConfigWithLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		portal: { page_size: 25, timeout_seconds: 10 },
		relay: { url: "https://relay.example.com/upload", token: "base" },
		jurisdictions: ["LGA003", "LGA014"],
		harvest: { relay_policy: "inserted-only" },
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		relay: { token: "secret" },
		database: { driver: "postgres", url: "postgres://localhost/planharvest" },
	}`), 0600))

	cfg, err := loadConfig(filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	require.Equal(t, "secret", cfg.Relay.Token)
	require.Equal(t, "https://relay.example.com/upload", cfg.Relay.Url)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "", cfg.Database.File)
	require.Equal(t, []string{"LGA003", "LGA014"}, cfg.Jurisdictions)

	portal := cfg.portalOptions()
	require.Equal(t, 25, portal.PageSize)
	require.Equal(t, 10*time.Second, portal.Timeout)

	opts := cfg.harvestOptions()
	require.Equal(t, harvest.RelayInsertedOnly, opts.RelayPolicy)
	require.Equal(t, []string{"LGA003", "LGA014"}, opts.Jurisdictions)
}

func TestLoadConfigParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{ portal: `), 0600))

	_, err := loadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Relay:         RelayConfig{Url: "https://relay.example.com"},
		Jurisdictions: []string{"LGA003"},
	}.withDefaults()
	require.NoError(t, valid.validate())

	cases := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "unknown relay policy",
			mutate: func(c *Config) { c.Harvest.RelayPolicy = "sometimes" },
			errMsg: "relay_policy",
		},
		{
			name:   "negative max failures",
			mutate: func(c *Config) { c.Harvest.MaxFailures = -1 },
			errMsg: "max_failures",
		},
		{
			name:   "bad schedule",
			mutate: func(c *Config) { c.Schedule = "every tuesday" },
			errMsg: "schedule",
		},
		{
			name:   "duplicate jurisdiction",
			mutate: func(c *Config) { c.Jurisdictions = []string{"LGA003", "LGA014", "LGA003"} },
			errMsg: "LGA003 is listed twice",
		},
		{
			name:   "no jurisdictions",
			mutate: func(c *Config) { c.Jurisdictions = nil },
			errMsg: "jurisdictions is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			cfg.Jurisdictions = append([]string(nil), valid.Jurisdictions...)
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.validate(), tc.errMsg)
		})
	}
}

func TestValidateAllowsOddJurisdiction(t *testing.T) {
	cfg := Config{
		Relay:         RelayConfig{Url: "https://relay.example.com"},
		Jurisdictions: []string{"HOBART", "LGA003"},
	}.withDefaults()
	require.NoError(t, cfg.validate())
}
