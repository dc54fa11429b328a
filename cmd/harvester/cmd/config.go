package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"planharvest/internal/components/configutil"
	"planharvest/internal/harvest"
	"planharvest/internal/lga"
	"planharvest/internal/notify"
	"planharvest/internal/scrapers/planbuild"
	"planharvest/internal/store"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "0 3 * * *"

// councilNameSimilarity is how close a jurisdiction has to be to a council name before the
// warning names the council.
const councilNameSimilarity = 0.9

type PortalConfig struct {
	BaseUrl           string  `json:"base_url"`
	SessionCookie     string  `json:"session_cookie"`
	UserAgent         string  `json:"user_agent"`
	TimeoutSeconds    int     `json:"timeout_seconds"`
	Retries           int     `json:"retries"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	PageSize          int     `json:"page_size"`
	MaxPages          int     `json:"max_pages"`
	LegacyLgaField    bool    `json:"legacy_lga_field"`
	CloudflareBypass  bool    `json:"cloudflare_bypass"`
}

type RelayConfig struct {
	Url            string `json:"url"`
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type HarvestConfig struct {
	RelayPolicy       string `json:"relay_policy"`
	AttachmentWorkers int    `json:"attachment_workers"`
	MaxFailures       int    `json:"max_failures"`
}

type Config struct {
	Portal        PortalConfig  `json:"portal"`
	Relay         RelayConfig   `json:"relay"`
	Database      store.Config  `json:"database"`
	Jurisdictions []string      `json:"jurisdictions"`
	Harvest       HarvestConfig `json:"harvest"`
	Schedule      string        `json:"schedule"`
	Notify        notify.Config `json:"notify"`
}

func (c Config) withDefaults() Config {
	if c.Portal.BaseUrl == "" {
		c.Portal.BaseUrl = planbuild.DefaultBaseUrl
	}
	if c.Portal.TimeoutSeconds <= 0 {
		c.Portal.TimeoutSeconds = 30
	}
	if c.Portal.Retries <= 0 {
		c.Portal.Retries = 2
	}
	if c.Portal.RequestsPerSecond <= 0 {
		c.Portal.RequestsPerSecond = 2
	}
	if c.Relay.TimeoutSeconds <= 0 {
		c.Relay.TimeoutSeconds = 60
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.File == "" {
		c.Database.File = store.DefaultFile
	}
	if c.Harvest.RelayPolicy == "" {
		c.Harvest.RelayPolicy = string(harvest.RelayAlways)
	}
	if c.Harvest.AttachmentWorkers <= 0 {
		c.Harvest.AttachmentWorkers = 1
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	return c
}

// validate rejects configurations a run cannot start with. Jurisdictions are the portal's own
// codes and must be listed explicitly. A code without the LGA### shape is only warned about.
func (c Config) validate() error {
	var errs []error
	if c.Relay.Url == "" {
		errs = append(errs, errors.New("relay.url is required"))
	}
	if !harvest.RelayPolicy(c.Harvest.RelayPolicy).Valid() {
		errs = append(errs, fmt.Errorf(
			"harvest.relay_policy must be %q or %q, got %q",
			harvest.RelayAlways, harvest.RelayInsertedOnly, c.Harvest.RelayPolicy,
		))
	}
	if c.Harvest.MaxFailures < 0 {
		errs = append(errs, errors.New("harvest.max_failures cannot be negative"))
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}

	if len(c.Jurisdictions) == 0 {
		errs = append(errs, errors.New("jurisdictions is required, list the portal's LGA codes (e.g. \"LGA003\")"))
	}
	seen := map[string]bool{}
	for _, code := range c.Jurisdictions {
		if seen[code] {
			errs = append(errs, fmt.Errorf("jurisdiction %s is listed twice", code))
		}
		seen[code] = true

		if lga.IsPortalCode(code) {
			continue
		}
		attrs := []any{"code", code}
		if matches := lga.Resolve(code, 1); len(matches) > 0 && matches[0].Similarity >= councilNameSimilarity {
			attrs = append(attrs, "council", matches[0].Council.Name)
		}
		slog.Warn("jurisdiction is not a portal LGA code", attrs...)
	}

	return errors.Join(errs...)
}

func (c Config) portalOptions() planbuild.Options {
	return planbuild.Options{
		BaseUrl:           c.Portal.BaseUrl,
		SessionCookie:     c.Portal.SessionCookie,
		UserAgent:         c.Portal.UserAgent,
		Timeout:           time.Duration(c.Portal.TimeoutSeconds) * time.Second,
		Retries:           c.Portal.Retries,
		RequestsPerSecond: c.Portal.RequestsPerSecond,
		PageSize:          c.Portal.PageSize,
		MaxPages:          c.Portal.MaxPages,
		LegacyLgaField:    c.Portal.LegacyLgaField,
		CloudflareBypass:  c.Portal.CloudflareBypass,
	}
}

func (c Config) harvestOptions() harvest.Options {
	return harvest.Options{
		Jurisdictions:     c.Jurisdictions,
		RelayPolicy:       harvest.RelayPolicy(c.Harvest.RelayPolicy),
		AttachmentWorkers: c.Harvest.AttachmentWorkers,
		MaxFailures:       c.Harvest.MaxFailures,
	}
}

// loadConfig reads the config file (and its .local override). A missing file is not an
// error, every setting has a default except the relay which validate checks for.
func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("no config file found, using defaults", "path", path)
		err = nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg.withDefaults(), nil
}
