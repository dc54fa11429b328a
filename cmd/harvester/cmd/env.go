package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"planharvest/internal/components/chrono"
	"planharvest/internal/components/restyutil"
	"planharvest/internal/components/telemetry"
	"planharvest/internal/harvest"
	"planharvest/internal/notify"
	"planharvest/internal/relay"
	"planharvest/internal/scrapers/planbuild"
	"planharvest/internal/store"
)

// env is everything a harvest needs, built once per process.
type env struct {
	cfg       Config
	tel       telemetry.API
	clock     chrono.StandardImpl
	store     *store.Store
	harvester *harvest.Harvester
	notifier  *notify.Notifier
	otel      telemetry.Telemetry
}

func setupTelemetry(ctx context.Context) telemetry.Telemetry {
	otel, err := telemetry.SetupFromEnv(ctx, "planharvest")
	if errors.Is(err, os.ErrNotExist) {
		return telemetry.Telemetry{}
	}
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
		return telemetry.Telemetry{}
	}
	return otel
}

func newEnv(ctx context.Context, cfg Config, dumpDir string) (*env, error) {
	err := cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &env{
		cfg:  cfg,
		tel:  telemetry.SlogAPI{},
		otel: setupTelemetry(ctx),
	}
	e.clock, err = chrono.NewStandardImpl()
	if err != nil {
		e.Close()
		return nil, err
	}

	portalOpts := cfg.portalOptions()
	relayOpts := relay.Options{
		Url:     cfg.Relay.Url,
		Token:   cfg.Relay.Token,
		Timeout: time.Duration(cfg.Relay.TimeoutSeconds) * time.Second,
	}
	if dumpDir != "" {
		portalDump, err := restyutil.NewFilesystemOutput(filepath.Join(dumpDir, "portal"))
		if err != nil {
			e.Close()
			return nil, err
		}
		relayDump, err := restyutil.NewFilesystemOutput(filepath.Join(dumpDir, "relay"))
		if err != nil {
			e.Close()
			return nil, err
		}
		portalOpts.HttpDump = portalDump
		relayOpts.HttpDump = relayDump
	}

	client, err := planbuild.NewClient(portalOpts, e.tel)
	if err != nil {
		e.Close()
		return nil, err
	}
	upstream, err := relay.NewClient(relayOpts, e.tel)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.store, err = store.Open(ctx, cfg.Database)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.harvester = harvest.NewHarvester(
		client,
		store.NewWriter(e.store, e.tel),
		upstream,
		e.clock,
		cfg.harvestOptions(),
		e.tel,
	)
	e.notifier = notify.NewNotifier(cfg.Notify, e.tel)
	return e, nil
}

// runOnce runs a harvest and mails its summary, the mail failing never fails the run.
func (e *env) runOnce(ctx context.Context) (harvest.RunReport, error) {
	slog.Info("starting harvest", "jurisdictions", len(e.cfg.Jurisdictions))
	report, err := e.harvester.Run(ctx)
	slog.Info(
		"harvest finished",
		"run", report.RunID,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"failures", report.Failures(),
		"took", report.Duration().String(),
	)

	notifyErr := e.notifier.SendRunSummary(report, err)
	if notifyErr != nil {
		slog.Warn("failed to send run summary", "err", notifyErr)
	}
	return report, err
}

func (e *env) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			slog.Warn("failed to close store", "err", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.otel.Shutdown(ctx); err != nil {
		slog.Warn("failed to shutdown telemetry", "err", err)
	}
}
