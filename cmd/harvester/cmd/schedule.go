package cmd

import (
	"errors"
	"log/slog"
	"sync"

	"planharvest/internal/components/chrono"
	"planharvest/internal/components/serviceutil"
	"planharvest/internal/components/telemetry"
	"planharvest/internal/scrapers/planbuild"

	"github.com/spf13/cobra"
)

var scheduleNow bool

// exclusive wraps job so that a call made while another is still running is skipped. The
// immediate run of --now and the cron ticks share one harvester.
func exclusive(job func()) func() {
	var running sync.Mutex
	return func() {
		if !running.TryLock() {
			slog.Warn("previous harvest still running, skipping this one")
			return
		}
		defer running.Unlock()
		job()
	}
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run a harvest immediately.")
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule [--now]",
	Short: "Runs a harvest on the configured cron schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig(configPath)
		if err != nil {
			serviceutil.Fatal("failed to load config", err)
		}
		e, err := newEnv(ctx, cfg, "")
		if err != nil {
			serviceutil.Fatal("failed to setup harvester", err)
		}
		defer e.Close()

		telemetry.InstrumentPerfStats(ctx)

		harvestJob := exclusive(func() {
			_, err := e.runOnce(ctx)
			var bootstrapErr *planbuild.AuthBootstrapError
			if errors.As(err, &bootstrapErr) {
				// the next tick gets a new session
				slog.Error("could not establish a portal session", "err", err)
				return
			}
			if err != nil {
				slog.Error("harvest failed", "err", err)
			}
		})

		scheduler := chrono.NewStandardCron(e.tel, e.clock.Location())
		err = scheduler.Cron(cfg.Schedule, harvestJob)
		if err != nil {
			serviceutil.Fatal("failed to schedule harvest", err)
		}
		slog.Info("harvest scheduled", "schedule", cfg.Schedule, "location", e.clock.Location().String())

		if scheduleNow {
			harvestJob()
		}

		<-ctx.Done()
		scheduler.Stop()
	},
}
