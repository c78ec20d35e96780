package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/Guardefi/landing1.2-sub002/internal/ledger"
)

// Run starts the background jobs: periodic chain verification on cronSpec,
// the secondary-ledger outbox sweep (when mirroring is enabled) and the
// anomaly-counter eviction sweep. It returns a stop function.
func Run(cronSpec string, verifier *ledger.ChainVerifier, mirrorer *ledger.Mirrorer, detector *ledger.AnomalyDetector, mirrorEnabled bool) (stop func()) {
	c := cron.New()

	if _, err := c.AddFunc(cronSpec, func() {
		report, err := verifier.VerifyChain(context.Background())
		if err != nil {
			slog.Error("scheduled verification failed", "error", err)
			return
		}
		slog.Info("scheduled verification finished",
			"verified", report.Verified,
			"verified_blocks", report.VerifiedBlocks,
			"end_block", report.EndBlock)
	}); err != nil {
		slog.Error("scheduler: invalid verify cron spec, verification job disabled",
			"spec", cronSpec, "error", err)
	}

	if mirrorEnabled {
		// Re-mirror blocks whose post-commit mirror write failed.
		if _, err := c.AddFunc("@every 1m", func() {
			mirrorer.Sweep(context.Background())
		}); err != nil {
			slog.Error("scheduler: mirror sweep job disabled", "error", err)
		}
	}

	if _, err := c.AddFunc("@every 5m", detector.Sweep); err != nil {
		slog.Error("scheduler: anomaly sweep job disabled", "error", err)
	}

	c.Start()
	return func() { <-c.Stop().Done() }
}
