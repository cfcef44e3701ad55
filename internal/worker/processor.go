package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"blast/internal/domain"
	"blast/internal/observability"
	sqsqueue "blast/internal/queue/sqs"
)

// Runner is the orchestrator surface the worker drives.
type Runner interface {
	Run(ctx context.Context, req domain.DispatchRequest) (domain.DispatchSummary, error)
}

type Processor struct {
	Runner Runner
}

// Process runs one queued dispatch job to completion. A precondition
// violation is final: the job is swallowed (nil return) so the queue does
// not redrive a request that can never succeed. Anything else bubbles up
// and leaves the message for redelivery.
func (p *Processor) Process(ctx context.Context, job sqsqueue.DispatchJob) error {
	start := time.Now()
	summary, err := p.Runner.Run(ctx, job.Request)
	if err != nil {
		var cfgErr domain.ConfigError
		if errors.As(err, &cfgErr) {
			observability.DispatchRuns.WithLabelValues("rejected").Inc()
			slog.Error("dispatch job rejected",
				"run_id", job.RunID,
				"campaign_id", job.Request.CampaignID,
				"err", err,
			)
			return nil
		}
		observability.DispatchRuns.WithLabelValues("error").Inc()
		return err
	}

	observability.DispatchRuns.WithLabelValues("ok").Inc()
	slog.Info("dispatch job complete",
		"run_id", job.RunID,
		"campaign_id", job.Request.CampaignID,
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"success_rate", summary.SuccessRate,
		"mode", summary.Mode,
		"duration", time.Since(start),
	)
	return nil
}
