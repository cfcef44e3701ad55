// Package dispatch fans a campaign slice out across the configured sender
// accounts: deterministic rotation, rate-controlled batches with bounded
// concurrency, per-recipient failure isolation, and progress checkpointing.
package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"blast/internal/domain"
	"blast/internal/observability"
	"blast/internal/providers/relay"
	"blast/internal/providers/webhook"
	"blast/internal/store"
	"blast/internal/util"
)

// RelaySender delivers one message over an authenticated relay connection.
type RelaySender interface {
	Send(ctx context.Context, cfg domain.RelayConfig, msg relay.Message) (relay.Result, error)
}

// WebhookSender delivers one message through an HTTP relay endpoint.
type WebhookSender interface {
	Send(ctx context.Context, cfg domain.WebhookConfig, req webhook.SendRequest) (webhook.SendResponse, int, []byte, error)
}

type Orchestrator struct {
	Relay       RelaySender
	Webhook     WebhookSender
	Checkpoints store.CheckpointStore

	// Limiter, when set, paces individual sends across the whole run.
	Limiter *rate.Limiter

	// SampleSize caps the outcomes returned in the summary. Default 20.
	SampleSize int

	// Batch sizing per mode; zero values take the defaults below.
	ControlledBatchSize int
	MaxBatchSize        int
	ControlledDelay     time.Duration
}

const (
	defaultControlledBatch = 10
	defaultMaxBatch        = 50
	defaultControlledDelay = 2 * time.Second
	defaultSampleSize      = 20
)

// Run drives a full slice of recipients to completion, batch by batch. Only
// precondition violations abort the run; every transport failure is recorded
// as a failed outcome and processing continues. The orchestrator keeps no
// cross-invocation state: resume is the caller re-invoking with a new slice
// and the checkpoint store accumulating deltas.
func (o *Orchestrator) Run(ctx context.Context, req domain.DispatchRequest) (domain.DispatchSummary, error) {
	req.Mode = domain.NormalizeMode(string(req.Mode))

	if err := req.Validate(); err != nil {
		if req.CampaignID != "" {
			if merr := o.Checkpoints.MarkStatus(ctx, req.CampaignID, store.StatusFailed, err.Error()); merr != nil {
				slog.Error("mark status failed", "err", merr, "campaign_id", req.CampaignID)
			}
		}
		return domain.DispatchSummary{Mode: req.Mode}, err
	}

	if err := o.Checkpoints.MarkStatus(ctx, req.CampaignID, store.StatusSending, ""); err != nil {
		slog.Error("mark status sending failed", "err", err, "campaign_id", req.CampaignID)
	}

	batchSize := o.batchSize(req.Mode)
	sample := make([]domain.DispatchOutcome, 0, o.sampleSize())
	var sent, failed int

	for start := 0; start < len(req.Recipients); start += batchSize {
		end := start + batchSize
		if end > len(req.Recipients) {
			end = len(req.Recipients)
		}
		batch := req.Recipients[start:end]

		outcomes := o.runBatch(ctx, req, batch)

		var delta int64
		for _, out := range outcomes {
			if out.Status == domain.StatusSent {
				sent++
				delta++
			} else {
				failed++
			}
			if len(sample) < o.sampleSize() {
				sample = append(sample, out)
			}
		}

		// read-increment-write lives inside the store as one atomic
		// statement; concurrent slices of the same campaign accumulate
		if delta > 0 {
			if err := o.Checkpoints.IncrementSentCount(ctx, req.CampaignID, delta); err != nil {
				slog.Error("checkpoint increment failed", "err", err, "campaign_id", req.CampaignID, "delta", delta)
			} else {
				observability.CheckpointIncrements.Inc()
			}
		}
		observability.Batches.WithLabelValues(string(req.Mode)).Inc()
		slog.Info("batch complete",
			"campaign_id", req.CampaignID,
			"batch_size", len(batch),
			"sent", delta,
			"failed", len(batch)-int(delta),
		)

		if delay := o.interBatchDelay(req.Mode); delay > 0 && end < len(req.Recipients) {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	processed := sent + failed
	summary := domain.DispatchSummary{
		Success:     true,
		Processed:   processed,
		Sent:        sent,
		Failed:      failed,
		SuccessRate: successRate(sent, processed),
		Mode:        req.Mode,
		Results:     sample,
	}

	if err := o.Checkpoints.MarkStatus(ctx, req.CampaignID, store.StatusCompleted, ""); err != nil {
		slog.Error("mark status completed failed", "err", err, "campaign_id", req.CampaignID)
	}
	return summary, nil
}

// runBatch launches every task in the batch concurrently and waits for all
// of them; there is no partial-batch carry-over. Outcome order matches the
// batch order regardless of completion order.
func (o *Orchestrator) runBatch(ctx context.Context, req domain.DispatchRequest, batch []domain.RecipientTask) []domain.DispatchOutcome {
	outcomes := make([]domain.DispatchOutcome, len(batch))
	var wg sync.WaitGroup
	for i, task := range batch {
		wg.Add(1)
		go func(i int, task domain.RecipientTask) {
			defer wg.Done()
			outcomes[i] = o.sendOne(ctx, req, task)
		}(i, task)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) sendOne(ctx context.Context, req domain.DispatchRequest, task domain.RecipientTask) domain.DispatchOutcome {
	account := Route(task.GlobalIndex, req.Accounts)
	out := domain.DispatchOutcome{
		Recipient: task.Address,
		AccountID: account.ID,
		Kind:      account.Kind,
	}

	if o.Limiter != nil {
		if err := o.Limiter.Wait(ctx); err != nil {
			out.Status = domain.StatusFailed
			out.ErrorDetail = "rate limiter: " + err.Error()
			return out
		}
	}

	now := util.NowUTC()
	sendID := util.NewToken()
	subject := task.ResolvedSubject
	if subject == "" {
		subject = req.Content.Subject
	}
	subject = util.ResolveTags(subject, task.Address, sendID, now)
	fromName := task.ResolvedFromName
	if fromName == "" {
		fromName = req.Content.FromName
	}
	if fromName == "" {
		fromName = account.DisplayName
	}
	fromName = util.ResolveTags(fromName, task.Address, sendID, now)
	htmlBody := util.ResolveTags(req.Content.HTMLBody, task.Address, sendID, now)
	plainBody := util.ResolveTags(req.Content.PlainBody, task.Address, sendID, now)

	start := time.Now()
	switch account.Kind {
	case domain.TransportRelay:
		res, err := o.Relay.Send(ctx, *account.Relay, relay.Message{
			From:      account.SenderEmail,
			FromName:  fromName,
			To:        task.Address,
			Subject:   subject,
			HTMLBody:  htmlBody,
			PlainBody: plainBody,
			ReplyTo:   req.Content.ReplyTo,
			Headers:   req.Content.Headers,
		})
		observability.SendLatency.WithLabelValues("relay").Observe(time.Since(start).Seconds())
		if err != nil {
			observability.RelaySend.WithLabelValues("error").Inc()
			out.Status = domain.StatusFailed
			out.ErrorDetail = err.Error()
			slog.Warn("relay send failed",
				"campaign_id", req.CampaignID,
				"account_id", account.ID,
				"recipient", task.Address,
				"err", err,
				"transcript_lines", len(res.Transcript),
			)
			return out
		}
		observability.RelaySend.WithLabelValues("ok").Inc()
		out.Status = domain.StatusSent
		out.ProviderMessageID = res.MessageID

	case domain.TransportWebhook:
		resp, httpStatus, _, err := o.Webhook.Send(ctx, *account.Webhook, webhook.SendRequest{
			To:        task.Address,
			Subject:   subject,
			HTMLBody:  htmlBody,
			PlainBody: plainBody,
			FromName:  fromName,
			FromAlias: account.SenderEmail,
		})
		observability.SendLatency.WithLabelValues("webhook").Observe(time.Since(start).Seconds())
		if err != nil {
			observability.WebhookSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()
			out.Status = domain.StatusFailed
			out.ErrorDetail = err.Error()
			slog.Warn("webhook send failed",
				"campaign_id", req.CampaignID,
				"account_id", account.ID,
				"recipient", task.Address,
				"http_status", httpStatus,
				"err", err,
			)
			return out
		}
		observability.WebhookSend.WithLabelValues("ok", strconv.Itoa(httpStatus)).Inc()
		if resp.RemainingQuota != nil {
			observability.WebhookQuota.WithLabelValues(account.ID).Set(float64(*resp.RemainingQuota))
		}
		// the webhook wire format carries no provider message id
		out.Status = domain.StatusSent
	}
	return out
}

func (o *Orchestrator) batchSize(mode domain.SendingMode) int {
	if mode == domain.ModeMax {
		if o.MaxBatchSize > 0 {
			return o.MaxBatchSize
		}
		return defaultMaxBatch
	}
	if o.ControlledBatchSize > 0 {
		return o.ControlledBatchSize
	}
	return defaultControlledBatch
}

// interBatchDelay is rate courtesy toward upstream relays, not a
// correctness mechanism.
func (o *Orchestrator) interBatchDelay(mode domain.SendingMode) time.Duration {
	if mode == domain.ModeMax {
		return 0
	}
	if o.ControlledDelay > 0 {
		return o.ControlledDelay
	}
	return defaultControlledDelay
}

func (o *Orchestrator) sampleSize() int {
	if o.SampleSize > 0 {
		return o.SampleSize
	}
	return defaultSampleSize
}

func successRate(sent, processed int) float64 {
	if processed == 0 {
		return 0
	}
	return float64(sent) * 100 / float64(processed)
}
