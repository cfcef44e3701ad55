// Package store defines the checkpoint contract the orchestrator consumes.
// The sent counter is the only cross-invocation shared mutable state, so
// every update is an increment, never an overwrite: concurrent slices of the
// same campaign accumulate instead of clobbering each other.
package store

import "context"

type CampaignStatus string

const (
	StatusSending   CampaignStatus = "sending"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

type CheckpointStore interface {
	ReadSentCount(ctx context.Context, campaignID string) (int64, error)
	// IncrementSentCount adds delta to the persisted counter atomically.
	IncrementSentCount(ctx context.Context, campaignID string, delta int64) error
	MarkStatus(ctx context.Context, campaignID string, status CampaignStatus, errorDetail string) error
}

// Checkpoint is the persisted progress row for one campaign.
type Checkpoint struct {
	CampaignID string
	SentCount  int64
	Status     CampaignStatus
	LastError  string
}
