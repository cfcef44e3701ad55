package pg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"blast/internal/store"
	"blast/internal/util"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) ReadSentCount(ctx context.Context, campaignID string) (int64, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT sent_count FROM campaign_progress WHERE campaign_id=$1
	`, campaignID)
	var count int64
	if err := row.Scan(&count); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// IncrementSentCount is a single read-modify-write statement so concurrent
// orchestrator slices of the same campaign never lose each other's deltas.
func (s *Store) IncrementSentCount(ctx context.Context, campaignID string, delta int64) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_progress (campaign_id, sent_count, status, updated_at)
		VALUES ($1, $2, 'sending', $3)
		ON CONFLICT (campaign_id)
		DO UPDATE SET sent_count = campaign_progress.sent_count + $2, updated_at = $3
	`, campaignID, delta, util.NowUTC())
	return err
}

func (s *Store) MarkStatus(ctx context.Context, campaignID string, status store.CampaignStatus, errorDetail string) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO campaign_progress (campaign_id, sent_count, status, last_error, updated_at)
		VALUES ($1, 0, $2, $3, $4)
		ON CONFLICT (campaign_id)
		DO UPDATE SET status = $2, last_error = $3, updated_at = $4
	`, campaignID, status, nullIfEmpty(errorDetail), util.NowUTC())
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
