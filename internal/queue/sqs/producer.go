package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"blast/internal/domain"
	"blast/internal/util"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// DispatchJob is the queued form of one orchestrator invocation. RunID
// deduplicates redelivery of the same enqueue.
type DispatchJob struct {
	RunID   string                 `json:"runId"`
	Request domain.DispatchRequest `json:"request"`
}

// EnqueueDispatch queues one campaign slice. FIFO grouping is per campaign
// so slices of one campaign are delivered in order while different
// campaigns interleave freely.
func (p *Producer) EnqueueDispatch(ctx context.Context, req domain.DispatchRequest) error {
	job := DispatchJob{RunID: util.NewRunID(), Request: req}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	groupID := campaignGroupID(req.CampaignID)
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(job.RunID),
	})
	return err
}

func campaignGroupID(campaignID string) string {
	return "campaign:" + campaignID
}

func str(s string) *string { return &s }
