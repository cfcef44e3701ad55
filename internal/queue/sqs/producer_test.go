package sqsqueue

import (
	"encoding/json"
	"testing"

	"blast/internal/domain"
)

func TestCampaignGroupID(t *testing.T) {
	if got := campaignGroupID("camp-1"); got != "campaign:camp-1" {
		t.Fatalf("group id = %q", got)
	}
	// same campaign always lands in the same FIFO group
	if campaignGroupID("camp-1") != campaignGroupID("camp-1") {
		t.Fatalf("group id not stable")
	}
	if campaignGroupID("camp-1") == campaignGroupID("camp-2") {
		t.Fatalf("distinct campaigns must not share a group")
	}
}

func TestDispatchJobRoundTrip(t *testing.T) {
	job := DispatchJob{
		RunID: "01J0000000000000000000RUN0",
		Request: domain.DispatchRequest{
			CampaignID:       "camp-9",
			GlobalStartIndex: 40,
			Recipients:       []domain.RecipientTask{{GlobalIndex: 40, Address: "a@example.com"}},
		},
	}
	body, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got DispatchJob
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != job.RunID {
		t.Fatalf("run id = %q", got.RunID)
	}
	if got.Request.CampaignID != "camp-9" || got.Request.GlobalStartIndex != 40 {
		t.Fatalf("request mangled: %+v", got.Request)
	}
}
