package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_dispatch_runs_total", Help: "Orchestrator run outcomes"},
		[]string{"result"},
	)
	Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_batches_total", Help: "Batches completed"},
		[]string{"mode"},
	)
	RelaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_relay_send_total", Help: "Relay send outcomes"},
		[]string{"result"},
	)
	WebhookSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_webhook_send_total", Help: "Webhook relay send outcomes"},
		[]string{"result", "http_status"},
	)
	SendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "blast_send_latency_seconds", Help: "Per-recipient send latency"},
		[]string{"transport"},
	)
	WebhookQuota = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "blast_webhook_remaining_quota", Help: "Remaining quota reported by webhook relays"},
		[]string{"account_id"},
	)
	CheckpointIncrements = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "blast_checkpoint_increments_total", Help: "Checkpoint counter flushes"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "blast_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, DispatchRuns, Batches, RelaySend, WebhookSend, SendLatency, WebhookQuota, CheckpointIncrements, Enqueues)
}
