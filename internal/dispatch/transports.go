package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"blast/internal/domain"
	"blast/internal/providers/relay"
	"blast/internal/providers/webhook"
)

// relayTransport builds one single-use relay client per send. The protocol
// client is single-connection by design; concurrency comes from the
// orchestrator running independent sessions side by side.
type relayTransport struct {
	heloDomain  string
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

func NewRelayTransport(heloDomain string, dialTimeout, ioTimeout time.Duration) RelaySender {
	return &relayTransport{heloDomain: heloDomain, dialTimeout: dialTimeout, ioTimeout: ioTimeout}
}

func (t *relayTransport) Send(ctx context.Context, cfg domain.RelayConfig, msg relay.Message) (relay.Result, error) {
	client := &relay.Client{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Security:    string(cfg.Security),
		HeloDomain:  t.heloDomain,
		DialTimeout: t.dialTimeout,
		IOTimeout:   t.ioTimeout,
	}
	return client.Send(ctx, msg)
}

// webhookTransport shares one HTTP client and breaker across accounts; the
// per-account endpoint and token are applied per call.
type webhookTransport struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewWebhookTransport(httpClient *http.Client, breaker *gobreaker.CircuitBreaker) WebhookSender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &webhookTransport{http: httpClient, breaker: breaker}
}

func (t *webhookTransport) Send(ctx context.Context, cfg domain.WebhookConfig, req webhook.SendRequest) (webhook.SendResponse, int, []byte, error) {
	client := &webhook.Client{
		EndpointURL: cfg.EndpointURL,
		BearerToken: cfg.BearerToken,
		HTTP:        t.http,
		Breaker:     t.breaker,
	}
	return client.Send(ctx, req)
}
