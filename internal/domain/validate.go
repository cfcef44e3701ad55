package domain

import "fmt"

// ConfigError is a precondition violation detected before any sending
// starts. It aborts the run and is never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// Validate rejects a dispatch request before the orchestrator touches any
// transport. Field-name normalization for account configs happens at config
// load, so by this point every account carries exactly one typed variant.
func (r DispatchRequest) Validate() error {
	if r.CampaignID == "" {
		return ConfigError{Field: "campaignId", Reason: "required"}
	}
	if len(r.Recipients) == 0 {
		return ConfigError{Field: "recipients", Reason: "empty slice"}
	}
	if len(r.Accounts) == 0 {
		return ConfigError{Field: "accounts", Reason: "no sender accounts configured"}
	}
	if r.Content.HTMLBody == "" && r.Content.PlainBody == "" {
		return ConfigError{Field: "campaignContent", Reason: "need html or plain body"}
	}
	if r.GlobalStartIndex < 0 {
		return ConfigError{Field: "globalStartIndex", Reason: "negative"}
	}
	for i, a := range r.Accounts {
		if err := a.validate(); err != nil {
			return ConfigError{Field: fmt.Sprintf("accounts[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

func (a SenderAccount) validate() error {
	if a.SenderEmail == "" {
		return fmt.Errorf("account %s: senderEmail required", a.ID)
	}
	switch a.Kind {
	case TransportRelay:
		if a.Relay == nil || a.Relay.Host == "" || a.Relay.Port == 0 {
			return fmt.Errorf("account %s: relay host/port required", a.ID)
		}
		switch a.Relay.Security {
		case SecurityNone, SecurityTLS, SecurityStartTLS:
		default:
			return fmt.Errorf("account %s: unknown security mode %q", a.ID, a.Relay.Security)
		}
	case TransportWebhook:
		if a.Webhook == nil || a.Webhook.EndpointURL == "" {
			return fmt.Errorf("account %s: webhook endpoint URL required", a.ID)
		}
	default:
		return fmt.Errorf("account %s: unknown transport kind %q", a.ID, a.Kind)
	}
	return nil
}
