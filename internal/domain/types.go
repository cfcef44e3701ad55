package domain

import "strings"

type TransportKind string

const (
	TransportRelay   TransportKind = "relay"
	TransportWebhook TransportKind = "webhook"
)

type SecurityMode string

const (
	SecurityNone     SecurityMode = "none"
	SecurityTLS      SecurityMode = "tls"      // implicit TLS from byte one
	SecurityStartTLS SecurityMode = "starttls" // plaintext socket upgraded in-session
)

// RelayConfig is the connection variant for relay accounts.
type RelayConfig struct {
	Host     string       `json:"host"`
	Port     int          `json:"port"`
	Username string       `json:"username"`
	Password string       `json:"password"`
	Security SecurityMode `json:"security"`
}

// WebhookConfig is the connection variant for webhook relay accounts.
type WebhookConfig struct {
	EndpointURL string `json:"endpointUrl"`
	BearerToken string `json:"bearerToken,omitempty"`
}

// SenderAccount is one configured outbound identity. Exactly one of Relay or
// Webhook is populated, keyed by Kind. Accounts are read-only for the
// duration of a dispatch run.
type SenderAccount struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Kind        TransportKind  `json:"transportKind"`
	SenderEmail string         `json:"senderEmail"`
	Relay       *RelayConfig   `json:"relay,omitempty"`
	Webhook     *WebhookConfig `json:"webhook,omitempty"`
}

// RecipientTask is one recipient of a campaign. GlobalIndex is the absolute
// position across the whole campaign, not the current slice; it is the sole
// input to account rotation.
type RecipientTask struct {
	GlobalIndex      int    `json:"globalIndex"`
	Address          string `json:"recipientAddress"`
	ResolvedSubject  string `json:"resolvedSubject,omitempty"`
	ResolvedFromName string `json:"resolvedFromName,omitempty"`
}

// Content is the campaign message shared by every recipient before
// per-recipient tag resolution.
type Content struct {
	Subject   string            `json:"subject"`
	HTMLBody  string            `json:"htmlBody,omitempty"`
	PlainBody string            `json:"plainBody,omitempty"`
	FromName  string            `json:"fromName,omitempty"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

type OutcomeStatus string

const (
	StatusSent   OutcomeStatus = "sent"
	StatusFailed OutcomeStatus = "failed"
)

// DispatchOutcome records one send attempt for one recipient. Produced
// exactly once per task per run, append-only.
type DispatchOutcome struct {
	Recipient         string        `json:"recipientAddress"`
	AccountID         string        `json:"accountId"`
	Kind              TransportKind `json:"transportKind"`
	Status            OutcomeStatus `json:"status"`
	ErrorDetail       string        `json:"errorDetail,omitempty"`
	ProviderMessageID string        `json:"providerMessageId,omitempty"`
}

// SendingMode controls batch size and inter-batch pacing.
type SendingMode string

const (
	ModeControlled SendingMode = "controlled"
	ModeMax        SendingMode = "max"
)

// NormalizeMode maps unknown or empty modes to the controlled default.
func NormalizeMode(m string) SendingMode {
	if SendingMode(strings.ToLower(strings.TrimSpace(m))) == ModeMax {
		return ModeMax
	}
	return ModeControlled
}

// DispatchRequest is one orchestrator invocation: a slice of an already
// prepared campaign plus the account list to rotate across.
type DispatchRequest struct {
	CampaignID       string          `json:"campaignId"`
	Recipients       []RecipientTask `json:"recipients"`
	Content          Content         `json:"campaignContent"`
	Accounts         []SenderAccount `json:"accounts"`
	GlobalStartIndex int             `json:"globalStartIndex"`
	Mode             SendingMode     `json:"sendingMode"`
}

// DispatchSummary is the aggregate result of one run. Results holds a
// bounded sample of outcomes, never the full list.
type DispatchSummary struct {
	Success     bool              `json:"success"`
	Processed   int               `json:"processed"`
	Sent        int               `json:"sent"`
	Failed      int               `json:"failed"`
	SuccessRate float64           `json:"successRate"`
	Mode        SendingMode       `json:"sendingMode"`
	Results     []DispatchOutcome `json:"results"`
}
