package domain

import (
	"errors"
	"strings"
	"testing"
)

func validRequest() DispatchRequest {
	return DispatchRequest{
		CampaignID: "camp-1",
		Recipients: []RecipientTask{{GlobalIndex: 0, Address: "a@example.com"}},
		Content:    Content{Subject: "hi", PlainBody: "hello"},
		Accounts: []SenderAccount{
			{
				ID: "relay-0", Kind: TransportRelay, SenderEmail: "s@example.com",
				Relay: &RelayConfig{Host: "mail.example.com", Port: 465, Security: SecurityTLS},
			},
			{
				ID: "hook-0", Kind: TransportWebhook, SenderEmail: "s2@example.com",
				Webhook: &WebhookConfig{EndpointURL: "https://relay.example.com/v1/messages"},
			},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*DispatchRequest)
		field  string
	}{
		{"missing campaign id", func(r *DispatchRequest) { r.CampaignID = "" }, "campaignId"},
		{"no recipients", func(r *DispatchRequest) { r.Recipients = nil }, "recipients"},
		{"no accounts", func(r *DispatchRequest) { r.Accounts = nil }, "accounts"},
		{"no body", func(r *DispatchRequest) { r.Content.PlainBody = "" }, "campaignContent"},
		{"negative start index", func(r *DispatchRequest) { r.GlobalStartIndex = -1 }, "globalStartIndex"},
		{"relay missing host", func(r *DispatchRequest) { r.Accounts[0].Relay.Host = "" }, "accounts[0]"},
		{"relay bad security", func(r *DispatchRequest) { r.Accounts[0].Relay.Security = "ssl3" }, "accounts[0]"},
		{"webhook missing endpoint", func(r *DispatchRequest) { r.Accounts[1].Webhook.EndpointURL = "" }, "accounts[1]"},
		{"missing sender email", func(r *DispatchRequest) { r.Accounts[1].SenderEmail = "" }, "accounts[1]"},
		{"unknown transport", func(r *DispatchRequest) { r.Accounts[0].Kind = "carrier-pigeon" }, "accounts[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			err := req.Validate()
			var cfgErr ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("field = %q want %q (%v)", cfgErr.Field, tc.field, err)
			}
		})
	}
}

func TestNormalizeMode(t *testing.T) {
	for in, want := range map[string]SendingMode{
		"max":        ModeMax,
		" MAX ":      ModeMax,
		"controlled": ModeControlled,
		"":           ModeControlled,
		"turbo":      ModeControlled,
	} {
		if got := NormalizeMode(in); got != want {
			t.Fatalf("NormalizeMode(%q) = %q want %q", in, got, want)
		}
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := ConfigError{Field: "accounts", Reason: "no sender accounts configured"}
	if !strings.Contains(err.Error(), "accounts") {
		t.Fatalf("error message %q", err.Error())
	}
}
