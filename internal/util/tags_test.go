package util

import (
	"strings"
	"testing"
	"time"
)

func TestResolveTags(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	got := ResolveTags("Hi {{[name]}}, your copy for {{[to]}} ({{[ide]}}) on {{[date]}}",
		"jane.doe@example.com", "send-42", now)

	want := "Hi jane.doe, your copy for jane.doe@example.com (send-42) on 2026-08-01 09:30:00"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestResolveTagsNoTags(t *testing.T) {
	in := "plain text without placeholders"
	if got := ResolveTags(in, "a@b.c", "x", time.Now()); got != in {
		t.Fatalf("text without tags must pass through, got %q", got)
	}
	if got := ResolveTags("", "a@b.c", "x", time.Now()); got != "" {
		t.Fatalf("empty text, got %q", got)
	}
}

func TestResolveTagsBareLocalPart(t *testing.T) {
	// an address without @ uses the whole string as the name
	got := ResolveTags("{{[name]}}", "no-at-sign", "x", time.Now())
	if got != "no-at-sign" {
		t.Fatalf("got %q", got)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if !strings.HasPrefix(a, "run_") {
		t.Fatalf("run id %q", a)
	}
	if a == b {
		t.Fatalf("run ids must be unique")
	}
}
