package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPriceCommand(t *testing.T) {
	out, err := run(t, "", "price", "--line", "3000000x2")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	var got map[string]int64
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	want := map[string]int64{"subtotal_in_cents": 6_000_000, "shipping_in_cents": 0, "tax_in_cents": 1_140_000, "total_in_cents": 7_140_000}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected %d, got %d", k, v, got[k])
		}
	}
}

func TestPriceCommandChargesShippingBelowThreshold(t *testing.T) {
	out, err := run(t, "", "price", "-l", "150000x1")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	var got map[string]int64
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["shipping_in_cents"] != 1_000_000 || got["tax_in_cents"] != 28_500 || got["total_in_cents"] != 1_178_500 {
		t.Fatalf("unexpected breakdown %v", got)
	}
}

func TestPriceCommandRejectsBadLines(t *testing.T) {
	for _, line := range []string{"3000000", "ax2", "100x0", "-1x1"} {
		if _, err := run(t, "", "price", "--line", line); err == nil {
			t.Fatalf("expected %q to be rejected", line)
		}
	}
	if _, err := run(t, "", "price"); err == nil {
		t.Fatalf("expected missing lines to fail")
	}
}

func TestSignCommand(t *testing.T) {
	t.Setenv(integritySecretEnv, "")
	out, err := run(t, "", "sign", "--reference", "ORDER-1", "--amount", "7140000", "--currency", "cop", "--secret", "test_integrity")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := payments.IntegritySignature("ORDER-1", 7_140_000, "COP", "test_integrity")
	if strings.TrimSpace(out) != want {
		t.Fatalf("expected %s, got %s", want, out)
	}

	if _, err := run(t, "", "sign", "--reference", "ORDER-1", "--amount", "100"); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}

func TestChecksumAndVerifyRoundTrip(t *testing.T) {
	t.Setenv("API_GATEWAY_WEBHOOK_SECRET", "test_events")
	payload := `{"event":"transaction.updated"}`

	out, err := run(t, payload, "checksum", "--timestamp", "1741964400")
	if err != nil {
		t.Fatalf("checksum: %v", err)
	}
	sum := strings.TrimSpace(out)
	if sum != payments.WebhookChecksum([]byte(payload), "1741964400", "test_events") {
		t.Fatalf("unexpected checksum %s", sum)
	}

	out, err = run(t, payload, "verify-webhook", "--timestamp", "1741964400", "--signature", sum)
	if err != nil || strings.TrimSpace(out) != "checksum ok" {
		t.Fatalf("expected valid checksum, got %q %v", out, err)
	}

	_, err = run(t, payload, "verify-webhook", "--timestamp", "1741964401", "--signature", sum)
	if !errors.Is(err, errInvalidChecksum) {
		t.Fatalf("expected invalid checksum, got %v", err)
	}
}

func TestReferenceCommand(t *testing.T) {
	out, err := run(t, "", "reference")
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	parts := strings.Split(strings.TrimSpace(out), "-")
	if len(parts) != 3 || parts[0] != "ORDER" || len(parts[2]) != 4 {
		t.Fatalf("unexpected reference %q", out)
	}
}
