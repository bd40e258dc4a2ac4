package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/services"
)

const integritySecretEnv = "API_GATEWAY_INTEGRITY_SECRET"

var errInvalidChecksum = errors.New("webhook checksum does not match")

func priceCmd() *cobra.Command {
	var (
		lines     []string
		taxRate   string
		threshold int64
		shipping  int64
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Compute the price breakdown for unit price x quantity lines",
		Example: `  checkoutctl price --line 3000000x2 --line 150000x1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(lines) == 0 {
				return errors.New("at least one --line is required")
			}
			priceLines := make([]domain.PriceLine, 0, len(lines))
			for _, raw := range lines {
				line, err := parsePriceLine(raw)
				if err != nil {
					return err
				}
				priceLines = append(priceLines, line)
			}
			calc, err := services.NewPriceCalculator(services.PriceCalculatorConfig{
				FreeShippingThresholdCents: threshold,
				ShippingCostCents:          shipping,
				TaxRate:                    taxRate,
			})
			if err != nil {
				return err
			}
			b := calc.Calculate(priceLines)
			return writeJSON(cmd.OutOrStdout(), map[string]int64{
				"subtotal_in_cents": b.SubtotalCents,
				"shipping_in_cents": b.ShippingCents,
				"tax_in_cents":      b.TaxCents,
				"total_in_cents":    b.TotalCents,
			})
		},
	}
	cmd.Flags().StringArrayVarP(&lines, "line", "l", nil, "line as <unit_price_cents>x<quantity>")
	cmd.Flags().StringVar(&taxRate, "tax-rate", "", "tax rate as a decimal fraction (default 0.19)")
	cmd.Flags().Int64Var(&threshold, "free-shipping-threshold", 0, "subtotal in cents from which shipping is free")
	cmd.Flags().Int64Var(&shipping, "shipping", 0, "flat shipping cost in cents")
	return cmd
}

func parsePriceLine(raw string) (domain.PriceLine, error) {
	price, qty, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), "x")
	if !ok {
		return domain.PriceLine{}, fmt.Errorf("line %q: expected <unit_price_cents>x<quantity>", raw)
	}
	unit, err := strconv.ParseInt(price, 10, 64)
	if err != nil || unit < 0 {
		return domain.PriceLine{}, fmt.Errorf("line %q: invalid unit price", raw)
	}
	quantity, err := strconv.ParseInt(qty, 10, 64)
	if err != nil || quantity <= 0 {
		return domain.PriceLine{}, fmt.Errorf("line %q: invalid quantity", raw)
	}
	return domain.PriceLine{UnitPriceCents: unit, Quantity: quantity}, nil
}

func signCmd() *cobra.Command {
	var (
		reference string
		amount    int64
		currency  string
		secret    string
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the gateway integrity signature for a payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret = firstNonEmpty(secret, os.Getenv(integritySecretEnv))
			if strings.TrimSpace(reference) == "" || amount <= 0 || secret == "" {
				return fmt.Errorf("--reference, a positive --amount and --secret (or %s) are required", integritySecretEnv)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), payments.IntegritySignature(reference, amount, strings.ToUpper(currency), secret))
			return err
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "order reference")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount in cents")
	cmd.Flags().StringVar(&currency, "currency", "COP", "ISO currency code")
	cmd.Flags().StringVar(&secret, "secret", "", "integrity secret")
	return cmd
}

type webhookFlags struct {
	payload   string
	timestamp string
	secret    string
}

func (f *webhookFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.payload, "payload", "-", "payload file, - for stdin")
	cmd.Flags().StringVar(&f.timestamp, "timestamp", "", "event timestamp header value")
	cmd.Flags().StringVar(&f.secret, "secret", "", "events secret (default $API_GATEWAY_WEBHOOK_SECRET)")
}

func (f *webhookFlags) read(cmd *cobra.Command) ([]byte, string, error) {
	secret := firstNonEmpty(f.secret, os.Getenv("API_GATEWAY_WEBHOOK_SECRET"))
	if secret == "" || strings.TrimSpace(f.timestamp) == "" {
		return nil, "", errors.New("--timestamp and --secret are required")
	}
	var (
		body []byte
		err  error
	)
	if f.payload == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(f.payload)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read payload: %w", err)
	}
	return body, secret, nil
}

func checksumCmd() *cobra.Command {
	var flags webhookFlags
	cmd := &cobra.Command{
		Use:   "checksum",
		Short: "Print the webhook checksum for a payload, for replaying events locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, secret, err := flags.read(cmd)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), payments.WebhookChecksum(body, strings.TrimSpace(flags.timestamp), secret))
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func verifyWebhookCmd() *cobra.Command {
	var (
		flags     webhookFlags
		signature string
	)
	cmd := &cobra.Command{
		Use:   "verify-webhook",
		Short: "Check a webhook payload against its checksum header",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, secret, err := flags.read(cmd)
			if err != nil {
				return err
			}
			if !payments.VerifyWebhookChecksum(body, signature, flags.timestamp, secret) {
				return errInvalidChecksum
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "checksum ok")
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&signature, "signature", "", "checksum header value")
	return cmd
}

func referenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "Generate an order reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), services.NewOrderReference(time.Now()))
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
