package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

const (
	defaultPollAttempts    = 5
	defaultPollDelay       = 2 * time.Second
	defaultMaxPollAttempts = 10
	defaultSweepAge        = 10 * time.Minute
	defaultSweepLimit      = 50
)

// Reasons reported on acknowledged webhooks that were not applied.
const (
	WebhookReasonInvalidPayload     = "invalid_payload"
	WebhookReasonUnsupportedEvent   = "unsupported_event"
	WebhookReasonUnknownTransaction = "unknown_transaction"
	WebhookReasonAlreadyFinal       = "already_final"
	WebhookReasonProcessingFailed   = "processing_failed"
)

// WebhookArchive stores raw webhook payloads for later inspection.
type WebhookArchive interface {
	ArchiveWebhook(ctx context.Context, provider string, receivedAt time.Time, payload []byte) error
}

// ReconciliationServiceDeps bundles collaborators required to construct the reconciliation service.
type ReconciliationServiceDeps struct {
	Products        repositories.ProductRepository
	Deliveries      repositories.DeliveryRepository
	Orders          repositories.OrderRepository
	Transactions    repositories.TransactionRepository
	UnitOfWork      repositories.UnitOfWork
	Gateways        GatewayResolver
	Archive         WebhookArchive
	PollAttempts    int
	PollDelay       time.Duration
	MaxPollAttempts int
	SweepAge        time.Duration
	SweepLimit      int
	Clock           func() time.Time
	Events          EventPublisher
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	transactions    repositories.TransactionRepository
	gateways        GatewayResolver
	archive         WebhookArchive
	applier         *statusApplier
	pollAttempts    int
	pollDelay       time.Duration
	maxPollAttempts int
	sweepAge        time.Duration
	sweepLimit      int
	clock           func() time.Time
	events          eventEmitter
	logger          func(context.Context, string, map[string]any)
}

// NewReconciliationService wires dependencies into a concrete ReconciliationService.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Gateways == nil {
		return nil, errors.New("reconciliation service: gateway resolver is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	applier := &statusApplier{
		orders:       deps.Orders,
		deliveries:   deps.Deliveries,
		products:     deps.Products,
		transactions: deps.Transactions,
		unitOfWork:   deps.UnitOfWork,
		clock:        clock,
		logger:       logger,
	}
	if err := applier.validate(); err != nil {
		return nil, fmt.Errorf("reconciliation service: %w", err)
	}

	maxAttempts := deps.MaxPollAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxPollAttempts
	}
	attempts := deps.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	if attempts > maxAttempts {
		attempts = maxAttempts
	}
	delay := deps.PollDelay
	if delay <= 0 {
		delay = defaultPollDelay
	}
	sweepAge := deps.SweepAge
	if sweepAge <= 0 {
		sweepAge = defaultSweepAge
	}
	sweepLimit := deps.SweepLimit
	if sweepLimit <= 0 {
		sweepLimit = defaultSweepLimit
	}

	return &reconciliationService{
		transactions:    deps.Transactions,
		gateways:        deps.Gateways,
		archive:         deps.Archive,
		applier:         applier,
		pollAttempts:    attempts,
		pollDelay:       delay,
		maxPollAttempts: maxAttempts,
		sweepAge:        sweepAge,
		sweepLimit:      sweepLimit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: eventEmitter{publisher: deps.Events, logger: logger},
		logger: logger,
	}, nil
}

// PollTransaction queries the gateway until the transaction is final or attempts run out.
// Exhaustion is not an error; the result reports Pending instead.
func (s *reconciliationService) PollTransaction(ctx context.Context, cmd PollCommand) (PollResult, error) {
	attempts := cmd.MaxAttempts
	if attempts <= 0 {
		attempts = s.pollAttempts
	}
	if attempts > s.maxPollAttempts {
		attempts = s.maxPollAttempts
	}
	delay := cmd.Delay
	if delay <= 0 {
		delay = s.pollDelay
	}
	return s.poll(ctx, cmd.TransactionID, attempts, delay, StatusSourcePoll)
}

// PollOnce makes a single gateway query, leaving the retry loop to the caller.
func (s *reconciliationService) PollOnce(ctx context.Context, transactionID string) (PollResult, error) {
	return s.poll(ctx, transactionID, 1, 0, StatusSourcePoll)
}

func (s *reconciliationService) poll(ctx context.Context, transactionID string, attempts int, delay time.Duration, source string) (PollResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return PollResult{}, &ValidationError{Message: "transaction id is required", Fields: []string{"transaction_id"}}
	}
	txn, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return PollResult{}, mapRepositoryError(err)
	}
	if txn.Status.IsTerminal() {
		return PollResult{Status: txn.Status, Final: true, Transaction: txn}, nil
	}
	if txn.ExternalID == "" {
		return PollResult{Status: txn.Status, Pending: true, Transaction: txn}, nil
	}
	gw, err := s.gateways.Gateway(txn.Provider)
	if err != nil {
		return PollResult{}, err
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return PollResult{}, err
		}
		res := gw.GetTransaction(ctx, txn.ExternalID)
		if res.Success {
			status := domain.NormaliseTransactionStatus(res.Data.Status)
			if status.IsTerminal() {
				applied, err := s.ApplyTerminalStatus(ctx, ApplyStatusCommand{
					TransactionID: txn.ID,
					Status:        string(status),
					StatusMessage: res.Data.StatusMessage,
					Payload:       res.Data.Raw,
					Source:        source,
				})
				if err != nil {
					return PollResult{}, err
				}
				return PollResult{
					Status:      applied.Transaction.Status,
					Attempts:    attempt,
					Final:       true,
					Transaction: applied.Transaction,
				}, nil
			}
		} else {
			s.logger(ctx, "reconcile.poll.gateway_failed", map[string]any{
				"transactionID": txn.ID,
				"attempt":       attempt,
				"errorKind":     res.Error.Kind,
				"error":         res.Error.Message,
			})
		}

		if attempt < attempts {
			if err := wait(ctx, delay); err != nil {
				return PollResult{}, err
			}
		}
	}

	return PollResult{
		Status:      domain.TransactionStatusPending,
		Attempts:    attempts,
		Pending:     true,
		Transaction: txn,
	}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HandleWebhook verifies and applies a gateway notification. Only a failed signature is returned
// as an error; every other outcome is an acknowledgement so the gateway stops retrying.
func (s *reconciliationService) HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookAck, error) {
	gw, err := s.gateways.Gateway(cmd.Provider)
	if err != nil {
		return WebhookAck{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if !gw.ValidateWebhookSignature(cmd.Payload, cmd.Signature, cmd.Timestamp) {
		s.logger(ctx, "webhook.signature.invalid", map[string]any{"provider": gw.Name()})
		return WebhookAck{}, ErrInvalidSignature
	}
	s.archivePayload(ctx, gw.Name(), cmd.Payload)

	evt, err := gw.ParseWebhookEvent(cmd.Payload)
	if err != nil {
		s.logger(ctx, "webhook.payload.invalid", map[string]any{"provider": gw.Name(), "error": err.Error()})
		return WebhookAck{Ignored: true, Reason: WebhookReasonInvalidPayload}, nil
	}
	if evt.Event != payments.EventTransactionUpdated {
		return WebhookAck{Ignored: true, Reason: WebhookReasonUnsupportedEvent}, nil
	}

	txn, err := s.transactions.FindByExternalID(ctx, gw.Name(), evt.TransactionID)
	if err != nil {
		if isRepositoryNotFound(err) {
			s.logger(ctx, "webhook.transaction.unknown", map[string]any{
				"provider":   gw.Name(),
				"externalID": evt.TransactionID,
				"reference":  evt.Reference,
			})
			return WebhookAck{Ignored: true, Reason: WebhookReasonUnknownTransaction}, nil
		}
		return s.processingFailed(ctx, gw.Name(), evt, err), nil
	}
	if txn.Status.IsTerminal() {
		return WebhookAck{Ignored: true, Reason: WebhookReasonAlreadyFinal, TransactionID: txn.ID, Status: txn.Status}, nil
	}

	applied, err := s.ApplyTerminalStatus(ctx, ApplyStatusCommand{
		TransactionID: txn.ID,
		Status:        evt.Status,
		Payload:       evt.Raw,
		Source:        StatusSourceWebhook,
	})
	if err != nil {
		return s.processingFailed(ctx, gw.Name(), evt, err), nil
	}
	if !applied.Applied {
		return WebhookAck{Ignored: true, Reason: WebhookReasonAlreadyFinal, TransactionID: txn.ID, Status: applied.Transaction.Status}, nil
	}
	return WebhookAck{Processed: true, TransactionID: txn.ID, Status: applied.Transaction.Status}, nil
}

func (s *reconciliationService) processingFailed(ctx context.Context, provider string, evt payments.WebhookEvent, err error) WebhookAck {
	s.logger(ctx, "webhook.processing.failed", map[string]any{
		"provider":   provider,
		"externalID": evt.TransactionID,
		"reference":  evt.Reference,
		"error":      err.Error(),
	})
	return WebhookAck{Reason: WebhookReasonProcessingFailed}
}

func (s *reconciliationService) archivePayload(ctx context.Context, provider string, payload []byte) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchiveWebhook(ctx, provider, s.clock(), payload); err != nil {
		s.logger(ctx, "webhook.archive.failed", map[string]any{"provider": provider, "error": err.Error()})
	}
}

// ApplyTerminalStatus writes a gateway status through the shared transition routine and
// publishes a status change event when the write happened.
func (s *reconciliationService) ApplyTerminalStatus(ctx context.Context, cmd ApplyStatusCommand) (ApplyResult, error) {
	if strings.TrimSpace(cmd.TransactionID) == "" {
		return ApplyResult{}, &ValidationError{Message: "transaction id is required", Fields: []string{"transaction_id"}}
	}
	result, err := s.applier.apply(ctx, cmd)
	if err != nil {
		return ApplyResult{}, err
	}
	if result.Applied {
		s.logger(ctx, "reconcile.status.applied", map[string]any{
			"transactionID": result.Transaction.ID,
			"reference":     result.Transaction.Reference,
			"previous":      result.PreviousStatus,
			"status":        result.Transaction.Status,
			"source":        cmd.Source,
		})
		if result.Transaction.Status != result.PreviousStatus {
			s.events.emit(ctx, transactionEvent(EventPaymentStatusChanged, result, cmd.Source, s.clock()))
		}
	}
	return result, nil
}

// ReconcilePending polls each stale pending transaction once.
func (s *reconciliationService) ReconcilePending(ctx context.Context, cmd ReconcileSweepCommand) (ReconcileSweepResult, error) {
	age := cmd.OlderThan
	if age <= 0 {
		age = s.sweepAge
	}
	limit := cmd.Limit
	if limit <= 0 || limit > s.sweepLimit {
		limit = s.sweepLimit
	}

	pending, err := s.transactions.ListNonTerminal(ctx, s.clock().Add(-age), limit)
	if err != nil {
		return ReconcileSweepResult{}, mapRepositoryError(err)
	}

	var result ReconcileSweepResult
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		res, err := s.poll(ctx, txn.ID, 1, 0, StatusSourceSweep)
		switch {
		case err != nil:
			result.Failed++
			s.logger(ctx, "reconcile.sweep.failed", map[string]any{"transactionID": txn.ID, "error": err.Error()})
		case res.Final:
			result.Finalized++
		default:
			result.Pending++
		}
	}
	s.logger(ctx, "reconcile.sweep.completed", map[string]any{
		"checked":   result.Checked,
		"finalized": result.Finalized,
		"pending":   result.Pending,
		"failed":    result.Failed,
	})
	return result, nil
}
