package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

const deliveryLeadTime = 72 * time.Hour

var errTransitionLost = errors.New("checkout: transaction status changed concurrently")

// statusApplier is the single write path for transaction outcomes. Payment attempts insert new
// transactions through record; polling and webhooks move existing ones through apply.
type statusApplier struct {
	orders       repositories.OrderRepository
	deliveries   repositories.DeliveryRepository
	products     repositories.ProductRepository
	transactions repositories.TransactionRepository
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	logger       func(context.Context, string, map[string]any)
}

type transitionState struct {
	txn      domain.Transaction
	order    domain.Order
	delivery *domain.Delivery
}

type statusUpdate struct {
	status domain.TransactionStatus
	// gatewayStatus is the status as the gateway reported it. The order status is derived from
	// it, so values outside the transaction vocabulary leave the order pending.
	gatewayStatus string
	message       string
	payload       map[string]any
}

func (u statusUpdate) orderStatus() domain.OrderStatus {
	if u.gatewayStatus == "" {
		return domain.OrderStatusFromGateway(string(u.status))
	}
	return domain.OrderStatusFromGateway(u.gatewayStatus)
}

func (a *statusApplier) validate() error {
	switch {
	case a.orders == nil:
		return errors.New("order repository is required")
	case a.deliveries == nil:
		return errors.New("delivery repository is required")
	case a.products == nil:
		return errors.New("product repository is required")
	case a.transactions == nil:
		return errors.New("transaction repository is required")
	}
	if a.unitOfWork == nil {
		a.unitOfWork = noopUnitOfWork{}
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.logger == nil {
		a.logger = noopLogger
	}
	return nil
}

func (a *statusApplier) now() time.Time {
	return a.clock().UTC()
}

// record inserts a freshly created transaction and applies its first status in one unit.
func (a *statusApplier) record(ctx context.Context, txn domain.Transaction, update statusUpdate) (ApplyResult, error) {
	var result ApplyResult
	err := a.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		st, err := a.load(ctx, txn)
		if err != nil {
			return err
		}
		result, err = a.write(ctx, st, update, true)
		return err
	})
	if err != nil {
		return ApplyResult{}, mapRepositoryError(err)
	}
	return result, nil
}

// apply moves a stored transaction to a new status. Terminal transactions are left untouched and
// a concurrent terminal write is reported as Applied=false.
func (a *statusApplier) apply(ctx context.Context, cmd ApplyStatusCommand) (ApplyResult, error) {
	update := statusUpdate{
		status:        domain.NormaliseTransactionStatus(cmd.Status),
		gatewayStatus: cmd.Status,
		message:       cmd.StatusMessage,
		payload:       cmd.Payload,
	}

	var result ApplyResult
	err := a.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		current, err := a.transactions.FindByID(ctx, cmd.TransactionID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			result = ApplyResult{PreviousStatus: current.Status, Transaction: current}
			return nil
		}
		st, err := a.load(ctx, current)
		if err != nil {
			return err
		}
		result, err = a.write(ctx, st, update, false)
		return err
	})
	if err == nil {
		return result, nil
	}

	if errors.Is(err, errTransitionLost) || isRepositoryConflict(err) {
		current, findErr := a.transactions.FindByID(ctx, cmd.TransactionID)
		if findErr == nil && current.Status.IsTerminal() {
			a.logger(ctx, "checkout.transition.superseded", map[string]any{
				"transactionID": cmd.TransactionID,
				"status":        current.Status,
				"source":        cmd.Source,
			})
			return ApplyResult{PreviousStatus: current.Status, Transaction: current}, nil
		}
	}
	if errors.Is(err, errTransitionLost) {
		return ApplyResult{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return ApplyResult{}, mapRepositoryError(err)
}

// load performs every read a transition needs so that writes follow all reads.
func (a *statusApplier) load(ctx context.Context, txn domain.Transaction) (transitionState, error) {
	order, err := a.orders.FindByID(ctx, txn.OrderID)
	if err != nil {
		return transitionState{}, err
	}
	st := transitionState{txn: txn, order: order}
	if order.DeliveryID != "" {
		delivery, err := a.deliveries.FindByID(ctx, order.DeliveryID)
		switch {
		case err == nil:
			st.delivery = &delivery
		case isRepositoryNotFound(err):
		default:
			return transitionState{}, err
		}
	}
	return st, nil
}

func (a *statusApplier) write(ctx context.Context, st transitionState, update statusUpdate, insert bool) (ApplyResult, error) {
	now := a.now()
	previous := st.txn.Status

	txn := st.txn
	txn.Status = update.status
	if update.message != "" {
		txn.StatusMessage = update.message
	}
	if update.payload != nil {
		txn.PaymentData = update.payload
	}
	txn.UpdatedAt = now
	if txn.Status.IsTerminal() {
		finalized := now
		txn.FinalizedAt = &finalized
	}

	if insert {
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = now
		}
		if err := a.transactions.Insert(ctx, txn); err != nil {
			return ApplyResult{}, err
		}
	} else if err := a.transactions.UpdateStatus(ctx, txn, previous); err != nil {
		if isRepositoryConflict(err) {
			return ApplyResult{}, fmt.Errorf("%w: %v", errTransitionLost, err)
		}
		return ApplyResult{}, err
	}

	order := st.order
	if !ownsOrder(order, txn, insert) {
		a.logger(ctx, "checkout.order.kept", map[string]any{
			"reference":     order.Reference,
			"orderStatus":   order.Status,
			"orderTxnID":    order.TransactionID,
			"transactionID": txn.ID,
			"status":        txn.Status,
		})
		return ApplyResult{Applied: true, PreviousStatus: previous, Transaction: txn, Order: order}, nil
	}

	previousOrderStatus := order.Status
	order.Status = update.orderStatus()
	order.TransactionID = txn.ID
	if txn.PaymentMethodType != "" {
		order.PaymentMethod = txn.PaymentMethodType
	}
	order.UpdatedAt = now
	if err := a.orders.Update(ctx, order); err != nil {
		return ApplyResult{}, err
	}

	if txn.Status == domain.TransactionStatusApproved && previousOrderStatus != domain.OrderStatusApproved {
		if err := a.fulfil(ctx, order, st.delivery, now); err != nil {
			return ApplyResult{}, err
		}
	}

	return ApplyResult{Applied: true, PreviousStatus: previous, Transaction: txn, Order: order}, nil
}

// ownsOrder reports whether txn may set the order status. The order is re-read inside the unit of
// work, so this is the guard against concurrent attempts. An approved order never changes. A
// transaction other than the order's current one takes the order over only when it is a new
// attempt on an order open for payment, or when it carries an approval.
func ownsOrder(order domain.Order, txn domain.Transaction, insert bool) bool {
	switch {
	case order.Status == domain.OrderStatusApproved:
		return false
	case order.TransactionID == "" || order.TransactionID == txn.ID:
		return true
	case txn.Status == domain.TransactionStatusApproved:
		return true
	default:
		return insert && isPayable(order.Status)
	}
}

// fulfil decrements stock per line and assigns the delivery. Insufficient stock is logged and
// does not block recording an approved payment.
func (a *statusApplier) fulfil(ctx context.Context, order domain.Order, delivery *domain.Delivery, now time.Time) error {
	for _, item := range order.Items {
		if item.Quantity <= 0 {
			continue
		}
		if err := a.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			if isRepositoryConflict(err) {
				a.logger(ctx, "checkout.stock.insufficient", map[string]any{
					"reference": order.Reference,
					"productID": item.ProductID,
					"quantity":  item.Quantity,
				})
				continue
			}
			return err
		}
	}

	if delivery == nil || delivery.Status != domain.DeliveryStatusPending {
		return nil
	}
	eta := now.Add(deliveryLeadTime)
	assigned := *delivery
	assigned.Status = domain.DeliveryStatusAssigned
	assigned.EstimatedDeliveryDate = &eta
	assigned.UpdatedAt = now
	return a.deliveries.Update(ctx, assigned)
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
