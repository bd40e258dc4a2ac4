package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/platform/textutil"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

const (
	orderIDPrefix       = "ord_"
	customerIDPrefix    = "cus_"
	deliveryIDPrefix    = "dlv_"
	transactionIDPrefix = "txn_"

	defaultCurrency = "COP"
	// createOrderAttempts bounds retries after a store conflict such as a reference collision.
	createOrderAttempts = 2
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Products           repositories.ProductRepository
	Customers          repositories.CustomerRepository
	Deliveries         repositories.DeliveryRepository
	Orders             repositories.OrderRepository
	Transactions       repositories.TransactionRepository
	UnitOfWork         repositories.UnitOfWork
	Calculator         *PriceCalculator
	Currency           string
	AmountTolerance    int64
	Clock              func() time.Time
	IDGenerator        func() string
	ReferenceGenerator func(now time.Time) string
	Events             EventPublisher
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	products     repositories.ProductRepository
	customers    repositories.CustomerRepository
	deliveries   repositories.DeliveryRepository
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	unitOfWork   repositories.UnitOfWork
	calculator   *PriceCalculator
	currency     string
	tolerance    int64
	clock        func() time.Time
	newID        func() string
	newReference func(time.Time) string
	events       eventEmitter
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Products == nil:
		return nil, errors.New("order service: product repository is required")
	case deps.Customers == nil:
		return nil, errors.New("order service: customer repository is required")
	case deps.Deliveries == nil:
		return nil, errors.New("order service: delivery repository is required")
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	calc := deps.Calculator
	if calc == nil {
		calc = MustPriceCalculator()
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	tolerance := deps.AmountTolerance
	if tolerance <= 0 {
		tolerance = DefaultAmountTolerance
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	refGen := deps.ReferenceGenerator
	if refGen == nil {
		refGen = NewOrderReference
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}

	return &orderService{
		products:     deps.Products,
		customers:    deps.Customers,
		deliveries:   deps.Deliveries,
		orders:       deps.Orders,
		transactions: deps.Transactions,
		unitOfWork:   unit,
		calculator:   calc,
		currency:     currency,
		tolerance:    tolerance,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		newReference: refGen,
		events:       eventEmitter{publisher: deps.Events, logger: logger},
		logger:       logger,
	}, nil
}

// NewOrderReference formats ORDER-<unix>-<1000..9999>.
func NewOrderReference(now time.Time) string {
	return fmt.Sprintf("ORDER-%d-%d", now.Unix(), 1000+rand.IntN(9000))
}

type orderDraft struct {
	customer CustomerInput
	delivery DeliveryInput
	items    []OrderItemInput
	claimed  int64
	currency string
}

// CreateOrder validates and prices the request, then persists customer, delivery and order in a
// single unit of work. A store conflict rolls everything back and the unit is retried once with
// a fresh reference.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	draft, err := s.normaliseOrder(cmd)
	if err != nil {
		return domain.Order{}, err
	}

	var (
		order   domain.Order
		lastErr error
	)
	for attempt := 1; attempt <= createOrderAttempts; attempt++ {
		order, lastErr = s.createOnce(ctx, draft)
		if lastErr == nil {
			break
		}
		if !isRepositoryConflict(lastErr) {
			break
		}
		s.logger(ctx, "order.create.conflict", map[string]any{
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
	}
	if lastErr != nil {
		var validationErr *ValidationError
		if errors.As(lastErr, &validationErr) {
			return domain.Order{}, validationErr
		}
		return domain.Order{}, mapRepositoryError(lastErr)
	}

	s.logger(ctx, "order.created", map[string]any{
		"reference": order.Reference,
		"orderID":   order.ID,
		"amount":    order.AmountInCents,
	})
	s.events.emit(ctx, CheckoutEvent{
		Type:          EventOrderCreated,
		OrderID:       order.ID,
		Reference:     order.Reference,
		Status:        string(order.Status),
		AmountInCents: order.AmountInCents,
		Currency:      order.Currency,
		OccurredAt:    order.CreatedAt,
	})
	return order, nil
}

func (s *orderService) createOnce(ctx context.Context, draft orderDraft) (domain.Order, error) {
	now := s.clock()
	var order domain.Order
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		items, err := s.priceItems(ctx, draft.items, true)
		if err != nil {
			return err
		}

		check := s.calculator.ValidateAmount(domain.PriceLinesFromItems(items), draft.claimed, s.tolerance)
		if !check.Valid {
			return &ValidationError{
				Message: "amount does not match calculated total",
				Fields:  []string{"amount_in_cents"},
				Details: map[string]any{
					"calculated": check.Calculated,
					"claimed":    check.Claimed,
					"difference": check.Difference,
					"breakdown":  breakdownDetails(check.Breakdown),
				},
			}
		}

		customer, err := s.customers.UpsertByEmail(ctx, domain.Customer{
			ID:        customerIDPrefix + s.newID(),
			Email:     draft.customer.Email,
			FullName:  draft.customer.FullName,
			Phone:     draft.customer.Phone,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		delivery := domain.Delivery{
			ID:         deliveryIDPrefix + s.newID(),
			Address:    draft.delivery.Address,
			City:       draft.delivery.City,
			Region:     draft.delivery.Region,
			PostalCode: draft.delivery.PostalCode,
			Country:    draft.delivery.Country,
			Status:     domain.DeliveryStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.deliveries.Insert(ctx, delivery); err != nil {
			return err
		}

		order = domain.Order{
			ID:            orderIDPrefix + s.newID(),
			Reference:     s.newReference(now),
			CustomerID:    customer.ID,
			DeliveryID:    delivery.ID,
			AmountInCents: check.Calculated,
			Currency:      draft.currency,
			Status:        domain.OrderStatusPending,
			Items:         items,
			Breakdown:     check.Breakdown,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return s.orders.Insert(ctx, order)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Quote prices the items against the catalog without persisting anything.
func (s *orderService) Quote(ctx context.Context, items []OrderItemInput) (Quote, error) {
	var fields fieldErrors
	normalised := normaliseItems(items, &fields)
	if err := fields.err("invalid quote request"); err != nil {
		return Quote{}, err
	}
	priced, err := s.priceItems(ctx, normalised, false)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return Quote{}, validationErr
		}
		return Quote{}, mapRepositoryError(err)
	}
	return Quote{
		Items:     priced,
		Breakdown: s.calculator.Calculate(domain.PriceLinesFromItems(priced)),
		Currency:  s.currency,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, reference string) (domain.Order, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.Order{}, &ValidationError{Message: "reference is required", Fields: []string{"reference"}}
	}
	order, err := s.orders.FindByReference(ctx, reference)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrderByID(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, &ValidationError{Message: "order id is required", Fields: []string{"id"}}
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	return order, nil
}

// GetOrderDetails loads the order and resolves its weak references. Missing references are
// left nil.
func (s *orderService) GetOrderDetails(ctx context.Context, reference string) (OrderDetails, error) {
	order, err := s.GetOrder(ctx, reference)
	if err != nil {
		return OrderDetails{}, err
	}
	details := OrderDetails{Order: order}

	if order.CustomerID != "" {
		customer, err := s.customers.FindByID(ctx, order.CustomerID)
		if err != nil && !isRepositoryNotFound(err) {
			return OrderDetails{}, mapRepositoryError(err)
		}
		if err == nil {
			details.Customer = &customer
		}
	}
	if order.DeliveryID != "" {
		delivery, err := s.deliveries.FindByID(ctx, order.DeliveryID)
		if err != nil && !isRepositoryNotFound(err) {
			return OrderDetails{}, mapRepositoryError(err)
		}
		if err == nil {
			details.Delivery = &delivery
		}
	}
	if order.TransactionID != "" && s.transactions != nil {
		txn, err := s.transactions.FindByID(ctx, order.TransactionID)
		if err != nil && !isRepositoryNotFound(err) {
			return OrderDetails{}, mapRepositoryError(err)
		}
		if err == nil {
			details.Transaction = &txn
		}
	}
	return details, nil
}

func (s *orderService) normaliseOrder(cmd CreateOrderCommand) (orderDraft, error) {
	var fields fieldErrors
	draft := orderDraft{
		customer: CustomerInput{
			Email:    textutil.NormalizeEmail(cmd.Customer.Email),
			FullName: textutil.CleanText(cmd.Customer.FullName),
			Phone:    textutil.CleanText(cmd.Customer.Phone),
		},
		delivery: DeliveryInput{
			Address:    textutil.CleanText(cmd.Delivery.Address),
			City:       textutil.CleanText(cmd.Delivery.City),
			Region:     textutil.CleanText(cmd.Delivery.Region),
			PostalCode: textutil.CleanText(cmd.Delivery.PostalCode),
			Country:    strings.ToUpper(textutil.CleanText(cmd.Delivery.Country)),
		},
		claimed:  cmd.ClaimedAmountCents,
		currency: strings.ToUpper(strings.TrimSpace(cmd.Currency)),
	}

	if !textutil.IsEmail(draft.customer.Email) {
		fields.add("customer.email")
	}
	required := map[string]string{
		"customer.full_name": draft.customer.FullName,
		"customer.phone":     draft.customer.Phone,
		"delivery.address":   draft.delivery.Address,
		"delivery.city":      draft.delivery.City,
		"delivery.region":    draft.delivery.Region,
	}
	for key, value := range required {
		if value == "" {
			fields.add(key)
		}
	}
	draft.items = normaliseItems(cmd.Items, &fields)

	if draft.currency == "" {
		draft.currency = s.currency
	} else if draft.currency != s.currency {
		fields.add("currency")
	}
	if cmd.PaymentMethod != nil {
		method := cmd.PaymentMethod.toGateway()
		if err := method.Validate(); err != nil {
			fields.add("payment_method")
		}
	}

	if err := fields.err("invalid order request"); err != nil {
		return orderDraft{}, err
	}
	return draft, nil
}

// normaliseItems merges duplicate product lines and records invalid entries.
func normaliseItems(items []OrderItemInput, fields *fieldErrors) []OrderItemInput {
	if len(items) == 0 {
		fields.add("items")
		return nil
	}
	merged := make([]OrderItemInput, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			fields.add(fmt.Sprintf("items[%d].product_id", i))
			continue
		}
		if item.Quantity <= 0 {
			fields.add(fmt.Sprintf("items[%d].quantity", i))
			continue
		}
		if pos, ok := index[id]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, OrderItemInput{ProductID: id, Quantity: item.Quantity})
	}
	return merged
}

// priceItems resolves catalog prices. Unknown or inactive products, and quantities above the
// available stock when checkStock is set, produce a validation error listing the product ids.
func (s *orderService) priceItems(ctx context.Context, items []OrderItemInput, checkStock bool) ([]domain.OrderItem, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var unknown, outOfStock []string
	priced := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		product, ok := catalog[item.ProductID]
		if !ok || !product.Active {
			unknown = append(unknown, item.ProductID)
			continue
		}
		if checkStock && product.Stock < item.Quantity {
			outOfStock = append(outOfStock, item.ProductID)
			continue
		}
		priced = append(priced, domain.OrderItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: product.PriceCents,
		})
	}
	if len(unknown) == 0 && len(outOfStock) == 0 {
		return priced, nil
	}

	details := map[string]any{}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		details["unknown_products"] = unknown
	}
	if len(outOfStock) > 0 {
		sort.Strings(outOfStock)
		details["insufficient_stock"] = outOfStock
	}
	return nil, &ValidationError{Message: "items cannot be fulfilled", Fields: []string{"items"}, Details: details}
}

func breakdownDetails(b domain.PriceBreakdown) map[string]any {
	return map[string]any{
		"subtotal": b.SubtotalCents,
		"shipping": b.ShippingCents,
		"tax":      b.TaxCents,
		"total":    b.TotalCents,
	}
}
