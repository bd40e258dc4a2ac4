package services

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/domain"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/payments"
	"github.com/Asimpl3-Hero/SPA-E-commerce-sub001/internal/repositories"
)

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id" + string(rune('A'+n-1))
	}
}

type txMarker struct{}

// memStore is an in-memory registry. RunInTx serialises units and restores a snapshot when fn
// fails, which mirrors the rollback behaviour of the real stores.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products   map[string]domain.Product
	customers  map[string]domain.Customer
	emails     map[string]string
	deliveries map[string]domain.Delivery
	orders     map[string]domain.Order
	references map[string]string
	txns       map[string]domain.Transaction

	decrementCalls  int
	deliveryUpdates int
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{
		products:   map[string]domain.Product{},
		customers:  map[string]domain.Customer{},
		emails:     map[string]string{},
		deliveries: map[string]domain.Delivery{},
		orders:     map[string]domain.Order{},
		references: map[string]string{},
		txns:       map[string]domain.Transaction{},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

type memSnapshot struct {
	products   map[string]domain.Product
	customers  map[string]domain.Customer
	emails     map[string]string
	deliveries map[string]domain.Delivery
	orders     map[string]domain.Order
	references map[string]string
	txns       map[string]domain.Transaction
	decrements int
	updates    int
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		products:   cloneMap(s.products),
		customers:  cloneMap(s.customers),
		emails:     cloneMap(s.emails),
		deliveries: cloneMap(s.deliveries),
		orders:     cloneMap(s.orders),
		references: cloneMap(s.references),
		txns:       cloneMap(s.txns),
		decrements: s.decrementCalls,
		updates:    s.deliveryUpdates,
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.customers = snap.customers
	s.emails = snap.emails
	s.deliveries = snap.deliveries
	s.orders = snap.orders
	s.references = snap.references
	s.txns = snap.txns
	s.decrementCalls = snap.decrements
	s.deliveryUpdates = snap.updates
}

func (s *memStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) Products() repositories.ProductRepository         { return memProducts{s} }
func (s *memStore) Customers() repositories.CustomerRepository       { return memCustomers{s} }
func (s *memStore) Deliveries() repositories.DeliveryRepository      { return memDeliveries{s} }
func (s *memStore) Orders() repositories.OrderRepository             { return memOrders{s} }
func (s *memStore) Transactions() repositories.TransactionRepository { return memTransactions{s} }

func notFound(op string) error {
	return repositories.NewStoreError(op, repositories.StoreErrorNotFound, "", nil)
}

func conflict(op string) error {
	return repositories.NewStoreError(op, repositories.StoreErrorConflict, "", nil)
}

type memProducts struct{ s *memStore }

func (r memProducts) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := r.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r memProducts) DecrementStock(_ context.Context, productID string, quantity int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok || p.Stock < quantity {
		return conflict("products.decrement")
	}
	p.Stock -= quantity
	r.s.products[productID] = p
	r.s.decrementCalls++
	return nil
}

type memCustomers struct{ s *memStore }

func (r memCustomers) UpsertByEmail(_ context.Context, c domain.Customer) (domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if id, ok := r.s.emails[c.Email]; ok {
		existing := r.s.customers[id]
		existing.FullName = c.FullName
		existing.Phone = c.Phone
		existing.UpdatedAt = c.UpdatedAt
		r.s.customers[id] = existing
		return existing, nil
	}
	r.s.emails[c.Email] = c.ID
	r.s.customers[c.ID] = c
	return c, nil
}

func (r memCustomers) FindByID(_ context.Context, id string) (domain.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[id]
	if !ok {
		return domain.Customer{}, notFound("customers.get")
	}
	return c, nil
}

type memDeliveries struct{ s *memStore }

func (r memDeliveries) Insert(_ context.Context, d domain.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = d
	return nil
}

func (r memDeliveries) Update(_ context.Context, d domain.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = d
	r.s.deliveryUpdates++
	return nil
}

func (r memDeliveries) FindByID(_ context.Context, id string) (domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return domain.Delivery{}, notFound("deliveries.get")
	}
	return d, nil
}

type memOrders struct{ s *memStore }

func (r memOrders) Insert(_ context.Context, o domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, taken := r.s.references[o.Reference]; taken {
		return conflict("orders.insert")
	}
	r.s.references[o.Reference] = o.ID
	r.s.orders[o.ID] = o
	return nil
}

func (r memOrders) Update(_ context.Context, o domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[o.ID] = o
	return nil
}

func (r memOrders) FindByID(_ context.Context, id string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return domain.Order{}, notFound("orders.get")
	}
	return o, nil
}

func (r memOrders) FindByReference(_ context.Context, ref string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.references[ref]
	if !ok {
		return domain.Order{}, notFound("orders.get_reference")
	}
	return r.s.orders[id], nil
}

type memTransactions struct{ s *memStore }

func (r memTransactions) Insert(_ context.Context, t domain.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.txns[t.ID]; exists {
		return conflict("transactions.insert")
	}
	r.s.txns[t.ID] = t
	return nil
}

func (r memTransactions) FindByID(_ context.Context, id string) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txns[id]
	if !ok {
		return domain.Transaction{}, notFound("transactions.get")
	}
	return t, nil
}

func (r memTransactions) FindByExternalID(_ context.Context, provider, externalID string) (domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txns {
		if t.Provider == provider && t.ExternalID == externalID {
			return t, nil
		}
	}
	return domain.Transaction{}, notFound("transactions.get_external")
}

func (r memTransactions) UpdateStatus(_ context.Context, t domain.Transaction, expected domain.TransactionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.txns[t.ID]
	if !ok {
		return notFound("transactions.update_status")
	}
	if current.Status != expected {
		return conflict("transactions.update_status")
	}
	r.s.txns[t.ID] = t
	return nil
}

func (r memTransactions) ListNonTerminal(_ context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Transaction
	for _, t := range r.s.txns {
		if !t.Status.IsTerminal() && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) order(ref string) domain.Order {
	o, _ := memOrders{s}.FindByReference(context.Background(), ref)
	return o
}

func (s *memStore) txn(id string) domain.Transaction {
	t, _ := memTransactions{s}.FindByID(context.Background(), id)
	return t
}

func (s *memStore) delivery(id string) domain.Delivery {
	d, _ := memDeliveries{s}.FindByID(context.Background(), id)
	return d
}

func (s *memStore) stock(productID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

func (s *memStore) counts() (decrements, deliveryUpdates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementCalls, s.deliveryUpdates
}

// scriptedGateway replays canned results. getResults is consumed in order; the last entry repeats.
type scriptedGateway struct {
	mu         sync.Mutex
	name       string
	token      payments.Result[payments.AcceptanceToken]
	create     payments.Result[payments.GatewayTransaction]
	getResults []payments.Result[payments.GatewayTransaction]
	validSig   bool
	event      payments.WebhookEvent
	parseErr   error

	createCalls int
	getCalls    int
	lastParams  payments.CreateTransactionParams
}

func newScriptedGateway() *scriptedGateway {
	return &scriptedGateway{
		name:     "wompi",
		token:    payments.Ok(payments.AcceptanceToken{Token: "acceptance"}),
		validSig: true,
	}
}

func (g *scriptedGateway) Name() string { return g.name }

func (g *scriptedGateway) GetAcceptanceToken(context.Context) payments.Result[payments.AcceptanceToken] {
	return g.token
}

func (g *scriptedGateway) CreateTransaction(_ context.Context, p payments.CreateTransactionParams) payments.Result[payments.GatewayTransaction] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastParams = p
	return g.create
}

func (g *scriptedGateway) GetTransaction(context.Context, string) payments.Result[payments.GatewayTransaction] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if len(g.getResults) == 0 {
		return payments.Fail[payments.GatewayTransaction](payments.ErrorKindNetwork, "no script")
	}
	idx := g.getCalls - 1
	if idx >= len(g.getResults) {
		idx = len(g.getResults) - 1
	}
	return g.getResults[idx]
}

func (g *scriptedGateway) ValidateWebhookSignature([]byte, string, string) bool { return g.validSig }

func (g *scriptedGateway) ParseWebhookEvent([]byte) (payments.WebhookEvent, error) {
	return g.event, g.parseErr
}

func (g *scriptedGateway) GenerateSignature(reference string, amount int64, currency string) string {
	return payments.IntegritySignature(reference, amount, currency, "test-secret")
}

func (g *scriptedGateway) calls() (create, get int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.getCalls
}

type resolverFunc func(name string) (payments.Gateway, error)

func (f resolverFunc) Gateway(name string) (payments.Gateway, error) { return f(name) }

func singleGateway(gw payments.Gateway) GatewayResolver {
	return resolverFunc(func(name string) (payments.Gateway, error) {
		if name == "" || name == gw.Name() {
			return gw, nil
		}
		return nil, payments.ErrUnsupportedGateway
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []CheckoutEvent
}

func (p *recordingPublisher) PublishCheckoutEvent(_ context.Context, evt CheckoutEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// seedPayableOrder stores a pending order with its customer and delivery.
func seedPayableOrder(s *memStore, ref string, amount int64, items ...domain.OrderItem) domain.Order {
	customer := domain.Customer{ID: "cus_1", Email: "ana@example.com", FullName: "Ana", Phone: "3001234567"}
	delivery := domain.Delivery{ID: "dlv_" + ref, Address: "Calle 1", City: "Bogota", Region: "DC", Country: "CO", Status: domain.DeliveryStatusPending}
	order := domain.Order{
		ID: "ord_" + ref, Reference: ref, CustomerID: customer.ID, DeliveryID: delivery.ID,
		AmountInCents: amount, Currency: "COP", Status: domain.OrderStatusPending, Items: items,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
	s.emails[customer.Email] = customer.ID
	s.deliveries[delivery.ID] = delivery
	s.orders[order.ID] = order
	s.references[ref] = order.ID
	return order
}

// seedTransaction stores a transaction for an order seeded with seedPayableOrder.
func seedTransaction(s *memStore, order domain.Order, id, externalID string, status domain.TransactionStatus, createdAt time.Time) domain.Transaction {
	txn := domain.Transaction{
		ID: id, ExternalID: externalID, Provider: "wompi", Reference: order.Reference, OrderID: order.ID,
		AmountInCents: order.AmountInCents, Currency: order.Currency, Status: status,
		PaymentMethodType: domain.PaymentMethodCard, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns[id] = txn
	o := s.orders[order.ID]
	o.TransactionID = id
	o.Status = domain.OrderStatusFromGateway(string(status))
	s.orders[order.ID] = o
	return txn
}
