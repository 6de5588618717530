package services

import (
	"context"
	"sync"

	"checkout-service/gateways"
	"checkout-service/models"
	"checkout-service/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type stockKey struct {
	productID uuid.UUID
	size      string
}

// fakeStore backs both OrderRepository and ProductRepository in memory so
// checkout and stock share one lock, like the real transaction.
type fakeStore struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*models.Order
	products      map[uuid.UUID]*models.Product
	stock         map[stockKey]int
	duplicateErrs int
	createErr     error
	writes        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[uuid.UUID]*models.Order),
		products: make(map[uuid.UUID]*models.Product),
		stock:    make(map[stockKey]int),
	}
}

func (f *fakeStore) addProduct(name string, price int, sizes map[string]int) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.products[id] = &models.Product{ID: id, Name: name, Price: price, Colors: "Black, White"}
	for size, n := range sizes {
		f.stock[stockKey{id, size}] = n
	}
	return id
}

func (f *fakeStore) stockOf(id uuid.UUID, size string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[stockKey{id, size}]
}

func (f *fakeStore) putOrder(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o.Recalculate()
	f.orders[o.ID] = cloneOrder(o)
}

func (f *fakeStore) order(id uuid.UUID) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneOrder(f.orders[id])
}

func cloneOrder(o *models.Order) *models.Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentDetails.PaidAt != nil {
		t := *o.PaymentDetails.PaidAt
		c.PaymentDetails.PaidAt = &t
	}
	return &c
}

func (f *fakeStore) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*models.Product)
	for _, id := range ids {
		p, ok := f.products[id]
		if !ok {
			continue
		}
		cp := *p
		cp.Sizes = nil
		for k, n := range f.stock {
			if k.productID == id {
				cp.Sizes = append(cp.Sizes, models.ProductSize{ProductID: id, Size: k.size, Stock: n})
			}
		}
		out[id] = &cp
	}
	return out, nil
}

func (f *fakeStore) CreateWithStock(ctx context.Context, order *models.Order, lines []repository.StockLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.duplicateErrs > 0 {
		f.duplicateErrs--
		return repository.ErrDuplicateOrderNumber
	}
	for _, l := range lines {
		if f.stock[stockKey{l.ProductID, l.Size}] < l.Quantity {
			return &repository.StockError{ProductID: l.ProductID, Size: l.Size, Requested: l.Quantity}
		}
	}
	for _, l := range lines {
		f.stock[stockKey{l.ProductID, l.Size}] -= l.Quantity
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.Recalculate()
	f.orders[order.ID] = cloneOrder(order)
	f.writes++
	return nil
}

func (f *fakeStore) FindByIDAndUserID(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	return f.find(func(o *models.Order) bool { return o.ID == orderID && o.UserID == userID })
}

func (f *fakeStore) FindByTransactionID(ctx context.Context, txn string) (*models.Order, error) {
	return f.find(func(o *models.Order) bool { return o.PaymentDetails.TransactionID == txn })
}

func (f *fakeStore) FindByGatewayOrderID(ctx context.Context, id string) (*models.Order, error) {
	return f.find(func(o *models.Order) bool { return o.PaymentDetails.GatewayOrderID == id })
}

func (f *fakeStore) find(match func(*models.Order) bool) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if match(o) {
			return cloneOrder(o), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) FindByUserID(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]models.Order, int64, error) {
	return f.list(func(o *models.Order) bool {
		return o.UserID == userID && (status == "" || status == "all" || o.Status == status)
	}, page, limit)
}

func (f *fakeStore) FindAll(ctx context.Context, status string, page, limit int) ([]models.Order, int64, error) {
	return f.list(func(o *models.Order) bool {
		return status == "" || status == "all" || o.Status == status
	}, page, limit)
}

func (f *fakeStore) list(match func(*models.Order) bool, page, limit int) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []models.Order
	for _, o := range f.orders {
		if match(o) {
			all = append(all, *cloneOrder(o))
		}
	}
	total := int64(len(all))
	start := (page - 1) * limit
	if start >= len(all) {
		return []models.Order{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *fakeStore) Mutate(ctx context.Context, orderID uuid.UUID, fn repository.OrderMutation) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	o := cloneOrder(stored)
	changed, err := fn(o)
	if err != nil {
		return nil, err
	}
	if changed {
		o.Recalculate()
		f.orders[orderID] = cloneOrder(o)
		f.writes++
		return o, nil
	}
	return cloneOrder(stored), nil
}

type fakeCarts struct {
	mu       sync.Mutex
	carts    map[string]*models.Cart
	clearErr error
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string]*models.Cart)}
}

func (f *fakeCarts) put(userID string, items ...models.CartItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.Cart{UserID: userID, Items: items}
	c.Recalculate()
	f.carts[userID] = c
}

func (f *fakeCarts) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.Items = append([]models.CartItem(nil), c.Items...)
	return &cp, nil
}

func (f *fakeCarts) ClearCart(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	if c, ok := f.carts[userID]; ok {
		c.Items = []models.CartItem{}
		c.Recalculate()
	}
	return nil
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, orderID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[orderID] {
		return func() {}, false, nil
	}
	l.held[orderID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, orderID)
	}, true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event models.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeGateway struct {
	name        string
	methods     []string
	initiateRes *gateways.InitiateResult
	initiateErr error
	verifyRes   *gateways.VerifyResult
	verifyErr   error
	webhookEv   *gateways.WebhookEvent
	webhookErr  error
	badSig      bool

	mu          sync.Mutex
	initiated   []gateways.InitiateRequest
	verifyCalls int
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) Supports(method string) bool {
	for _, m := range g.methods {
		if m == method {
			return true
		}
	}
	return false
}

func (g *fakeGateway) Initiate(ctx context.Context, req gateways.InitiateRequest) (*gateways.InitiateResult, error) {
	g.mu.Lock()
	g.initiated = append(g.initiated, req)
	g.mu.Unlock()
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	return g.initiateRes, nil
}

func (g *fakeGateway) Verify(ctx context.Context, req gateways.VerifyRequest) (*gateways.VerifyResult, error) {
	g.mu.Lock()
	g.verifyCalls++
	g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	return g.verifyRes, nil
}

func (g *fakeGateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return !g.badSig
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*gateways.WebhookEvent, error) {
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	return g.webhookEv, nil
}
