package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-shop-orders/internal/inventory"
)

const defaultRejectNote = "Not enough payment"

// ServiceDeps wires the collaborators of the lifecycle service.
type ServiceDeps struct {
	Store    Store
	Ledger   inventory.Ledger
	Checkout CheckoutOpener
	Events   EventPublisher
	Cache    StatusCache
	Logger   *zap.Logger

	DeliveryCharge *decimal.Decimal
	Clock          func() time.Time
	NewOrderID     func() string
	NewTransaction func() string
}

// Service owns the order state machine. All stock movements go through the
// ledger inside the same store transaction as the status change.
type Service struct {
	store    Store
	ledger   inventory.Ledger
	checkout CheckoutOpener
	events   EventPublisher
	cache    StatusCache
	logger   *zap.Logger

	deliveryCharge decimal.Decimal
	clock          func() time.Time
	newOrderID     func() string
	newTransaction func() string

	statusLoads singleflight.Group
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("orders service: store is required")
	}
	s := &Service{
		store:          deps.Store,
		ledger:         deps.Ledger,
		checkout:       deps.Checkout,
		events:         deps.Events,
		cache:          deps.Cache,
		logger:         deps.Logger,
		deliveryCharge: DefaultDeliveryCharge,
		clock:          deps.Clock,
		newOrderID:     deps.NewOrderID,
		newTransaction: deps.NewTransaction,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.ledger.Logger == nil {
		s.ledger.Logger = s.logger
	}
	if deps.DeliveryCharge != nil {
		if deps.DeliveryCharge.IsNegative() {
			return nil, errors.New("orders service: delivery charge must not be negative")
		}
		s.deliveryCharge = *deps.DeliveryCharge
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newOrderID == nil {
		s.newOrderID = func() string { return ulid.Make().String() }
	}
	if s.newTransaction == nil {
		s.newTransaction = uuid.NewString
	}
	return s, nil
}

// CreateOrderInput is a create request after the caller has been authenticated.
type CreateOrderInput struct {
	Buyer          Buyer
	Items          []ItemInput
	Method         Method
	Address        Address
	DeliveryCharge *decimal.Decimal
	Note           string
}

// CreateOrderResult carries the stored order. CheckoutURL is only set for online
// orders whose payment session could be opened.
type CreateOrderResult struct {
	Order       Order
	CheckoutURL *string
}

func (in CreateOrderInput) validate() error {
	if strings.TrimSpace(in.Buyer.ID) == "" {
		return fmt.Errorf("%w: buyer is required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: no products in order", ErrInvalidInput)
	}
	for _, it := range in.Items {
		if strings.TrimSpace(it.ProductID) == "" {
			return fmt.Errorf("%w: product id is required", ErrInvalidInput)
		}
		if it.Qty <= 0 {
			return fmt.Errorf("%w: invalid count for product %s", ErrInvalidInput, it.ProductID)
		}
	}
	if !in.Method.Valid() {
		return fmt.Errorf("%w: orderMethod must be cash or online", ErrInvalidInput)
	}
	if missing := in.Address.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// CreateOrder prices the order from stored products, persists it and takes its
// units out of stock in one transaction. Online orders then get a payment session;
// a session that cannot be opened leaves the order pending with no URL.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	in.Items = normaliseItems(in.Items)
	if err := in.validate(); err != nil {
		return CreateOrderResult{}, err
	}
	charge := s.deliveryCharge
	if in.DeliveryCharge != nil {
		charge = *in.DeliveryCharge
	}

	ids := uniqueProductIDs(in.Items)
	now := s.clock().UTC()
	var (
		order    Order
		products []Product
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		found, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		products = products[:0]
		for _, id := range ids {
			p, ok := found[id]
			if !ok {
				return fmt.Errorf("%w: %s", ErrProductNotFound, id)
			}
			if p.Category == nil {
				return fmt.Errorf("%w: product %s category %s", ErrCategoryNotFound, id, p.CategoryID)
			}
			products = append(products, p)
		}

		quote, err := Price(in.Items, found, &charge)
		if err != nil {
			return err
		}

		order = Order{
			ID:             s.newOrderID(),
			LineItems:      quote.Items,
			BuyerID:        in.Buyer.ID,
			Method:         in.Method,
			DeliveryCharge: quote.DeliveryCharge,
			ProductPrice:   quote.ProductPrice,
			TotalPrice:     quote.TotalPrice,
			TransactionID:  s.newTransaction(),
			Status:         in.Method.InitialStatus(),
			Note:           strings.TrimSpace(in.Note),
			Address:        in.Address,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return s.applyLedger(ctx, tx, order, inventory.Decrement)
	})
	if err != nil {
		return CreateOrderResult{}, err
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("transaction_id", order.TransactionID),
		zap.String("method", string(order.Method)),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)
	s.publish(ctx, Event{Type: EventOrderCreated, OrderID: order.ID, Payload: OrderCreatedPayload{
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		BuyerID:       order.BuyerID,
		Method:        order.Method,
		Status:        order.Status,
		Items:         toItemQty(order.LineItems),
		TotalPrice:    order.TotalPrice.StringFixed(2),
		UpdatedAt:     order.UpdatedAt,
	}})
	s.cacheStatus(ctx, order)

	res := CreateOrderResult{Order: order}
	if order.Method != MethodOnline {
		return res, nil
	}

	url := s.openSession(ctx, order, products, in.Buyer)
	if err := s.store.SetPaymentURL(ctx, order.ID, url); err != nil {
		// The order exists and holds stock; the buyer can still be sent the URL.
		s.logger.Error("store payment url", zap.String("order_id", order.ID), zap.Error(err))
	}
	res.Order.PaymentURL = url
	res.CheckoutURL = url
	s.publish(ctx, Event{Type: EventPaymentSession, OrderID: order.ID, Payload: PaymentSessionPayload{
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		Opened:        url != nil,
	}})
	return res, nil
}

func (s *Service) openSession(ctx context.Context, o Order, products []Product, b Buyer) *string {
	if s.checkout == nil {
		s.logger.Warn("no payment gateway configured", zap.String("order_id", o.ID))
		return nil
	}
	url, err := s.checkout.OpenSession(ctx, o, products, b)
	if err != nil || url == "" {
		s.logger.Warn("payment session not opened",
			zap.String("order_id", o.ID),
			zap.String("transaction_id", o.TransactionID),
			zap.Error(err),
		)
		return nil
	}
	return &url
}

// AcceptOrder marks an order accepted. Stock stays taken.
func (s *Service) AcceptOrder(ctx context.Context, id string) (Order, error) {
	return s.transition(ctx, byID(id), TriggerAdminAccept, "")
}

// RejectOrder declines an order and gives its units back to stock.
func (s *Service) RejectOrder(ctx context.Context, id, note string) (Order, error) {
	if strings.TrimSpace(note) == "" {
		note = defaultRejectNote
	}
	return s.transition(ctx, byID(id), TriggerAdminReject, note)
}

// ApplyPaymentOutcome moves the order identified by transactionID according to a
// gateway callback.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, transactionID string, t Trigger) (Order, error) {
	switch t {
	case TriggerPaymentSuccess, TriggerPaymentFail, TriggerPaymentCancel:
	default:
		return Order{}, fmt.Errorf("%w: %q is not a payment outcome", ErrInvalidInput, t)
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return Order{}, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	return s.transition(ctx, func(ctx context.Context, tx Tx) (Order, error) {
		return tx.LockOrderByTransaction(ctx, transactionID)
	}, t, "")
}

type orderFinder func(ctx context.Context, tx Tx) (Order, error)

func byID(id string) orderFinder {
	return func(ctx context.Context, tx Tx) (Order, error) {
		return tx.LockOrder(ctx, id)
	}
}

func (s *Service) transition(ctx context.Context, find orderFinder, t Trigger, note string) (Order, error) {
	var (
		order     Order
		from      Status
		restocked bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := find(ctx, tx)
		if err != nil {
			return err
		}
		to, ok := Next(o.Status, t)
		if !ok && o.Status.Terminal() {
			return fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, o.ID, o.Status)
		}
		if !ok {
			return fmt.Errorf("%w: order %s is %s, cannot apply %s", ErrInvalidTransition, o.ID, o.Status, t)
		}
		if to.Restocks() && o.Status.HoldsStock() {
			if err := s.applyLedger(ctx, tx, o, inventory.Increment); err != nil {
				return err
			}
			restocked = true
		}
		at := s.clock().UTC()
		if err := tx.UpdateStatus(ctx, o.ID, to, note, at); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		from = o.Status
		o.Status = to
		if note != "" {
			o.Note = note
		}
		o.UpdatedAt = at
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)),
		zap.String("trigger", string(t)),
		zap.Bool("restocked", restocked),
	)
	s.publish(ctx, Event{Type: EventOrderStatusChanged, OrderID: order.ID, Payload: OrderStatusChangedPayload{
		OrderID:       order.ID,
		TransactionID: order.TransactionID,
		BuyerID:       order.BuyerID,
		From:          from,
		To:            order.Status,
		Trigger:       t,
		Restocked:     restocked,
		Note:          note,
		UpdatedAt:     order.UpdatedAt,
	}})
	s.cacheStatus(ctx, order)
	return order, nil
}

// DeleteOrder removes an order that is not accepted. Units are given back only
// if the order still holds them.
func (s *Service) DeleteOrder(ctx context.Context, actor Actor, id string) error {
	var (
		deleted   Order
		restocked bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if !actor.canSee(o) {
			return ErrForbidden
		}
		if !o.Status.Deletable() {
			return fmt.Errorf("%w: order %s", ErrNotDeletable, o.ID)
		}
		if o.Status.HoldsStock() {
			if err := s.applyLedger(ctx, tx, o, inventory.Increment); err != nil {
				return err
			}
			restocked = true
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		deleted = o
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("order deleted",
		zap.String("order_id", deleted.ID),
		zap.String("status", string(deleted.Status)),
		zap.Bool("restocked", restocked),
	)
	tomb := StatusEntry{
		OrderID:   deleted.ID,
		BuyerID:   deleted.BuyerID,
		Status:    deleted.Status,
		Deleted:   true,
		UpdatedAt: s.clock().UTC(),
	}
	s.publish(ctx, Event{Type: EventOrderDeleted, OrderID: deleted.ID, Payload: OrderDeletedPayload{
		OrderID:   deleted.ID,
		BuyerID:   deleted.BuyerID,
		Status:    deleted.Status,
		Restocked: restocked,
		DeletedAt: tomb.UpdatedAt,
	}})
	s.setEntry(ctx, tomb)
	return nil
}

// GetOrder returns one order visible to actor.
func (s *Service) GetOrder(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !actor.canSee(o) {
		// Hide existence from other buyers.
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *Service) ListBuyerOrders(ctx context.Context, buyerID string) ([]Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.store.ListOrders(ctx, buyerID)
}

func (s *Service) ListAllOrders(ctx context.Context) ([]Order, error) {
	return s.store.ListOrders(ctx, "")
}

// GetOrderStatus serves from the status cache and falls back to the store.
func (s *Service) GetOrderStatus(ctx context.Context, actor Actor, id string) (StatusEntry, error) {
	if s.cache != nil {
		e, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("status cache read", zap.String("order_id", id), zap.Error(err))
		}
		if ok {
			if e.Deleted || (!actor.Admin && actor.ID != e.BuyerID) {
				return StatusEntry{}, ErrNotFound
			}
			return e, nil
		}
	}
	// Concurrent misses for one order share a single store read, which must not
	// depend on whichever caller started it.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := s.statusLoads.Do(id, func() (any, error) {
		o, err := s.store.GetOrder(loadCtx, id)
		if err != nil {
			return nil, err
		}
		// The cache keeps the later entry if a transition has written since.
		s.cacheStatus(loadCtx, o)
		return o, nil
	})
	if err != nil {
		return StatusEntry{}, err
	}
	o := v.(Order)
	if !actor.canSee(o) {
		return StatusEntry{}, ErrNotFound
	}
	return entryOf(o), nil
}

func (s *Service) applyLedger(ctx context.Context, tx Tx, o Order, dir inventory.Direction) error {
	err := s.ledger.Apply(ctx, tx, o.Lines(), dir)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, inventory.ErrProductNotFound):
		return fmt.Errorf("%w: %w", ErrProductNotFound, err)
	case errors.Is(err, inventory.ErrInvalidLines):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	default:
		return fmt.Errorf("ledger %s for order %s: %w", dir, o.ID, err)
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish event", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID), zap.Error(err))
	}
}

func (s *Service) cacheStatus(ctx context.Context, o Order) {
	s.setEntry(ctx, entryOf(o))
}

func (s *Service) setEntry(ctx context.Context, e StatusEntry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, e); err != nil {
		s.logger.Warn("status cache write", zap.String("order_id", e.OrderID), zap.Error(err))
	}
}

func entryOf(o Order) StatusEntry {
	return StatusEntry{OrderID: o.ID, BuyerID: o.BuyerID, Status: o.Status, UpdatedAt: o.UpdatedAt}
}

func normaliseItems(items []ItemInput) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, it := range items {
		it.ProductID = strings.TrimSpace(it.ProductID)
		out = append(out, it)
	}
	return out
}

func uniqueProductIDs(items []ItemInput) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		id := it.ProductID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
