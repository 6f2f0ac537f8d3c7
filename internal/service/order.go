package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/pkg/events"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

const OrderTopic = "order_events"

// MaxQuantity bounds a single line and the per-product total of an order.
const MaxQuantity = math.MaxInt32

type OrderService struct {
	Repo            *repo.GormRepo
	Events          events.Publisher
	Pricing         PricingPolicy
	RestockOnCancel bool
}

type orderLine struct {
	productID string
	quantity  int
	price     decimal.Decimal
}

type guest struct {
	email string
	name  string
}

// CreateOrder places an order from the storefront checkout form. Stock is
// checked and decremented in the same transaction that inserts the order.
func (s *OrderService) CreateOrder(ctx context.Context, req transport.CreateOrderRequest, who Requester) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, invalid("cart items required")
	}
	if req.ShippingInfo == nil {
		return nil, invalid("shipping information required")
	}

	info := req.ShippingInfo
	var g *guest
	if who.IsGuest() {
		email := strings.TrimSpace(info.Email)
		if email == "" {
			return nil, invalid("email required for guest orders")
		}
		g = &guest{email: email, name: strings.TrimSpace(info.FullName)}
	}

	lines, err := parseLines(req.Items)
	if err != nil {
		return nil, err
	}

	addr := models.Address{
		Street:     info.Address,
		City:       info.City,
		State:      info.State,
		PostalCode: info.ZipCode,
		Country:    info.Country,
	}

	order, err := s.place(ctx, lines, addr, who, g)
	if err != nil {
		return nil, err
	}

	if req.Total != nil && !req.Total.Equal(order.Total) {
		logging.FromContext(ctx).Warn("order_total_mismatch",
			"order_id", order.ID, "client_total", req.Total.String(), "stored_total", order.Total.String())
	}
	return order, nil
}

// Checkout is the simplified intake used by the single page checkout. It
// returns the order together with the amount that will be charged.
func (s *OrderService) Checkout(ctx context.Context, req transport.CheckoutRequest, who Requester) (*models.Order, decimal.Decimal, error) {
	if len(req.Items) == 0 {
		return nil, decimal.Zero, invalid("cart items required")
	}
	if req.ShippingAddress == nil {
		return nil, decimal.Zero, invalid("shipping information required")
	}

	var g *guest
	if who.IsGuest() {
		if req.GuestInfo == nil || strings.TrimSpace(req.GuestInfo.Email) == "" {
			return nil, decimal.Zero, invalid("email required for guest orders")
		}
		g = &guest{email: strings.TrimSpace(req.GuestInfo.Email), name: strings.TrimSpace(req.GuestInfo.Name)}
	}

	lines, err := parseLines(req.Items)
	if err != nil {
		return nil, decimal.Zero, err
	}

	a := req.ShippingAddress
	addr := models.Address{Street: a.Street, City: a.City, State: a.State, PostalCode: a.PostalCode, Country: a.Country}

	order, err := s.place(ctx, lines, addr, who, g)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return order, QuoteFor(order.Total).Total, nil
}

func parseLines(items []transport.OrderItemRequest) ([]orderLine, error) {
	lines := make([]orderLine, 0, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.Product())
		switch {
		case id == "":
			return nil, invalid("product id required")
		case it.Quantity <= 0:
			return nil, invalid("quantity must be greater than zero")
		case it.Quantity > MaxQuantity:
			return nil, invalid("quantity too large")
		case it.Price.IsNegative():
			return nil, invalid("price must not be negative")
		}
		lines = append(lines, orderLine{productID: id, quantity: it.Quantity, price: it.Price.Round(2)})
	}
	return lines, nil
}

// demand sums quantities per product and returns the ids sorted.
func demand(lines []orderLine) ([]string, map[string]int, error) {
	want := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.quantity > MaxQuantity-want[l.productID] {
			return nil, nil, invalid("quantity too large for product: " + l.productID)
		}
		want[l.productID] += l.quantity
	}
	ids := make([]string, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, want, nil
}

func (s *OrderService) place(ctx context.Context, lines []orderLine, addr models.Address, who Requester, g *guest) (*models.Order, error) {
	ids, want, err := demand(lines)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.Repo.InTx(ctx, func(tx *repo.GormRepo) error {
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}
		byID := make(map[string]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var missing, short []string
		for _, id := range ids {
			p, ok := byID[id]
			switch {
			case !ok:
				missing = append(missing, id)
			case p.Stock < want[id]:
				short = append(short, id)
			}
		}
		if len(missing) > 0 {
			return &ValidationError{Reason: "products not found", ProductIDs: missing}
		}
		if len(short) > 0 {
			return &ValidationError{Reason: "insufficient stock for products", ProductIDs: short}
		}

		if !who.IsGuest() {
			addr.UserID = &who.UserID
		}
		if err := tx.CreateAddress(ctx, &addr); err != nil {
			return fmt.Errorf("create address: %w", err)
		}

		order = &models.Order{
			AddressID:     addr.ID,
			Status:        models.OrderStatusPending,
			PaymentStatus: models.PaymentStatusPending,
			Items:         make([]models.OrderItem, 0, len(lines)),
		}
		if who.IsGuest() {
			order.GuestEmail = &g.email
			if g.name != "" {
				order.GuestName = &g.name
			}
		} else {
			order.UserID = &who.UserID
		}
		for _, l := range lines {
			price := l.price
			if s.Pricing == PricingCatalog {
				price = byID[l.productID].Price
			}
			order.Items = append(order.Items, models.OrderItem{
				ProductID: l.productID,
				Quantity:  l.quantity,
				Price:     price,
			})
		}
		order.Total = order.ItemTotal()

		if err := tx.CreateOrder(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, id := range ids {
			ok, err := tx.DecrementStock(ctx, id, want[id])
			if err != nil {
				return fmt.Errorf("decrement stock %s: %w", id, err)
			}
			if !ok {
				return &ValidationError{Reason: "insufficient stock for products", ProductIDs: []string{id}}
			}
		}

		if !who.IsGuest() {
			if err := tx.DeleteCart(ctx, who.UserID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order.ShippingAddress = &addr
	events.Publish(ctx, s.Events, OrderTopic, order.ID, orderEvent("order_created", order))
	return order, nil
}

// GetOrder returns an order to its owner. Guest orders are readable by
// anyone presenting the guest email. Admins see every order.
func (s *OrderService) GetOrder(ctx context.Context, id string, who Requester, guestEmail string) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound("order", err)
	}
	if who.Admin {
		return order, nil
	}
	if order.IsGuest() {
		if order.GuestEmail != nil && guestEmail != "" && strings.EqualFold(*order.GuestEmail, guestEmail) {
			return order, nil
		}
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if *order.UserID != who.UserID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repo.OrderFilter) (int64, []models.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return 0, nil, invalid("unknown order status")
	}
	return s.Repo.ListOrders(ctx, f)
}

var nextStatus = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
}

func canMove(from, to models.OrderStatus) bool {
	for _, s := range nextStatus[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateOrderStatus advances fulfilment one step at a time. Setting the
// current status again is a no-op.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, invalid("unknown order status")
	}

	var changed bool
	err := s.Repo.InTx(ctx, func(tx *repo.GormRepo) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return notFound("order", err)
		}
		if order.Status == to {
			return nil
		}
		if !canMove(order.Status, to) {
			return fmt.Errorf("%w: cannot move order from %s to %s", ErrConflict, order.Status, to)
		}

		ok, err := tx.SetOrderStatus(ctx, id, order.Status, to)
		if err != nil {
			return fmt.Errorf("set order status: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: order status changed concurrently", ErrConflict)
		}

		if to == models.OrderStatusCancelled && s.RestockOnCancel {
			for _, it := range order.Items {
				if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("restock %s: %w", it.ProductID, err)
				}
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		events.Publish(ctx, s.Events, OrderTopic, order.ID, orderEvent("order_status_changed", order))
	}
	return order, nil
}

func orderEvent(kind string, o *models.Order) transport.OrderEvent {
	ev := transport.OrderEvent{
		Type:          kind,
		OrderID:       o.ID,
		Total:         o.Total,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
	}
	if o.UserID != nil {
		ev.UserID = *o.UserID
	}
	if o.GuestEmail != nil {
		ev.GuestEmail = *o.GuestEmail
	}
	return ev
}
