package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/pkg/events"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

const (
	PaymentTopic = "payment_events"

	maxItemName = 127
)

type PaymentProvider interface {
	CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, providerOrderID, requestID string) (*paypal.Order, error)
	GetOrder(ctx context.Context, providerOrderID string) (*paypal.Order, error)
}

type PaymentService struct {
	Repo      *repo.GormRepo
	Provider  PaymentProvider
	Events    events.Publisher
	Currency  string
	BrandName string
	ReturnURL string
	CancelURL string
}

type CaptureResult struct {
	Status    string
	CaptureID string
}

// CreateProviderOrder opens a PayPal order for the stored order and returns
// its id. A failed payment may be retried through here.
func (s *PaymentService) CreateProviderOrder(ctx context.Context, orderID string, amount *decimal.Decimal, who Requester) (string, error) {
	l := logging.FromContext(ctx).With("svc", "payment.create_provider_order", "order_id", orderID)

	if strings.TrimSpace(orderID) == "" {
		return "", invalid("order id required")
	}

	order, err := s.authorized(ctx, orderID, who)
	if err != nil {
		return "", err
	}
	if order.PaymentStatus == models.PaymentStatusCompleted {
		return "", fmt.Errorf("%w: order is already paid", ErrConflict)
	}

	quote := QuoteFor(order.ItemTotal())
	if amount != nil && !amount.Equal(quote.Total) {
		l.Warn("client_amount_mismatch", "client_amount", amount.String(), "amount", quote.Total.StringFixed(2))
	}

	pp, err := s.Provider.CreateOrder(ctx, s.providerOrder(order, quote))
	if err != nil {
		return "", upstream("create provider order", err)
	}

	ok, err := s.Repo.AttachProviderOrder(ctx, order.ID, pp.ID)
	if err != nil {
		return "", fmt.Errorf("attach provider order: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: order is already paid", ErrConflict)
	}

	l.Info("provider_order_created", "provider_order_id", pp.ID, "amount", quote.Total.StringFixed(2))
	return pp.ID, nil
}

func (s *PaymentService) providerOrder(o *models.Order, q Quote) paypal.CreateOrderRequest {
	money := func(d decimal.Decimal) paypal.Money {
		return paypal.Money{CurrencyCode: s.Currency, Value: d.StringFixed(2)}
	}

	items := make([]paypal.Item, 0, len(o.Items))
	for _, it := range o.Items {
		name := "Item"
		if it.Product != nil && it.Product.Name != "" {
			name = it.Product.Name
		}
		if len(name) > maxItemName {
			name = name[:maxItemName]
		}
		items = append(items, paypal.Item{
			Name:       name,
			UnitAmount: money(it.Price),
			Quantity:   strconv.Itoa(it.Quantity),
			SKU:        it.ProductID,
		})
	}

	req := paypal.CreateOrderRequest{
		Intent: paypal.IntentCapture,
		PurchaseUnits: []paypal.PurchaseUnit{{
			ReferenceID: o.ID,
			CustomID:    o.ID,
			Description: "Order #" + o.ID,
			Amount: &paypal.Amount{
				CurrencyCode: s.Currency,
				Value:        q.Total.StringFixed(2),
				Breakdown: &paypal.Breakdown{
					ItemTotal: money(q.ItemTotal),
					Shipping:  money(q.Shipping),
					TaxTotal:  money(q.Tax),
				},
			},
			Items: items,
		}},
	}
	if s.BrandName != "" || s.ReturnURL != "" {
		req.ApplicationContext = &paypal.ApplicationContext{
			BrandName:  s.BrandName,
			ReturnURL:  s.ReturnURL,
			CancelURL:  s.CancelURL,
			UserAction: "PAY_NOW",
		}
	}
	return req
}

// CaptureProviderOrder captures an approved PayPal order and records the
// outcome. Capturing an already completed order returns the stored result.
func (s *PaymentService) CaptureProviderOrder(ctx context.Context, providerOrderID, orderID string, who Requester) (*CaptureResult, error) {
	l := logging.FromContext(ctx).With("svc", "payment.capture_provider_order", "order_id", orderID, "provider_order_id", providerOrderID)

	if strings.TrimSpace(providerOrderID) == "" || strings.TrimSpace(orderID) == "" {
		return nil, invalid("order id and provider order id required")
	}

	order, err := s.authorized(ctx, orderID, who)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusCompleted {
		return completed(order), nil
	}
	if order.ProviderOrderID != nil && *order.ProviderOrderID != providerOrderID {
		return nil, invalid("provider order does not belong to this order")
	}

	pp, err := s.Provider.CaptureOrder(ctx, providerOrderID, order.ID)
	var apiErr *paypal.APIError
	captured := errors.As(err, &apiErr) && apiErr.Issue == "ORDER_ALREADY_CAPTURED"
	if captured {
		l.Info("provider_order_already_captured")
		pp, err = s.Provider.GetOrder(ctx, providerOrderID)
	}
	if err != nil {
		// the provider already holds a capture; ReconcilePayment settles it later
		if captured {
			l.Warn("captured_order_lookup_failed", "error", err)
			return nil, upstream("get captured provider order", err)
		}
		if errors.As(err, &apiErr) {
			if _, uerr := s.Repo.SetPaymentStatus(ctx, order.ID, models.PaymentStatusFailed, nil); uerr != nil {
				l.Error("mark_payment_failed_error", "error", uerr)
			} else {
				s.publish(ctx, order, models.PaymentStatusFailed)
			}
			l.Warn("capture_rejected", "status", apiErr.StatusCode, "name", apiErr.Name, "issue", apiErr.Issue, "debug_id", apiErr.DebugID)
		}
		return nil, upstream("capture provider order", err)
	}

	return s.apply(ctx, order, pp, true)
}

// ReconcilePayment re-reads the provider order and applies its state, for
// captures whose local write never happened.
func (s *PaymentService) ReconcilePayment(ctx context.Context, orderID string) (*CaptureResult, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound("order", err)
	}
	if order.PaymentStatus == models.PaymentStatusCompleted {
		return completed(order), nil
	}
	if order.ProviderOrderID == nil {
		return nil, invalid("order has no provider order")
	}

	pp, err := s.Provider.GetOrder(ctx, *order.ProviderOrderID)
	if err != nil {
		return nil, upstream("get provider order", err)
	}
	return s.apply(ctx, order, pp, false)
}

// apply maps a provider order onto the local payment status. The capture
// status wins over the order status when a capture is present. Awaiting
// states are left alone unless they come back from a capture call.
func (s *PaymentService) apply(ctx context.Context, order *models.Order, pp *paypal.Order, fromCapture bool) (*CaptureResult, error) {
	l := logging.FromContext(ctx).With("order_id", order.ID, "provider_order_id", pp.ID)

	status := pp.Status
	captureID := pp.ID
	if c := pp.FirstCapture(); c != nil {
		captureID = c.ID
		if c.Status != "" {
			status = c.Status
		}
	}

	var (
		local models.PaymentStatus
		capID *string
	)
	switch status {
	case paypal.StatusCompleted:
		local, capID = models.PaymentStatusCompleted, &captureID
	case paypal.StatusPending:
		local = models.PaymentStatusProcessing
	case paypal.StatusCreated, paypal.StatusApproved, "SAVED", "PAYER_ACTION_REQUIRED":
		if !fromCapture {
			return &CaptureResult{Status: status}, nil
		}
		local = models.PaymentStatusFailed
	default:
		local = models.PaymentStatusFailed
	}

	ok, err := s.Repo.SetPaymentStatus(ctx, order.ID, local, capID)
	if err != nil {
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	if !ok {
		// a concurrent capture completed first
		fresh, err := s.Repo.GetOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		return completed(fresh), nil
	}

	l.Info("payment_status_updated", "provider_status", status, "payment_status", local)
	s.publish(ctx, order, local)

	res := &CaptureResult{Status: status}
	if capID != nil {
		res.CaptureID = *capID
	}
	return res, nil
}

func (s *PaymentService) authorized(ctx context.Context, orderID string, who Requester) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound("order", err)
	}
	if who.Admin {
		return order, nil
	}
	if order.UserID != nil {
		if *order.UserID != who.UserID {
			return nil, fmt.Errorf("%w: order", ErrNotFound)
		}
		return order, nil
	}
	if order.GuestEmail == nil {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return order, nil
}

func (s *PaymentService) publish(ctx context.Context, o *models.Order, status models.PaymentStatus) {
	ev := orderEvent("payment_"+strings.ToLower(string(status)), o)
	ev.PaymentStatus = string(status)
	events.Publish(ctx, s.Events, PaymentTopic, o.ID, ev)
}

func completed(o *models.Order) *CaptureResult {
	res := &CaptureResult{Status: string(o.PaymentStatus)}
	if o.ProviderCaptureID != nil {
		res.CaptureID = *o.ProviderCaptureID
	}
	return res
}

func upstream(op string, err error) error {
	if errors.Is(err, paypal.ErrAuth) {
		return fmt.Errorf("%w: payment provider authentication failed: %w", ErrUpstream, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
