package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
)

type paymentFixture struct {
	svc    *PaymentService
	pp     *fakePayPal
	events *eventRecorder
	order  *models.Order
}

// newPaymentFixture stores a guest order for two units at 5.00.
func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	r := newTestRepo(t)
	cat := seedCategory(t, r, "Grains")
	rice := seedProduct(t, r, cat, "Basmati Rice", "5.00", 10)

	orders := &OrderService{Repo: r}
	order, err := orders.CreateOrder(context.Background(), transport.CreateOrderRequest{
		Items:        []transport.OrderItemRequest{line(rice, 2, "5.00")},
		ShippingInfo: shipping("guest@example.com"),
	}, Requester{})
	require.NoError(t, err)

	pp, client := newFakePayPal(t)
	ev := &eventRecorder{}
	return &paymentFixture{
		svc:    &PaymentService{Repo: r, Provider: client, Events: ev, Currency: "GBP"},
		pp:     pp,
		events: ev,
		order:  order,
	}
}

func (f *paymentFixture) stored(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.svc.Repo.GetOrder(context.Background(), f.order.ID)
	require.NoError(t, err)
	return o
}

func TestCreateProviderOrder_SendsBreakdown(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	f.svc.BrandName = "Grocery Shop"
	f.svc.ReturnURL = "https://shop.example/checkout/success"

	id, err := f.svc.CreateProviderOrder(context.Background(), f.order.ID, nil, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "PP-1", id)

	var created []paypal.CreateOrderRequest
	f.pp.set(func(p *fakePayPal) { created = p.created })
	require.Len(t, created, 1)
	req := created[0]
	assert.Equal(t, "CAPTURE", req.Intent)
	require.Len(t, req.PurchaseUnits, 1)

	pu := req.PurchaseUnits[0]
	assert.Equal(t, f.order.ID, pu.ReferenceID)
	assert.Equal(t, f.order.ID, pu.CustomID)
	require.NotNil(t, pu.Amount)
	assert.Equal(t, "GBP", pu.Amount.CurrencyCode)
	assert.Equal(t, "21.00", pu.Amount.Value)
	require.NotNil(t, pu.Amount.Breakdown)
	assert.Equal(t, "10.00", pu.Amount.Breakdown.ItemTotal.Value)
	assert.Equal(t, "10.00", pu.Amount.Breakdown.Shipping.Value)
	assert.Equal(t, "1.00", pu.Amount.Breakdown.TaxTotal.Value)

	require.Len(t, pu.Items, 1)
	assert.Equal(t, "Basmati Rice", pu.Items[0].Name)
	assert.Equal(t, "2", pu.Items[0].Quantity)
	assert.Equal(t, "5.00", pu.Items[0].UnitAmount.Value)

	require.NotNil(t, req.ApplicationContext)
	assert.Equal(t, "Grocery Shop", req.ApplicationContext.BrandName)

	o := f.stored(t)
	require.NotNil(t, o.ProviderOrderID)
	assert.Equal(t, "PP-1", *o.ProviderOrderID)
	assert.Equal(t, models.PaymentStatusPending, o.PaymentStatus)
}

func TestCreateProviderOrder_Rejections(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, "", nil, Requester{})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.CreateProviderOrder(ctx, "missing", nil, Requester{})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.svc.Repo.SetPaymentStatus(ctx, f.order.ID, models.PaymentStatusCompleted, nil)
	require.NoError(t, err)

	_, err = f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "order is already paid")
	f.pp.set(func(p *fakePayPal) { assert.Empty(t, p.created) })
}

func TestCreateProviderOrder_OtherUsersOrderIsHidden(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	cat := seedCategory(t, r, "Grains")
	rice := seedProduct(t, r, cat, "Rice", "5.00", 10)
	order, err := (&OrderService{Repo: r}).CreateOrder(context.Background(), transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{line(rice, 1, "5.00")}, ShippingInfo: shipping(""),
	}, Requester{UserID: "owner"})
	require.NoError(t, err)

	_, client := newFakePayPal(t)
	svc := &PaymentService{Repo: r, Provider: client, Currency: "GBP"}

	_, err = svc.CreateProviderOrder(context.Background(), order.ID, nil, Requester{UserID: "intruder"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = svc.CreateProviderOrder(context.Background(), order.ID, nil, Requester{UserID: "owner"})
	assert.NoError(t, err)
}

func TestCaptureProviderOrder_Completed(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	res, err := f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Status)
	assert.Equal(t, "CAP-1", res.CaptureID)

	o := f.stored(t)
	assert.Equal(t, models.PaymentStatusCompleted, o.PaymentStatus)
	require.NotNil(t, o.ProviderCaptureID)
	assert.Equal(t, "CAP-1", *o.ProviderCaptureID)

	again, err := f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", again.Status)
	assert.Equal(t, "CAP-1", again.CaptureID)
	assert.Equal(t, 1, f.pp.captures(), "second capture must not reach the provider")

	f.pp.set(func(p *fakePayPal) {
		assert.Equal(t, []string{f.order.ID}, p.requestIDs)
	})
	assert.Equal(t, []string{"payment_completed"}, f.events.types())
}

func TestCaptureProviderOrder_ValidatesIDs(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CaptureProviderOrder(ctx, "", f.order.ID, Requester{})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	_, err = f.svc.CaptureProviderOrder(ctx, "PP-OTHER", f.order.ID, Requester{})
	require.Error(t, err)
	assert.Equal(t, "provider order does not belong to this order", err.Error())
	assert.Zero(t, f.pp.captures())
}

func TestCaptureProviderOrder_ProviderRejectMarksFailed(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) {
		p.captureStatus = http.StatusUnprocessableEntity
		p.captureBody = `{"name":"UNPROCESSABLE_ENTITY","message":"declined","debug_id":"dbg","details":[{"issue":"INSTRUMENT_DECLINED"}]}`
	})

	_, err = f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Equal(t, models.PaymentStatusFailed, f.stored(t).PaymentStatus)
	assert.Equal(t, []string{"payment_failed"}, f.events.types())

	// a failed payment can be retried with a fresh provider order
	_, err = f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, f.stored(t).PaymentStatus)
}

func TestCaptureProviderOrder_AlreadyCapturedRecovers(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) {
		p.captureStatus = http.StatusUnprocessableEntity
		p.captureBody = `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`
		p.getBody = `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-9","status":"COMPLETED"}]}}]}`
	})

	res, err := f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "CAP-9", res.CaptureID)
	assert.Equal(t, models.PaymentStatusCompleted, f.stored(t).PaymentStatus)
}

func TestCaptureProviderOrder_AlreadyCapturedLookupFailureLeavesPending(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) {
		p.captureStatus = http.StatusUnprocessableEntity
		p.captureBody = `{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED"}]}`
		p.getStatus = http.StatusInternalServerError
		p.getBody = `{"name":"INTERNAL_SERVER_ERROR"}`
	})

	_, err = f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Equal(t, models.PaymentStatusPending, f.stored(t).PaymentStatus)
	assert.NotContains(t, f.events.types(), "payment_failed")

	f.pp.set(func(p *fakePayPal) {
		p.getStatus = 0
		p.getBody = `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-3","status":"COMPLETED"}]}}]}`
	})
	res, err := f.svc.ReconcilePayment(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAP-3", res.CaptureID)
	assert.Equal(t, models.PaymentStatusCompleted, f.stored(t).PaymentStatus)
}

func TestCaptureProviderOrder_TimeoutLeavesPending(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) { p.captureDelay = 500 * time.Millisecond })

	_, err = f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Equal(t, models.PaymentStatusPending, f.stored(t).PaymentStatus)
	assert.Empty(t, f.events.types())
}

func TestCaptureProviderOrder_PendingCaptureIsProcessing(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) {
		p.captureBody = `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-2","status":"PENDING"}]}}]}`
	})

	res, err := f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", res.Status)
	assert.Empty(t, res.CaptureID)
	assert.Equal(t, models.PaymentStatusProcessing, f.stored(t).PaymentStatus)
}

func TestCaptureProviderOrder_AuthFailureChangesNothing(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) { p.tokenStatus = http.StatusUnauthorized })

	_, err = f.svc.CaptureProviderOrder(ctx, "PP-1", f.order.ID, Requester{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.Contains(t, err.Error(), "payment provider authentication failed")
	assert.Zero(t, f.pp.captures())
	assert.Equal(t, models.PaymentStatusPending, f.stored(t).PaymentStatus)
}

func TestReconcilePayment(t *testing.T) {
	t.Parallel()

	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReconcilePayment(ctx, f.order.ID)
	require.Error(t, err)
	assert.Equal(t, "order has no provider order", err.Error())

	_, err = f.svc.CreateProviderOrder(ctx, f.order.ID, nil, Requester{})
	require.NoError(t, err)

	f.pp.set(func(p *fakePayPal) { p.getBody = `{"id":"PP-1","status":"APPROVED"}` })
	res, err := f.svc.ReconcilePayment(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", res.Status)
	assert.Equal(t, models.PaymentStatusPending, f.stored(t).PaymentStatus)

	f.pp.set(func(p *fakePayPal) {
		p.getBody = `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-7","status":"COMPLETED"}]}}]}`
	})
	res, err = f.svc.ReconcilePayment(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAP-7", res.CaptureID)

	o := f.stored(t)
	assert.Equal(t, models.PaymentStatusCompleted, o.PaymentStatus)
	require.NotNil(t, o.ProviderCaptureID)
	assert.Equal(t, "CAP-7", *o.ProviderCaptureID)
	assert.Zero(t, f.pp.captures())
}
