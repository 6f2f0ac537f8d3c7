package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

type PaymentHTTP struct {
	Svc *service.PaymentService
}

func (h *PaymentHTTP) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.create_order")

	var req transport.CreateProviderOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_provider_order_error", "invalid body", err)
	}

	id, err := h.Svc.CreateProviderOrder(ctx, req.OrderID, req.Amount, requester(c))
	if err != nil {
		return fail(l, "create_provider_order_error", err)
	}
	return c.JSON(http.StatusOK, transport.CreateProviderOrderResponse{ID: id})
}

func (h *PaymentHTTP) CaptureOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.capture_order")

	var req transport.CaptureProviderOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "capture_provider_order_error", "invalid body", err)
	}

	res, err := h.Svc.CaptureProviderOrder(ctx, req.ProviderOrderID, req.OrderID, requester(c))
	if err != nil {
		return fail(l, "capture_provider_order_error", err)
	}

	l.Info("capture_provider_order_success", "order_id", req.OrderID, "status", res.Status)
	return c.JSON(http.StatusOK, transport.CaptureResponse{Status: res.Status, CaptureID: res.CaptureID})
}

func (h *PaymentHTTP) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.reconcile")

	res, err := h.Svc.ReconcilePayment(ctx, c.Param("id"))
	if err != nil {
		return fail(l, "reconcile_payment_error", err)
	}

	l.Info("reconcile_payment_success", "order_id", c.Param("id"), "status", res.Status)
	return c.JSON(http.StatusOK, transport.CaptureResponse{Status: res.Status, CaptureID: res.CaptureID})
}
