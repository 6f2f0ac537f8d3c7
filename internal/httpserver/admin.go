package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/internal/util"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

// AdminHTTP serves the dashboard: order management and analytics.
type AdminHTTP struct {
	Orders    *service.OrderService
	Analytics *service.AnalyticsService
}

func (h *AdminHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.list_orders")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("limit"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	f := repo.OrderFilter{
		Search: c.QueryParam("search"),
		Status: models.OrderStatus(strings.ToUpper(c.QueryParam("status"))),
		Sort:   c.QueryParam("sortBy"),
		Desc:   !strings.EqualFold(c.QueryParam("sortOrder"), "asc"),
		Offset: offset,
		Limit:  limit,
	}

	var err error
	if f.DateFrom, err = parseDate(c.QueryParam("dateFrom"), false); err != nil {
		return badRequest(l, "list_orders_error", "invalid dateFrom", err)
	}
	if f.DateTo, err = parseDate(c.QueryParam("dateTo"), true); err != nil {
		return badRequest(l, "list_orders_error", "invalid dateTo", err)
	}

	total, items, err := h.Orders.ListOrders(ctx, f)
	if err != nil {
		return fail(l, "list_orders_error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": util.Meta(page, offset, limit, total),
	})
}

// parseDate accepts RFC 3339 or a plain date. A plain end date covers the
// whole day.
func parseDate(s string, end bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

func (h *AdminHTTP) UpdateOrderStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.update_order_status")

	var req transport.UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_order_status_error", "invalid body", err)
	}

	order, err := h.Orders.UpdateOrderStatus(ctx, c.Param("id"), models.OrderStatus(strings.ToUpper(req.Status)))
	if err != nil {
		return fail(l, "update_order_status_error", err)
	}

	l.Info("update_order_status_success", "order_id", order.ID, "status", order.Status)
	return c.JSON(http.StatusOK, order)
}

func (h *AdminHTTP) OrdersStats(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.orders_stats")

	st, err := h.Analytics.OrdersStats(ctx)
	if err != nil {
		return fail(l, "orders_stats_error", err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *AdminHTTP) Revenue(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.revenue")

	points, err := h.Analytics.RevenueByDay(ctx, util.ParseIntDefault(c.QueryParam("days"), service.DefaultWindowDays))
	if err != nil {
		return fail(l, "revenue_error", err)
	}
	return c.JSON(http.StatusOK, points)
}

func (h *AdminHTTP) OrderStatusBreakdown(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.order_stats")

	rows, err := h.Analytics.OrderStatusBreakdown(ctx, util.ParseIntDefault(c.QueryParam("days"), service.DefaultWindowDays))
	if err != nil {
		return fail(l, "order_stats_error", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *AdminHTTP) RecentOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.recent_orders")

	rows, err := h.Analytics.RecentOrders(ctx, util.ParseIntDefault(c.QueryParam("limit"), 5))
	if err != nil {
		return fail(l, "recent_orders_error", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *AdminHTTP) ProductsStats(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.products_stats")

	st, err := h.Analytics.ProductsStats(ctx)
	if err != nil {
		return fail(l, "products_stats_error", err)
	}
	return c.JSON(http.StatusOK, st)
}
