package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/grocery_shop/internal/idempotency"
	"github.com/Skotchmaster/grocery_shop/pkg/authclient"
	middleware "github.com/Skotchmaster/grocery_shop/pkg/middleware/auth"
)

type Deps struct {
	DB          *gorm.DB
	JWTSecret   []byte
	AuthClient  *authclient.Client
	Idempotency idempotency.Keeper

	OrderHandler   *OrderHTTP
	PaymentHandler *PaymentHTTP
	CatalogHandler *CatalogHTTP
	CartHandler    *CartHTTP
	AdminHandler   *AdminHTTP
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", d.ready)

	authMW := middleware.NewAutoRefreshMiddleware(d.JWTSecret, d.AuthClient)
	idem := idempotency.Middleware(d.Idempotency, idempotencyScope)

	e.POST("/orders", d.OrderHandler.CreateOrder, authMW.OptionalAuth, idem)
	e.GET("/orders/:id", d.OrderHandler.GetOrder, authMW.OptionalAuth)
	e.POST("/checkout", d.OrderHandler.Checkout, authMW.OptionalAuth, idem)

	pay := e.Group("/payment-provider", authMW.OptionalAuth)
	pay.POST("/create-order", d.PaymentHandler.CreateOrder)
	pay.POST("/capture-order", d.PaymentHandler.CaptureOrder)

	e.GET("/products", d.CatalogHandler.GetProducts)
	e.GET("/products/search", d.CatalogHandler.Search)
	e.GET("/products/:id", d.CatalogHandler.GetProduct)
	e.GET("/categories", d.CatalogHandler.GetCategories)

	cart := e.Group("/cart", authMW.RequireAuth)
	cart.GET("", d.CartHandler.GetCart)
	cart.PUT("", d.CartHandler.ReplaceCart)
	cart.DELETE("", d.CartHandler.ClearCart)

	admin := e.Group("/admin", authMW.RequireAdmin)
	admin.POST("/products", d.CatalogHandler.CreateProduct)
	admin.GET("/products/stats", d.AdminHandler.ProductsStats)
	admin.PATCH("/products/:id", d.CatalogHandler.PatchProduct)
	admin.DELETE("/products/:id", d.CatalogHandler.DeleteProduct)
	admin.POST("/categories", d.CatalogHandler.CreateCategory)

	admin.GET("/orders", d.AdminHandler.ListOrders)
	admin.GET("/orders/stats", d.AdminHandler.OrdersStats)
	admin.PATCH("/orders/:id/status", d.AdminHandler.UpdateOrderStatus)
	admin.POST("/orders/:id/reconcile-payment", d.PaymentHandler.Reconcile)

	admin.GET("/analytics/revenue", d.AdminHandler.Revenue)
	admin.GET("/analytics/order-stats", d.AdminHandler.OrderStatusBreakdown)
	admin.GET("/analytics/recent-orders", d.AdminHandler.RecentOrders)
}

func (d *Deps) ready(c echo.Context) error {
	if d.DB == nil {
		return c.NoContent(http.StatusOK)
	}
	sqlDB, err := d.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.NoContent(http.StatusOK)
}
