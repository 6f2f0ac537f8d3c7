package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/grocery_shop/internal/idempotency"
	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/pkg/tokens"
)

var jwtSecret = []byte("handler-test-secret")

type testEnv struct {
	e    *echo.Echo
	repo *repo.GormRepo
}

type memKeeper struct {
	mu   sync.Mutex
	data map[string]*idempotency.Response
}

func (m *memKeeper) Begin(_ context.Context, key string) (*idempotency.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.data[key]; ok {
		if r == nil {
			return nil, idempotency.ErrInFlight
		}
		return r, nil
	}
	m.data[key] = nil
	return nil, nil
}

func (m *memKeeper) Complete(_ context.Context, key string, resp idempotency.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = &resp
	return nil
}

func (m *memKeeper) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type stubUploader struct{}

func (stubUploader) Upload(_ context.Context, body io.Reader, filename string) (string, error) {
	_, err := io.Copy(io.Discard, body)
	return "https://cdn.example/" + filename, err
}

// payPalStub answers the token and create order endpoints only.
func payPalStub(t *testing.T) *paypal.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/oauth2/token":
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":300}`))
		case "/v2/checkout/orders":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"PP-42","status":"CREATED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return paypal.NewClient(srv.URL, "id", "secret", time.Second)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.Migrate(db))

	r := &repo.GormRepo{DB: db}
	orders := &service.OrderService{Repo: r}
	e := echo.New()
	Register(e, &Deps{
		DB:             db,
		JWTSecret:      jwtSecret,
		Idempotency:    &memKeeper{data: map[string]*idempotency.Response{}},
		OrderHandler:   &OrderHTTP{Svc: orders},
		PaymentHandler: &PaymentHTTP{Svc: &service.PaymentService{Repo: r, Provider: payPalStub(t), Currency: "GBP"}},
		CatalogHandler: &CatalogHTTP{Svc: &service.CatalogService{Repo: r, Media: stubUploader{}}},
		CartHandler:    &CartHTTP{Svc: &service.CartService{Repo: r}},
		AdminHandler:   &AdminHTTP{Orders: orders, Analytics: &service.AnalyticsService{Repo: r}},
	})
	return &testEnv{e: e, repo: r}
}

func bearer(t *testing.T, sub, role string) string {
	t.Helper()
	tkn, err := tokens.NewAccessToken(jwtSecret, sub, role, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)
	return "Bearer " + tkn
}

func (env *testEnv) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) seed(t *testing.T, name string, stock int) *models.Product {
	t.Helper()
	ctx := context.Background()
	cat := &models.Category{Name: "Grains", Description: "Grains"}
	require.NoError(t, env.repo.EnsureCategory(ctx, cat))
	p := &models.Product{
		Name:        name,
		Description: name,
		Price:       decimal.RequireFromString("5.00"),
		Stock:       stock,
		CategoryID:  cat.ID,
		Images:      []string{"https://img.example/1.jpg"},
	}
	require.NoError(t, env.repo.CreateProduct(ctx, p))
	return p
}

func orderBody(p *models.Product, qty int, email string) transport.CreateOrderRequest {
	return transport.CreateOrderRequest{
		Items: []transport.OrderItemRequest{{ProductID: p.ID, Quantity: qty, Price: p.Price}},
		ShippingInfo: &transport.ShippingInfo{
			FullName: "Guest", Email: email, Address: "1 Street", City: "Leeds",
			State: "WY", ZipCode: "LS1", Country: "GB",
		},
	}
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", nil).Code)
}

func TestCreateOrderEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 3)

	rec := env.do(http.MethodPost, "/orders", transport.CreateOrderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cart items required", message(t, rec))

	rec = env.do(http.MethodPost, "/orders", orderBody(rice, 4, "g@example.com"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient stock for products: "+rice.ID, message(t, rec))

	rec = env.do(http.MethodPost, "/orders", orderBody(rice, 2, "g@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out transport.CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out.OrderID)

	rec = env.do(http.MethodGet, "/orders/"+out.OrderID+"?email=G@example.com", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(http.MethodGet, "/orders/"+out.OrderID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/orders", orderBody(rice, 1, "g@example.com"), "Authorization", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrderEndpoint_IdempotentReplay(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 10)

	first := env.do(http.MethodPost, "/orders", orderBody(rice, 1, "g@example.com"), idempotency.HeaderKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(http.MethodPost, "/orders", orderBody(rice, 1, "g@example.com"), idempotency.HeaderKey, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	var n int64
	require.NoError(t, env.repo.DB.Model(&models.Order{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	p, err := env.repo.GetProduct(context.Background(), rice.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, p.Stock)
}

func TestCreateOrderEndpoint_GuestKeysDoNotCrossGuests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 10)

	first := env.do(http.MethodPost, "/orders", orderBody(rice, 1, "ann@example.com"), idempotency.HeaderKey, "shared")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(http.MethodPost, "/orders", orderBody(rice, 1, "bob@example.com"), idempotency.HeaderKey, "shared")
	require.Equal(t, http.StatusCreated, second.Code)

	var a, b struct {
		OrderID string `json:"orderId"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.NotEqual(t, a.OrderID, b.OrderID)

	p, err := env.repo.GetProduct(context.Background(), rice.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Stock)
}

func TestCheckoutAndPaymentEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 10)

	rec := env.do(http.MethodPost, "/checkout", map[string]any{
		"items":           []map[string]any{{"id": rice.ID, "quantity": 2, "price": "5.00"}},
		"shippingAddress": map[string]any{"street": "1 Road", "city": "York", "state": "NY", "postalCode": "YO1", "country": "GB"},
		"guestInfo":       map[string]any{"email": "g@example.com", "name": "G"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out transport.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "21.00", out.Amount.StringFixed(2))

	rec = env.do(http.MethodPost, "/payment-provider/create-order", transport.CreateProviderOrderRequest{OrderID: out.OrderID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created transport.CreateProviderOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "PP-42", created.ID)

	rec = env.do(http.MethodPost, "/payment-provider/capture-order", transport.CaptureProviderOrderRequest{ProviderOrderID: "PP-other", OrderID: out.OrderID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "provider order does not belong to this order", message(t, rec))

	rec = env.do(http.MethodPost, "/payment-provider/create-order", transport.CreateProviderOrderRequest{OrderID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminAccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/admin/orders/stats", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(http.MethodGet, "/admin/orders/stats", nil, "Authorization", bearer(t, "u1", models.RoleUser)).Code)

	admin := bearer(t, "a1", models.RoleAdmin)
	for _, path := range []string{
		"/admin/orders/stats",
		"/admin/orders?status=pending&sortBy=total&sortOrder=asc",
		"/admin/analytics/revenue?days=7",
		"/admin/analytics/order-stats",
		"/admin/analytics/recent-orders",
		"/admin/products/stats",
	} {
		rec := env.do(http.MethodGet, path, nil, "Authorization", admin)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := env.do(http.MethodGet, "/admin/orders?dateFrom=yesterday", nil, "Authorization", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOrderStatusEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 10)
	admin := bearer(t, "a1", models.RoleAdmin)

	rec := env.do(http.MethodPost, "/orders", orderBody(rice, 1, "g@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var out transport.CreateOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))

	path := "/admin/orders/" + out.OrderID + "/status"
	rec = env.do(http.MethodPatch, path, transport.UpdateOrderStatusRequest{Status: "delivered"}, "Authorization", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "cannot move order from PENDING to DELIVERED", message(t, rec))

	rec = env.do(http.MethodPatch, path, transport.UpdateOrderStatusRequest{Status: "processing"}, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, models.OrderStatusProcessing, order.Status)

	rec = env.do(http.MethodGet, "/orders/"+out.OrderID, nil, "Authorization", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCartEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	rice := env.seed(t, "Rice", 10)
	user := bearer(t, "u1", models.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/cart", nil).Code)

	rec := env.do(http.MethodPut, "/cart", transport.ReplaceCartRequest{Items: []transport.CartItemRequest{{ProductID: rice.ID, Quantity: 2}}}, "Authorization", user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/cart", nil, "Authorization", user)
	require.Equal(t, http.StatusOK, rec.Code)
	var cart models.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/cart", nil, "Authorization", user).Code)
}

func multipartBody(t *testing.T, fields map[string][]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = io.Copy(fw, strings.NewReader(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAdminProductEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	admin := bearer(t, "a1", models.RoleAdmin)

	rec := env.do(http.MethodPost, "/admin/categories", transport.CreateCategoryRequest{Name: "Spices"}, "Authorization", admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	var cat models.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))

	send := func(method, path string, fields map[string][]string, files map[string]string) *httptest.ResponseRecorder {
		body, ct := multipartBody(t, fields, files)
		req := httptest.NewRequest(method, path, body)
		req.Header.Set(echo.HeaderContentType, ct)
		req.Header.Set("Authorization", admin)
		rec := httptest.NewRecorder()
		env.e.ServeHTTP(rec, req)
		return rec
	}

	fields := map[string][]string{
		"name": {"Saffron"}, "description": {"Threads"}, "price": {"12.50"},
		"categoryId": {cat.ID}, "stock": {"4"},
	}

	rec = send(http.MethodPost, "/admin/products", fields, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "at least one image is required", message(t, rec))

	rec = send(http.MethodPost, "/admin/products", fields, map[string]string{"saffron.jpg": "img"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, []string{"https://cdn.example/saffron.jpg"}, p.Images)

	patch := map[string][]string{
		"name": {"Saffron"}, "description": {"Threads"}, "price": {"13.00"},
		"categoryId": {cat.ID}, "stock": {"6"},
		"existingImages[0]": {"https://cdn.example/saffron.jpg"},
	}
	rec = send(http.MethodPatch, "/admin/products/"+p.ID, patch, map[string]string{"more.jpg": "img"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, []string{"https://cdn.example/saffron.jpg", "https://cdn.example/more.jpg"}, p.Images)
	assert.Equal(t, 6, p.Stock)

	rec = send(http.MethodPatch, "/admin/products/"+p.ID, map[string][]string{"price": {"abc"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid price", message(t, rec))

	rec = env.do(http.MethodGet, "/products?category=spices", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []models.Product `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Meta.Total)

	rec = env.do(http.MethodGet, "/products/search?q=saff", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/admin/products/"+p.ID, nil, "Authorization", admin).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/products/"+p.ID, nil).Code)
}

func TestIndexedValues(t *testing.T) {
	t.Parallel()

	form := &multipart.Form{Value: map[string][]string{
		"existingImages[1]": {"b"},
		"existingImages[0]": {"a"},
		"existingImages":    {"plain"},
		"name":              {"x"},
	}}
	got, present := indexedValues(form, "existingImages")
	assert.True(t, present)
	assert.Equal(t, []string{"plain", "a", "b"}, got)

	got, present = indexedValues(&multipart.Form{Value: map[string][]string{}}, "existingImages")
	assert.False(t, present)
	assert.Empty(t, got)
}
