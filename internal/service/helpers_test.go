package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
)

func newTestRepo(t *testing.T) *repo.GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repo.Migrate(db))
	return &repo.GormRepo{DB: db}
}

func seedCategory(t *testing.T, r *repo.GormRepo, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name, Description: name}
	require.NoError(t, r.CreateCategory(context.Background(), c))
	return c
}

func seedProduct(t *testing.T, r *repo.GormRepo, cat *models.Category, name, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:        name,
		Description: name + " description",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		CategoryID:  cat.ID,
		Images:      []string{"https://img.example/" + strings.ToLower(name) + ".jpg"},
	}
	require.NoError(t, r.CreateProduct(context.Background(), p))
	return p
}

func stockOf(t *testing.T, r *repo.GormRepo, id string) int {
	t.Helper()
	p, err := r.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func countRows(t *testing.T, r *repo.GormRepo, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, r.DB.Model(model).Count(&n).Error)
	return n
}

func line(p *models.Product, qty int, price string) transport.OrderItemRequest {
	return transport.OrderItemRequest{ProductID: p.ID, Quantity: qty, Price: decimal.RequireFromString(price)}
}

func shipping(email string) *transport.ShippingInfo {
	return &transport.ShippingInfo{
		FullName: "Ada Guest",
		Email:    email,
		Address:  "1 High Street",
		City:     "Leeds",
		State:    "West Yorkshire",
		ZipCode:  "LS1 1AA",
		Country:  "GB",
	}
}

type recordedEvent struct {
	Topic string
	Key   string
	Event any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishEvent(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Topic: topic, Key: key, Event: event})
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		switch ev := e.Event.(type) {
		case transport.OrderEvent:
			out = append(out, ev.Type)
		case transport.ProductEvent:
			out = append(out, ev.Type)
		}
	}
	return out
}

// fakePayPal is an httptest double of the PayPal REST endpoints the bridge uses.
type fakePayPal struct {
	mu sync.Mutex

	tokenStatus int

	created []paypal.CreateOrderRequest

	captureCalls  int
	captureStatus int
	captureBody   string
	captureDelay  time.Duration
	requestIDs    []string

	getStatus int
	getBody   string
}

func newFakePayPal(t *testing.T) (*fakePayPal, *paypal.Client) {
	t.Helper()
	f := &fakePayPal{
		captureStatus: http.StatusCreated,
		captureBody:   `{"id":"PP-1","status":"COMPLETED","purchase_units":[{"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED"}]}}]}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, paypal.NewClient(srv.URL, "cid", "secret", 200*time.Millisecond)
}

func (f *fakePayPal) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/oauth2/token":
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":300}`))

	case r.Method == http.MethodPost && r.URL.Path == "/v2/checkout/orders":
		var in paypal.CreateOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&in)
		f.created = append(f.created, in)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"PP-1","status":"CREATED"}`))

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/capture"):
		f.captureCalls++
		f.requestIDs = append(f.requestIDs, r.Header.Get("PayPal-Request-Id"))
		delay := f.captureDelay
		f.mu.Unlock()
		time.Sleep(delay)
		f.mu.Lock()
		w.WriteHeader(f.captureStatus)
		_, _ = w.Write([]byte(f.captureBody))

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/checkout/orders/"):
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
		}
		_, _ = w.Write([]byte(f.getBody))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakePayPal) set(fn func(f *fakePayPal)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePayPal) captures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.captureCalls
}
