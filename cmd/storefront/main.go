package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Skotchmaster/grocery_shop/internal/config"
	"github.com/Skotchmaster/grocery_shop/internal/httpserver"
	"github.com/Skotchmaster/grocery_shop/internal/idempotency"
	"github.com/Skotchmaster/grocery_shop/internal/media"
	"github.com/Skotchmaster/grocery_shop/internal/paypal"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/search"
	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/pkg/authclient"
	pkgdb "github.com/Skotchmaster/grocery_shop/pkg/db"
	"github.com/Skotchmaster/grocery_shop/pkg/events"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
	"github.com/Skotchmaster/grocery_shop/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/grocery_shop/pkg/middleware/logging"
	"github.com/Skotchmaster/grocery_shop/pkg/telemetry"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.TraceExporter, cfg.OTLPEndpoint)
	if err != nil {
		cancel()
		log.Fatalf("telemetry: %v", err)
	}

	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		cancel()
		log.Fatalf("db migrate: %v", err)
	}
	store := &repo.GormRepo{DB: db}

	var (
		publisher events.Publisher
		producer  *events.Producer
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewProducer(cfg.KafkaBrokers)
		publisher = producer
	} else {
		logger.Warn("kafka_disabled", "reason", "KAFKA_BROKERS not set")
	}

	var keeper idempotency.Keeper
	if cfg.RedisURL != "" {
		rdb, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cancel()
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		keeper = idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL)
	} else {
		logger.Warn("idempotency_disabled", "reason", "REDIS_URL not set")
	}
	cancel()

	var index service.ProductIndex
	if cfg.ESURL != "" {
		es, err := search.NewClient(search.Config{URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword})
		if err != nil {
			log.Fatalf("elasticsearch: %v", err)
		}
		index = search.NewIndex(es, cfg.ESIndex)
	} else {
		logger.Warn("search_index_disabled", "reason", "ES_URL not set")
	}

	uploader, err := media.NewUploader(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	if err != nil {
		log.Fatalf("cloudinary: %v", err)
	}

	pp := paypal.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret, cfg.PayPalTimeout)

	var auth *authclient.Client
	if cfg.AuthURL != "" {
		auth = authclient.NewClient(cfg.AuthURL)
	}

	orders := &service.OrderService{Repo: store, Events: publisher, Pricing: cfg.Pricing, RestockOnCancel: cfg.RestockOnCancel}
	payments := &service.PaymentService{
		Repo:      store,
		Provider:  pp,
		Events:    publisher,
		Currency:  cfg.PayPalCurrency,
		BrandName: cfg.PayPalBrandName,
		ReturnURL: cfg.ReturnURL(),
		CancelURL: cfg.CancelURL(),
	}
	catalog := &service.CatalogService{Repo: store, Media: uploader, Index: index, Events: publisher}

	e := echo.New()
	e.HideBanner = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(echomw.Secure())
	e.Use(echomw.CORS())
	e.Use(csrf.Middleware(csrf.Config{Secure: strings.HasPrefix(cfg.StorefrontURL, "https://")}))

	httpserver.Register(e, &httpserver.Deps{
		DB:             db,
		JWTSecret:      []byte(cfg.JWTSecret),
		AuthClient:     auth,
		Idempotency:    keeper,
		OrderHandler:   &httpserver.OrderHTTP{Svc: orders},
		PaymentHandler: &httpserver.PaymentHTTP{Svc: payments},
		CatalogHandler: &httpserver.CatalogHTTP{Svc: catalog},
		CartHandler:    &httpserver.CartHTTP{Svc: &service.CartService{Repo: store}},
		AdminHandler:   &httpserver.AdminHTTP{Orders: orders, Analytics: &service.AnalyticsService{Repo: store}},
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           otelhttp.NewHandler(e, cfg.ServiceName),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("storefront_listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Error("kafka_close_error", "error", err)
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing_shutdown_error", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("storefront_stopped")
}
