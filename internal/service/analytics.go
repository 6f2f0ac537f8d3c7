package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
)

const (
	DefaultWindowDays = 30
	maxWindowDays     = 365
)

type AnalyticsService struct {
	Repo *repo.GormRepo
	// Now is replaceable in tests.
	Now func() time.Time
}

type OrdersStats struct {
	TotalOrders       int64           `json:"totalOrders"`
	PendingOrders     int64           `json:"pendingOrders"`
	ProcessingOrders  int64           `json:"processingOrders"`
	ShippedOrders     int64           `json:"shippedOrders"`
	DeliveredOrders   int64           `json:"deliveredOrders"`
	CancelledOrders   int64           `json:"cancelledOrders"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	MonthlyRevenue    decimal.Decimal `json:"monthlyRevenue"`
	LastMonthRevenue  decimal.Decimal `json:"lastMonthRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	TotalCustomers    int64           `json:"totalCustomers"`
	RevenueGrowth     float64         `json:"revenueGrowth"`
	OrdersGrowth      float64         `json:"ordersGrowth"`
}

type RevenuePoint struct {
	Date    string          `json:"date"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}

type StatusCount struct {
	Status models.OrderStatus `json:"status"`
	Count  int64              `json:"count"`
}

type RecentOrder struct {
	ID            string             `json:"id"`
	Total         decimal.Decimal    `json:"total"`
	Status        models.OrderStatus `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
	CustomerName  string             `json:"customerName"`
	CustomerEmail string             `json:"customerEmail"`
	Guest         bool               `json:"guest"`
}

type ProductsStats struct {
	TotalProducts   int64           `json:"totalProducts"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	LowStock        int64           `json:"lowStock"`
	OutOfStock      int64           `json:"outOfStock"`
	AveragePrice    decimal.Decimal `json:"averagePrice"`
	CategoriesCount int64           `json:"categoriesCount"`
	RecentProducts  int64           `json:"recentProducts"`
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Growth is the percentage change from prev to cur, 0 when prev is 0.
func Growth(cur, prev decimal.Decimal) float64 {
	if prev.IsZero() {
		return 0
	}
	return cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

func clampDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > maxWindowDays {
		return maxWindowDays
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *AnalyticsService) OrdersStats(ctx context.Context) (*OrdersStats, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastMonthStart := monthStart.AddDate(0, -1, 0)

	var (
		out                        OrdersStats
		byStatus                   map[models.OrderStatus]int64
		thisMonthOrders, lastMonth int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = s.Repo.CountOrdersByStatus(gctx, repo.Window{})
		return err
	})
	g.Go(func() (err error) {
		out.TotalRevenue, err = s.Repo.SumRevenue(gctx, repo.Window{})
		return err
	})
	g.Go(func() (err error) {
		out.MonthlyRevenue, err = s.Repo.SumRevenue(gctx, repo.Window{From: &monthStart})
		return err
	})
	g.Go(func() (err error) {
		out.LastMonthRevenue, err = s.Repo.SumRevenue(gctx, repo.Window{From: &lastMonthStart, To: &monthStart})
		return err
	})
	g.Go(func() (err error) {
		thisMonthOrders, err = s.Repo.CountOrders(gctx, repo.Window{From: &monthStart})
		return err
	})
	g.Go(func() (err error) {
		lastMonth, err = s.Repo.CountOrders(gctx, repo.Window{From: &lastMonthStart, To: &monthStart})
		return err
	})
	g.Go(func() (err error) {
		out.TotalCustomers, err = s.Repo.CountUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("orders stats: %w", err)
	}

	out.PendingOrders = byStatus[models.OrderStatusPending]
	out.ProcessingOrders = byStatus[models.OrderStatusProcessing]
	out.ShippedOrders = byStatus[models.OrderStatusShipped]
	out.DeliveredOrders = byStatus[models.OrderStatusDelivered]
	out.CancelledOrders = byStatus[models.OrderStatusCancelled]
	for _, n := range byStatus {
		out.TotalOrders += n
	}

	if out.TotalOrders > 0 {
		out.AverageOrderValue = out.TotalRevenue.Div(decimal.NewFromInt(out.TotalOrders)).Round(2)
	}
	out.RevenueGrowth = Growth(out.MonthlyRevenue, out.LastMonthRevenue)
	out.OrdersGrowth = Growth(decimal.NewFromInt(thisMonthOrders), decimal.NewFromInt(lastMonth))
	return &out, nil
}

// RevenueByDay sums delivered orders per calendar day (UTC) over the last
// days days, today included. Days without orders are reported as zero.
func (s *AnalyticsService) RevenueByDay(ctx context.Context, days int) ([]RevenuePoint, error) {
	days = clampDays(days)
	since := startOfDay(s.now()).AddDate(0, 0, -(days - 1))

	orders, err := s.Repo.DeliveredOrders(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("revenue by day: %w", err)
	}

	points := make([]RevenuePoint, days)
	index := make(map[string]int, days)
	for i := range points {
		d := since.AddDate(0, 0, i).Format(time.DateOnly)
		points[i] = RevenuePoint{Date: d, Revenue: decimal.Zero}
		index[d] = i
	}
	for _, o := range orders {
		i, ok := index[o.CreatedAt.UTC().Format(time.DateOnly)]
		if !ok {
			continue
		}
		points[i].Revenue = points[i].Revenue.Add(o.Total)
		points[i].Orders++
	}
	return points, nil
}

func (s *AnalyticsService) OrderStatusBreakdown(ctx context.Context, days int) ([]StatusCount, error) {
	since := s.now().AddDate(0, 0, -clampDays(days))
	counts, err := s.Repo.CountOrdersByStatus(ctx, repo.Window{From: &since})
	if err != nil {
		return nil, fmt.Errorf("order status breakdown: %w", err)
	}

	out := make([]StatusCount, 0, len(models.OrderStatuses))
	for _, st := range models.OrderStatuses {
		out = append(out, StatusCount{Status: st, Count: counts[st]})
	}
	return out, nil
}

func (s *AnalyticsService) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	rows, err := s.Repo.RecentOrders(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}

	out := make([]RecentOrder, 0, len(rows))
	for _, r := range rows {
		ro := RecentOrder{ID: r.ID, Total: r.Total, Status: r.Status, CreatedAt: r.CreatedAt}
		switch {
		case r.UserEmail != nil:
			ro.CustomerEmail = *r.UserEmail
			if r.UserName != nil {
				ro.CustomerName = *r.UserName
			}
		case r.GuestEmail != nil:
			ro.Guest = true
			ro.CustomerEmail = *r.GuestEmail
			if r.GuestName != nil {
				ro.CustomerName = *r.GuestName
			}
		}
		out = append(out, ro)
	}
	return out, nil
}

func (s *AnalyticsService) ProductsStats(ctx context.Context) (*ProductsStats, error) {
	agg, err := s.Repo.ProductAggregates(ctx, s.now().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("products stats: %w", err)
	}
	return &ProductsStats{
		TotalProducts:   agg.TotalProducts,
		TotalValue:      agg.TotalValue.Round(2),
		LowStock:        agg.LowStock,
		OutOfStock:      agg.OutOfStock,
		AveragePrice:    agg.AveragePrice.Round(2),
		CategoriesCount: agg.CategoriesCount,
		RecentProducts:  agg.RecentProducts,
	}, nil
}
