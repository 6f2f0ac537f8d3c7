package repo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/grocery_shop/internal/models"
)

// Window bounds a created_at range; nil ends are open.
type Window struct {
	From *time.Time
	To   *time.Time
}

type RecentOrder struct {
	ID         string
	Total      decimal.Decimal
	Status     models.OrderStatus
	CreatedAt  time.Time
	UserName   *string
	UserEmail  *string
	GuestName  *string
	GuestEmail *string
}

type ProductAggregates struct {
	TotalProducts   int64
	TotalValue      decimal.Decimal
	AveragePrice    decimal.Decimal
	CategoriesCount int64
	OutOfStock      int64
	LowStock        int64
	RecentProducts  int64
}

func (r *GormRepo) CountOrders(ctx context.Context, w Window) (int64, error) {
	var n int64
	q := r.DB.WithContext(ctx).Model(&models.Order{})
	if w.From != nil {
		q = q.Where("created_at >= ?", *w.From)
	}
	if w.To != nil {
		q = q.Where("created_at < ?", *w.To)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *GormRepo) CountOrdersByStatus(ctx context.Context, w Window) (map[models.OrderStatus]int64, error) {
	var rows []struct {
		Status models.OrderStatus
		Count  int64
	}
	q := r.DB.WithContext(ctx).Model(&models.Order{}).Select("status, COUNT(*) AS count")
	if w.From != nil {
		q = q.Where("created_at >= ?", *w.From)
	}
	if w.To != nil {
		q = q.Where("created_at < ?", *w.To)
	}
	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[models.OrderStatus]int64, len(models.OrderStatuses))
	for _, s := range models.OrderStatuses {
		out[s] = 0
	}
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// SumRevenue totals non-cancelled orders created inside w.
func (r *GormRepo) SumRevenue(ctx context.Context, w Window) (decimal.Decimal, error) {
	q := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0)").
		Where("status <> ?", models.OrderStatusCancelled)
	if w.From != nil {
		q = q.Where("created_at >= ?", *w.From)
	}
	if w.To != nil {
		q = q.Where("created_at < ?", *w.To)
	}

	var sum decimal.Decimal
	if err := q.Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *GormRepo) DeliveredOrders(ctx context.Context, since time.Time) ([]models.Order, error) {
	var items []models.Order
	err := r.DB.WithContext(ctx).
		Select("id", "total", "created_at").
		Where("status = ? AND created_at >= ?", models.OrderStatusDelivered, since).
		Order("created_at").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) RecentOrders(ctx context.Context, limit int) ([]RecentOrder, error) {
	var items []RecentOrder
	err := r.DB.WithContext(ctx).
		Table("orders AS o").
		Select("o.id, o.total, o.status, o.created_at, u.name AS user_name, u.email AS user_email, o.guest_name, o.guest_email").
		Joins("LEFT JOIN users u ON u.id = o.user_id").
		Order("o.created_at DESC").
		Limit(limit).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *GormRepo) ProductAggregates(ctx context.Context, recentSince time.Time) (*ProductAggregates, error) {
	var agg ProductAggregates
	err := r.DB.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) AS total_products,
			COALESCE(SUM(price * stock), 0) AS total_value,
			COALESCE(AVG(price), 0) AS average_price,
			COUNT(DISTINCT category_id) AS categories_count,
			COALESCE(SUM(CASE WHEN stock = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock,
			COALESCE(SUM(CASE WHEN stock > 0 AND stock <= ? THEN 1 ELSE 0 END), 0) AS low_stock,
			COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0) AS recent_products
		FROM products`, LowStockThreshold, recentSince).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}
