package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/grocery_shop/internal/models"
)

type OrderFilter struct {
	UserID   string
	Search   string
	Status   models.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time // exclusive
	Sort     string
	Desc     bool
	Offset   int
	Limit    int
}

var orderSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"total":     "total",
	"status":    "status",
}

func (r *GormRepo) CreateAddress(ctx context.Context, a *models.Address) error {
	return translate(r.DB.WithContext(ctx).Create(a).Error)
}

// CreateOrder inserts the order and its items in one statement batch.
func (r *GormRepo) CreateOrder(ctx context.Context, o *models.Order) error {
	return translate(r.DB.WithContext(ctx).Omit("ShippingAddress", "Items.Product").Create(o).Error)
}

func (r *GormRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Product").
		Preload("ShippingAddress").
		First(&o, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// LockOrder reads the order row FOR UPDATE together with its items.
func (r *GormRepo) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&o, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Where("order_id = ?", id).Order("id").Find(&o.Items).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// AttachProviderOrder records a new provider order and resets payment to
// PENDING. Completed payments are never touched; false means none was updated.
func (r *GormRepo) AttachProviderOrder(ctx context.Context, id, providerOrderID string) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", id, models.PaymentStatusCompleted).
		Updates(map[string]any{
			"provider_order_id": providerOrderID,
			"payment_status":    models.PaymentStatusPending,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetPaymentStatus moves a not yet completed payment to status. captureID is
// stored only when non-nil.
func (r *GormRepo) SetPaymentStatus(ctx context.Context, id string, status models.PaymentStatus, captureID *string) (bool, error) {
	updates := map[string]any{"payment_status": status}
	if captureID != nil {
		updates["provider_capture_id"] = *captureID
	}

	res := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", id, models.PaymentStatusCompleted).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetOrderStatus is a compare-and-set on the fulfilment status.
func (r *GormRepo) SetOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) ListOrders(ctx context.Context, f OrderFilter) (int64, []models.Order, error) {
	q := r.DB.WithContext(ctx).Model(&models.Order{})

	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(id) LIKE ? OR LOWER(guest_email) LIKE ? OR LOWER(guest_name) LIKE ?)", like, like, like)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.DateFrom != nil {
		q = q.Where("created_at >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("created_at < ?", *f.DateTo)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	col, ok := orderSortColumns[f.Sort]
	if !ok {
		col, f.Desc = "created_at", true
	}

	var items []models.Order
	err := q.Preload("Items").
		Preload("Items.Product").
		Preload("ShippingAddress").
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: f.Desc}).
		Order("id").
		Offset(f.Offset).Limit(f.Limit).
		Find(&items).Error
	if err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
