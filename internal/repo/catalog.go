package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/grocery_shop/internal/models"
)

const LowStockThreshold = 10

const (
	StockIn  = "in-stock"
	StockLow = "low-stock"
	StockOut = "out-of-stock"
)

type ProductFilter struct {
	Search      string
	Category    string
	StockStatus string
	Sort        string
	Desc        bool
	Offset      int
	Limit       int
}

var productSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"price":     "price",
	"stock":     "stock",
}

func (r *GormRepo) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Preload("Category").First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs returns the products that exist, in no particular order.
func (r *GormRepo) GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	var items []models.Product
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.DB.WithContext(ctx).Preload("Category").Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ListProducts(ctx context.Context, f ProductFilter) (int64, []models.Product, error) {
	q := r.DB.WithContext(ctx).Model(&models.Product{})

	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like)
	}
	if f.Category != "" {
		sub := r.DB.Model(&models.Category{}).Select("id").Where("LOWER(name) = ?", strings.ToLower(f.Category))
		q = q.Where("category_id IN (?)", sub)
	}
	switch f.StockStatus {
	case StockOut:
		q = q.Where("stock = 0")
	case StockLow:
		q = q.Where("stock > 0 AND stock <= ?", LowStockThreshold)
	case StockIn:
		q = q.Where("stock > ?", LowStockThreshold)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	col, ok := productSortColumns[f.Sort]
	if !ok {
		col, f.Desc = "created_at", true
	}

	var items []models.Product
	err := q.Preload("Category").
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: f.Desc}).
		Order("id").
		Offset(f.Offset).Limit(f.Limit).
		Find(&items).Error
	if err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, p *models.Product) error {
	return translate(r.DB.WithContext(ctx).Omit("Category").Create(p).Error)
}

func (r *GormRepo) SaveProduct(ctx context.Context, p *models.Product) error {
	return translate(r.DB.WithContext(ctx).Omit("Category").Save(p).Error)
}

// DeleteProduct drops the product together with any cart lines pointing at it.
// Products referenced by orders cannot be deleted.
func (r *GormRepo) DeleteProduct(ctx context.Context, id string) error {
	return r.InTx(ctx, func(tx *GormRepo) error {
		if err := tx.DB.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}

		var refs int64
		if err := tx.DB.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrReferenced
		}

		res := tx.DB.Delete(&models.Product{}, "id = ?", id)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// LockProducts reads the rows with FOR UPDATE, ordered by id so concurrent
// orders always acquire locks in the same order.
func (r *GormRepo) LockProducts(ctx context.Context, ids []string) ([]models.Product, error) {
	var items []models.Product
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DecrementStock reports false when the row does not have qty units left.
func (r *GormRepo) DecrementStock(ctx context.Context, id string, qty int) (bool, error) {
	res := r.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRepo) IncrementStock(ctx context.Context, id string, qty int) error {
	return r.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty)).Error
}

func (r *GormRepo) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	var c models.Category
	if err := r.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var items []models.Category
	if err := r.DB.WithContext(ctx).Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	return translate(r.DB.WithContext(ctx).Create(c).Error)
}

// EnsureCategory returns the category with c.Name, creating it from c when absent.
func (r *GormRepo) EnsureCategory(ctx context.Context, c *models.Category) error {
	return r.DB.WithContext(ctx).Where(models.Category{Name: c.Name}).FirstOrCreate(c).Error
}
