package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type Category struct {
	ID          string    `gorm:"primaryKey;size:36"     json:"id"`
	Name        string    `gorm:"uniqueIndex;not null"   json:"name"`
	Description string    `gorm:"not null"               json:"description"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Category) TableName() string { return "categories" }

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Product struct {
	ID          string          `gorm:"primaryKey;size:36"                          json:"id"`
	Name        string          `gorm:"not null;index"                              json:"name"`
	Description string          `gorm:"not null"                                    json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"                 json:"price"`
	Stock       int             `gorm:"not null;check:chk_products_stock,stock >= 0" json:"stock"`
	CategoryID  string          `gorm:"size:36;index;not null"                      json:"categoryId"`
	Category    *Category       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"category,omitempty"`
	Images      []string        `gorm:"type:text;serializer:json"                   json:"images"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// User is provisioned by the identity provider; the store only reads it,
// apart from the seed command.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"   json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"size:16;not null"     json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

type Cart struct {
	ID        string     `gorm:"primaryKey;size:36"          json:"id"`
	UserID    string     `gorm:"size:36;uniqueIndex;not null" json:"userId"`
	Items     []CartItem `gorm:"constraint:OnDelete:CASCADE"  json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Cart) TableName() string { return "carts" }

func (c *Cart) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type CartItem struct {
	ID        string   `gorm:"primaryKey;size:36"                               json:"id"`
	CartID    string   `gorm:"size:36;index;not null"                           json:"cartId"`
	ProductID string   `gorm:"size:36;not null"                                 json:"productId"`
	Product   *Product `json:"product,omitempty"`
	Quantity  int      `gorm:"not null;check:chk_cart_items_quantity,quantity > 0" json:"quantity"`
}

func (CartItem) TableName() string { return "cart_items" }

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// All lists every table in dependency order for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&Address{},
		&Order{},
		&OrderItem{},
		&Cart{},
		&CartItem{},
	}
}
