package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusCompleted  PaymentStatus = "COMPLETED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

type Address struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     *string   `gorm:"size:36;index"      json:"userId,omitempty"`
	Street     string    `gorm:"not null"           json:"street"`
	City       string    `gorm:"not null"           json:"city"`
	State      string    `gorm:"not null"           json:"state"`
	PostalCode string    `gorm:"not null"           json:"postalCode"`
	Country    string    `gorm:"not null"           json:"country"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (Address) TableName() string { return "addresses" }

func (a *Address) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Order belongs either to a registered user or to a guest identified by email,
// never both.
type Order struct {
	ID                string          `gorm:"primaryKey;size:36"                                                   json:"id"`
	UserID            *string         `gorm:"size:36;index;check:chk_orders_owner,(user_id IS NULL) <> (guest_email IS NULL)" json:"userId,omitempty"`
	GuestEmail        *string         `gorm:"index"                                                                json:"guestEmail,omitempty"`
	GuestName         *string         `json:"guestName,omitempty"`
	AddressID         string          `gorm:"size:36;not null"                                                     json:"addressId"`
	ShippingAddress   *Address        `gorm:"foreignKey:AddressID"                                                 json:"shippingAddress,omitempty"`
	Total             decimal.Decimal `gorm:"type:decimal(10,2);not null"                                          json:"total"`
	Status            OrderStatus     `gorm:"size:16;not null;index"                                               json:"status"`
	PaymentStatus     PaymentStatus   `gorm:"size:16;not null"                                                     json:"paymentStatus"`
	ProviderOrderID   *string         `gorm:"size:64;index"                                                        json:"providerOrderId,omitempty"`
	ProviderCaptureID *string         `gorm:"size:64"                                                              json:"providerCaptureId,omitempty"`
	Items             []OrderItem     `gorm:"constraint:OnDelete:CASCADE"                                          json:"items,omitempty"`
	CreatedAt         time.Time       `gorm:"index"                                                                json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func (o *Order) IsGuest() bool { return o.UserID == nil }

// ItemTotal is the sum of price x quantity over the order lines.
func (o *Order) ItemTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

type OrderItem struct {
	ID        string          `gorm:"primaryKey;size:36"                                 json:"id"`
	OrderID   string          `gorm:"size:36;index;not null"                             json:"orderId"`
	ProductID string          `gorm:"size:36;index;not null"                             json:"productId"`
	Product   *Product        `gorm:"constraint:OnDelete:RESTRICT"                       json:"product,omitempty"`
	Quantity  int             `gorm:"not null;check:chk_order_items_quantity,quantity > 0" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null"                        json:"price"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
