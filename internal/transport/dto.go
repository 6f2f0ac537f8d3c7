package transport

import (
	"io"

	"github.com/shopspring/decimal"
)

type OrderItemRequest struct {
	ID        string          `json:"id,omitempty"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Product returns the referenced product id; the checkout shape sends it as id.
func (i OrderItemRequest) Product() string {
	if i.ProductID != "" {
		return i.ProductID
	}
	return i.ID
}

type ShippingInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

type CreateOrderRequest struct {
	Items        []OrderItemRequest `json:"items"`
	ShippingInfo *ShippingInfo      `json:"shippingInfo"`
	Total        *decimal.Decimal   `json:"total,omitempty"`
}

type CreateOrderResponse struct {
	OrderID string `json:"orderId"`
}

type AddressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type GuestInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CheckoutRequest struct {
	Items           []OrderItemRequest `json:"items"`
	ShippingAddress *AddressRequest    `json:"shippingAddress"`
	GuestInfo       *GuestInfo         `json:"guestInfo,omitempty"`
}

type CheckoutResponse struct {
	OrderID string          `json:"orderId"`
	Amount  decimal.Decimal `json:"amount"`
}

type CreateProviderOrderRequest struct {
	OrderID string           `json:"orderId"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}

type CreateProviderOrderResponse struct {
	ID string `json:"id"`
}

type CaptureProviderOrderRequest struct {
	ProviderOrderID string `json:"orderID"`
	OrderID         string `json:"orderId"`
}

type CaptureResponse struct {
	Status    string `json:"status"`
	CaptureID string `json:"captureId,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

type CartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ReplaceCartRequest struct {
	Items []CartItemRequest `json:"items"`
}

type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

type ImageUpload struct {
	Filename string
	Body     io.Reader
}

// ProductInput is the parsed multipart form of the admin product endpoints.
type ProductInput struct {
	Name           string
	Description    string
	Price          decimal.Decimal
	CategoryID     string
	Stock          int
	Images         []ImageUpload
	ExistingImages []string
	// KeepExisting is set when the form carried existingImages at all.
	KeepExisting bool
}

type ProductEvent struct {
	Type      string          `json:"type"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock,omitempty"`
}

type OrderEvent struct {
	Type          string          `json:"type"`
	OrderID       string          `json:"orderId"`
	UserID        string          `json:"userId,omitempty"`
	GuestEmail    string          `json:"guestEmail,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status,omitempty"`
	PaymentStatus string          `json:"paymentStatus,omitempty"`
}
