package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
)

type CartService struct {
	Repo *repo.GormRepo
}

// GetCart returns the user's cart, or an empty one when none was saved yet.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	cart, err := s.Repo.GetCart(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ReplaceCart stores items as the whole cart; the last write wins. Lines for
// the same product are merged.
func (s *CartService) ReplaceCart(ctx context.Context, userID string, req transport.ReplaceCartRequest) (*models.Cart, error) {
	qty := make(map[string]int, len(req.Items))
	for _, it := range req.Items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, invalid("product id required")
		}
		if it.Quantity <= 0 {
			return nil, invalid("quantity must be greater than zero")
		}
		qty[id] += it.Quantity
	}

	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	found, err := s.Repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		known := make(map[string]bool, len(found))
		for _, p := range found {
			known[p.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !known[id] {
				missing = append(missing, id)
			}
		}
		return nil, &ValidationError{Reason: "products not found", ProductIDs: missing}
	}

	items := make([]models.CartItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, models.CartItem{ProductID: id, Quantity: qty[id]})
	}
	cart, err := s.Repo.ReplaceCart(ctx, userID, items)
	if err != nil {
		return nil, fmt.Errorf("replace cart: %w", err)
	}
	return cart, nil
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	return s.Repo.DeleteCart(ctx, userID)
}
