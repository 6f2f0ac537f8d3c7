package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/grocery_shop/internal/models"
)

func (r *GormRepo) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Product").
		First(&cart, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// ReplaceCart overwrites the user's cart lines, creating the cart on first use.
func (r *GormRepo) ReplaceCart(ctx context.Context, userID string, items []models.CartItem) (*models.Cart, error) {
	err := r.InTx(ctx, func(tx *GormRepo) error {
		var cart models.Cart
		err := tx.DB.First(&cart, "user_id = ?", userID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cart = models.Cart{UserID: userID}
			if err := tx.DB.Create(&cart).Error; err != nil {
				return translate(err)
			}
		case err != nil:
			return err
		}

		if err := tx.DB.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ID = ""
			items[i].CartID = cart.ID
			items[i].Product = nil
		}
		if len(items) > 0 {
			if err := tx.DB.Create(&items).Error; err != nil {
				return translate(err)
			}
		}
		return tx.DB.Model(&cart).Update("updated_at", tx.DB.NowFunc()).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetCart(ctx, userID)
}

// DeleteCart removes the user's cart; a missing cart is not an error.
func (r *GormRepo) DeleteCart(ctx context.Context, userID string) error {
	db := r.DB.WithContext(ctx)
	carts := db.Model(&models.Cart{}).Select("id").Where("user_id = ?", userID)
	if err := db.Where("cart_id IN (?)", carts).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return db.Where("user_id = ?", userID).Delete(&models.Cart{}).Error
}
