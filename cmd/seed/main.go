package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/pkg/config"
	pkgdb "github.com/Skotchmaster/grocery_shop/pkg/db"
	"github.com/Skotchmaster/grocery_shop/pkg/hash"
)

type category struct {
	name, description string
}

var categories = []category{
	{"Flours", "Popular African swallows like poundo, garri, amala, fufu"},
	{"Spices", "Aromatic spices for traditional African meals"},
	{"Seasonings", "Cooking cubes, powders, and soup enhancers"},
	{"Grains", "Essential grains like rice, cornmeal, and ogi"},
	{"Cereals", "Pap, oat flour, and breakfast grains"},
	{"Oils", "Palm oil, coconut oil, and cooking oils"},
	{"Sauces", "Palmnut base, soup blends, and paste mixes"},
	{"Fish", "Smoked fish, dried catfish, and stockfish"},
	{"Seafood", "Prawns, crayfish, and shellfish"},
	{"Vegetables", "Fresh spinach, scent leaf, okra, and more"},
	{"Fruits", "Mangoes, avocado, soursop, bananas"},
	{"Tubers", "Yam, cocoyam, cassava, sweet potato"},
	{"Roots", "Ginger, turmeric, garlic, aloe vera"},
	{"Snacks", "Plantain chips, kilishi, peanuts, donkwa"},
	{"Drinks", "Supermalt, palmwine, malt drinks"},
	{"Toiletries", "Toothpaste, body wash, antiseptics"},
	{"Soup Mixes", "Egusi mix, peanut base, pepper blends"},
	{"Frozen Items", "Garlic paste, ginger paste, preserved goods"},
}

type product struct {
	name, category, price string
	stock                 int
}

var products = []product{
	{"Poundo Yam Flour 1.8kg", "Flours", "8.99", 40},
	{"Ijebu Garri 1kg", "Flours", "4.49", 60},
	{"Ground Crayfish 100g", "Spices", "3.99", 35},
	{"Suya Pepper 100g", "Spices", "2.99", 25},
	{"Maggi Cubes (100)", "Seasonings", "5.49", 80},
	{"Long Grain Rice 5kg", "Grains", "11.99", 30},
	{"Ogi Powder 500g", "Cereals", "3.49", 20},
	{"Red Palm Oil 1L", "Oils", "6.99", 45},
	{"Palmnut Cream 800g", "Sauces", "3.79", 50},
	{"Smoked Catfish", "Fish", "9.99", 8},
	{"Dried Prawns 100g", "Seafood", "4.99", 15},
	{"Frozen Ugu Leaves", "Vegetables", "3.29", 0},
	{"Puna Yam", "Tubers", "12.99", 12},
	{"Fresh Ginger 250g", "Roots", "1.99", 70},
	{"Plantain Chips", "Snacks", "1.49", 100},
	{"Supermalt 330ml", "Drinks", "1.19", 120},
	{"Egusi Soup Mix", "Soup Mixes", "4.49", 5},
	{"Garlic Paste 200g", "Frozen Items", "2.79", 22},
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	adminEmail := strings.ToLower(strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")))
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	config.MustNonEmpty(adminEmail, "SEED_ADMIN_EMAIL")
	config.MustNonEmpty(adminPassword, "SEED_ADMIN_PASSWORD")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := pkgdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	store := &repo.GormRepo{DB: db}

	ids := make(map[string]string, len(categories))
	for _, c := range categories {
		cat := &models.Category{
			Name:        c.name,
			Description: c.description,
			Image:       "/images/categories/" + strings.ToLower(strings.ReplaceAll(c.name, " ", "")) + ".jpg",
		}
		if err := store.EnsureCategory(ctx, cat); err != nil {
			log.Fatalf("category %s: %v", c.name, err)
		}
		ids[c.name] = cat.ID
	}

	created := 0
	for _, p := range products {
		row := models.Product{
			Name:        p.name,
			Description: p.name,
			Price:       decimal.RequireFromString(p.price),
			Stock:       p.stock,
			CategoryID:  ids[p.category],
			Images:      []string{"/images/products/placeholder.jpg"},
		}
		res := db.WithContext(ctx).Omit("Category").Where(models.Product{Name: p.name}).FirstOrCreate(&row)
		if res.Error != nil {
			log.Fatalf("product %s: %v", p.name, res.Error)
		}
		created += int(res.RowsAffected)
	}

	admin, err := ensureAdmin(ctx, db, adminEmail, adminPassword)
	if err != nil {
		log.Fatalf("admin user: %v", err)
	}

	log.Printf("seed complete: %d categories, %d new products, admin %s", len(ids), created, admin.Email)
}

// ensureAdmin creates the admin account, or brings an existing one back to
// the admin role and the configured password.
func ensureAdmin(ctx context.Context, db *gorm.DB, email, password string) (*models.User, error) {
	var admin models.User
	err := db.WithContext(ctx).Where(models.User{Email: email}).First(&admin).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		pw, err := hash.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		admin = models.User{Email: email, Name: "Admin User", PasswordHash: pw, Role: models.RoleAdmin}
		if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
			return nil, fmt.Errorf("create admin: %w", err)
		}
		return &admin, nil
	case err != nil:
		return nil, fmt.Errorf("find admin: %w", err)
	}

	updates := map[string]any{}
	if admin.Role != models.RoleAdmin {
		updates["role"] = models.RoleAdmin
	}
	if !hash.CheckPassword(admin.PasswordHash, password) {
		pw, err := hash.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		updates["password_hash"] = pw
	}
	if len(updates) == 0 {
		return &admin, nil
	}
	if err := db.WithContext(ctx).Model(&admin).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update admin: %w", err)
	}
	return &admin, nil
}
