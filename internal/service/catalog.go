package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/grocery_shop/internal/models"
	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/pkg/events"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

const ProductTopic = "product_events"

type MediaUploader interface {
	Upload(ctx context.Context, body io.Reader, filename string) (string, error)
}

type ProductIndex interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	Search(ctx context.Context, query string, from, size int) (int64, []string, error)
}

type CatalogService struct {
	Repo   *repo.GormRepo
	Media  MediaUploader
	Index  ProductIndex
	Events events.Publisher
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound("product", err)
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, f repo.ProductFilter) (int64, []models.Product, error) {
	switch f.StockStatus {
	case "", repo.StockIn, repo.StockLow, repo.StockOut:
	default:
		return 0, nil, invalid("unknown stock status")
	}
	return s.Repo.ListProducts(ctx, f)
}

// SearchProducts asks the search index first and falls back to a SQL LIKE
// scan when no index is configured or it fails.
func (s *CatalogService) SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return 0, nil, invalid("search query required")
	}

	if s.Index != nil {
		total, ids, err := s.Index.Search(ctx, q, offset, limit)
		if err == nil {
			found, err := s.Repo.GetProductsByIDs(ctx, ids)
			if err != nil {
				return 0, nil, err
			}
			byID := make(map[string]models.Product, len(found))
			for _, p := range found {
				byID[p.ID] = p
			}
			out := make([]models.Product, 0, len(ids))
			for _, id := range ids {
				if p, ok := byID[id]; ok {
					out = append(out, p)
				}
			}
			return total, out, nil
		}
		logging.FromContext(ctx).Warn("search_index_failed", "error", err)
	}

	return s.Repo.ListProducts(ctx, repo.ProductFilter{Search: q, Offset: offset, Limit: limit})
}

func validateProduct(in transport.ProductInput) error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Description) == "" || in.CategoryID == "" {
		return invalid("missing required fields")
	}
	if !in.Price.IsPositive() {
		return invalid("price must be greater than zero")
	}
	if in.Stock < 0 {
		return invalid("stock must not be negative")
	}
	return nil
}

func (s *CatalogService) checkCategory(ctx context.Context, id string) error {
	if _, err := s.Repo.GetCategory(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("invalid category")
		}
		return err
	}
	return nil
}

func (s *CatalogService) upload(ctx context.Context, imgs []transport.ImageUpload) ([]string, error) {
	if len(imgs) == 0 {
		return nil, nil
	}
	if s.Media == nil {
		return nil, fmt.Errorf("%w: media host not configured", ErrUpstream)
	}
	urls := make([]string, 0, len(imgs))
	for _, img := range imgs {
		url, err := s.Media.Upload(ctx, img.Body, img.Filename)
		if err != nil {
			return nil, fmt.Errorf("%w: upload image: %w", ErrUpstream, err)
		}
		urls = append(urls, url)
	}
	return urls, nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, in transport.ProductInput) (*models.Product, error) {
	if err := validateProduct(in); err != nil {
		return nil, err
	}
	if len(in.Images) == 0 {
		return nil, invalid("at least one image is required")
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	urls, err := s.upload(ctx, in.Images)
	if err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		Stock:       in.Stock,
		CategoryID:  in.CategoryID,
		Images:      urls,
	}
	if err := s.Repo.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.mirror(ctx, "product_created", p)
	return s.Repo.GetProduct(ctx, p.ID)
}

// UpdateProduct replaces the product fields. Images kept are the submitted
// existingImages (or all current ones when the field is absent and nothing
// new was uploaded), followed by the new uploads.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in transport.ProductInput) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound("product", err)
	}
	if err := validateProduct(in); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	var images []string
	switch {
	case in.KeepExisting:
		images = append(images, in.ExistingImages...)
	case len(in.Images) == 0:
		images = append(images, p.Images...)
	}

	urls, err := s.upload(ctx, in.Images)
	if err != nil {
		return nil, err
	}
	images = append(images, urls...)
	if len(images) == 0 {
		return nil, invalid("at least one image is required")
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price.Round(2)
	p.Stock = in.Stock
	p.CategoryID = in.CategoryID
	p.Images = images
	p.Category = nil

	if err := s.Repo.SaveProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}

	s.mirror(ctx, "product_updated", p)
	return s.Repo.GetProduct(ctx, p.ID)
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, repo.ErrReferenced) {
			return fmt.Errorf("%w: product is referenced by orders", ErrConflict)
		}
		return notFound("product", err)
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("search_index_delete_failed", "product_id", id, "error", err)
		}
	}
	events.Publish(ctx, s.Events, ProductTopic, id, transport.ProductEvent{Type: "product_deleted", ProductID: id})
	return nil
}

func (s *CatalogService) mirror(ctx context.Context, kind string, p *models.Product) {
	if s.Index != nil {
		if err := s.Index.IndexProduct(ctx, p); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "product_id", p.ID, "error", err)
		}
	}
	events.Publish(ctx, s.Events, ProductTopic, p.ID, transport.ProductEvent{
		Type:      kind,
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
	})
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.Repo.ListCategories(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, req transport.CreateCategoryRequest) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("category name required")
	}
	c := &models.Category{Name: name, Description: strings.TrimSpace(req.Description), Image: req.Image}
	if err := s.Repo.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, fmt.Errorf("%w: category already exists", ErrConflict)
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}
