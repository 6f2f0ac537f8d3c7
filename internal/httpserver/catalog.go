package httpserver

import (
	"errors"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/grocery_shop/internal/repo"
	"github.com/Skotchmaster/grocery_shop/internal/service"
	"github.com/Skotchmaster/grocery_shop/internal/transport"
	"github.com/Skotchmaster/grocery_shop/internal/util"
	"github.com/Skotchmaster/grocery_shop/pkg/logging"
)

const maxFormMemory = 32 << 20

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_product")

	product, err := h.Svc.GetProduct(ctx, c.Param("id"))
	if err != nil {
		return fail(l, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_products")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.ListProducts(ctx, repo.ProductFilter{
		Search:      c.QueryParam("search"),
		Category:    c.QueryParam("category"),
		StockStatus: c.QueryParam("stock"),
		Sort:        c.QueryParam("sort"),
		Desc:        strings.EqualFold(c.QueryParam("order"), "desc"),
		Offset:      offset,
		Limit:       limit,
	})
	if err != nil {
		return fail(l, "get_products_error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": util.Meta(page, offset, limit, total),
	})
}

func (h *CatalogHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.search")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.SearchProducts(ctx, c.QueryParam("q"), offset, limit)
	if err != nil {
		return fail(l, "search_error", err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": util.Meta(page, offset, limit, total),
	})
}

func (h *CatalogHTTP) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_categories")

	cats, err := h.Svc.ListCategories(ctx)
	if err != nil {
		return fail(l, "get_categories_error", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create_category")

	var req transport.CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "create_category_error", "invalid body", err)
	}

	cat, err := h.Svc.CreateCategory(ctx, req)
	if err != nil {
		return fail(l, "create_category_error", err)
	}

	l.Info("create_category_success", "category_id", cat.ID)
	return c.JSON(http.StatusCreated, cat)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create_product")

	in, closeFiles, err := productForm(c)
	if err != nil {
		return badRequest(l, "product_create_error", err.Error(), err)
	}
	defer closeFiles()

	product, err := h.Svc.CreateProduct(ctx, in)
	if err != nil {
		return fail(l, "product_create_error", err)
	}

	l.Info("create_product_success", "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.patch_product")

	in, closeFiles, err := productForm(c)
	if err != nil {
		return badRequest(l, "product_patch_error", err.Error(), err)
	}
	defer closeFiles()

	product, err := h.Svc.UpdateProduct(ctx, c.Param("id"), in)
	if err != nil {
		return fail(l, "product_patch_error", err)
	}

	l.Info("patch_product_success", "product_id", product.ID)
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.delete_product")

	if err := h.Svc.DeleteProduct(ctx, c.Param("id")); err != nil {
		return fail(l, "product_delete_error", err)
	}

	l.Info("delete_product_success", "product_id", c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// productForm reads the multipart product form. The returned func closes
// the uploaded files and must be called once the images were consumed.
func productForm(c echo.Context) (transport.ProductInput, func(), error) {
	noop := func() {}

	if err := c.Request().ParseMultipartForm(maxFormMemory); err != nil {
		return transport.ProductInput{}, noop, errors.New("invalid form")
	}
	form := c.Request().MultipartForm

	in := transport.ProductInput{
		Name:        formValue(form, "name"),
		Description: formValue(form, "description"),
		CategoryID:  formValue(form, "categoryId"),
	}

	if v := formValue(form, "price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil {
			return transport.ProductInput{}, noop, errors.New("invalid price")
		}
		in.Price = price
	}
	if v := formValue(form, "stock"); v != "" {
		stock, err := strconv.Atoi(v)
		if err != nil {
			return transport.ProductInput{}, noop, errors.New("invalid stock")
		}
		in.Stock = stock
	}

	in.ExistingImages, in.KeepExisting = indexedValues(form, "existingImages")

	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, fh := range form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return transport.ProductInput{}, noop, errors.New("invalid image")
		}
		files = append(files, f)
		in.Images = append(in.Images, transport.ImageUpload{Filename: fh.Filename, Body: f})
	}
	return in, closeAll, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// indexedValues collects key and key[i] fields in index order. The bool
// reports whether the field was sent at all.
func indexedValues(form *multipart.Form, key string) ([]string, bool) {
	out := append([]string(nil), form.Value[key]...)
	present := len(form.Value[key]) > 0

	type indexed struct {
		i int
		v string
	}
	var byIndex []indexed
	prefix := key + "["
	for k, vs := range form.Value {
		if !strings.HasPrefix(k, prefix) || !strings.HasSuffix(k, "]") || len(vs) == 0 {
			continue
		}
		i, err := strconv.Atoi(k[len(prefix) : len(k)-1])
		if err != nil {
			continue
		}
		present = true
		byIndex = append(byIndex, indexed{i, vs[0]})
	}
	sort.Slice(byIndex, func(a, b int) bool { return byIndex[a].i < byIndex[b].i })
	for _, e := range byIndex {
		out = append(out, e.v)
	}

	kept := out[:0]
	for _, v := range out {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	return kept, present
}
