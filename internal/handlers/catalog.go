package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/platform/pagination"
	"github.com/clothmarket/api/internal/repositories"
	"github.com/clothmarket/api/internal/services"
)

const (
	maxProductBodySize = 64 * 1024
	// maxImageUploadSize bounds the whole multipart request.
	maxImageUploadSize = 25 << 20
	imageFormMemory    = 8 << 20
)

var productSorts = []string{
	string(repositories.ProductSortNewest),
	string(repositories.ProductSortPriceLow),
	string(repositories.ProductSortPriceHigh),
	string(repositories.ProductSortPopular),
}

// CatalogHandlers serves categories and products.
type CatalogHandlers struct {
	actors  *ActorResolver
	catalog services.CatalogService
}

func NewCatalogHandlers(actors *ActorResolver, catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{actors: actors, catalog: catalog}
}

// CategoryRoutes registers /categories.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
}

// ProductRoutes registers /products. Reads are public; writes need the owning seller.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	public := r
	seller := r
	if h.actors != nil {
		public = r.With(h.actors.Optional())
		seller = r.With(h.actors.Require(services.RoleSeller))
	}
	public.Get("/", h.listProducts)
	public.Get("/{productID}", h.getProduct)
	seller.Post("/create", h.createProduct)
	seller.Put("/{productID}", h.updateProduct)
	seller.Delete("/{productID}", h.deleteProduct)
	seller.Post("/{productID}/images", h.uploadImages)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	views := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		views = append(views, newCategoryView(c))
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"categories": views})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{AllowedSorts: productSorts})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()
	minPrice, err := parseMoneyParam(query.Get("min_price"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "min_price: "+err.Error(), http.StatusBadRequest))
		return
	}
	maxPrice, err := parseMoneyParam(query.Get("max_price"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "max_price: "+err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		CategoryID: query.Get("category"),
		ShopID:     query.Get("shop"),
		Search:     query.Get("search"),
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		Sizes:      splitList(query["sizes"]),
		Colors:     splitList(query["colors"]),
		Sort:       repositories.ProductSort(params.Sort),
		Page:       params.Page,
		PageSize:   params.PageSize,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]PublicProductView, 0, len(page.Items))
	for _, p := range page.Items {
		views = append(views, publicProductView(p))
	}
	next, previous := pagination.Links(pagination.RequestURL(r), page.Page, page.HasNext(), page.HasPrevious())
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"products": views,
		"count":    page.Total,
		"page":     page.Page,
		"next":     next,
		"previous": previous,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var viewer *services.Actor
	if actor, ok := ActorFromContext(ctx); ok {
		viewer = &actor
	}
	detail, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"), viewer)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	var product any = publicProductView(detail.Product)
	if detail.ViewerOwns {
		product = sellerProductView(detail.Product)
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"product": product,
		"shop":    newPublicShopView(detail.Shop),
	})
}

type productRequest struct {
	CategoryID    *string          `json:"category"`
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	BasePrice     *decimal.Decimal `json:"base_price"`
	StockQuantity *int             `json:"stock_quantity"`
	Sizes         *[]string        `json:"sizes"`
	Colors        *[]string        `json:"colors"`
	Material      *string          `json:"material"`
	Brand         *string          `json:"brand"`
	IsActive      *bool            `json:"is_active"`
}

func (h *CatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req productRequest
	if !decodeJSONBody(w, r, maxProductBodySize, &req) {
		return
	}
	if req.BasePrice == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "base_price is required", http.StatusBadRequest))
		return
	}
	cmd := services.CreateProductCommand{
		Actor:       actor,
		CategoryID:  req.CategoryID,
		Name:        deref(req.Name),
		Description: deref(req.Description),
		BasePrice:   *req.BasePrice,
		Material:    deref(req.Material),
		Brand:       deref(req.Brand),
	}
	if req.StockQuantity != nil {
		cmd.StockQuantity = *req.StockQuantity
	}
	if req.Sizes != nil {
		cmd.Sizes = *req.Sizes
	}
	if req.Colors != nil {
		cmd.Colors = *req.Colors
	}

	product, err := h.catalog.CreateProduct(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, "Product created successfully", map[string]any{
		"product": sellerProductView(product),
	})
}

func (h *CatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req productRequest
	if !decodeJSONBody(w, r, maxProductBodySize, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		Actor:         actor,
		ProductID:     chi.URLParam(r, "productID"),
		CategoryID:    req.CategoryID,
		Name:          req.Name,
		Description:   req.Description,
		BasePrice:     req.BasePrice,
		StockQuantity: req.StockQuantity,
		Sizes:         req.Sizes,
		Colors:        req.Colors,
		Material:      req.Material,
		Brand:         req.Brand,
		IsActive:      req.IsActive,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Product updated successfully", map[string]any{
		"product": sellerProductView(product),
	})
}

func (h *CatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, _ := ActorFromContext(ctx)
	if err := h.catalog.DeleteProduct(ctx, actor, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Product deleted successfully", nil)
}

func (h *CatalogHandlers) uploadImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, _ := ActorFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxImageUploadSize)
	if err := r.ParseMultipartForm(imageFormMemory); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form with images", http.StatusBadRequest))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "No images provided", http.StatusBadRequest))
		return
	}
	files := make([]services.ImageFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, imageFileFromHeader(fh))
	}

	images, err := h.catalog.UploadImages(ctx, services.UploadImagesCommand{
		Actor:     actor,
		ProductID: chi.URLParam(r, "productID"),
		Files:     files,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	views := make([]productImageView, 0, len(images))
	for _, img := range images {
		views = append(views, productImageView{ID: img.ID, URL: img.URL, DisplayOrder: img.DisplayOrder})
	}
	httpx.WriteSuccess(w, http.StatusOK, "Images uploaded", map[string]any{"images": views})
}

func imageFileFromHeader(fh *multipart.FileHeader) services.ImageFile {
	return services.ImageFile{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
