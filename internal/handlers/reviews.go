package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/platform/pagination"
	"github.com/clothmarket/api/internal/repositories"
	"github.com/clothmarket/api/internal/services"
)

const maxReviewBodySize = 8 * 1024

var reviewSorts = []string{
	string(repositories.ReviewSortNewest),
	string(repositories.ReviewSortHighest),
	string(repositories.ReviewSortLowest),
}

// ReviewHandlers exposes endpoints for creating and listing product reviews.
type ReviewHandlers struct {
	actors  *ActorResolver
	reviews services.ReviewService
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(actors *ActorResolver, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{actors: actors, reviews: reviews}
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.actors != nil {
		r.Use(h.actors.Require(services.RoleCustomer))
	}
	r.Post("/create", h.createReview)
}

// ProductRoutes registers the public review listing under /products.
func (h *ReviewHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{productID}/reviews", h.listReviews)
}

type createReviewRequest struct {
	OrderNumber string `json:"order_number"`
	ProductID   string `json:"product_id"`
	Rating      int    `json:"rating"`
	ReviewText  string `json:"review_text"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req createReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.Submit(ctx, services.SubmitReviewCommand{
		Actor:       actor,
		OrderNumber: req.OrderNumber,
		ProductID:   req.ProductID,
		Rating:      req.Rating,
		Text:        req.ReviewText,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, "Review submitted successfully", map[string]any{
		"review": newReviewView(review),
	})
}

func (h *ReviewHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{
		FixedPageSize: true,
		AllowedSorts:  reviewSorts,
		DefaultSort:   string(repositories.ReviewSortNewest),
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.reviews.ListForProduct(ctx, services.ReviewListQuery{
		ProductID: chi.URLParam(r, "productID"),
		Sort:      repositories.ReviewSort(params.Sort),
		Page:      params.Page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	views := make([]reviewView, 0, len(page.Items))
	for _, review := range page.Items {
		views = append(views, newReviewView(review))
	}
	next, previous := pagination.Links(pagination.RequestURL(r), page.Page, page.HasNext(), page.HasPrevious())
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"reviews":  views,
		"count":    page.Total,
		"page":     page.Page,
		"next":     next,
		"previous": previous,
	})
}
