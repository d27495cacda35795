package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/services"
)

const maxShopBodySize = 16 * 1024

// ShopHandlers serves seller shop registration and the public shop directory.
type ShopHandlers struct {
	actors *ActorResolver
	shops  services.ShopService
}

func NewShopHandlers(actors *ActorResolver, shops services.ShopService) *ShopHandlers {
	return &ShopHandlers{actors: actors, shops: shops}
}

// Routes registers /shops.
func (h *ShopHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/approved", h.listApproved)
	seller := r
	if h.actors != nil {
		seller = r.With(h.actors.Require(services.RoleSeller))
	}
	seller.Post("/register", h.register)
	seller.Get("/me", h.mine)
}

type registerShopRequest struct {
	Name            string `json:"shop_name"`
	BusinessAddress string `json:"business_address"`
	City            string `json:"city"`
	Pincode         string `json:"pincode"`
	ContactNumber   string `json:"contact_number"`
	GSTNumber       string `json:"gst_number"`
	ImageURL        string `json:"shop_image_url"`
}

func (h *ShopHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req registerShopRequest
	if !decodeJSONBody(w, r, maxShopBodySize, &req) {
		return
	}
	shop, err := h.shops.Register(ctx, services.RegisterShopCommand{
		Actor:           actor,
		Name:            req.Name,
		BusinessAddress: req.BusinessAddress,
		City:            req.City,
		Pincode:         req.Pincode,
		ContactNumber:   req.ContactNumber,
		GSTNumber:       req.GSTNumber,
		ImageURL:        req.ImageURL,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, "Shop registered successfully. Waiting for admin approval.", map[string]any{
		"shop": newShopView(shop),
	})
}

func (h *ShopHandlers) mine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	actor, _ := ActorFromContext(ctx)
	shop, err := h.shops.Mine(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"shop": newShopView(shop)})
}

func (h *ShopHandlers) listApproved(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	shops, err := h.shops.ListApproved(ctx, r.URL.Query().Get("city"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	views := make([]publicShopView, 0, len(shops))
	for _, s := range shops {
		views = append(views, newPublicShopView(s))
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"shops": views, "count": len(views)})
}
