package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/clothmarket/api/internal/repositories"
)

// ErrCartInvalid is wrapped by every CartValidationError.
var ErrCartInvalid = errors.New("cart: invalid")

// CartLineCode classifies a cart validation failure.
type CartLineCode string

const (
	CartCodeEmpty              CartLineCode = "empty_cart"
	CartCodeProductUnavailable CartLineCode = "product_unavailable"
	CartCodeInvalidQuantity    CartLineCode = "invalid_quantity"
	CartCodeInsufficientStock  CartLineCode = "insufficient_stock"
	CartCodeSizeRequired       CartLineCode = "size_required"
	CartCodeInvalidSize        CartLineCode = "invalid_size"
	CartCodeColorRequired      CartLineCode = "color_required"
	CartCodeInvalidColor       CartLineCode = "invalid_color"
	CartCodeMultiShop          CartLineCode = "multi_shop_cart"
)

// CartLine is one requested product in a cart.
type CartLine struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// CartLineError describes why a line, or the cart as a whole (Index -1), was rejected.
type CartLineError struct {
	Index     int          `json:"index"`
	ProductID string       `json:"product_id,omitempty"`
	Code      CartLineCode `json:"code"`
	Message   string       `json:"message"`
}

// CartValidationError lists every problem found in a cart.
type CartValidationError struct {
	Lines []CartLineError
}

func (e *CartValidationError) Error() string {
	if e == nil || len(e.Lines) == 0 {
		return ErrCartInvalid.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCartInvalid.Error(), e.Lines[0].Message)
}

func (e *CartValidationError) Unwrap() error { return ErrCartInvalid }

// Messages returns the human readable line messages in order.
func (e *CartValidationError) Messages() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		out = append(out, line.Message)
	}
	return out
}

// Has reports whether any line failed with code.
func (e *CartValidationError) Has(code CartLineCode) bool {
	if e == nil {
		return false
	}
	return slices.ContainsFunc(e.Lines, func(l CartLineError) bool { return l.Code == code })
}

// ValidatedLine is a cart line resolved to a sellable product.
type ValidatedLine struct {
	Product  Product
	Quantity int
	Size     string
	Color    string
}

// ValidatedCart holds the resolved lines of a single-shop cart.
type ValidatedCart struct {
	ShopID string
	Lines  []ValidatedLine
}

// ProductIDs returns the distinct product ids of the cart in first-seen order.
func (c ValidatedCart) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		if !slices.Contains(ids, line.Product.ID) {
			ids = append(ids, line.Product.ID)
		}
	}
	return ids
}

// CartValidator resolves cart lines against the catalog.
type CartValidator struct {
	products repositories.ProductRepository
	shops    repositories.ShopRepository
}

func NewCartValidator(products repositories.ProductRepository, shops repositories.ShopRepository) (*CartValidator, error) {
	if products == nil {
		return nil, errors.New("cart validator: product repository is required")
	}
	if shops == nil {
		return nil, errors.New("cart validator: shop repository is required")
	}
	return &CartValidator{products: products, shops: shops}, nil
}

// Validate loads the products and shops referenced by lines and checks them. It performs no writes.
func (v *CartValidator) Validate(ctx context.Context, lines []CartLine) (ValidatedCart, error) {
	if len(lines) == 0 {
		return CheckCart(nil, nil, nil)
	}
	products, err := v.products.FindByIDs(ctx, cartProductIDs(lines))
	if err != nil {
		return ValidatedCart{}, err
	}
	return v.check(ctx, lines, products)
}

// ValidateLocked is Validate over products already read under a row lock.
func (v *CartValidator) ValidateLocked(ctx context.Context, lines []CartLine, locked map[string]Product) (ValidatedCart, error) {
	return v.check(ctx, lines, locked)
}

func (v *CartValidator) check(ctx context.Context, lines []CartLine, products map[string]Product) (ValidatedCart, error) {
	shopIDs := make([]string, 0, len(products))
	for _, product := range products {
		if !slices.Contains(shopIDs, product.ShopID) {
			shopIDs = append(shopIDs, product.ShopID)
		}
	}
	shops, err := v.shops.FindByIDs(ctx, shopIDs)
	if err != nil {
		return ValidatedCart{}, err
	}
	return CheckCart(lines, products, shops)
}

// CheckCart validates lines against the given products and shops. Each line reports at most one
// problem; problems accumulate across lines. A cart is valid only with no problems and at least one
// resolved line.
func CheckCart(lines []CartLine, products map[string]Product, shops map[string]Shop) (ValidatedCart, error) {
	if len(lines) == 0 {
		return ValidatedCart{}, &CartValidationError{Lines: []CartLineError{{
			Index:   -1,
			Code:    CartCodeEmpty,
			Message: "Cart is empty",
		}}}
	}

	var (
		problems  []CartLineError
		validated []ValidatedLine
		shopIDs   []string
	)
	reserved := map[string]int{}
	fail := func(idx int, productID string, code CartLineCode, format string, args ...any) {
		problems = append(problems, CartLineError{
			Index:     idx,
			ProductID: productID,
			Code:      code,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	for idx, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := products[productID]
		if !ok || !product.IsActive || !shopSells(shops, product.ShopID) {
			fail(idx, productID, CartCodeProductUnavailable, "Product ID %s not found or unavailable", productID)
			continue
		}
		if !slices.Contains(shopIDs, product.ShopID) {
			shopIDs = append(shopIDs, product.ShopID)
		}

		if line.Quantity <= 0 {
			fail(idx, productID, CartCodeInvalidQuantity, "%s: Quantity must be at least 1", product.Name)
			continue
		}
		available := product.StockQuantity - reserved[productID]
		if line.Quantity > available {
			fail(idx, productID, CartCodeInsufficientStock, "%s: Only %d items in stock", product.Name, max(available, 0))
			continue
		}

		size := strings.TrimSpace(line.Size)
		switch {
		case len(product.Sizes) > 0 && size == "":
			fail(idx, productID, CartCodeSizeRequired, "%s: Please select a size", product.Name)
			continue
		case size != "" && !slices.Contains(product.Sizes, size):
			fail(idx, productID, CartCodeInvalidSize, "%s: Invalid size", product.Name)
			continue
		}

		color := strings.TrimSpace(line.Color)
		switch {
		case len(product.Colors) > 0 && color == "":
			fail(idx, productID, CartCodeColorRequired, "%s: Please select a color", product.Name)
			continue
		case color != "" && !slices.Contains(product.Colors, color):
			fail(idx, productID, CartCodeInvalidColor, "%s: Invalid color", product.Name)
			continue
		}

		reserved[productID] += line.Quantity
		validated = append(validated, ValidatedLine{
			Product:  product,
			Quantity: line.Quantity,
			Size:     size,
			Color:    color,
		})
	}

	if len(shopIDs) > 1 {
		fail(-1, "", CartCodeMultiShop, "All items must be from the same shop in a single order")
	}
	if len(problems) > 0 || len(validated) == 0 {
		return ValidatedCart{}, &CartValidationError{Lines: problems}
	}
	return ValidatedCart{ShopID: shopIDs[0], Lines: validated}, nil
}

func shopSells(shops map[string]Shop, shopID string) bool {
	shop, ok := shops[shopID]
	return ok && shop.AcceptsOrders()
}

func cartProductIDs(lines []CartLine) []string {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
