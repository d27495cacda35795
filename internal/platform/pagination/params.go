package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits page_size.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps the supported page_size to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

// Params bundles the page number, size and sort key extracted from a request.
type Params struct {
	Page     int
	PageSize int
	Sort     string
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FixedPageSize ignores any client supplied page_size.
	FixedPageSize bool
	AllowedSorts  []string
	DefaultSort   string
}

var (
	ErrInvalidPage     = errors.New("pagination: invalid page")
	ErrInvalidPageSize = errors.New("pagination: invalid page_size")
	ErrInvalidSort     = errors.New("pagination: invalid sort")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes page, page_size and sort from values.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	page := 1
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidPage, raw)
		}
		page = n
	}

	pageSize, err := parsePageSize(values.Get("page_size"), opts)
	if err != nil {
		return Params{}, err
	}

	sort := strings.ToLower(strings.TrimSpace(values.Get("sort")))
	if sort == "" {
		sort = opts.DefaultSort
	} else if len(opts.AllowedSorts) > 0 && !slices.Contains(opts.AllowedSorts, sort) {
		return Params{}, fmt.Errorf("%w: %q", ErrInvalidSort, sort)
	}

	return Params{Page: page, PageSize: pageSize, Sort: sort}, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	def := opts.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	limit := opts.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || opts.FixedPageSize {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}
	return min(n, limit), nil
}

// Links returns absolute URLs of the neighbouring pages of u, or nil where no such page exists.
func Links(u *url.URL, page int, hasNext, hasPrevious bool) (next, previous *string) {
	if u == nil {
		return nil, nil
	}
	build := func(target int) *string {
		clone := *u
		query := clone.Query()
		query.Set("page", strconv.Itoa(target))
		clone.RawQuery = query.Encode()
		s := clone.String()
		return &s
	}
	if hasNext {
		next = build(page + 1)
	}
	if hasPrevious {
		previous = build(page - 1)
	}
	return next, previous
}

// RequestURL reconstructs the absolute URL of r, honouring X-Forwarded-Proto behind a proxy.
func RequestURL(r *http.Request) *url.URL {
	if r == nil || r.URL == nil {
		return nil
	}
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
		if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
			u.Scheme = proto
		}
	}
	return &u
}
