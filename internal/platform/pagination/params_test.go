package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{DefaultSort: "newest"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Page != 1 || params.PageSize != DefaultPageSize || params.Sort != "newest" {
		t.Fatalf("unexpected defaults %#v", params)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("page_size", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}

	params, err = Parse(values, Options{DefaultPageSize: 10, FixedPageSize: true})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 10 {
		t.Fatalf("expected fixed page size 10 got %d", params.PageSize)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
		want       error
	}{
		{"page", "0", ErrInvalidPage},
		{"page", "two", ErrInvalidPage},
		{"page_size", "abc", ErrInvalidPageSize},
		{"page_size", "-5", ErrInvalidPageSize},
		{"sort", "cheapest", ErrInvalidSort},
	}
	for _, tc := range cases {
		values := url.Values{}
		values.Set(tc.key, tc.value)
		_, err := Parse(values, Options{AllowedSorts: []string{"newest", "highest", "lowest"}})
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s=%s: expected %v, got %v", tc.key, tc.value, tc.want, err)
		}
	}
}

func TestParseSortIsCaseInsensitive(t *testing.T) {
	values := url.Values{}
	values.Set("sort", " Highest ")
	params, err := Parse(values, Options{AllowedSorts: []string{"newest", "highest"}})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Sort != "highest" {
		t.Fatalf("expected highest, got %q", params.Sort)
	}
}

func TestLinks(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/orders/my-orders?status=placed&page=2", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	next, previous := Links(RequestURL(req), 2, true, true)
	if next == nil || *next != "https://example.com/api/orders/my-orders?page=3&status=placed" {
		t.Fatalf("unexpected next link %v", next)
	}
	if previous == nil || *previous != "https://example.com/api/orders/my-orders?page=1&status=placed" {
		t.Fatalf("unexpected previous link %v", previous)
	}

	next, previous = Links(RequestURL(req), 1, false, false)
	if next != nil || previous != nil {
		t.Fatalf("expected no links on a single page")
	}
}

func TestFromRequestReadsQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/products?page=3&page_size=5", nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.Page != 3 || params.PageSize != 5 {
		t.Fatalf("unexpected params %#v", params)
	}
}
