package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/clothmarket/api/internal/repositories"
)

// Registry bundles the MySQL repositories with the Firestore counter and the health probe.
type Registry struct {
	*UnitOfWork

	db         *gorm.DB
	accounts   *AccountRepository
	shops      *ShopRepository
	categories *CategoryRepository
	products   *ProductRepository
	orders     *OrderRepository
	reviews    *ReviewRepository
	reports    *ReportRepository
	counters   repositories.CounterRepository
	health     repositories.HealthRepository
	closers    []func() error
}

var _ repositories.Registry = (*Registry)(nil)

type RegistryOption func(*Registry)

func WithCounters(counters repositories.CounterRepository) RegistryOption {
	return func(r *Registry) { r.counters = counters }
}

func WithHealth(health repositories.HealthRepository) RegistryOption {
	return func(r *Registry) { r.health = health }
}

// WithCloser registers cleanup run by Close after the database is closed.
func WithCloser(fn func() error) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.closers = append(r.closers, fn)
		}
	}
}

func NewRegistry(db *gorm.DB, opts ...RegistryOption) (*Registry, error) {
	if db == nil {
		return nil, errors.New("mysql registry: db is required")
	}
	r := &Registry{
		UnitOfWork: NewUnitOfWork(db),
		db:         db,
		accounts:   NewAccountRepository(db),
		shops:      NewShopRepository(db),
		categories: NewCategoryRepository(db),
		products:   NewProductRepository(db),
		orders:     NewOrderRepository(db),
		reviews:    NewReviewRepository(db),
		reports:    NewReportRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.counters == nil {
		return nil, errors.New("mysql registry: counter repository is required")
	}
	return r, nil
}

func (r *Registry) Accounts() repositories.AccountRepository    { return r.accounts }
func (r *Registry) Shops() repositories.ShopRepository          { return r.shops }
func (r *Registry) Categories() repositories.CategoryRepository { return r.categories }
func (r *Registry) Products() repositories.ProductRepository    { return r.products }
func (r *Registry) Orders() repositories.OrderRepository        { return r.orders }
func (r *Registry) Reviews() repositories.ReviewRepository      { return r.reviews }
func (r *Registry) Reports() repositories.ReportRepository      { return r.reports }
func (r *Registry) Counters() repositories.CounterRepository    { return r.counters }
func (r *Registry) Health() repositories.HealthRepository       { return r.health }

func (r *Registry) Close(context.Context) error {
	errs := []error{Close(r.db)}
	for _, fn := range r.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
