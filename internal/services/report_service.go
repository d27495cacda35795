package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

const (
	defaultReportWindow = 30 * 24 * time.Hour
	reportTopShops      = 5
)

var (
	// ErrReportInvalidInput indicates an unusable reporting range.
	ErrReportInvalidInput = errors.New("report: invalid input")
	// ErrReportForbidden indicates a non-admin caller.
	ErrReportForbidden = errors.New("report: forbidden")
)

type ReportServiceDeps struct {
	Reports repositories.ReportRepository
	Clock   func() time.Time
}

// reportService holds no mutable state; every call recomputes the summary from storage.
type reportService struct {
	reports repositories.ReportRepository
	clock   func() time.Time
}

func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Reports == nil {
		return nil, errors.New("report service: report repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &reportService{
		reports: deps.Reports,
		clock:   func() time.Time { return clock().UTC() },
	}, nil
}

// PlatformSummary aggregates orders placed within window. An empty window covers the last 30 days
// and an open upper bound ends now.
func (s *reportService) PlatformSummary(ctx context.Context, actor Actor, window domain.TimeRange) (PlatformReport, error) {
	if !actor.IsAdmin() {
		return PlatformReport{}, fmt.Errorf("%w: admin role required", ErrReportForbidden)
	}
	now := s.clock()
	if window.To.IsZero() {
		window.To = now
	}
	if window.From.IsZero() {
		window.From = window.To.Add(-defaultReportWindow)
	}
	window.From, window.To = window.From.UTC(), window.To.UTC()
	if !window.From.Before(window.To) {
		return PlatformReport{}, fmt.Errorf("%w: from must be before to", ErrReportInvalidInput)
	}

	report, err := s.reports.PlatformSummary(ctx, window, reportTopShops)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return PlatformReport{}, fmt.Errorf("report: repository unavailable: %w", err)
		}
		return PlatformReport{}, err
	}
	return report, nil
}
