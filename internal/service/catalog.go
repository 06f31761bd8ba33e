package service

import (
	"context"
	"strings"

	"otpbot/internal/domain"

	"go.uber.org/zap"
)

// DefaultPageSize is the number of services per catalog page
const DefaultPageSize = 10

// CatalogProvider fetches service lists from the upstream API
type CatalogProvider interface {
	FetchServices(ctx context.Context, kind domain.ListKind) ([]domain.Service, error)
}

// CatalogService handles catalog fetching, pagination and filtering
type CatalogService struct {
	provider CatalogProvider
	pageSize int
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(provider CatalogProvider, pageSize int, logger *zap.Logger) *CatalogService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CatalogService{
		provider: provider,
		pageSize: pageSize,
		logger:   logger,
	}
}

// PageSize returns the configured page size
func (s *CatalogService) PageSize() int {
	return s.pageSize
}

// Refresh fetches a fresh list. Failures are logged and yield an empty list.
func (s *CatalogService) Refresh(ctx context.Context, kind domain.ListKind) []domain.Service {
	services, err := s.provider.FetchServices(ctx, kind)
	if err != nil {
		s.logger.Warn("Failed to fetch services",
			zap.String("list", string(kind)),
			zap.Error(err),
		)
		return []domain.Service{}
	}
	if services == nil {
		return []domain.Service{}
	}
	return services
}

// Page returns the items of a zero-based page and the total page count.
// An out-of-range page yields no items but a valid total.
func (s *CatalogService) Page(list []domain.Service, page int) ([]domain.Service, int) {
	totalPages := TotalPages(len(list), s.pageSize)
	if page < 0 || page >= totalPages {
		return []domain.Service{}, totalPages
	}

	start := page * s.pageSize
	end := start + s.pageSize
	if end > len(list) {
		end = len(list)
	}
	return list[start:end], totalPages
}

// Filter keeps services whose name contains term, ignoring case, in original order
func (s *CatalogService) Filter(list []domain.Service, term string) []domain.Service {
	needle := strings.ToLower(strings.TrimSpace(term))
	result := make([]domain.Service, 0)
	for _, svc := range list {
		if strings.Contains(strings.ToLower(svc.Name), needle) {
			result = append(result, svc)
		}
	}
	return result
}

// TotalPages is ceil(n/size), zero for an empty list
func TotalPages(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}
