package services

import (
	"errors"

	"stockroom/internal/cache"
	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"go.uber.org/zap"
)

// ListingCache stores the most recent listing snapshot.
type ListingCache interface {
	// Get returns cache.ErrMiss when no snapshot is held.
	Get() (*models.Listing, error)
	Set(listing *models.Listing) error
}

// ListingService serves the dashboard listing through a read-through cache.
type ListingService struct {
	repo   repositories.ProductRepository
	cache  ListingCache
	logger *zap.Logger
}

// NewListingService creates a new ListingService.
func NewListingService(repo repositories.ProductRepository, listingCache ListingCache, logger *zap.Logger) *ListingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingService{
		repo:   repo,
		cache:  listingCache,
		logger: logger,
	}
}

// GetListing returns every product, newest first, with inventory totals.
// Cache failures fall back to the store.
func (s *ListingService) GetListing() (*models.Listing, error) {
	if s.cache != nil {
		listing, err := s.cache.Get()
		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("Listing cache read failed", zap.Error(err))
		}
	}

	products, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	listing := models.NewListing(products)

	if s.cache != nil {
		if err := s.cache.Set(listing); err != nil {
			s.logger.Warn("Listing cache write failed", zap.Error(err))
		}
	}
	return listing, nil
}
