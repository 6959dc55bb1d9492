package repositories

import (
	"errors"

	"stockroom/internal/models"
)

// ErrProductNotFound is returned when an id does not reference a stored product.
var ErrProductNotFound = errors.New("product not found")

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	// GetAll returns every product, newest first.
	GetAll() ([]models.Product, error)
	GetByID(id string) (*models.Product, error)
	// Create assigns the id and timestamps and stores the product.
	Create(product *models.Product) error
	// Update replaces every mutable field of the product with the given id
	// and reloads it. It returns ErrProductNotFound when no row matches.
	Update(product *models.Product) error
	// UpdateStock writes only the stock column.
	UpdateStock(id string, stock int) error
	// Delete removes the product. Removing an unknown id is not an error.
	Delete(id string) error
}
