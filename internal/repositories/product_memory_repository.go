package repositories

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

type memoryRecord struct {
	product models.Product
	seq     uint64
}

// MemoryProductRepository is an in-memory implementation of ProductRepository.
type MemoryProductRepository struct {
	products map[string]memoryRecord
	seq      uint64
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemoryProductRepository creates a new instance of MemoryProductRepository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[string]memoryRecord),
		now:      time.Now,
	}
}

// GetAll returns all products, newest first. Products created within the
// same clock tick keep reverse insertion order.
func (r *MemoryProductRepository) GetAll() ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]memoryRecord, 0, len(r.products))
	for _, rec := range r.products {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].product.CreatedAt, records[j].product.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return records[i].seq > records[j].seq
	})

	productList := make([]models.Product, 0, len(records))
	for _, rec := range records {
		productList = append(productList, rec.product)
	}
	return productList, nil
}

// GetByID returns a product by its ID.
func (r *MemoryProductRepository) GetByID(id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
	}
	product := rec.product
	return &product, nil
}

// Create adds a new product.
func (r *MemoryProductRepository) Create(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if _, exists := r.products[product.ID]; exists {
		return fmt.Errorf("failed to create product: duplicate ID %s", product.ID)
	}
	now := r.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	r.seq++
	r.products[product.ID] = memoryRecord{product: *product, seq: r.seq}
	return nil
}

// Update replaces the mutable fields of an existing product.
func (r *MemoryProductRepository) Update(product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product with ID %s: %w", product.ID, ErrProductNotFound)
	}
	rec.product.Name = product.Name
	rec.product.Description = product.Description
	rec.product.Price = product.Price
	rec.product.Stock = product.Stock
	rec.product.ImageURL = product.ImageURL
	rec.product.UpdatedAt = r.now()
	r.products[product.ID] = rec
	*product = rec.product
	return nil
}

// UpdateStock sets the stock of an existing product.
func (r *MemoryProductRepository) UpdateStock(id string, stock int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.products[id]
	if !ok {
		return fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
	}
	rec.product.Stock = stock
	rec.product.UpdatedAt = r.now()
	r.products[id] = rec
	return nil
}

// Delete removes a product by its ID.
func (r *MemoryProductRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.products, id)
	return nil
}
