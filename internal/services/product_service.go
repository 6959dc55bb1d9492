package services

import (
	"errors"

	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrProductNotFound is returned when an operation references an unknown product.
var ErrProductNotFound = repositories.ErrProductNotFound

// ListingInvalidator is told that cached renderings of the product listing
// are stale. Implementations must not block and must not fail the caller.
type ListingInvalidator interface {
	InvalidateListing()
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateListing() {}

// ProductService validates and applies product mutations.
//
// Every successful mutation fires the invalidator exactly once; rejected
// input and store failures never do.
type ProductService struct {
	repo        repositories.ProductRepository
	invalidator ListingInvalidator
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewProductService creates a new ProductService. A nil invalidator or
// logger is replaced by a no-op.
func NewProductService(repo repositories.ProductRepository, invalidator ListingInvalidator, logger *zap.Logger) *ProductService {
	if invalidator == nil {
		invalidator = noopInvalidator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		repo:        repo,
		invalidator: invalidator,
		validate:    newInputValidator(),
		logger:      logger,
	}
}

// GetAllProducts retrieves all products, newest first.
func (s *ProductService) GetAllProducts() ([]models.Product, error) {
	return s.repo.GetAll()
}

// GetProductByID retrieves a single product by its ID.
func (s *ProductService) GetProductByID(id string) (*models.Product, error) {
	return s.repo.GetByID(id)
}

// CreateProduct validates typed input and stores a new product.
func (s *ProductService) CreateProduct(input ProductInput) (*models.Product, error) {
	return s.create(input, inputErrors{})
}

// CreateProductFromForm coerces untyped input (form fields, decoded JSON)
// and stores a new product. imageUrl may be omitted.
func (s *ProductService) CreateProductFromForm(raw map[string]interface{}) (*models.Product, error) {
	errs := inputErrors{}
	input := coerceInput(raw, false, errs)
	return s.create(input, errs)
}

func (s *ProductService) create(input ProductInput, errs inputErrors) (*models.Product, error) {
	if err := s.check(input, errs); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		ImageURL:    input.ImageURL,
	}
	if err := s.repo.Create(product); err != nil {
		s.logger.Error("Failed to create product", zap.String("name", input.Name), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.Int("stock", product.Stock),
		zap.String("price", product.Price.String()))
	s.invalidator.InvalidateListing()
	return product, nil
}

// EditProduct replaces every mutable field of an existing product.
func (s *ProductService) EditProduct(id string, input ProductInput) (*models.Product, error) {
	return s.edit(id, input, inputErrors{})
}

// EditProductFromForm is EditProduct for untyped input. Every key,
// imageUrl included, must be present.
func (s *ProductService) EditProductFromForm(id string, raw map[string]interface{}) (*models.Product, error) {
	errs := inputErrors{}
	input := coerceInput(raw, true, errs)
	return s.edit(id, input, errs)
}

func (s *ProductService) edit(id string, input ProductInput, errs inputErrors) (*models.Product, error) {
	if err := s.check(input, errs); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          id,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		ImageURL:    input.ImageURL,
	}
	if err := s.repo.Update(product); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.logger.Info("Edit of unknown product", zap.String("product_id", id))
		} else {
			s.logger.Error("Failed to update product", zap.String("product_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Product updated", zap.String("product_id", id))
	s.invalidator.InvalidateListing()
	return product, nil
}

// AdjustStock writes an absolute stock value computed by the caller. A
// negative target is ignored: nothing is written, nothing is invalidated and
// no error is returned. The returned bool reports whether the write happened.
//
// There is no compare-and-swap against a previously read value; concurrent
// adjustments on one product resolve as last write wins.
func (s *ProductService) AdjustStock(id string, stock int) (bool, error) {
	if stock < 0 {
		s.logger.Debug("Ignoring negative stock target", zap.String("product_id", id), zap.Int("stock", stock))
		return false, nil
	}

	if err := s.repo.UpdateStock(id, stock); err != nil {
		s.logger.Error("Failed to adjust stock", zap.String("product_id", id), zap.Error(err))
		return false, err
	}

	s.logger.Info("Stock adjusted", zap.String("product_id", id), zap.Int("stock", stock))
	s.invalidator.InvalidateListing()
	return true, nil
}

// DeleteProduct removes a product. Unknown ids are a successful no-op and
// still invalidate the listing.
func (s *ProductService) DeleteProduct(id string) error {
	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return err
	}

	s.logger.Info("Product deleted", zap.String("product_id", id))
	s.invalidator.InvalidateListing()
	return nil
}

// check runs the rule set over input and merges in coercion failures.
func (s *ProductService) check(input ProductInput, errs inputErrors) error {
	if err := checkRules(s.validate, input, errs); err != nil {
		return err
	}
	if verr := errs.err(); verr != nil {
		s.logger.Warn("Product input rejected", zap.Any("errors", verr.Map()))
		return verr
	}
	return nil
}

// IsValidationError reports whether err is a *ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
