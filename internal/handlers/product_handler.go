package handlers

import (
	"errors"
	"fmt"
	"strings"

	"stockroom/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// listingPath is where clients are sent after a successful create or edit.
const listingPath = "/"

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
	listing *services.ListingService
	logger  *zap.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, listing *services.ListingService, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{
		service: service,
		listing: listing,
		logger:  logger,
	}
}

// RegisterRoutes registers the product routes. guard wraps every route that
// changes data; reads are always public.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, guard fiber.Handler) {
	router.Get("/dashboard", h.HandleDashboard)

	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Post("/", guard, h.HandleCreateProduct)
	productRoutes.Put("/:id", guard, h.HandleEditProduct)
	productRoutes.Patch("/:id/stock", guard, h.HandleAdjustStock)
	productRoutes.Delete("/:id", guard, h.HandleDeleteProduct)
}

// HandleDashboard returns the listing together with inventory totals.
func (h *ProductHandler) HandleDashboard(c *fiber.Ctx) error {
	listing, err := h.listing.GetListing()
	if err != nil {
		return h.internalError(c, "Could not retrieve products", err)
	}
	return c.JSON(listing)
}

// HandleGetProducts retrieves all products, newest first.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	listing, err := h.listing.GetListing()
	if err != nil {
		return h.internalError(c, "Could not retrieve products", err)
	}
	return c.JSON(listing.Products)
}

// HandleGetProductByID retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	productID := c.Params("id")
	product, err := h.service.GetProductByID(productID)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return notFound(c, productID)
		}
		return h.internalError(c, "Could not retrieve product", err)
	}
	return c.JSON(product)
}

// HandleCreateProduct creates a new product from a JSON or form body.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	raw, err := rawInput(c)
	if err != nil {
		return badBody(c, err)
	}

	product, err := h.service.CreateProductFromForm(raw)
	if err != nil {
		if verr, ok := services.IsValidationError(err); ok {
			return validationFailed(c, verr)
		}
		return h.internalError(c, "Could not create product", err)
	}

	c.Location(listingPath)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Product created",
		"redirect": listingPath,
		"product":  product,
	})
}

// HandleEditProduct replaces every field of an existing product.
func (h *ProductHandler) HandleEditProduct(c *fiber.Ctx) error {
	productID := c.Params("id")
	raw, err := rawInput(c)
	if err != nil {
		return badBody(c, err)
	}

	product, err := h.service.EditProductFromForm(productID, raw)
	if err != nil {
		if verr, ok := services.IsValidationError(err); ok {
			return validationFailed(c, verr)
		}
		if errors.Is(err, services.ErrProductNotFound) {
			return notFound(c, productID)
		}
		return h.internalError(c, "Could not update product", err)
	}

	return c.JSON(fiber.Map{
		"message":  "Product updated",
		"redirect": listingPath,
		"product":  product,
	})
}

// HandleAdjustStock writes an absolute stock value. Negative targets are
// accepted and ignored.
func (h *ProductHandler) HandleAdjustStock(c *fiber.Ctx) error {
	productID := c.Params("id")
	raw, err := rawInput(c)
	if err != nil {
		return badBody(c, err)
	}

	value, present := raw[services.FieldStock]
	stock, problem := services.ParseStock(value)
	if !present || value == nil {
		problem = "Stock is required"
	}
	if problem != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  fiber.Map{services.FieldStock: problem},
		})
	}

	if _, err := h.service.AdjustStock(productID, stock); err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			return notFound(c, productID)
		}
		return h.internalError(c, "Could not adjust stock", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleDeleteProduct deletes a product. Deleting an unknown id succeeds.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	if err := h.service.DeleteProduct(c.Params("id")); err != nil {
		return h.internalError(c, "Could not delete product", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// rawInput reads a JSON, urlencoded or multipart body into untyped values.
func rawInput(c *fiber.Ctx) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))

	switch {
	case c.Is("json"):
		if err := c.BodyParser(&raw); err != nil {
			return nil, err
		}
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		for key, values := range form.Value {
			if len(values) > 0 {
				raw[key] = values[0]
			}
		}
	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			raw[string(key)] = string(value)
		})
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
	return raw, nil
}

func validationFailed(c *fiber.Ctx, verr *services.ValidationError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  verr.Map(),
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

func notFound(c *fiber.Ctx, productID string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": fmt.Sprintf("Product with ID %s not found", productID),
	})
}

func (h *ProductHandler) internalError(c *fiber.Ctx, message string, err error) error {
	h.logger.Error(message, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
