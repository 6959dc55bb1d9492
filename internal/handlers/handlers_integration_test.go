package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"stockroom/internal/cache"
	"stockroom/internal/events"
	"stockroom/internal/handlers"
	"stockroom/internal/middleware"
	"stockroom/internal/models"
	"stockroom/internal/repositories"
	"stockroom/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testOperator = "operator"
	testPassword = "s3cret-pass"
)

type counter struct{ n atomic.Int32 }

func (c *counter) InvalidateListing() { c.n.Add(1) }

type testEnv struct {
	app         *fiber.App
	invalidated *counter
	token       string
}

// setupApp builds a Fiber app over in-memory SQLite with operator auth enabled.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	productRepo := repositories.NewGORMProductRepository(db)
	listingCache := cache.NewMemoryListingCache(time.Minute)
	invalidated := &counter{}

	productService := services.NewProductService(productRepo, events.NewFanout(listingCache, invalidated), nil)
	listingService := services.NewListingService(productRepo, listingCache, nil)
	authService, err := services.NewAuthService(services.OperatorCredentials{
		Username: testOperator,
		Password: testPassword,
	}, "test_jwt_secret", time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService, nil).RegisterRoutes(apiV1)
	handlers.NewProductHandler(productService, listingService, nil).
		RegisterRoutes(apiV1, middleware.AuthRequired(authService, nil))

	env := &testEnv{app: app, invalidated: invalidated}
	env.token = env.login(t, testOperator, testPassword)
	return env
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	require.NotEmpty(t, body["token"])
	return body["token"]
}

// do sends a JSON request; withToken adds the operator bearer token.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}, withToken bool) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(t, req, withToken)
}

func (e *testEnv) send(t *testing.T, req *http.Request, withToken bool) *http.Response {
	t.Helper()
	if withToken {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

type productResponse struct {
	Message  string         `json:"message"`
	Redirect string         `json:"redirect"`
	Product  models.Product `json:"product"`
}

type validationResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func widgetBody() map[string]interface{} {
	return map[string]interface{}{
		"name":        "Widget",
		"price":       12.5,
		"stock":       200,
		"description": "Blue widget",
		"imageUrl":    "",
	}
}

func (e *testEnv) createWidget(t *testing.T) models.Product {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/products", widgetBody(), true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created productResponse
	decode(t, resp, &created)
	return created.Product
}

func TestAuthLogin(t *testing.T) {
	env := setupApp(t)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": testOperator,
		"password": "wrong",
	}, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": testOperator}, false)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body validationResponse
	decode(t, resp, &body)
	assert.Contains(t, body.Errors, "Password")
}

func TestMutationsRequireToken(t *testing.T) {
	env := setupApp(t)

	resp := env.do(t, http.MethodPost, "/api/v1/products", widgetBody(), false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/any", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Reads are public.
	resp = env.do(t, http.MethodGet, "/api/v1/products", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, env.invalidated.n.Load())
}

func TestProductLifecycle(t *testing.T) {
	env := setupApp(t)

	// --- Create ---
	resp := env.do(t, http.MethodPost, "/api/v1/products", widgetBody(), true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	var created productResponse
	decode(t, resp, &created)
	assert.Equal(t, "/", created.Redirect)
	assert.NotEmpty(t, created.Product.ID)
	assert.True(t, created.Product.Price.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, int32(1), env.invalidated.n.Load())

	id := created.Product.ID

	// --- Dashboard totals ---
	resp = env.do(t, http.MethodGet, "/api/v1/dashboard", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing models.Listing
	decode(t, resp, &listing)
	require.Len(t, listing.Products, 1)
	assert.Equal(t, 200, listing.TotalStock)
	assert.True(t, listing.TotalValue.Equal(decimal.NewFromInt(2500)))

	// --- Adjust stock ---
	resp = env.do(t, http.MethodPatch, "/api/v1/products/"+id+"/stock", map[string]int{"stock": 201}, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), env.invalidated.n.Load())

	// A negative target is accepted and ignored.
	resp = env.do(t, http.MethodPatch, "/api/v1/products/"+id+"/stock", map[string]int{"stock": -1}, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), env.invalidated.n.Load())

	resp = env.do(t, http.MethodGet, "/api/v1/dashboard", nil, false)
	decode(t, resp, &listing)
	assert.Equal(t, 201, listing.TotalStock)
	assert.True(t, listing.TotalValue.Equal(decimal.RequireFromString("2512.5")))

	// --- Edit ---
	edit := widgetBody()
	edit["name"] = "Widget Pro"
	edit["stock"] = 0
	resp = env.do(t, http.MethodPut, "/api/v1/products/"+id, edit, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated productResponse
	decode(t, resp, &updated)
	assert.Equal(t, "/", updated.Redirect)
	assert.Equal(t, id, updated.Product.ID)
	assert.Equal(t, "Widget Pro", updated.Product.Name)
	assert.Equal(t, 0, updated.Product.Stock)
	assert.Equal(t, int32(3), env.invalidated.n.Load())

	// --- Get by ID ---
	resp = env.do(t, http.MethodGet, "/api/v1/products/"+id, nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched models.Product
	decode(t, resp, &fetched)
	assert.Equal(t, "Widget Pro", fetched.Name)

	// --- Delete, twice ---
	resp = env.do(t, http.MethodDelete, "/api/v1/products/"+id, nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, "/api/v1/products/"+id, nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(5), env.invalidated.n.Load())

	resp = env.do(t, http.MethodGet, "/api/v1/products/"+id, nil, false)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/products", nil, false)
	var products []models.Product
	decode(t, resp, &products)
	assert.Empty(t, products)
}

func TestCreateProduct_ValidationErrors(t *testing.T) {
	env := setupApp(t)

	resp := env.do(t, http.MethodPost, "/api/v1/products", map[string]interface{}{
		"name":        "W",
		"price":       0,
		"stock":       2.5,
		"description": "Blue widget",
	}, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body validationResponse
	decode(t, resp, &body)
	assert.Equal(t, "Validation failed", body.Message)
	assert.Equal(t, "Name must be at least 2 characters", body.Errors["name"])
	assert.Equal(t, "Price must be at least 0.10", body.Errors["price"])
	assert.Equal(t, "Stock must be a whole number", body.Errors["stock"])
	assert.NotContains(t, body.Errors, "description")
	assert.Zero(t, env.invalidated.n.Load())

	out := widgetBody()
	out["price"] = "0.09999999999999999999"
	out["stock"] = "18446744073709551621"
	resp = env.do(t, http.MethodPost, "/api/v1/products", out, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body = validationResponse{}
	decode(t, resp, &body)
	assert.Equal(t, "Price must be at least 0.10", body.Errors["price"])
	assert.Equal(t, "Stock is too large", body.Errors["stock"])

	resp = env.do(t, http.MethodGet, "/api/v1/products", nil, false)
	var products []models.Product
	decode(t, resp, &products)
	assert.Empty(t, products)
}

func TestCreateProduct_FormBodies(t *testing.T) {
	env := setupApp(t)

	form := url.Values{}
	form.Set("name", "Gadget")
	form.Set("price", "0.10")
	form.Set("stock", "0")
	form.Set("description", "Tiny gadget")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp := env.send(t, req, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created productResponse
	decode(t, resp, &created)
	assert.Equal(t, "Gadget", created.Product.Name)
	assert.Equal(t, 0, created.Product.Stock)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"name":        "Gizmo",
		"price":       "3.99",
		"stock":       "7",
		"description": "Shiny gizmo",
		"imageUrl":    "https://img.example.com/gizmo.png",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/v1/products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp = env.send(t, req, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decode(t, resp, &created)
	assert.Equal(t, "https://img.example.com/gizmo.png", created.Product.ImageURL)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "text/plain")
	resp = env.send(t, req, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditProduct_Errors(t *testing.T) {
	env := setupApp(t)
	product := env.createWidget(t)

	resp := env.do(t, http.MethodPut, "/api/v1/products/missing", widgetBody(), true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	incomplete := widgetBody()
	delete(incomplete, "imageUrl")
	resp = env.do(t, http.MethodPut, "/api/v1/products/"+product.ID, incomplete, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body validationResponse
	decode(t, resp, &body)
	assert.Equal(t, "Image URL is required", body.Errors["imageUrl"])

	assert.Equal(t, int32(1), env.invalidated.n.Load())
}

func TestAdjustStock_Errors(t *testing.T) {
	env := setupApp(t)
	product := env.createWidget(t)

	resp := env.do(t, http.MethodPatch, "/api/v1/products/"+product.ID+"/stock", map[string]float64{"stock": 2.5}, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body validationResponse
	decode(t, resp, &body)
	assert.Equal(t, "Stock must be a whole number", body.Errors["stock"])

	resp = env.do(t, http.MethodPatch, "/api/v1/products/"+product.ID+"/stock", map[string]string{"stock": "18446744073709551621"}, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, "Stock is too large", body.Errors["stock"])

	resp = env.do(t, http.MethodPatch, "/api/v1/products/"+product.ID+"/stock", map[string]string{}, true)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &body)
	assert.Equal(t, "Stock is required", body.Errors["stock"])

	resp = env.do(t, http.MethodGet, "/api/v1/products/"+product.ID, nil, false)
	var fetched models.Product
	decode(t, resp, &fetched)
	assert.Equal(t, 200, fetched.Stock)

	resp = env.do(t, http.MethodPatch, "/api/v1/products/missing/stock", map[string]int{"stock": 3}, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, int32(1), env.invalidated.n.Load())
}

func TestDashboard_RefreshesAfterMutation(t *testing.T) {
	env := setupApp(t)

	var listing models.Listing
	resp := env.do(t, http.MethodGet, "/api/v1/dashboard", nil, false)
	decode(t, resp, &listing)
	assert.Empty(t, listing.Products)

	env.createWidget(t)

	resp = env.do(t, http.MethodGet, "/api/v1/dashboard", nil, false)
	decode(t, resp, &listing)
	assert.Len(t, listing.Products, 1)
}
