package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"catalog-rules-service/internal/domain"
	"catalog-rules-service/internal/engine"
	"catalog-rules-service/internal/rule"
	"catalog-rules-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// RuleRunner executes a rule run against stored products.
type RuleRunner interface {
	Run(ctx context.Context, req engine.RunRequest) (*engine.RunResult, error)
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	categoryStore store.CategoryStorer
	productStore  store.ProductStorer
	runner        RuleRunner
	validate      *validator.Validate
	logger        zerolog.Logger
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(cs store.CategoryStorer, ps store.ProductStorer, runner RuleRunner, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		categoryStore: cs,
		productStore:  ps,
		runner:        runner,
		validate:      validator.New(),
		logger:        logger.With().Str("component", "http").Logger(),
	}
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, ErrorResponse{Error: message})
}

func (h *HTTPHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil { // Avoid writing empty body for 204 No Content
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.logger.Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

func parseIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// --- Category Handlers ---

// CategoryCreateInput defines the expected input for creating a category.
type CategoryCreateInput struct {
	Code             string  `json:"code" validate:"required,max=100"`
	Name             string  `json:"name" validate:"required,max=255"`
	Description      *string `json:"description" validate:"omitempty"`
	ParentCategoryID *int64  `json:"parent_category_id" validate:"omitempty,gt=0"`
}

func (h *HTTPHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	category := &domain.Category{
		Code:             input.Code,
		Name:             input.Name,
		Description:      input.Description,
		ParentCategoryID: input.ParentCategoryID,
	}

	created, err := h.categoryStore.CreateCategory(r.Context(), category)
	if err != nil {
		h.logger.Error().Err(err).Str("code", input.Code).Msg("CreateCategory store operation failed")
		switch {
		case errors.Is(err, store.ErrCategoryCodeExists):
			h.respondWithError(w, http.StatusConflict, store.ErrCategoryCodeExists.Error())
		case errors.Is(err, store.ErrParentCategoryNotFound):
			h.respondWithError(w, http.StatusUnprocessableEntity, store.ErrParentCategoryNotFound.Error())
		default:
			h.respondWithError(w, http.StatusInternalServerError, "Failed to create category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, created)
}

// PaginationInfo describes a page of a listing.
type PaginationInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// CategoryListResponse is the body of GET /api/v1/categories.
type CategoryListResponse struct {
	Data       []domain.Category `json:"data"`
	Pagination PaginationInfo    `json:"pagination"`
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10 // Default limit
	}
	if limit > 100 { // Max limit
		limit = 100
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page <= 0 {
		page = 1 // Default page
	}

	params := store.ListCategoriesParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	categories, totalCount, err := h.categoryStore.ListCategories(r.Context(), params)
	if err != nil {
		h.logger.Error().Err(err).Msg("ListCategories store operation failed")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}

	totalPages := 0
	if totalCount > 0 {
		totalPages = (totalCount + limit - 1) / limit
	}

	h.respondWithJSON(w, http.StatusOK, CategoryListResponse{
		Data: categories,
		Pagination: PaginationInfo{
			Page:       page,
			Limit:      limit,
			TotalItems: totalCount,
			TotalPages: totalPages,
		},
	})
}

func (h *HTTPHandler) GetCategoryByID(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseIDParam(r, "categoryId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	category, err := h.categoryStore.GetCategoryByID(r.Context(), categoryID)
	if err != nil {
		if errors.Is(err, store.ErrCategoryNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
			return
		}
		h.logger.Error().Err(err).Int64("category_id", categoryID).Msg("GetCategoryByID store operation failed")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve category")
		return
	}

	h.respondWithJSON(w, http.StatusOK, category)
}

func (h *HTTPHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, ok := parseIDParam(r, "categoryId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid category ID format")
		return
	}

	if err := h.categoryStore.DeleteCategory(r.Context(), categoryID); err != nil {
		switch {
		case errors.Is(err, store.ErrCategoryNotFound):
			h.respondWithError(w, http.StatusNotFound, store.ErrCategoryNotFound.Error())
		case errors.Is(err, store.ErrCategoryInUse):
			h.respondWithError(w, http.StatusConflict, store.ErrCategoryInUse.Error())
		default:
			h.logger.Error().Err(err).Int64("category_id", categoryID).Msg("DeleteCategory store operation failed")
			h.respondWithError(w, http.StatusInternalServerError, "Failed to delete category")
		}
		return
	}

	h.respondWithJSON(w, http.StatusNoContent, nil)
}

// --- Product Handlers ---

func (h *HTTPHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(r, "productId")
	if !ok {
		h.respondWithError(w, http.StatusBadRequest, "Invalid product ID format")
		return
	}

	product, err := h.productStore.GetProductByID(r.Context(), productID)
	if err != nil {
		if errors.Is(err, store.ErrProductNotFound) {
			h.respondWithError(w, http.StatusNotFound, store.ErrProductNotFound.Error())
			return
		}
		h.logger.Error().Err(err).Int64("product_id", productID).Msg("GetProductByID store operation failed")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}

	h.respondWithJSON(w, http.StatusOK, product)
}

// --- Rule Handlers ---

// RuleInput is a rule definition: a code and its ordered actions.
type RuleInput struct {
	Code    string           `json:"code" validate:"required,max=255"`
	Actions []map[string]any `json:"actions"`
}

// RuleApplyInput defines the expected input for applying a rule.
type RuleApplyInput struct {
	ProductIDs []int64   `json:"product_ids" validate:"required,min=1,dive,gt=0"`
	Rule       RuleInput `json:"rule"`
	DryRun     bool      `json:"dry_run"`
}

func (h *HTTPHandler) ApplyRule(w http.ResponseWriter, r *http.Request) {
	var input RuleApplyInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	if err := h.validate.Struct(input); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	ruleToApply, err := rule.DecodeRule(input.Rule.Code, input.Rule.Actions)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid rule: "+err.Error())
		return
	}

	result, err := h.runner.Run(r.Context(), engine.RunRequest{
		ProductIDs: input.ProductIDs,
		Rule:       ruleToApply,
		DryRun:     input.DryRun,
	})
	if err != nil {
		code := httpStatusForRunError(err)
		if code == http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("rule", input.Rule.Code).Msg("ApplyRule failed")
			h.respondWithError(w, code, "Failed to apply rule")
			return
		}
		h.respondWithError(w, code, err.Error())
		return
	}

	h.respondWithJSON(w, http.StatusOK, result)
}

func httpStatusForRunError(err error) int {
	switch {
	case errors.Is(err, rule.ErrUnsupportedActionKind),
		errors.Is(err, rule.ErrInvalidAction),
		errors.Is(err, engine.ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, rule.ErrCategoryNotFound),
		errors.Is(err, store.ErrCategoryNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/categories", func(r chi.Router) {
		r.Post("/", h.CreateCategory) // POST /api/v1/categories
		r.Get("/", h.ListCategories)  // GET /api/v1/categories
		r.Route("/{categoryId}", func(r chi.Router) {
			r.Get("/", h.GetCategoryByID)   // GET /api/v1/categories/{categoryId}
			r.Delete("/", h.DeleteCategory) // DELETE /api/v1/categories/{categoryId}
		})
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/{productId}", h.GetProductByID) // GET /api/v1/products/{productId}
	})

	r.Post("/api/v1/rules/apply", h.ApplyRule) // POST /api/v1/rules/apply
}
