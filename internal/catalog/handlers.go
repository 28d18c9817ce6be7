package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/msall/kaalis/internal/validation"
)

// Handler provides HTTP endpoints for catalog management.
type Handler struct {
	store Store
}

// NewHandler creates a new catalog handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up catalog routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/items", h.CreateItem)
	r.GET("/items", h.ListItems)
	r.GET("/items/:id", h.GetItem)
}

// CreateItem handles POST /v1/items
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "id, name and price are required",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidID("id", req.ID),
		validation.MaxLength("name", req.Name, validation.MaxStringLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
		})
		return
	}
	if req.Price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_price",
			"message": "price must be positive",
		})
		return
	}

	item := &Item{ID: req.ID, Name: validation.SanitizeString(req.Name, validation.MaxStringLength), Price: req.Price}
	if err := h.store.Create(c.Request.Context(), item); err != nil {
		if errors.Is(err, ErrItemExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "item_exists",
				"message": "An item with this id already exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create item",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// GetItem handles GET /v1/items/:id
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "item_not_found",
				"message": "No item with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load item",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// ListItems handles GET /v1/items
func (h *Handler) ListItems(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list items",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"count": len(items),
	})
}
