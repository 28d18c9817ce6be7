package purchase

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/msall/kaalis/internal/pagination"
	"github.com/msall/kaalis/internal/paytech"
	"github.com/msall/kaalis/internal/validation"
)

// Handler provides HTTP endpoints for payment operations.
type Handler struct {
	initiator  *Initiator
	reconciler *Reconciler
	store      Store
}

// NewHandler creates a new payments handler.
func NewHandler(initiator *Initiator, reconciler *Reconciler, store Store) *Handler {
	return &Handler{initiator: initiator, reconciler: reconciler, store: store}
}

// RegisterRoutes sets up payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.InitiatePayment)
	r.POST("/payments/ipn", h.HandleNotification)
	r.GET("/payments/:ref", h.GetPayment)
	r.GET("/users/:id/purchases", h.ListUserPurchases)
}

// InitiatePayment handles POST /v1/payments
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId and itemId are required",
		})
		return
	}

	result, err := h.initiator.Initiate(c.Request.Context(), req.UserID, req.ItemID)
	if err != nil {
		status, code := initiateErrorStatus(err)
		c.JSON(status, gin.H{
			"error":   code,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

func initiateErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound, "item_not_found"
	case errors.Is(err, ErrInvalidPrice):
		return http.StatusUnprocessableEntity, "invalid_price"
	case errors.Is(err, ErrUpstreamProtocol):
		return http.StatusBadGateway, "upstream_protocol_error"
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, ErrStorage):
		return http.StatusInternalServerError, "storage_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// HandleNotification handles POST /v1/payments/ipn
//
// Status codes drive the provider's redelivery: any 2xx stops retries, so
// only outcomes that could succeed on a later attempt return non-2xx.
func (h *Handler) HandleNotification(c *gin.Context) {
	n, err := paytech.ParseNotification(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "rejected",
			"reason": string(ReasonMalformedCustomField),
		})
		return
	}

	outcome := h.reconciler.Reconcile(c.Request.Context(), n)
	switch outcome.Kind {
	case OutcomeConfirmed:
		c.JSON(http.StatusOK, gin.H{
			"status":     "confirmed",
			"refCommand": outcome.Purchase.RefCommand,
		})
	case OutcomeIgnored:
		c.JSON(http.StatusOK, gin.H{
			"status": "ignored",
			"reason": string(outcome.Reason),
		})
	default:
		c.JSON(rejectionStatus(outcome.Reason), gin.H{
			"status": "rejected",
			"reason": string(outcome.Reason),
		})
	}
}

func rejectionStatus(reason Reason) int {
	switch reason {
	case ReasonMalformedCustomField:
		return http.StatusBadRequest
	case ReasonInvalidSignature:
		return http.StatusUnauthorized
	case ReasonNoMatchingPending:
		return http.StatusNotFound
	case ReasonPersistFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// GetPayment handles GET /v1/payments/:ref
func (h *Handler) GetPayment(c *gin.Context) {
	ref := c.Param("ref")
	ctx := c.Request.Context()

	if confirmed, err := h.store.GetConfirmed(ctx, ref); err == nil {
		c.JSON(http.StatusOK, gin.H{"purchase": confirmed})
		return
	} else if !errors.Is(err, ErrConfirmedNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	if pending, err := h.store.GetPending(ctx, ref); err == nil {
		c.JSON(http.StatusOK, gin.H{"purchase": pending})
		return
	} else if !errors.Is(err, ErrPendingNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusNotFound, gin.H{
		"error":   "not_found",
		"message": "No purchase found for this reference",
	})
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListUserPurchases handles GET /v1/users/:id/purchases
func (h *Handler) ListUserPurchases(c *gin.Context) {
	userID := c.Param("id")
	if !validation.IsValidID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid user id",
		})
		return
	}

	limit := defaultPageSize
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = min(parsed, maxPageSize)
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}

	rows, err := h.store.ListConfirmedByUser(c.Request.Context(), userID, limit, cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list purchases",
		})
		return
	}

	page, next := pagination.Page(rows, limit, func(p *ConfirmedPurchase) (time.Time, string) {
		return p.CreatedAt, p.RefCommand
	})
	if page == nil {
		page = []*ConfirmedPurchase{}
	}

	resp := gin.H{
		"purchases": page,
		"count":     len(page),
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}
