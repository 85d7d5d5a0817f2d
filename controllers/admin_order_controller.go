package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aistore-vn/aistore-api/config"
	"github.com/aistore-vn/aistore-api/models"
	"github.com/aistore-vn/aistore-api/services"
)

// ListAllOrders handles GET /api/v1/admin/orders - the admin order table with
// optional status filters and customer search
func ListAllOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	db := config.GetDB()
	query := db.Model(&models.Order{})

	if orderStatus := c.Query("orderStatus"); orderStatus != "" {
		query = query.Where("order_status = ?", orderStatus)
	}
	if paymentStatus := c.Query("paymentStatus"); paymentStatus != "" {
		query = query.Where("payment_status = ?", paymentStatus)
	}
	if search := c.Query("search"); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("customer_name LIKE ? OR customer_email LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to count orders",
			},
		})
		return
	}

	var orders []models.Order
	err := query.Preload("Items").Preload("Customer").Preload("ConfirmedBy").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list orders",
			},
		})
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"pagination": gin.H{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": totalPages,
		},
	})
}

// ConfirmOrder handles PUT /api/v1/admin/orders/:id/confirm
func ConfirmOrder(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}

	transitionOrder(c, services.EventOrderConfirmed, func(order *models.Order) error {
		return order.Confirm(admin.ID, nowFunc())
	}, func(order *models.Order) map[string]interface{} {
		return map[string]interface{}{
			"order_status":    order.OrderStatus,
			"confirmed_at":    order.ConfirmedAt,
			"confirmed_by_id": order.ConfirmedByID,
		}
	})
}

// StartProcessingOrder handles PUT /api/v1/admin/orders/:id/processing
func StartProcessingOrder(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	transitionOrder(c, services.EventOrderProcessing, func(order *models.Order) error {
		return order.StartProcessing(nowFunc())
	}, func(order *models.Order) map[string]interface{} {
		return map[string]interface{}{
			"order_status":  order.OrderStatus,
			"processing_at": order.ProcessingAt,
		}
	})
}

// CompleteOrder handles PUT /api/v1/admin/orders/:id/complete
func CompleteOrder(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	transitionOrder(c, services.EventOrderCompleted, func(order *models.Order) error {
		return order.Complete(nowFunc())
	}, func(order *models.Order) map[string]interface{} {
		return map[string]interface{}{
			"order_status": order.OrderStatus,
			"completed_at": order.CompletedAt,
		}
	})
}

// CancelOrder handles PUT /api/v1/admin/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	transitionOrder(c, services.EventOrderCancelled, func(order *models.Order) error {
		return order.Cancel()
	}, func(order *models.Order) map[string]interface{} {
		return map[string]interface{}{
			"order_status": order.OrderStatus,
		}
	})
}

// transitionOrder applies a lifecycle transition and persists only the fields
// that transition owns, so concurrent admin edits to other fields survive.
// Invalid transitions map to 409 with the current and required statuses.
//
// The UPDATE is conditioned on the status the precondition was checked
// against; a concurrent transition landing in between makes it match zero
// rows, and the request conflicts instead of overwriting the newer state.
func transitionOrder(c *gin.Context, eventPattern string, apply func(*models.Order) error, fields func(*models.Order) map[string]interface{}) {
	db := config.GetDB()
	order, ok := findOrder(c, db, c.Param("id"))
	if !ok {
		return
	}

	priorStatus := order.OrderStatus
	if err := apply(order); err != nil {
		renderTransitionError(c, err)
		return
	}

	result := db.Model(&models.Order{}).
		Where("id = ? AND order_status = ?", order.ID, priorStatus).
		Updates(fields(order))
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to save order",
			},
		})
		return
	}
	if result.RowsAffected == 0 {
		// Lost the race. Re-check against the stored state so the conflict
		// reports the status that actually won.
		current, ok := findOrder(c, db, c.Param("id"))
		if !ok {
			return
		}
		if err := apply(current); err != nil {
			renderTransitionError(c, err)
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_STATUS_TRANSITION",
				"message": "Order was modified concurrently, please retry",
				"details": gin.H{
					"current": current.OrderStatus,
				},
			},
		})
		return
	}

	services.PublishOrderEvent(eventPattern, map[string]interface{}{
		"order_id":     order.ID,
		"order_status": order.OrderStatus,
	})

	reloaded, ok := findOrder(c, db, c.Param("id"))
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    reloaded,
	})
}

// renderTransitionError maps a failed transition precondition to a 409.
// Transitions without a single required status (cancel) omit "required".
func renderTransitionError(c *gin.Context, err error) {
	var transitionErr *models.StateTransitionError
	if !errors.As(err, &transitionErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to update order",
			},
		})
		return
	}

	details := gin.H{"current": transitionErr.Current}
	if transitionErr.Required != "" {
		details["required"] = transitionErr.Required
	}
	c.JSON(http.StatusConflict, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "INVALID_STATUS_TRANSITION",
			"message": transitionErr.Error(),
			"details": details,
		},
	})
}

// UpdateAdminNotesRequest represents the request body for admin notes
type UpdateAdminNotesRequest struct {
	AdminNotes string `json:"adminNotes"`
}

// UpdateAdminNotes handles PATCH /api/v1/admin/orders/:id/notes. Notes are
// independent of the state machine and writable in any status.
func UpdateAdminNotes(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	db := config.GetDB()
	order, ok := findOrder(c, db, c.Param("id"))
	if !ok {
		return
	}

	var req UpdateAdminNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("admin_notes", req.AdminNotes).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to save notes",
			},
		})
		return
	}

	order.AdminNotes = req.AdminNotes
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}
