package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aistore-vn/aistore-api/config"
	"github.com/aistore-vn/aistore-api/middleware"
	"github.com/aistore-vn/aistore-api/models"
	"github.com/aistore-vn/aistore-api/services"
	"github.com/aistore-vn/aistore-api/utils"
)

// CreateOrder handles POST /api/v1/orders - checkout submission (customers only).
//
// The order is persisted first, then a payment link is requested from the
// provider. Provider failure after persistence is a partial success: the
// response still carries the created order, plus a distinct warning so the
// client can offer a retry path instead of implying the order was lost.
func CreateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != "customer" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only customers can place orders",
			},
		})
		return
	}

	var req models.CheckoutRequest
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

	db := config.GetDB()

	// Resolve catalog definitions for required-field validation
	productIDs := make([]uint, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	products, err := services.GetProductsForCheckout(c.Request.Context(), db, productIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load product definitions",
			},
		})
		return
	}

	// Validation failure aborts before persistence - nothing is created
	if err := req.Validate(products); err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": validationErr.Message,
					"field":   validationErr.Field,
				},
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": err.Error(),
			},
		})
		return
	}

	// The client-submitted total is advisory only
	total := req.ComputeTotal()

	order := models.Order{
		CustomerID:    user.ID,
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
		TotalAmount:   total,
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Note:          req.Note,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:          item.ProductID,
			Name:               item.Name,
			Price:              item.Price,
			Currency:           item.Currency,
			Quantity:           item.Quantity,
			RequiredFieldsData: item.RequiredFieldsData,
		})
	}

	if err := db.Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create order",
			},
		})
		return
	}

	services.PublishOrderEvent(services.EventOrderCreated, map[string]interface{}{
		"order_id":     order.ID,
		"customer_id":  user.ID,
		"total_amount": order.TotalAmount,
	})

	// The order exists from here on; payment-link creation may still fail
	linkWarning := attachPaymentLink(db, &order)

	if err := db.Preload("Items").Preload("Customer").First(&order, order.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load order details",
			},
		})
		return
	}

	response := gin.H{
		"success": true,
		"data":    order,
	}
	if order.CheckoutURL != "" {
		response["checkout_url"] = order.CheckoutURL
	}
	if linkWarning != nil {
		response["warning"] = linkWarning
	}

	c.JSON(http.StatusCreated, response)
}

// attachPaymentLink requests a payment link for a freshly created order and
// stores the correlation fields on success. On failure it returns the warning
// payload for the response; the order itself is left untouched.
func attachPaymentLink(db *gorm.DB, order *models.Order) gin.H {
	orderCode := utils.GenerateOrderCode()
	link, err := services.GetPayOSService().CreatePaymentLink(services.CreatePaymentLinkRequest{
		OrderCode:   orderCode,
		Amount:      int64(order.TotalAmount),
		Description: fmt.Sprintf("AISTORE DH%d", order.ID),
	})
	if err != nil {
		log.Printf("Payment link creation failed for order %d: %v", order.ID, err)
		return gin.H{
			"code":    "PAYMENT_LINK_FAILED",
			"message": "Your order was created but the payment link could not be set up. You can retry payment or contact support.",
		}
	}

	updates := map[string]interface{}{
		"payos_order_code": orderCode,
		"payment_link_id":  link.PaymentLinkID,
		"checkout_url":     link.CheckoutURL,
		"qr_code":          link.QRCode,
	}
	if err := db.Model(order).Updates(updates).Error; err != nil {
		log.Printf("Failed to store payment link for order %d: %v", order.ID, err)
		return gin.H{
			"code":    "PAYMENT_LINK_FAILED",
			"message": "Your order was created but the payment link could not be saved. You can retry payment or contact support.",
		}
	}

	return nil
}

// GetOrder handles GET /api/v1/orders/:id - the order-detail view, including
// the two return paths from the provider's hosted checkout page.
//
// Entry paths, distinguished by the "payment" query marker:
//   - "success": the user came back from a completed payment; reconcile
//     unconditionally so the canonical state is shown.
//   - "cancelled": the user abandoned payment; never reconcile.
//   - no marker: reconcile once iff payment is still pending and no payment
//     link is stored, to pick up a payment that settled out of band.
//
// The consumed marker is echoed back so the client strips it from the visible
// URL and a refresh does not re-trigger reconciliation.
func GetOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	order, ok := findOrder(c, db, c.Param("id"))
	if !ok {
		return
	}

	if order.CustomerID != user.ID && !user.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to access this order",
			},
		})
		return
	}

	marker := c.Query("payment")
	shouldReconcile := false
	switch marker {
	case "success":
		shouldReconcile = true
	case "cancelled":
		// Explicit abandonment: keep local state as-is
	default:
		shouldReconcile = order.PaymentStatus == models.PaymentStatusPending && !order.HasPaymentLink()
	}

	if shouldReconcile {
		reconciled, err := services.ReconcileOrderPayment(db, order.ID)
		if err != nil {
			// Lookup failures never mutate local state; show what we have
			log.Printf("Reconciliation failed for order %d: %v", order.ID, err)
		}
		if reconciled != nil {
			order = reconciled
		}
	}

	response := gin.H{
		"success": true,
		"data":    order,
	}
	if marker == "success" || marker == "cancelled" {
		response["payment_marker_consumed"] = marker
	}

	c.JSON(http.StatusOK, response)
}

// ListOrders handles GET /api/v1/orders - lists the calling customer's own
// orders, newest first, paginated
func ListOrders(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	db := config.GetDB()
	query := db.Model(&models.Order{}).Where("customer_id = ?", user.ID)

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
	err := query.Preload("Items").
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

// SubmitItemFeedbackRequest represents the request body for per-item feedback
type SubmitItemFeedbackRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// SubmitItemFeedback handles POST /api/v1/orders/:id/items/:itemId/feedback.
// Feedback is only accepted on completed orders and at most once per item.
func SubmitItemFeedback(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	order, ok := findOrder(c, db, c.Param("id"))
	if !ok {
		return
	}

	if order.CustomerID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have permission to access this order",
			},
		})
		return
	}

	itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid item id",
			},
		})
		return
	}

	var req SubmitItemFeedbackRequest
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

	if err := order.SetItemFeedback(uint(itemID), req.Rating, req.Comment, nowFunc()); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FEEDBACK_REJECTED",
				"message": err.Error(),
			},
		})
		return
	}

	// Persist only the touched item
	for i := range order.Items {
		if order.Items[i].ID == uint(itemID) {
			if err := db.Save(&order.Items[i]).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "DATABASE_ERROR",
						"message": "Failed to save feedback",
					},
				})
				return
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// nowFunc is swapped out in tests to control transition timestamps
var nowFunc = time.Now

// currentUser resolves the authenticated user's database record, writing the
// error response itself when that fails
func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()
	var user models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found. Please create a profile first.",
			},
		})
		return nil, false
	}

	return &user, true
}

// findOrder loads an order with its items and relations, writing the error
// response itself when the order does not exist
func findOrder(c *gin.Context, db *gorm.DB, id string) (*models.Order, bool) {
	var order models.Order
	err := db.Preload("Items").Preload("Customer").Preload("ConfirmedBy").First(&order, "id = ?", id).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return nil, false
	}
	return &order, true
}
