package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aistore-vn/aistore-api/config"
	"github.com/aistore-vn/aistore-api/models"
	"github.com/aistore-vn/aistore-api/services"
	"github.com/aistore-vn/aistore-api/utils"
)

// CreatePaymentLinkRequest represents the request body for the payment-link
// retry endpoint
type CreatePaymentLinkRequest struct {
	OrderID uint `json:"orderId" binding:"required"`
}

// CreatePaymentLink handles POST /api/v1/payos/create-payment - the retry
// path for orders whose payment link was never set up, and an idempotent
// re-read for orders that already have one.
//
// Once correlation fields are stored they are immutable: repeated calls
// return the existing link rather than minting a new provider order code.
func CreatePaymentLink(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreatePaymentLinkRequest
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
	order, ok := findOrder(c, db, strconv.FormatUint(uint64(req.OrderID), 10))
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

	if order.PaymentStatus != models.PaymentStatusPending {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PAYMENT_ALREADY_SETTLED",
				"message": fmt.Sprintf("Payment is already %s for this order", order.PaymentStatus),
			},
		})
		return
	}

	// The order code alone is the correlation key: once one is stored it is
	// never re-minted, even if the provider handed back an empty checkout URL.
	if order.PayosOrderCode != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"orderCode":     *order.PayosOrderCode,
				"paymentLinkId": order.PaymentLinkID,
				"checkoutUrl":   order.CheckoutURL,
				"qrCode":        order.QRCode,
			},
		})
		return
	}

	orderCode := utils.GenerateOrderCode()
	link, err := services.GetPayOSService().CreatePaymentLink(services.CreatePaymentLinkRequest{
		OrderCode:   orderCode,
		Amount:      int64(order.TotalAmount),
		Description: fmt.Sprintf("AISTORE DH%d", order.ID),
	})
	if err != nil {
		log.Printf("Payment link retry failed for order %d: %v", order.ID, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PAYMENT_LINK_FAILED",
				"message": "Failed to create payment link. Please try again later.",
			},
		})
		return
	}

	updates := map[string]interface{}{
		"payos_order_code": orderCode,
		"payment_link_id":  link.PaymentLinkID,
		"checkout_url":     link.CheckoutURL,
		"qr_code":          link.QRCode,
	}
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to save payment link",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"orderCode":     orderCode,
			"paymentLinkId": link.PaymentLinkID,
			"checkoutUrl":   link.CheckoutURL,
			"qrCode":        link.QRCode,
		},
	})
}

// GetPaymentInfo handles GET /api/v1/payos/payment-info/:id - the provider's
// view of an order's payment, alongside the local record
func GetPaymentInfo(c *gin.Context) {
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

	if order.PayosOrderCode == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NO_PAYMENT_LINK",
				"message": "This order has no payment link",
			},
		})
		return
	}

	info, err := services.GetPayOSService().GetPaymentInfo(*order.PayosOrderCode)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PAYMENT_LOOKUP_FAILED",
				"message": "Failed to look up payment status with the provider",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"order":   order,
			"payment": info,
		},
	})
}

// GetOrderByCode handles GET /api/v1/payos/order-by-code/:code - resolves a
// provider order code back to the internal order, for return-flow pages that
// only carry the provider's identifier
func GetOrderByCode(c *gin.Context) {
	orderCode, err := strconv.ParseInt(c.Param("code"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid order code",
			},
		})
		return
	}

	db := config.GetDB()
	var order models.Order
	if err := db.Where("payos_order_code = ?", orderCode).First(&order).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PROVIDER_CODE_NOT_FOUND",
				"message": "No order matches this payment code",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"orderId":       order.ID,
			"orderStatus":   order.OrderStatus,
			"paymentStatus": order.PaymentStatus,
		},
	})
}

// webhookPayload mirrors the provider's webhook envelope
type webhookPayload struct {
	Code      string                 `json:"code"`
	Desc      string                 `json:"desc"`
	Success   bool                   `json:"success"`
	Data      map[string]interface{} `json:"data"`
	Signature string                 `json:"signature"`
}

// HandleWebhook handles POST /api/v1/payos/webhook - the provider's push
// notification of a payment outcome. The signature is verified before any
// state is touched; reconciliation itself is idempotent, so redelivery of the
// same webhook is harmless.
func HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Failed to read request body",
			},
		})
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid webhook payload",
			},
		})
		return
	}

	if !services.GetPayOSService().VerifyWebhook(payload.Data, payload.Signature) {
		log.Printf("Webhook rejected: invalid signature")
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_SIGNATURE",
				"message": "Webhook signature verification failed",
			},
		})
		return
	}

	rawCode, ok := payload.Data["orderCode"]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Webhook payload missing orderCode",
			},
		})
		return
	}
	orderCode, ok := numericOrderCode(rawCode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Webhook orderCode is not numeric",
			},
		})
		return
	}

	db := config.GetDB()
	order, err := services.ReconcileOrderByCode(db, orderCode)
	if err != nil {
		if errors.Is(err, services.ErrOrderCodeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "PROVIDER_CODE_NOT_FOUND",
					"message": "No order matches this payment code",
				},
			})
			return
		}
		log.Printf("Webhook reconciliation failed for code %d: %v", orderCode, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "RECONCILIATION_FAILED",
				"message": "Failed to reconcile payment status",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"orderId":       order.ID,
			"paymentStatus": order.PaymentStatus,
		},
	})
}

// numericOrderCode coerces the JSON-decoded orderCode field to int64
func numericOrderCode(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case json.Number:
		code, err := n.Int64()
		return code, err == nil
	case string:
		code, err := strconv.ParseInt(n, 10, 64)
		return code, err == nil
	default:
		return 0, false
	}
}
