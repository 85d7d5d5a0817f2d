package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/aistore-vn/aistore-api/models"
)

// ErrReconciliationLookup marks a transient provider-query failure. The local
// order state is never mutated when it is returned; callers display the last
// known persisted status and may retry later.
var ErrReconciliationLookup = errors.New("payment provider lookup failed")

// ErrOrderCodeNotFound is returned when a provider order code cannot be
// resolved to an internal order
var ErrOrderCodeNotFound = errors.New("no order with this provider order code")

// ReconcileOrderPayment queries the payment provider for the live status of
// an order's payment and applies it to the order record.
//
// The call is idempotent: an order whose payment status is already settled is
// returned unchanged, and the underlying write is conditioned on
// payment_status still being pending, so concurrent reconciliations (a poll
// racing a redirect-triggered call) cannot regress a settled order.
func ReconcileOrderPayment(db *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := db.Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, err
	}

	// Settled orders and orders without a provider correlation code have
	// nothing to reconcile
	if order.PaymentStatus != models.PaymentStatusPending || order.PayosOrderCode == nil {
		return &order, nil
	}

	info, err := GetPayOSService().GetPaymentInfo(*order.PayosOrderCode)
	if err != nil {
		return &order, fmt.Errorf("%w: %v", ErrReconciliationLookup, err)
	}

	target, settled := mapProviderStatus(info.Status)
	if !settled {
		// Still pending on the provider side; no change
		return &order, nil
	}

	// Conditional update: only the first reconciliation to observe a settled
	// provider status moves the order off pending. RowsAffected == 0 means
	// another call already settled it.
	result := db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", order.ID, models.PaymentStatusPending).
		Update("payment_status", target)
	if result.Error != nil {
		return &order, result.Error
	}

	if result.RowsAffected > 0 {
		log.Printf("Order %d payment reconciled: %s (provider status %s)", order.ID, target, info.Status)
		pattern := EventPaymentPaid
		if target == models.PaymentStatusFailed {
			pattern = EventPaymentFailed
		}
		PublishOrderEvent(pattern, map[string]interface{}{
			"order_id":         order.ID,
			"payos_order_code": *order.PayosOrderCode,
			"provider_status":  info.Status,
			"amount_paid":      info.AmountPaid,
		})
	}

	// Re-read so the caller sees the canonical state whichever call won
	if err := db.Preload("Items").First(&order, orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// ReconcileOrderByCode resolves a provider order code to the internal order
// and reconciles it. Used by the payment webhook and the hosted-page redirect
// that only carries the provider's code.
func ReconcileOrderByCode(db *gorm.DB, orderCode int64) (*models.Order, error) {
	var order models.Order
	err := db.Where("payos_order_code = ?", orderCode).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return ReconcileOrderPayment(db, order.ID)
}

// mapProviderStatus translates a provider payment status into the local
// payment axis. The second return value reports whether the status is
// terminal; non-terminal statuses leave the order pending.
func mapProviderStatus(status string) (models.PaymentStatus, bool) {
	switch status {
	case PayOSStatusPaid:
		return models.PaymentStatusPaid, true
	case PayOSStatusCancelled, PayOSStatusExpired:
		return models.PaymentStatusFailed, true
	default:
		return models.PaymentStatusPending, false
	}
}
