package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// OrderStatus is the fulfillment workflow axis of an order. Transitions are
// monotonic forward along pending -> confirmed -> processing -> completed,
// with cancelled reachable from any non-terminal state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus is the payment axis, independent from OrderStatus. It only
// moves pending -> paid or pending -> failed; settled values are never
// reversed by reconciliation.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// RequiredFieldData is a label/value pair collected at checkout for a
// product's required fields.
type RequiredFieldData struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ItemFeedback is post-fulfillment customer feedback on a line item,
// settable at most once per item and only after the order is completed.
type ItemFeedback struct {
	Rating    int       `json:"rating"` // 1-5
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderItem is a line item on an order
type OrderItem struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	OrderID            uint                `gorm:"not null;index" json:"order_id"`
	ProductID          uint                `gorm:"not null" json:"product_id"`
	Name               string              `gorm:"not null" json:"name"`
	Price              float64             `gorm:"not null" json:"price"`
	Currency           string              `gorm:"not null;default:'VND'" json:"currency"`
	Quantity           int                 `gorm:"not null;check:quantity > 0" json:"quantity"`
	RequiredFieldsData []RequiredFieldData `gorm:"serializer:json" json:"required_fields_data,omitempty"`
	Feedback           *ItemFeedback       `gorm:"serializer:json" json:"feedback,omitempty"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// Order represents a customer order in the system
type Order struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	CustomerID    uint        `gorm:"not null;index" json:"customer_id"`
	Customer      User        `gorm:"foreignKey:CustomerID" json:"customer"`
	CustomerName  string      `gorm:"not null" json:"customer_name"`
	CustomerEmail string      `gorm:"not null" json:"customer_email"`
	CustomerPhone string      `gorm:"not null" json:"customer_phone"`
	Items         []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
	TotalAmount   float64     `gorm:"not null" json:"total_amount"` // server-computed sum of price*quantity

	OrderStatus   OrderStatus   `gorm:"not null;default:'pending';index" json:"order_status"`
	PaymentStatus PaymentStatus `gorm:"not null;default:'pending';index" json:"payment_status"`

	Note       string `json:"note"`        // customer-supplied, free text
	AdminNotes string `json:"admin_notes"` // internal, not part of the state machine

	// Lifecycle timestamps, each set exactly once by its transition
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedByID *uint      `gorm:"index" json:"confirmed_by_id,omitempty"`
	ConfirmedBy   *User      `gorm:"foreignKey:ConfirmedByID" json:"confirmed_by,omitempty"`
	ProcessingAt  *time.Time `json:"processing_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	// PayOS correlation fields, populated only when a payment link was
	// successfully created. Immutable once set; their absence is a valid,
	// recoverable state.
	PayosOrderCode *int64 `gorm:"uniqueIndex" json:"payos_order_code,omitempty"`
	PaymentLinkID  string `json:"payment_link_id,omitempty"`
	CheckoutURL    string `json:"checkout_url,omitempty"`
	QRCode         string `json:"qr_code,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// StateTransitionError reports an order-status transition whose precondition
// does not hold. It carries the current and required status so callers can
// render status-specific guidance.
type StateTransitionError struct {
	Action   string
	Current  OrderStatus
	Required OrderStatus
}

func (e *StateTransitionError) Error() string {
	if e.Required == "" {
		return fmt.Sprintf("cannot %s order: status is %q, which admits no further transitions", e.Action, e.Current)
	}
	return fmt.Sprintf("cannot %s order: status is %q, requires %q", e.Action, e.Current, e.Required)
}

// IsTerminal reports whether the order admits no further status transitions
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Confirm moves the order from pending to confirmed and records when and by
// whom. The timestamp and actor are set exactly once, only here.
func (o *Order) Confirm(adminID uint, now time.Time) error {
	if o.OrderStatus != OrderStatusPending {
		return &StateTransitionError{Action: "confirm", Current: o.OrderStatus, Required: OrderStatusPending}
	}
	o.OrderStatus = OrderStatusConfirmed
	o.ConfirmedAt = &now
	o.ConfirmedByID = &adminID
	return nil
}

// StartProcessing moves the order from confirmed to processing
func (o *Order) StartProcessing(now time.Time) error {
	if o.OrderStatus != OrderStatusConfirmed {
		return &StateTransitionError{Action: "start processing", Current: o.OrderStatus, Required: OrderStatusConfirmed}
	}
	o.OrderStatus = OrderStatusProcessing
	o.ProcessingAt = &now
	return nil
}

// Complete moves the order from processing to completed. Completion does not
// require the payment axis to be settled: bank-transfer orders are completed
// manually while paymentStatus may still be pending.
func (o *Order) Complete(now time.Time) error {
	if o.OrderStatus != OrderStatusProcessing {
		return &StateTransitionError{Action: "complete", Current: o.OrderStatus, Required: OrderStatusProcessing}
	}
	o.OrderStatus = OrderStatusCompleted
	o.CompletedAt = &now
	return nil
}

// Cancel moves the order to cancelled from any non-terminal state. There is
// no single required status, so the rejection leaves Required empty.
func (o *Order) Cancel() error {
	if o.OrderStatus.IsTerminal() {
		return &StateTransitionError{Action: "cancel", Current: o.OrderStatus}
	}
	o.OrderStatus = OrderStatusCancelled
	return nil
}

// HasPaymentLink reports whether a payment link was successfully created for
// this order
func (o *Order) HasPaymentLink() bool {
	return o.PayosOrderCode != nil && o.CheckoutURL != ""
}

// FeedbackError reports why per-item feedback cannot be recorded
type FeedbackError struct {
	Reason string
}

func (e *FeedbackError) Error() string {
	return e.Reason
}

// SetItemFeedback records customer feedback on the line item with the given
// id. Feedback is only accepted on completed orders, at most once per item,
// with a rating between 1 and 5.
func (o *Order) SetItemFeedback(itemID uint, rating int, comment string, now time.Time) error {
	if o.OrderStatus != OrderStatusCompleted {
		return &FeedbackError{Reason: "feedback is only accepted on completed orders"}
	}
	if rating < 1 || rating > 5 {
		return &FeedbackError{Reason: "rating must be between 1 and 5"}
	}
	for i := range o.Items {
		if o.Items[i].ID != itemID {
			continue
		}
		if o.Items[i].Feedback != nil {
			return &FeedbackError{Reason: "feedback has already been submitted for this item"}
		}
		o.Items[i].Feedback = &ItemFeedback{Rating: rating, Comment: comment, CreatedAt: now}
		return nil
	}
	return &FeedbackError{Reason: "item not found on this order"}
}
