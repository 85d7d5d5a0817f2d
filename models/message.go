package models

import "time"

// SupportMessage is one message in an order's support thread. Customers use
// it to reach the shop about an order (for example after payment-link
// creation failed); admins reply on the same thread.
type SupportMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	SenderID  uint      `gorm:"not null" json:"sender_id"`
	Sender    User      `gorm:"foreignKey:SenderID" json:"sender"`
	Text      string    `gorm:"not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the SupportMessage model
func (SupportMessage) TableName() string {
	return "support_messages"
}
