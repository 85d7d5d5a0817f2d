package models

import (
	"time"

	"gorm.io/gorm"
)

// RequiredField is a per-product, checkout-time data requirement the customer
// must supply before the line item can be ordered (e.g. "account email").
type RequiredField struct {
	Label       string `json:"label"`
	Type        string `json:"type"` // "text", "email", ...
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
}

// Product represents a catalog product. The catalog CRUD itself lives in the
// admin back-office; this model exists so checkout can resolve prices and
// required-field definitions.
type Product struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"not null" json:"name"`
	Price          float64         `gorm:"not null" json:"price"`
	Currency       string          `gorm:"not null;default:'VND'" json:"currency"`
	BillingCycle   string          `json:"billing_cycle"`
	Category       string          `gorm:"index" json:"category"`
	Stock          int             `json:"stock"`
	RequiredFields []RequiredField `gorm:"serializer:json" json:"required_fields,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}
