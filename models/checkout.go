package models

import (
	"fmt"
	"strings"
)

// CheckoutCustomer is the customer contact block of a checkout submission
type CheckoutCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// CheckoutItem is one cart line submitted at checkout
type CheckoutItem struct {
	ProductID          uint                `json:"product_id"`
	Name               string              `json:"name"`
	Price              float64             `json:"price"`
	Currency           string              `json:"currency"`
	Quantity           int                 `json:"quantity"`
	RequiredFieldsData []RequiredFieldData `json:"required_fields_data,omitempty"`
}

// CheckoutRequest is the full checkout submission. TotalAmount is advisory
// only; the authoritative total is computed server-side from the items.
type CheckoutRequest struct {
	Customer    CheckoutCustomer `json:"customer"`
	Items       []CheckoutItem   `json:"items"`
	TotalAmount float64          `json:"total_amount"`
	Note        string           `json:"note,omitempty"`
}

// ValidationError reports invalid checkout input. Nothing is persisted when
// validation fails.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks the checkout submission against the catalog's required-field
// definitions. products maps product id to its catalog definition; items whose
// product is missing from the map carry no required fields.
//
// Validation fails fast on the first missing required field and reports that
// field's label, so the user sees one error at a time in definition order.
func (r *CheckoutRequest) Validate(products map[uint]*Product) error {
	if strings.TrimSpace(r.Customer.Name) == "" {
		return &ValidationError{Field: "name", Message: "customer name is required"}
	}
	if strings.TrimSpace(r.Customer.Email) == "" {
		return &ValidationError{Field: "email", Message: "customer email is required"}
	}
	if strings.TrimSpace(r.Customer.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "customer phone is required"}
	}
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Message: "cart is empty"}
	}

	for _, item := range r.Items {
		if item.Quantity < 1 {
			return &ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("quantity for %q must be at least 1", item.Name),
			}
		}
		if item.Price < 0 {
			return &ValidationError{
				Field:   "price",
				Message: fmt.Sprintf("price for %q must not be negative", item.Name),
			}
		}

		product := products[item.ProductID]
		if product == nil {
			continue
		}
		for _, field := range product.RequiredFields {
			if !field.Required {
				continue
			}
			if strings.TrimSpace(item.valueFor(field.Label)) == "" {
				return &ValidationError{
					Field:   field.Label,
					Message: fmt.Sprintf("please fill in %q for %q", field.Label, item.Name),
				}
			}
		}
	}

	return nil
}

// ComputeTotal returns the authoritative order total: the sum of
// price * quantity across all items. The client-submitted TotalAmount is
// deliberately ignored.
func (r *CheckoutRequest) ComputeTotal() float64 {
	var total float64
	for _, item := range r.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

func (i *CheckoutItem) valueFor(label string) string {
	for _, data := range i.RequiredFieldsData {
		if data.Label == label {
			return data.Value
		}
	}
	return ""
}
