package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/aistore-vn/aistore-api/config"
	"github.com/aistore-vn/aistore-api/models"
	"github.com/aistore-vn/aistore-api/services"
)

// seedCheckoutFixtures creates a customer and a catalog product that demands
// a "Gmail Address" before checkout
func seedCheckoutFixtures(t *testing.T, db *gorm.DB) (models.User, models.Product) {
	customer := models.User{
		Auth0ID: "auth0|customer123",
		Name:    "Customer User",
		Email:   "customer@example.com",
		Phone:   "+84901234567",
		Role:    "customer",
	}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("Failed to seed customer: %v", err)
	}

	product := models.Product{
		Name:     "AI Studio Pro",
		Price:    150000,
		Currency: "VND",
		Category: "ai-tools",
		Stock:    100,
		RequiredFields: []models.RequiredField{
			{Label: "Gmail Address", Type: "email", Required: true},
			{Label: "Referral Code", Type: "text", Required: false},
		},
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}

	return customer, product
}

func checkoutBody(product models.Product, fields []models.RequiredFieldData) map[string]interface{} {
	item := map[string]interface{}{
		"product_id": product.ID,
		"name":       product.Name,
		"price":      product.Price,
		"currency":   product.Currency,
		"quantity":   2,
	}
	if fields != nil {
		item["required_fields_data"] = fields
	}
	return map[string]interface{}{
		"customer": map[string]interface{}{
			"name":  "Customer User",
			"email": "customer@example.com",
			"phone": "+84901234567",
		},
		"items": []interface{}{item},
		// Deliberately wrong: the server must ignore this
		"total_amount": 1,
	}
}

func TestCreateOrder(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, product := seedCheckoutFixtures(t, db)

	admin := models.User{
		Auth0ID: "auth0|admin123",
		Name:    "Admin User",
		Email:   "admin@example.com",
		Role:    "admin",
	}
	db.Create(&admin)

	mock := services.NewMockPayOSService()
	mock.SetAsMockForTesting()
	services.NewMockEventPublisher().SetAsMockForTesting()

	gmailField := []models.RequiredFieldData{{Label: "Gmail Address", Value: "customer@gmail.com"}}

	tests := []struct {
		name           string
		auth0ID        string
		role           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, response map[string]interface{})
	}{
		{
			name:           "Successfully create order with payment link",
			auth0ID:        customer.Auth0ID,
			role:           "customer",
			requestBody:    checkoutBody(product, gmailField),
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				assert.True(t, response["success"].(bool))
				data := response["data"].(map[string]interface{})

				// Server-computed total: 150000 * 2, not the submitted 1
				assert.Equal(t, float64(300000), data["total_amount"])
				assert.Equal(t, "pending", data["order_status"])
				assert.Equal(t, "pending", data["payment_status"])
				assert.Equal(t, float64(customer.ID), data["customer_id"])
				assert.NotNil(t, data["payos_order_code"])
				assert.NotEmpty(t, data["checkout_url"])
				assert.NotEmpty(t, response["checkout_url"])
				assert.Nil(t, response["warning"])

				items := data["items"].([]interface{})
				assert.Len(t, items, 1)
				item := items[0].(map[string]interface{})
				assert.Equal(t, float64(2), item["quantity"])
			},
		},
		{
			name:           "Fail with missing required product field",
			auth0ID:        customer.Auth0ID,
			role:           "customer",
			requestBody:    checkoutBody(product, nil),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, "Gmail Address", errorData["field"])
				assert.Contains(t, errorData["message"], "Gmail Address")
			},
		},
		{
			name:    "Fail with missing customer phone",
			auth0ID: customer.Auth0ID,
			role:    "customer",
			requestBody: func() map[string]interface{} {
				body := checkoutBody(product, gmailField)
				body["customer"].(map[string]interface{})["phone"] = "  "
				return body
			}(),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
			checkResponse: func(t *testing.T, response map[string]interface{}) {
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, "phone", errorData["field"])
			},
		},
		{
			name:    "Fail with empty cart",
			auth0ID: customer.Auth0ID,
			role:    "customer",
			requestBody: map[string]interface{}{
				"customer": map[string]interface{}{
					"name":  "Customer User",
					"email": "customer@example.com",
					"phone": "+84901234567",
				},
				"items": []interface{}{},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:    "Fail with zero quantity",
			auth0ID: customer.Auth0ID,
			role:    "customer",
			requestBody: func() map[string]interface{} {
				body := checkoutBody(product, gmailField)
				body["items"].([]interface{})[0].(map[string]interface{})["quantity"] = 0
				return body
			}(),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Fail to create order as admin",
			auth0ID:        admin.Auth0ID,
			role:           "admin",
			requestBody:    checkoutBody(product, gmailField),
			expectedStatus: http.StatusForbidden,
			expectedError:  "FORBIDDEN",
		},
		{
			name:           "Fail with user not found",
			auth0ID:        "auth0|nonexistent",
			role:           "customer",
			requestBody:    checkoutBody(product, gmailField),
			expectedStatus: http.StatusNotFound,
			expectedError:  "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.POST("/orders",
				mockAuthMiddleware(tt.auth0ID, tt.role, "mock-token"),
				CreateOrder,
			)

			body, _ := json.Marshal(tt.requestBody)
			req, _ := http.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			err := json.Unmarshal(w.Body.Bytes(), &response)
			assert.NoError(t, err)

			if tt.expectedError != "" {
				assert.False(t, response["success"].(bool))
				errorData := response["error"].(map[string]interface{})
				assert.Equal(t, tt.expectedError, errorData["code"])
			}

			if tt.checkResponse != nil {
				tt.checkResponse(t, response)
			}
		})
	}
}

func TestCreateOrder_NothingPersistedOnValidationFailure(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, product := seedCheckoutFixtures(t, db)

	mock := services.NewMockPayOSService()
	mock.SetAsMockForTesting()

	router := setupTestRouter()
	router.POST("/orders",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		CreateOrder,
	)

	// Required field left empty
	body, _ := json.Marshal(checkoutBody(product, nil))
	req, _ := http.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var orderCount, itemCount int64
	db.Model(&models.Order{}).Count(&orderCount)
	db.Model(&models.OrderItem{}).Count(&itemCount)
	assert.Equal(t, int64(0), orderCount)
	assert.Equal(t, int64(0), itemCount)

	// The provider was never contacted
	assert.Empty(t, mock.CreateCalls())
}

func TestCreateOrder_PaymentLinkFailure(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, product := seedCheckoutFixtures(t, db)

	mock := services.NewMockPayOSService()
	mock.FailCreate = true
	mock.SetAsMockForTesting()

	router := setupTestRouter()
	router.POST("/orders",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		CreateOrder,
	)

	gmailField := []models.RequiredFieldData{{Label: "Gmail Address", Value: "customer@gmail.com"}}
	body, _ := json.Marshal(checkoutBody(product, gmailField))
	req, _ := http.NewRequest(http.MethodPost, "/orders", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Partial success: the order exists even though the payment link does not
	assert.Equal(t, http.StatusCreated, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.True(t, response["success"].(bool))

	warning := response["warning"].(map[string]interface{})
	assert.Equal(t, "PAYMENT_LINK_FAILED", warning["code"])

	data := response["data"].(map[string]interface{})
	assert.Nil(t, data["payos_order_code"])
	assert.Nil(t, response["checkout_url"])

	// The order is queryable afterwards
	var order models.Order
	err := db.First(&order, uint(data["id"].(float64))).Error
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
}

// seedOrder creates a persisted order with one item for return-flow and
// feedback tests
func seedOrder(t *testing.T, db *gorm.DB, customerID uint, mutate func(*models.Order)) models.Order {
	order := models.Order{
		CustomerID:    customerID,
		CustomerName:  "Customer User",
		CustomerEmail: "customer@example.com",
		CustomerPhone: "+84901234567",
		TotalAmount:   300000,
		OrderStatus:   models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		Items: []models.OrderItem{
			{
				ProductID: 1,
				Name:      "AI Studio Pro",
				Price:     150000,
				Currency:  "VND",
				Quantity:  2,
			},
		},
	}
	if mutate != nil {
		mutate(&order)
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("Failed to seed order: %v", err)
	}
	return order
}

func TestGetOrder_ReturnFlow(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	orderCode := int64(987654321)
	order := seedOrder(t, db, customer.ID, func(o *models.Order) {
		o.PayosOrderCode = &orderCode
		o.PaymentLinkID = "link-123"
		o.CheckoutURL = "https://pay.payos.vn/web/987654321"
	})

	mock := services.NewMockPayOSService()
	mock.SetPaymentStatus(orderCode, services.PayOSStatusPaid)
	mock.SetAsMockForTesting()
	publisher := services.NewMockEventPublisher()
	publisher.SetAsMockForTesting()

	router := setupTestRouter()
	router.GET("/orders/:id",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		GetOrder,
	)

	t.Run("payment=cancelled never reconciles", func(t *testing.T) {
		url := fmt.Sprintf("/orders/%d?payment=cancelled", order.ID)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		data := response["data"].(map[string]interface{})

		// Provider says PAID but the cancelled path must not look
		assert.Equal(t, "pending", data["payment_status"])
		assert.Equal(t, "cancelled", response["payment_marker_consumed"])
		assert.Empty(t, mock.LookupCalls())
	})

	t.Run("no marker with stored checkout URL does not reconcile", func(t *testing.T) {
		url := fmt.Sprintf("/orders/%d", order.ID)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, mock.LookupCalls())

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Nil(t, response["payment_marker_consumed"])
	})

	t.Run("payment=success reconciles to paid", func(t *testing.T) {
		url := fmt.Sprintf("/orders/%d?payment=success", order.ID)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		data := response["data"].(map[string]interface{})
		assert.Equal(t, "paid", data["payment_status"])
		assert.Equal(t, "success", response["payment_marker_consumed"])

		// Order status is untouched by payment settlement
		assert.Equal(t, "pending", data["order_status"])

		events := publisher.EventsWithPattern("payment.paid")
		assert.Len(t, events, 1)
	})

	t.Run("repeat visit after paid is a no-op", func(t *testing.T) {
		lookupsBefore := len(mock.LookupCalls())

		url := fmt.Sprintf("/orders/%d?payment=success", order.ID)
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		// Already settled: no provider call, no extra event
		assert.Equal(t, lookupsBefore, len(mock.LookupCalls()))
		assert.Len(t, publisher.EventsWithPattern("payment.paid"), 1)
	})
}

func TestGetOrder_ReconcilesOnceWhenLinkMissing(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	// Link creation failed at checkout but a code was never stored either;
	// nothing to reconcile against
	order := seedOrder(t, db, customer.ID, nil)

	mock := services.NewMockPayOSService()
	mock.SetAsMockForTesting()

	router := setupTestRouter()
	router.GET("/orders/:id",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		GetOrder,
	)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mock.LookupCalls())
}

func TestGetOrder_LookupFailureKeepsLocalState(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	orderCode := int64(111222333)
	order := seedOrder(t, db, customer.ID, func(o *models.Order) {
		o.PayosOrderCode = &orderCode
	})

	mock := services.NewMockPayOSService()
	mock.FailLookup = true
	mock.SetAsMockForTesting()

	router := setupTestRouter()
	router.GET("/orders/:id",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		GetOrder,
	)

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%d?payment=success", order.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Degrades to the stored state instead of erroring
	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	data := response["data"].(map[string]interface{})
	assert.Equal(t, "pending", data["payment_status"])
}

func TestGetOrder_Authorization(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	other := models.User{
		Auth0ID: "auth0|other456",
		Name:    "Other Customer",
		Email:   "other@example.com",
		Role:    "customer",
	}
	db.Create(&other)

	admin := models.User{
		Auth0ID: "auth0|admin123",
		Name:    "Admin User",
		Email:   "admin@example.com",
		Role:    "admin",
	}
	db.Create(&admin)

	order := seedOrder(t, db, customer.ID, nil)

	services.NewMockPayOSService().SetAsMockForTesting()

	tests := []struct {
		name           string
		auth0ID        string
		role           string
		expectedStatus int
	}{
		{"Owner can view", customer.Auth0ID, "customer", http.StatusOK},
		{"Other customer cannot view", other.Auth0ID, "customer", http.StatusForbidden},
		{"Admin can view any order", admin.Auth0ID, "admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter()
			router.GET("/orders/:id",
				mockAuthMiddleware(tt.auth0ID, tt.role, "mock-token"),
				GetOrder,
			)

			req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestListOrders(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	other := models.User{
		Auth0ID: "auth0|other456",
		Name:    "Other Customer",
		Email:   "other@example.com",
		Role:    "customer",
	}
	db.Create(&other)

	for i := 0; i < 3; i++ {
		seedOrder(t, db, customer.ID, nil)
	}
	seedOrder(t, db, other.ID, nil)

	router := setupTestRouter()
	router.GET("/orders",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		ListOrders,
	)

	req, _ := http.NewRequest(http.MethodGet, "/orders?page=1&limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	orders := response["data"].([]interface{})
	assert.Len(t, orders, 2)
	for _, o := range orders {
		assert.Equal(t, float64(customer.ID), o.(map[string]interface{})["customer_id"])
	}

	pagination := response["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["totalPages"])
}

func TestSubmitItemFeedback(t *testing.T) {
	db := setupTestDB(t)
	config.SetDB(db)

	customer, _ := seedCheckoutFixtures(t, db)

	now := time.Now()
	completed := seedOrder(t, db, customer.ID, func(o *models.Order) {
		o.OrderStatus = models.OrderStatusCompleted
		o.CompletedAt = &now
	})
	pending := seedOrder(t, db, customer.ID, nil)

	router := setupTestRouter()
	router.POST("/orders/:id/items/:itemId/feedback",
		mockAuthMiddleware(customer.Auth0ID, "customer", "mock-token"),
		SubmitItemFeedback,
	)

	submit := func(orderID, itemID uint, rating int) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]interface{}{
			"rating":  rating,
			"comment": "Great service",
		})
		url := fmt.Sprintf("/orders/%d/items/%d/feedback", orderID, itemID)
		req, _ := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("Feedback accepted on completed order", func(t *testing.T) {
		w := submit(completed.ID, completed.Items[0].ID, 5)
		assert.Equal(t, http.StatusOK, w.Code)

		var item models.OrderItem
		db.First(&item, completed.Items[0].ID)
		assert.NotNil(t, item.Feedback)
		assert.Equal(t, 5, item.Feedback.Rating)
		assert.Equal(t, "Great service", item.Feedback.Comment)
	})

	t.Run("Second feedback on same item rejected", func(t *testing.T) {
		w := submit(completed.ID, completed.Items[0].ID, 4)
		assert.Equal(t, http.StatusConflict, w.Code)

		// Original feedback untouched
		var item models.OrderItem
		db.First(&item, completed.Items[0].ID)
		assert.Equal(t, 5, item.Feedback.Rating)
	})

	t.Run("Feedback rejected on non-completed order", func(t *testing.T) {
		w := submit(pending.ID, pending.Items[0].ID, 5)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Rating out of range rejected", func(t *testing.T) {
		other := seedOrder(t, db, customer.ID, func(o *models.Order) {
			o.OrderStatus = models.OrderStatusCompleted
			o.CompletedAt = &now
		})
		w := submit(other.ID, other.Items[0].ID, 6)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
