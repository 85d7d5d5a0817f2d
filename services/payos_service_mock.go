package services

import (
	"fmt"
	"sync"
)

// MockPayOSService is a mock implementation of the PayOS client for testing
type MockPayOSService struct {
	mu sync.RWMutex

	// FailCreate makes CreatePaymentLink return an error
	FailCreate bool
	// FailLookup makes GetPaymentInfo return an error
	FailLookup bool
	// WebhookValid controls VerifyWebhook's answer
	WebhookValid bool

	// paymentStatuses maps order code to the status GetPaymentInfo reports
	paymentStatuses map[int64]string
	createCalls     []CreatePaymentLinkRequest
	lookupCalls     []int64
}

// NewMockPayOSService creates a new mock PayOS service
func NewMockPayOSService() *MockPayOSService {
	return &MockPayOSService{
		WebhookValid:    true,
		paymentStatuses: make(map[int64]string),
	}
}

// SetAsMockForTesting sets this mock as the global PayOS service instance
func (m *MockPayOSService) SetAsMockForTesting() {
	SetPayOSService(m)
}

// SetPaymentStatus sets the status GetPaymentInfo reports for an order code
func (m *MockPayOSService) SetPaymentStatus(orderCode int64, status string) {
	m.mu.Lock()
	m.paymentStatuses[orderCode] = status
	m.mu.Unlock()
}

// CreatePaymentLink simulates creating a hosted payment page
func (m *MockPayOSService) CreatePaymentLink(req CreatePaymentLinkRequest) (*PaymentLinkData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls = append(m.createCalls, req)
	if m.FailCreate {
		return nil, fmt.Errorf("mock payos: create payment link failed")
	}

	if _, exists := m.paymentStatuses[req.OrderCode]; !exists {
		m.paymentStatuses[req.OrderCode] = PayOSStatusPending
	}

	return &PaymentLinkData{
		OrderCode:     req.OrderCode,
		PaymentLinkID: fmt.Sprintf("mock-link-%d", req.OrderCode),
		CheckoutURL:   fmt.Sprintf("https://pay.payos.vn/web/%d", req.OrderCode),
		QRCode:        fmt.Sprintf("mock-qr-%d", req.OrderCode),
		Status:        PayOSStatusPending,
	}, nil
}

// GetPaymentInfo simulates the provider's payment-info lookup
func (m *MockPayOSService) GetPaymentInfo(orderCode int64) (*PaymentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookupCalls = append(m.lookupCalls, orderCode)
	if m.FailLookup {
		return nil, fmt.Errorf("mock payos: payment info lookup failed")
	}

	status, exists := m.paymentStatuses[orderCode]
	if !exists {
		return nil, fmt.Errorf("mock payos: payment request %d not found", orderCode)
	}

	info := &PaymentInfo{
		ID:        fmt.Sprintf("mock-payment-%d", orderCode),
		OrderCode: orderCode,
		Status:    status,
	}
	if status == PayOSStatusPaid {
		info.AmountPaid = info.Amount
	}
	return info, nil
}

// VerifyWebhook reports the configured answer
func (m *MockPayOSService) VerifyWebhook(data map[string]interface{}, signature string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.WebhookValid
}

// CreateCalls returns the recorded create-payment requests
func (m *MockPayOSService) CreateCalls() []CreatePaymentLinkRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]CreatePaymentLinkRequest, len(m.createCalls))
	copy(calls, m.createCalls)
	return calls
}

// LookupCalls returns the recorded payment-info lookups
func (m *MockPayOSService) LookupCalls() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	calls := make([]int64, len(m.lookupCalls))
	copy(calls, m.lookupCalls)
	return calls
}
