package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/aistore-vn/aistore-api/config"
)

// PayOS payment request statuses as reported by the provider
const (
	PayOSStatusPending    = "PENDING"
	PayOSStatusProcessing = "PROCESSING"
	PayOSStatusPaid       = "PAID"
	PayOSStatusCancelled  = "CANCELLED"
	PayOSStatusExpired    = "EXPIRED"
)

// CreatePaymentLinkRequest carries the fields PayOS needs to create a hosted
// checkout page for an order
type CreatePaymentLinkRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"` // VND, whole units
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

// PaymentLinkData is the subset of the provider's create-payment response the
// order record stores
type PaymentLinkData struct {
	OrderCode     int64  `json:"orderCode"`
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
	Status        string `json:"status"`
}

// PaymentTransaction is one settled transaction on a payment request
type PaymentTransaction struct {
	Amount              int64  `json:"amount"`
	Description         string `json:"description"`
	AccountNumber       string `json:"accountNumber"`
	Reference           string `json:"reference"`
	TransactionDateTime string `json:"transactionDateTime"`
}

// PaymentInfo is the provider's view of a payment request, fetched during
// reconciliation
type PaymentInfo struct {
	ID              string               `json:"id"`
	OrderCode       int64                `json:"orderCode"`
	Amount          int64                `json:"amount"`
	AmountPaid      int64                `json:"amountPaid"`
	AmountRemaining int64                `json:"amountRemaining"`
	Status          string               `json:"status"`
	CreatedAt       string               `json:"createdAt"`
	Transactions    []PaymentTransaction `json:"transactions,omitempty"`
}

// PayOSInterface defines the operations the order flow needs from the
// payment provider
type PayOSInterface interface {
	CreatePaymentLink(req CreatePaymentLinkRequest) (*PaymentLinkData, error)
	GetPaymentInfo(orderCode int64) (*PaymentInfo, error)
	VerifyWebhook(data map[string]interface{}, signature string) bool
}

// PayOSService talks to the PayOS merchant API
type PayOSService struct {
	apiBase     string
	clientID    string
	apiKey      string
	checksumKey string
	returnURL   string
	cancelURL   string
	httpClient  *http.Client
}

var payosServiceInstance PayOSInterface

// InitPayOSService initializes the PayOS service from configuration
func InitPayOSService(cfg *config.Config) PayOSInterface {
	payosServiceInstance = &PayOSService{
		apiBase:     cfg.PayOSAPIBase,
		clientID:    cfg.PayOSClientID,
		apiKey:      cfg.PayOSAPIKey,
		checksumKey: cfg.PayOSChecksumKey,
		returnURL:   cfg.PayOSReturnURL,
		cancelURL:   cfg.PayOSCancelURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	return payosServiceInstance
}

// GetPayOSService returns the initialized PayOS service instance
func GetPayOSService() PayOSInterface {
	return payosServiceInstance
}

// SetPayOSService sets the PayOS service instance (primarily for testing)
func SetPayOSService(service PayOSInterface) {
	payosServiceInstance = service
}

// ReturnURL returns the configured redirect target for successful payments
func (s *PayOSService) ReturnURL() string {
	return s.returnURL
}

// CancelURL returns the configured redirect target for abandoned payments
func (s *PayOSService) CancelURL() string {
	return s.cancelURL
}

// payosEnvelope is the common response wrapper of the PayOS API
type payosEnvelope struct {
	Code      string          `json:"code"`
	Desc      string          `json:"desc"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// CreatePaymentLink creates a hosted payment page for the given order code
// and amount. The request is signed with the merchant checksum key.
func (s *PayOSService) CreatePaymentLink(req CreatePaymentLinkRequest) (*PaymentLinkData, error) {
	if req.ReturnURL == "" {
		req.ReturnURL = s.returnURL
	}
	if req.CancelURL == "" {
		req.CancelURL = s.cancelURL
	}
	req.Signature = s.signCreateRequest(req)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/payment-requests", s.apiBase)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(httpReq)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payos create-payment endpoint: %w", err)
	}
	defer resp.Body.Close()

	envelope, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var data PaymentLinkData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode payment link data: %w", err)
	}

	return &data, nil
}

// GetPaymentInfo fetches the current state of a payment request by its order
// code
func (s *PayOSService) GetPaymentInfo(orderCode int64) (*PaymentInfo, error) {
	url := fmt.Sprintf("%s/v2/payment-requests/%d", s.apiBase, orderCode)
	httpReq, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(httpReq)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call payos payment-info endpoint: %w", err)
	}
	defer resp.Body.Close()

	envelope, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}

	var info PaymentInfo
	if err := json.Unmarshal(envelope.Data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode payment info: %w", err)
	}

	return &info, nil
}

// VerifyWebhook checks a webhook payload's HMAC signature. PayOS signs the
// data object as an ampersand-joined, key-sorted query string.
func (s *PayOSService) VerifyWebhook(data map[string]interface{}, signature string) bool {
	if signature == "" {
		return false
	}
	expected := s.sign(sortedQueryString(data))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *PayOSService) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", s.clientID)
	req.Header.Set("x-api-key", s.apiKey)
}

// signCreateRequest computes the signature PayOS expects on create-payment
// requests: HMAC-SHA256 over the fixed field order documented by the
// provider.
func (s *PayOSService) signCreateRequest(req CreatePaymentLinkRequest) string {
	payload := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)
	return s.sign(payload)
}

func (s *PayOSService) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(s.checksumKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// sortedQueryString renders a JSON object as "k1=v1&k2=v2" with keys sorted,
// matching the provider's webhook signing scheme
func sortedQueryString(data map[string]interface{}) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		fmt.Fprintf(&buf, "%s=%v", k, formatValue(data[k]))
	}
	return buf.String()
}

// formatValue renders JSON values the way the provider does: numbers without
// a decimal point when they are whole, nil as the empty string
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func decodeEnvelope(resp *http.Response) (*payosEnvelope, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payos returned status %d: %s", resp.StatusCode, string(body))
	}

	var envelope payosEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode payos response: %w", err)
	}

	// "00" is the provider's success code; anything else is an API-level error
	if envelope.Code != "00" {
		return nil, fmt.Errorf("payos error %s: %s", envelope.Code, envelope.Desc)
	}

	return &envelope, nil
}
