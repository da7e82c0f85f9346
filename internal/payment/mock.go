package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MockGateway is used when no provider is configured. It points the customer
// at the frontend's simulated checkout page; confirmation still has to arrive
// through the webhook.
type MockGateway struct {
	frontendURL string
}

func NewMockGateway(frontendURL string) *MockGateway {
	return &MockGateway{frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) InitiateCheckout(_ context.Context, req CheckoutRequest) (*Checkout, error) {
	q := url.Values{}
	q.Set("tx", req.TransactionID)
	q.Set("ref", req.ProviderReference)
	q.Set("amount", strconv.FormatFloat(req.Amount, 'f', -1, 64))
	return &Checkout{
		CheckoutURL:           fmt.Sprintf("%s/mock-checkout?%s", m.frontendURL, q.Encode()),
		ExternalTransactionID: "MOCK_" + req.ProviderReference,
	}, nil
}
