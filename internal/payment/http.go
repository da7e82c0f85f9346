package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"courtbook/internal/model"
)

// HTTPConfig configures the GCash-style HTTP provider.
type HTTPConfig struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// HTTPGateway calls the provider's REST API with an OAuth2 client-credentials token.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type checkoutPayload struct {
	Amount      float64 `json:"amount"`
	Reference   string  `json:"reference"`
	CallbackURL string  `json:"callback_url"`
	ReturnURL   string  `json:"return_url"`
}

type checkoutResponse struct {
	CheckoutURL   string `json:"checkout_url"`
	RedirectURL   string `json:"redirect_url"`
	TransactionID string `json:"transaction_id"`
}

// NewHTTPGateway builds a gateway. The token URL defaults to {base_url}/oauth/token.
func NewHTTPGateway(cfg HTTPConfig) *HTTPGateway {
	base := &http.Client{Timeout: cfg.Timeout}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = strings.TrimRight(cfg.BaseURL, "/") + "/oauth/token"
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	client := cc.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	client.Timeout = cfg.Timeout

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &HTTPGateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		limiter:    limiter,
	}
}

func (g *HTTPGateway) Name() string { return "http" }

// InitiateCheckout posts a checkout request and returns the provider's redirect URL.
func (g *HTTPGateway) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
		}
	}

	body := checkoutPayload{
		Amount:      req.Amount,
		Reference:   req.ProviderReference,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
	}
	var resp checkoutResponse
	if err := g.doPost(ctx, g.baseURL+"/payments/checkout", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
	}

	url := resp.CheckoutURL
	if url == "" {
		url = resp.RedirectURL
	}
	if url == "" {
		return nil, fmt.Errorf("%w: provider returned no checkout url", model.ErrGatewayUnavailable)
	}
	return &Checkout{CheckoutURL: url, ExternalTransactionID: resp.TransactionID}, nil
}

func (g *HTTPGateway) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
