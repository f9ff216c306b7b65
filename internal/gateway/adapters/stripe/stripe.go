// Package stripe integrates the Stripe hosted checkout.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hostlify/hostlify/internal/gateway/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, domain.ErrInvalidConfig
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		apiKey:  key,
		baseURL: base,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type checkoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, session *domain.PaymentSession) (*domain.Checkout, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", session.ID.String())
	form.Set("success_url", session.ReturnURL)
	form.Set("cancel_url", session.ReturnURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(session.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(session.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", string(session.Purpose))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	var out checkoutSession
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return &domain.Checkout{ExternalID: out.ID, PaymentURL: out.URL}, nil
}

func (a *Adapter) VerifyCallback(_ context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.apiKey))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) ConfirmPayment(ctx context.Context, externalID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/v1/checkout/sessions/"+url.PathEscape(externalID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	var out checkoutSession
	if err := a.do(req, &out); err != nil {
		return false, err
	}
	return out.PaymentStatus == "paid", nil
}

func (a *Adapter) do(req *http.Request, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPaymentGatewayFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: stripe status %d", domain.ErrPaymentGatewayFailure, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
