// Package paynow integrates the PayNow payments API.
package paynow

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hostlify/hostlify/internal/gateway/domain"
)

const defaultBaseURL = "https://api.paynow.pl"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paynow"
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

type paymentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	ExternalID  string `json:"externalId"`
	Description string `json:"description"`
	ContinueURL string `json:"continueUrl"`
}

type paymentResponse struct {
	PaymentID   string `json:"paymentId"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, session *domain.PaymentSession) (*domain.Checkout, error) {
	body, err := json.Marshal(paymentRequest{
		Amount:      session.Amount,
		Currency:    session.Currency,
		ExternalID:  session.ID.String(),
		Description: string(session.Purpose),
		ContinueURL: session.ReturnURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", a.apiKey)
	req.Header.Set("Idempotency-Key", uuid.NewString())
	req.Header.Set("Signature", a.sign(body))

	var out paymentResponse
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return &domain.Checkout{ExternalID: out.PaymentID, PaymentURL: out.RedirectURL}, nil
}

func (a *Adapter) VerifyCallback(_ context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ConfirmPayment(ctx context.Context, externalID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/v1/payments/"+url.PathEscape(externalID)+"/status", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Api-Key", a.apiKey)

	var out paymentResponse
	if err := a.do(req, &out); err != nil {
		return false, err
	}
	return out.Status == "CONFIRMED", nil
}

func (a *Adapter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(a.apiKey))
	_, _ = mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
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
		return fmt.Errorf("%w: paynow status %d", domain.ErrPaymentGatewayFailure, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
