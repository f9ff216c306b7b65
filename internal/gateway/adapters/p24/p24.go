// Package p24 integrates the Przelewy24 transaction API.
package p24

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

const defaultBaseURL = "https://secure.przelewy24.pl"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "p24"
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
		crcKey:  key,
		baseURL: base,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type Adapter struct {
	crcKey  string
	baseURL string
	client  *http.Client
}

type registerRequest struct {
	SessionID   string `json:"sessionId"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	URLReturn   string `json:"urlReturn"`
	Sign        string `json:"sign"`
}

type registerResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

type statusResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

func (a *Adapter) CreateCheckout(ctx context.Context, session *domain.PaymentSession) (*domain.Checkout, error) {
	externalID := uuid.NewString()
	payload := registerRequest{
		SessionID:   externalID,
		Amount:      session.Amount,
		Currency:    session.Currency,
		Description: string(session.Purpose),
		URLReturn:   session.ReturnURL,
		Sign:        a.sign(externalID, session.Amount, session.Currency),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/api/v1/transaction/register", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out registerResponse
	if err := a.do(req, &out); err != nil {
		return nil, err
	}
	return &domain.Checkout{
		ExternalID: externalID,
		PaymentURL: a.baseURL + "/trnRequest/" + out.Data.Token,
	}, nil
}

func (a *Adapter) VerifyCallback(_ context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("P24-Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(a.crcKey))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ConfirmPayment(ctx context.Context, externalID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/api/v1/transaction/by/sessionId/"+url.PathEscape(externalID), nil)
	if err != nil {
		return false, err
	}

	var out statusResponse
	if err := a.do(req, &out); err != nil {
		return false, err
	}
	return out.Data.Status == "success", nil
}

func (a *Adapter) sign(sessionID string, amount int64, currency string) string {
	mac := hmac.New(sha256.New, []byte(a.crcKey))
	fmt.Fprintf(mac, "%s|%d|%s", sessionID, amount, currency)
	return hex.EncodeToString(mac.Sum(nil))
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
		return fmt.Errorf("%w: p24 status %d", domain.ErrPaymentGatewayFailure, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}
