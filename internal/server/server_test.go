package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hostlify/hostlify/internal/auth"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	"github.com/hostlify/hostlify/internal/clock"
	"github.com/hostlify/hostlify/internal/config"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"go.uber.org/zap"
)

const testUserID = snowflake.ID(42)

func testRouter(s *Server, method, path string, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(method, path, func(c *gin.Context) {
		c.Set(ctxUserID, testUserID)
		handler(c)
	})
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var parsed map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid response body %q: %v", resp.Body.String(), err)
	}
	return resp, parsed
}

type fakeWalletService struct {
	walletdomain.Service

	wallet *walletdomain.Wallet
	err    error
}

func (f *fakeWalletService) GetByUserID(ctx context.Context, userID snowflake.ID) (*walletdomain.Wallet, error) {
	_ = ctx
	_ = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.wallet, nil
}

type fakeBillingService struct {
	billingdomain.Service

	purchaseResp *billingdomain.PurchaseResponse
	purchaseErr  error
	lastPurchase billingdomain.PurchaseRequest
}

func (f *fakeBillingService) Purchase(ctx context.Context, req billingdomain.PurchaseRequest) (*billingdomain.PurchaseResponse, error) {
	_ = ctx
	f.lastPurchase = req
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	return f.purchaseResp, nil
}

type fakeGatewayService struct {
	gatewaydomain.Service

	lastProvider   string
	lastExternalID string
	err            error
}

func (f *fakeGatewayService) HandleCallback(ctx context.Context, provider, externalID string, payload []byte, headers http.Header) error {
	_ = ctx
	_ = payload
	_ = headers
	f.lastProvider = provider
	f.lastExternalID = externalID
	return f.err
}

func TestGetWalletEnvelope(t *testing.T) {
	walletSvc := &fakeWalletService{wallet: &walletdomain.Wallet{
		ID:       snowflake.ID(7),
		Balance:  12550,
		Currency: "PLN",
	}}
	srv := &Server{log: zap.NewNop(), walletSvc: walletSvc}
	r := testRouter(srv, http.MethodGet, "/wallet", srv.GetWallet)

	resp, body := doJSON(t, r, http.MethodGet, "/wallet", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if body["success"] != true {
		t.Fatalf("expected success=true, got %v", body["success"])
	}
	wallet, ok := body["wallet"].(map[string]any)
	if !ok {
		t.Fatalf("expected wallet object, got %v", body["wallet"])
	}
	if wallet["balance"] != 125.5 {
		t.Fatalf("expected balance 125.5 PLN, got %v", wallet["balance"])
	}
	if wallet["currency"] != "PLN" {
		t.Fatalf("expected currency PLN, got %v", wallet["currency"])
	}
}

func TestGetWalletNotFound(t *testing.T) {
	walletSvc := &fakeWalletService{err: walletdomain.ErrWalletNotFound}
	srv := &Server{log: zap.NewNop(), walletSvc: walletSvc}
	r := testRouter(srv, http.MethodGet, "/wallet", srv.GetWallet)

	resp, body := doJSON(t, r, http.MethodGet, "/wallet", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body["success"])
	}
	if body["message"] != "Portfel nie istnieje" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestPurchaseWalletBranch(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := now.AddDate(0, 1, 0)
	billingSvc := &fakeBillingService{purchaseResp: &billingdomain.PurchaseResponse{
		Service: &hostingdomain.ServiceDetails{
			Service: hostingdomain.HostingService{
				ID:        snowflake.ID(11),
				Domain:    "example.pl",
				Status:    hostingdomain.StatusActive,
				StartDate: &now,
				EndDate:   &end,
			},
			Plan: plandomain.HostingPlan{ID: snowflake.ID(3), Code: "starter"},
		},
		Amount:   2990,
		Discount: 299,
	}}
	srv := &Server{log: zap.NewNop(), billingSvc: billingSvc}
	r := testRouter(srv, http.MethodPost, "/hosting/purchase", srv.Purchase)

	resp, body := doJSON(t, r, http.MethodPost, "/hosting/purchase",
		`{"plan_id":"3","domain":"example.pl","period":"monthly","payment_method":"wallet"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Code, body)
	}
	if _, hasPayment := body["payment"]; hasPayment {
		t.Fatal("wallet purchase must not return a payment session")
	}
	service, ok := body["service"].(map[string]any)
	if !ok {
		t.Fatalf("expected service object, got %v", body["service"])
	}
	if service["status"] != "active" {
		t.Fatalf("expected active service, got %v", service["status"])
	}
	if body["amount"] != 29.9 {
		t.Fatalf("expected amount 29.9 PLN, got %v", body["amount"])
	}
	if body["discount"] != 2.99 {
		t.Fatalf("expected discount 2.99 PLN, got %v", body["discount"])
	}
	if billingSvc.lastPurchase.UserID != testUserID {
		t.Fatalf("expected purchase for user %s, got %s", testUserID, billingSvc.lastPurchase.UserID)
	}
}

func TestPurchaseGatewayBranch(t *testing.T) {
	billingSvc := &fakeBillingService{purchaseResp: &billingdomain.PurchaseResponse{
		SessionID:  snowflake.ID(99),
		PaymentURL: "https://pay.example/99",
		Amount:     2990,
	}}
	srv := &Server{log: zap.NewNop(), billingSvc: billingSvc}
	r := testRouter(srv, http.MethodPost, "/hosting/purchase", srv.Purchase)

	resp, body := doJSON(t, r, http.MethodPost, "/hosting/purchase",
		`{"plan_id":"3","domain":"example.pl","period":"monthly","payment_method":"p24"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Code, body)
	}
	payment, ok := body["payment"].(map[string]any)
	if !ok {
		t.Fatalf("expected payment object, got %v", body["payment"])
	}
	if payment["payment_url"] != "https://pay.example/99" {
		t.Fatalf("unexpected payment_url %v", payment["payment_url"])
	}
	if payment["session_id"] != snowflake.ID(99).String() {
		t.Fatalf("unexpected session_id %v", payment["session_id"])
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	billingSvc := &fakeBillingService{purchaseErr: walletdomain.ErrInsufficientFunds}
	srv := &Server{log: zap.NewNop(), billingSvc: billingSvc}
	r := testRouter(srv, http.MethodPost, "/hosting/purchase", srv.Purchase)

	resp, body := doJSON(t, r, http.MethodPost, "/hosting/purchase",
		`{"plan_id":"3","domain":"example.pl","period":"monthly","payment_method":"wallet"}`)
	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.Code)
	}
	if body["message"] != "Niewystarczające środki w portfelu" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestPaymentCallbackExtractsExternalID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gatewaySvc := &fakeGatewayService{}
	srv := &Server{log: zap.NewNop(), gatewaySvc: gatewaySvc}
	r := gin.New()
	r.POST("/payments/callback/:provider", srv.PaymentCallback)

	resp, body := doJSON(t, r, http.MethodPost, "/payments/callback/p24", `{"sessionId":"sess_9"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.Code, body)
	}
	if gatewaySvc.lastProvider != "p24" {
		t.Fatalf("expected provider p24, got %q", gatewaySvc.lastProvider)
	}
	if gatewaySvc.lastExternalID != "sess_9" {
		t.Fatalf("expected external id sess_9, got %q", gatewaySvc.lastExternalID)
	}
}

func TestPaymentCallbackWithoutSessionID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{log: zap.NewNop(), gatewaySvc: &fakeGatewayService{}}
	r := gin.New()
	r.POST("/payments/callback/:provider", srv.PaymentCallback)

	resp, _ := doJSON(t, r, http.MethodPost, "/payments/callback/stripe", `{"event":"ping"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPaymentCallbackInvalidSignature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &Server{log: zap.NewNop(), gatewaySvc: &fakeGatewayService{err: gatewaydomain.ErrInvalidSignature}}
	r := gin.New()
	r.POST("/payments/callback/:provider", srv.PaymentCallback)

	resp, body := doJSON(t, r, http.MethodPost, "/payments/callback/stripe", `{"sessionId":"sess_1"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %v", resp.Code, body)
	}
}

func TestAuthRequired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := auth.NewTokens(auth.Params{
		Config: config.Config{AuthJWTSecret: "test-secret"},
		Clock:  clock.NewSystemClock(),
	})
	srv := &Server{log: zap.NewNop(), tokens: tokens}

	r := gin.New()
	r.GET("/me", srv.AuthRequired(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "user_id": currentUserID(c).String()})
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	token, _, err := tokens.Issue(testUserID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["user_id"] != testUserID.String() {
		t.Fatalf("expected user %s, got %v", testUserID, body["user_id"])
	}
}
