package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/hostlify/hostlify/pkg/db/pagination"
)

func (s *Server) GetWallet(c *gin.Context) {
	wallet, err := s.walletSvc.GetByUserID(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "wallet": newWalletView(wallet)})
}

func (s *Server) ListTransactions(c *gin.Context) {
	ctx := c.Request.Context()
	wallet, err := s.walletSvc.GetByUserID(ctx, currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		badRequest(c, "Nieprawidłowe parametry stronicowania")
		return
	}
	var source walletdomain.TransactionSource
	if raw := c.Query("type"); raw != "" {
		source, err = walletdomain.ParseTransactionSource(raw)
		if err != nil {
			badRequest(c, "Nieprawidłowy typ transakcji")
			return
		}
	}

	resp, err := s.walletSvc.ListTransactions(ctx, walletdomain.ListTransactionsRequest{
		WalletID:  wallet.ID,
		Source:    source,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"transactions": gin.H{
			"data":            newTransactionViews(resp.Transactions),
			"next_page_token": resp.NextPageToken,
			"has_more":        resp.HasMore,
		},
	})
}

type addFundsRequest struct {
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	PaymentMethod string  `json:"payment_method" binding:"required"`
	ReturnURL     string  `json:"return_url"`
}

func (s *Server) AddFunds(c *gin.Context) {
	var req addFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj kwotę i metodę płatności")
		return
	}

	resp, err := s.billingSvc.TopUp(c.Request.Context(), billingdomain.TopUpRequest{
		UserID:    currentUserID(c),
		Amount:    plnToGrosz(req.Amount),
		Provider:  req.PaymentMethod,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"payment": gin.H{
			"session_id":  resp.SessionID.String(),
			"payment_url": resp.PaymentURL,
		},
	})
}

type promoCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) ApplyPromoCode(c *gin.Context) {
	var req promoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj kod promocyjny")
		return
	}

	credited, err := s.promoSvc.ApplyToWallet(c.Request.Context(), currentUserID(c), req.Code)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Portfel został doładowany",
		"amount":  groszToPLN(credited),
	})
}
