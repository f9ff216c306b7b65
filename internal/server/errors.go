package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	userdomain "github.com/hostlify/hostlify/internal/user/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
)

// The client branches on `success` and shows `message` verbatim, so every
// failure answers `{"success": false, "message": ...}` next to the HTTP
// status.
type statusMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []statusMapping{
	{walletdomain.ErrInsufficientFunds, http.StatusPaymentRequired, "Niewystarczające środki w portfelu"},
	{walletdomain.ErrWalletNotFound, http.StatusNotFound, "Portfel nie istnieje"},
	{walletdomain.ErrInvalidAmount, http.StatusBadRequest, "Nieprawidłowa kwota"},
	{walletdomain.ErrInvalidSource, http.StatusBadRequest, "Nieprawidłowe źródło transakcji"},

	{hostingdomain.ErrServiceNotFound, http.StatusNotFound, "Usługa nie istnieje"},
	{hostingdomain.ErrInvalidTransition, http.StatusConflict, "Niedozwolona zmiana statusu usługi"},
	{hostingdomain.ErrInvalidStatus, http.StatusBadRequest, "Nieprawidłowy status"},
	{hostingdomain.ErrInvalidPaymentMethod, http.StatusBadRequest, "Nieprawidłowa metoda płatności"},
	{hostingdomain.ErrPlanLimitExceeded, http.StatusUnprocessableEntity, "Żądane zasoby przekraczają limity planu"},

	{plandomain.ErrPlanNotFound, http.StatusNotFound, "Plan nie istnieje"},
	{billingdomain.ErrPlanNotPurchasable, http.StatusUnprocessableEntity, "Plan jest niedostępny"},
	{billingdomain.ErrInvalidTopUpAmount, http.StatusBadRequest, "Nieprawidłowa kwota doładowania"},

	{promodomain.ErrInvalidPromoCode, http.StatusUnprocessableEntity, "Nieprawidłowy kod promocyjny"},
	{promodomain.ErrPromoCodeExpired, http.StatusUnprocessableEntity, "Kod promocyjny wygasł"},
	{promodomain.ErrPromoCodeExhausted, http.StatusUnprocessableEntity, "Kod promocyjny został wykorzystany"},
	{promodomain.ErrPromoCodeAlreadyUsed, http.StatusUnprocessableEntity, "Kod promocyjny został już użyty"},
	{promodomain.ErrPromoCodeNotTopUp, http.StatusUnprocessableEntity, "Ten kod nie zasila portfela"},

	{gatewaydomain.ErrProviderNotFound, http.StatusBadRequest, "Nieznany dostawca płatności"},
	{gatewaydomain.ErrInvalidSignature, http.StatusUnauthorized, "Nieprawidłowy podpis"},
	{gatewaydomain.ErrSessionNotFound, http.StatusNotFound, "Sesja płatności nie istnieje"},
	{gatewaydomain.ErrSessionNotPending, http.StatusConflict, "Sesja płatności została już rozliczona"},
	{gatewaydomain.ErrPaymentGatewayFailure, http.StatusBadGateway, "Błąd bramki płatności"},
	{gatewaydomain.ErrPaymentNotSettled, http.StatusConflict, "Płatność nie została jeszcze zaksięgowana"},

	{autoscalingdomain.ErrEvaluationInFlight, http.StatusConflict, "Usługa jest właśnie skalowana"},

	{userdomain.ErrEmailTaken, http.StatusConflict, "Konto z tym adresem już istnieje"},
	{userdomain.ErrInvalidCredentials, http.StatusUnauthorized, "Nieprawidłowy email lub hasło"},
	{userdomain.ErrWeakPassword, http.StatusBadRequest, "Hasło musi mieć co najmniej 8 znaków"},
	{userdomain.ErrUserNotFound, http.StatusNotFound, "Użytkownik nie istnieje"},
}

func (s *Server) fail(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"success": false, "message": m.message})
			return
		}
	}
	s.log.Error("request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Wystąpił błąd serwera",
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"message": "Brak autoryzacji",
	})
}
