package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	"github.com/hostlify/hostlify/pkg/db/pagination"
)

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.planRepo.ListActive(c.Request.Context(), s.db)
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]planView, 0, len(plans))
	for _, plan := range plans {
		views = append(views, newPlanView(plan))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "plans": views})
}

func (s *Server) ListServices(c *gin.Context) {
	services, err := s.hostingSvc.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	views := make([]serviceView, 0, len(services))
	for i := range services {
		views = append(views, newServiceView(&services[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "services": views})
}

func (s *Server) GetService(c *gin.Context) {
	serviceID, ok := s.pathServiceID(c)
	if !ok {
		return
	}
	details, err := s.hostingSvc.GetDetailsForUser(c.Request.Context(), currentUserID(c), serviceID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "service": newServiceView(details)})
}

type setAutoscalingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) SetAutoscaling(c *gin.Context) {
	serviceID, ok := s.pathServiceID(c)
	if !ok {
		return
	}
	var req setAutoscalingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj wartość enabled")
		return
	}

	details, err := s.hostingSvc.SetAutoscaling(c.Request.Context(), currentUserID(c), serviceID, *req.Enabled)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "service": newServiceView(details)})
}

func (s *Server) ResourceUsage(c *gin.Context) {
	serviceID, ok := s.pathServiceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.hostingSvc.GetDetailsForUser(ctx, currentUserID(c), serviceID); err != nil {
		s.fail(c, err)
		return
	}
	usage, err := s.meterSvc.Latest(ctx, serviceID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "usage": usage})
}

func (s *Server) ListScalingLogs(c *gin.Context) {
	serviceID, ok := s.pathServiceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := s.hostingSvc.GetDetailsForUser(ctx, currentUserID(c), serviceID); err != nil {
		s.fail(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		badRequest(c, "Nieprawidłowe parametry stronicowania")
		return
	}
	resp, err := s.engineSvc.ListLogs(ctx, autoscalingdomain.ListLogsRequest{
		ServiceID: serviceID,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"logs": gin.H{
			"data":            newScalingLogViews(resp.Logs),
			"next_page_token": resp.NextPageToken,
			"has_more":        resp.HasMore,
		},
	})
}

type purchaseRequest struct {
	PlanID               string `json:"plan_id" binding:"required"`
	Domain               string `json:"domain" binding:"required"`
	Period               string `json:"period" binding:"required"`
	PaymentMethod        string `json:"payment_method" binding:"required"`
	PromoCode            string `json:"promo_code"`
	IsAutoscalingEnabled bool   `json:"is_autoscaling_enabled"`
	IsAutoRenew          bool   `json:"is_auto_renew"`
	ReturnURL            string `json:"return_url"`
}

func (s *Server) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Uzupełnij dane zamówienia")
		return
	}
	planID, err := snowflake.ParseString(req.PlanID)
	if err != nil {
		badRequest(c, "Nieprawidłowy identyfikator planu")
		return
	}

	resp, err := s.billingSvc.Purchase(c.Request.Context(), billingdomain.PurchaseRequest{
		UserID:               currentUserID(c),
		PlanID:               planID,
		Domain:               req.Domain,
		Period:               req.Period,
		PaymentMethod:        req.PaymentMethod,
		PromoCode:            req.PromoCode,
		IsAutoscalingEnabled: req.IsAutoscalingEnabled,
		IsAutoRenew:          req.IsAutoRenew,
		ReturnURL:            req.ReturnURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, purchaseResponseBody(resp))
}

func purchaseResponseBody(resp *billingdomain.PurchaseResponse) gin.H {
	body := gin.H{
		"success":  true,
		"amount":   groszToPLN(resp.Amount),
		"discount": groszToPLN(resp.Discount),
	}
	if resp.Service != nil {
		body["service"] = newServiceView(resp.Service)
		return body
	}
	body["payment"] = gin.H{
		"session_id":  resp.SessionID.String(),
		"payment_url": resp.PaymentURL,
	}
	return body
}

type renewRequest struct {
	Period        string `json:"period" binding:"required"`
	PaymentMethod string `json:"payment_method" binding:"required"`
	ReturnURL     string `json:"return_url"`
}

func (s *Server) RenewService(c *gin.Context) {
	serviceID, ok := s.pathServiceID(c)
	if !ok {
		return
	}
	var req renewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj okres i metodę płatności")
		return
	}

	resp, err := s.billingSvc.Renew(c.Request.Context(), billingdomain.RenewRequest{
		UserID:        currentUserID(c),
		ServiceID:     serviceID,
		Period:        req.Period,
		PaymentMethod: req.PaymentMethod,
		ReturnURL:     req.ReturnURL,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	body := gin.H{"success": true, "amount": groszToPLN(resp.Amount)}
	if resp.Service != nil {
		body["service"] = newServiceView(resp.Service)
	} else {
		body["payment"] = gin.H{
			"session_id":  resp.SessionID.String(),
			"payment_url": resp.PaymentURL,
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) pathServiceID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		s.fail(c, hostingdomain.ErrServiceNotFound)
		return 0, false
	}
	return id, true
}
