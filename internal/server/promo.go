package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type validatePromoRequest struct {
	Code   string  `json:"code" binding:"required"`
	PlanID string  `json:"plan_id"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

func (s *Server) ValidatePromoCode(c *gin.Context) {
	var req validatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj kod i kwotę zamówienia")
		return
	}
	var planID snowflake.ID
	if req.PlanID != "" {
		parsed, err := snowflake.ParseString(req.PlanID)
		if err != nil {
			badRequest(c, "Nieprawidłowy identyfikator planu")
			return
		}
		planID = parsed
	}

	validation, err := s.promoSvc.Validate(c.Request.Context(), currentUserID(c), req.Code, planID, plnToGrosz(req.Amount))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"discount":     groszToPLN(validation.Discount),
		"final_amount": groszToPLN(validation.FinalAmount),
	})
}
