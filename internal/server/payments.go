package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Each provider names the checkout identifier differently in its webhook
// payload; the first non-empty one wins.
type callbackPayload struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	PaymentID  string `json:"paymentId"`
	ExternalID string `json:"external_id"`
}

func (p callbackPayload) externalID() string {
	for _, candidate := range []string{p.ExternalID, p.SessionID, p.PaymentID, p.ID} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (s *Server) PaymentCallback(c *gin.Context) {
	provider := c.Param("provider")
	if s.limiter.Enabled() {
		if res, err := s.limiter.AllowCallback(c.Request.Context(), provider); err == nil && !res.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "message": "Zbyt wiele żądań"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		badRequest(c, "Nieprawidłowe żądanie")
		return
	}

	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		badRequest(c, "Nieprawidłowe żądanie")
		return
	}
	externalID := payload.externalID()
	if externalID == "" {
		externalID = c.Query("session_id")
	}
	if externalID == "" {
		badRequest(c, "Brak identyfikatora sesji")
		return
	}

	if err := s.gatewaySvc.HandleCallback(c.Request.Context(), provider, externalID, body, c.Request.Header); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
