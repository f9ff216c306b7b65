package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const ctxUserID = "user_id"

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(c)
			return
		}
		userID, err := s.tokens.Verify(raw)
		if err != nil {
			unauthorized(c)
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		res, err := s.limiter.AllowUser(c.Request.Context(), currentUserID(c).String())
		if err != nil {
			// Redis being down must not take the API down with it.
			s.log.Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", res.RetryAfter.Round(1e9).String())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Zbyt wiele żądań, spróbuj ponownie później",
			})
			return
		}
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	id, _ := c.Get(ctxUserID)
	userID, _ := id.(snowflake.ID)
	return userID
}
