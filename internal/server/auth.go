package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	userdomain "github.com/hostlify/hostlify/internal/user/domain"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *userdomain.User) userView {
	return userView{ID: u.ID.String(), Email: u.Email, CreatedAt: u.CreatedAt}
}

func (s *Server) RegisterUser(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj poprawny adres email i hasło")
		return
	}

	user, err := s.userSvc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	token, _, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    newUserView(user),
		"token":   token,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Podaj poprawny adres email i hasło")
		return
	}

	user, err := s.userSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	token, _, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    newUserView(user),
		"token":   token,
	})
}

func (s *Server) Me(c *gin.Context) {
	user, err := s.userSvc.GetByID(c.Request.Context(), currentUserID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": newUserView(user)})
}
