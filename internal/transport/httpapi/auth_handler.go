package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techstore/storefront/internal/service/auth"
)

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := s.services.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusCreated, "Usuario registrado exitosamente", sessionBody(session))
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := s.services.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Inicio de sesión exitoso", sessionBody(session))
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := s.services.Auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", gin.H{"accessToken": token})
}

// logout ничего не хранит на сервере: токены живут до истечения срока.
func (s *Server) logout(c *gin.Context) {
	success(c, http.StatusOK, "Sesión cerrada exitosamente", nil)
}

func (s *Server) me(c *gin.Context) {
	principal, _ := principalFrom(c)
	user, err := s.services.Auth.Me(c.Request.Context(), principal)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", user)
}

func sessionBody(session auth.Session) gin.H {
	return gin.H{
		"user":         session.User,
		"accessToken":  session.Tokens.AccessToken,
		"refreshToken": session.Tokens.RefreshToken,
	}
}
