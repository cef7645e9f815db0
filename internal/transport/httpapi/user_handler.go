package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) profile(c *gin.Context) {
	principal, _ := principalFrom(c)
	user, err := s.services.Users.Profile(c.Request.Context(), principal)
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "", user)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	principal, _ := principalFrom(c)

	user, err := s.services.Users.UpdateProfile(c.Request.Context(), principal, req.patch())
	if err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Perfil actualizado", user)
}

func (s *Server) changePassword(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req) {
		return
	}
	principal, _ := principalFrom(c)

	if err := s.services.Users.ChangePassword(c.Request.Context(), principal, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(c, err)
		return
	}
	success(c, http.StatusOK, "Contraseña actualizada exitosamente", nil)
}

func (s *Server) listUsers(c *gin.Context) {
	page, err := s.services.Users.List(c.Request.Context(), pageQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	paginated(c, page)
}

func (s *Server) toggleUser(c *gin.Context) {
	principal, _ := principalFrom(c)
	user, err := s.services.Users.ToggleActive(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	message := "Usuario desactivado"
	if user.Active {
		message = "Usuario activado"
	}
	success(c, http.StatusOK, message, user)
}
