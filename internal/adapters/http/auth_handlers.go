package http

import (
	nethttp "net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,max=36"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *api) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := a.users.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(nethttp.StatusCreated, u)
}

func (a *api) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := a.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		abortError(c, err)
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionUserKey, string(u.ID))
	if err := sess.Save(); err != nil {
		abortError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("user_id", string(u.ID)).Msg("login")
	c.JSON(nethttp.StatusOK, u)
}

func (a *api) logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = sess.Save()
	c.Status(nethttp.StatusNoContent)
}

func (a *api) me(c *gin.Context) {
	c.JSON(nethttp.StatusOK, currentUser(c))
}
