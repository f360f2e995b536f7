package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewardengine/internal/api/jwt"
	"rewardengine/internal/api/middleware"
	"rewardengine/internal/ledger"
)

type signupRequest struct {
	Email   string `json:"email" binding:"required,email"`
	RefCode string `json:"ref_code"`
}

type signupResponse struct {
	User  ledger.User `json:"user"`
	Token string      `json:"token"`
}

func Signup(c *gin.Context) {
	app := appFrom(c)
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := app.Referrals.Signup(c.Request.Context(), req.Email, req.RefCode)
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := jwt.GenerateJWT(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, signupResponse{User: user, Token: token})
}

func GetUser(c *gin.Context) {
	app := appFrom(c)
	user, err := app.Store.User(c.Request.Context(), c.GetString(middleware.UserKey))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
