package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"rewardengine/internal/api/middleware"
)

type investRequest struct {
	AssetID string          `json:"asset_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

func Invest(c *gin.Context) {
	app := appFrom(c)
	var req investRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := app.Portfolio.Invest(c.Request.Context(), c.GetString(middleware.UserKey), req.AssetID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func CashOut(c *gin.Context) {
	app := appFrom(c)
	res, err := app.Settlement.CashOut(c.Request.Context(), c.GetString(middleware.UserKey), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
