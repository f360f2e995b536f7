package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rewardengine/internal/api/middleware"
)

// Register mounts every route on router. limit guards each endpoint; nil
// disables rate limiting.
func Register(router *gin.Engine, app *App, limit gin.HandlerFunc) {
	mw := limit
	if mw == nil {
		mw = func(c *gin.Context) { c.Next() }
	}
	router.Use(Inject(app))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	assets := router.Group("/assets/")
	{
		assets.GET("", mw, GetAssets)
		assets.GET("/:id", mw, GetAsset)
	}
	auth := router.Group("/auth/")
	{
		auth.POST("/signup", mw, Signup)
		auth.POST("/signup/", mw, Signup)
	}
	users := router.Group("/users/").Use(middleware.Auth())
	{
		users.GET("/me", mw, GetUser)
		users.GET("/me/", mw, GetUser)
		users.GET("/ref", mw, GetReferrals)
		users.GET("/ref/", mw, GetReferrals)
		users.POST("/ref/apply", mw, ApplyRef)
		users.POST("/ref/withdraw", mw, WithdrawRef)
	}
	investments := router.Group("/investments/").Use(middleware.Auth())
	{
		investments.POST("", mw, Invest)
		investments.POST("/:id/cashout", mw, CashOut)
	}
}
