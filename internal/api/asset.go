package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func GetAssets(c *gin.Context) {
	app := appFrom(c)
	assets, err := app.Catalog.ActiveAssets(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assets)
}

func GetAsset(c *gin.Context) {
	app := appFrom(c)
	asset, err := app.Catalog.Asset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}
