package api

import (
	"github.com/gin-gonic/gin"

	"rewardengine/internal/ledger"
	"rewardengine/internal/logging"
	"rewardengine/internal/portfolio"
	"rewardengine/internal/referral"
	"rewardengine/internal/settlement"
)

// App carries the services the handlers call into. It is stored on every
// request under the "app" key.
type App struct {
	Store      ledger.Store
	Catalog    ledger.Catalog
	Referrals  *referral.Manager
	Portfolio  *portfolio.Service
	Settlement *settlement.Engine
	Log        logging.Logger
}

// Inject makes app available to the handlers.
func Inject(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("app", app)
	}
}

func appFrom(c *gin.Context) *App {
	return c.MustGet("app").(*App)
}
