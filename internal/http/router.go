// README: HTTP router registration (gin).
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"urbanride/internal/http/handlers"
	"urbanride/internal/http/middleware"
	"urbanride/internal/infra"
	"urbanride/internal/modules/ledger"
	"urbanride/internal/modules/ride"
	"urbanride/internal/modules/user"
	"urbanride/internal/types"
)

type RouterDeps struct {
	Rides    *ride.Service
	Ledger   *ledger.Service
	Users    *user.Service
	Verifier infra.TokenVerifier
	Log      logrus.FieldLogger

	// Optional collaborators; the matching routes or middleware are
	// skipped when unset.
	Limiter       middleware.Limiter
	Geocoder      handlers.Geocoder
	WebhookSecret string
	Health        func(ctx context.Context) error
}

func NewRouter(deps RouterDeps) *gin.Engine {
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(
		middleware.Recovery(deps.Log),
		middleware.RequestIDs(),
		middleware.Logging(deps.Log),
		middleware.Metrics(),
	)

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.WebhookSecret != "" {
		webhook := handlers.NewWebhookHandler(deps.Ledger, deps.WebhookSecret)
		r.POST("/webhooks/pix", webhook.Pix)
	}

	api := r.Group("")
	if deps.Limiter != nil {
		api.Use(middleware.RateLimit(deps.Limiter, deps.Log))
	}
	api.Use(middleware.Auth(deps.Verifier))
	driverOnly := middleware.RequireRole(types.RoleDriver)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	rides := api.Group("/rides")
	rides.POST("", rideHandler.Request)
	rides.GET("/active", rideHandler.Active)
	rides.GET("/available", driverOnly, rideHandler.Available)
	rides.GET("/:id", rideHandler.Get)
	rides.POST("/:id/accept", driverOnly, rideHandler.Accept)
	rides.PATCH("/:id/status", driverOnly, rideHandler.UpdateStatus)
	rides.PATCH("/:id/cancel", rideHandler.Cancel)
	rides.POST("/:id/messages", rideHandler.SendMessage)

	walletHandler := handlers.NewWalletHandler(deps.Ledger)
	wallet := api.Group("/wallet")
	wallet.GET("/balance", walletHandler.Balance)
	wallet.GET("/history", walletHandler.History)
	wallet.POST("/recharge", walletHandler.Recharge)

	userHandler := handlers.NewUserHandler(deps.Users)
	users := api.Group("/users")
	users.POST("", userHandler.Register)
	users.GET("/me", userHandler.Me)
	users.PUT("/me", userHandler.Update)

	if deps.Geocoder != nil {
		mapsHandler := handlers.NewMapsHandler(deps.Geocoder)
		api.GET("/maps/search", mapsHandler.Search)
		api.GET("/maps/estimate", mapsHandler.Estimate)
	}

	return r
}
