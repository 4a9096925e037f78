package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RohanKapurDEV/sudoswap-sol/internal/app"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/auth"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/authority"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/database"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/middleware"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/pool"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/transaction"
	"github.com/RohanKapurDEV/sudoswap-sol/internal/websocket"
)

func newRouter(a *app.App, ws *websocket.Server, am *auth.AuthMiddleware) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(), middleware.Metrics())
	router.Use(auth.SecurityHeaders(), auth.SecureCORS(a.Config.Server.AllowedOrigins))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if err := database.Ping(c.Request.Context(), a.DB); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"service":   "nftamm-api",
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	authed := v1.Group("")
	authed.Use(am.RequireAuth(), am.RateLimitByAddress(a.Config.Auth.RatePerMin, a.Config.Auth.RateBurst))

	pool.NewHandler(a.Pools).RegisterRoutes(v1, authed)
	authority.NewHandler(a.Authorities).RegisterRoutes(authed)
	transaction.NewHandler(a.History).RegisterRoutes(v1)
	ws.RegisterRoutes(router)

	return router
}
