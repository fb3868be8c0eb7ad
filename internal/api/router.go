// Package api baut den HTTP-Server der Anwendung zusammen.
package api

import (
	"time"

	"presence-gate/config"
	"presence-gate/internal/api/handlers"
	"presence-gate/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RouteRegistrar hängt zusätzliche Routen unter /api ein
type RouteRegistrar interface {
	RegisterRoutes(router *gin.RouterGroup)
}

// NewRouter erstellt die Gin-Engine mit allen API-Routen
func NewRouter(cfg config.ServerConfig, translator *middleware.Translator, apiHandler *handlers.APIHandler, eventHandler *handlers.EventHandler, extra ...RouteRegistrar) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Accept-Language")
	corsCfg.ExposeHeaders = []string{"Content-Language"}
	router.Use(cors.New(corsCfg))

	group := router.Group("/api")
	group.Use(middleware.I18n(translator))
	apiHandler.RegisterRoutes(group)
	eventHandler.RegisterRoutes(group)
	for _, r := range extra {
		r.RegisterRoutes(group)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return router
}

// requestLogger protokolliert Anfragen über logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"component": "http",
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}
