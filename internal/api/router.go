package api

import (
	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/ragproxy/internal/api/middleware"
	"github.com/liliang-cn/ragproxy/internal/api/proxy"
	"github.com/liliang-cn/ragproxy/internal/observability"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	AllowOrigin string
}

// SetupRouter sets up the Gin router
func SetupRouter(relay *proxy.Handler, metrics *observability.Metrics, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware; also answers the OPTIONS preflight on any path
	r.Use(middleware.CORS(cfg.AllowOrigin))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// Chat requests go through the enrichment relay
	r.POST("/api/chat", relay.Chat)

	// Everything else is forwarded to the backend untouched
	r.NoRoute(relay.Forward)

	return r
}
