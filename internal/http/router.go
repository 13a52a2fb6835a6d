package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler, token string, allowedOrigins []string, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = normalizeOrigin(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", AgentSessionHeader},
			MaxAge:       corsMaxAge,
		}))
	}

	r.GET("/healthz", loopbackOnly(), h.Health)
	if metrics != nil {
		r.GET("/metrics", loopbackOnly(), gin.WrapH(metrics))
	}

	api := r.Group("/", agentGuards(token))
	{
		api.GET("/status", h.Status)

		api.POST("/wallet/initialize", h.Initialize)
		api.POST("/wallet/unlock", h.Unlock)
		api.POST("/wallet/lock", h.Lock)
		api.POST("/wallet/pair", h.Pair)
		api.POST("/wallet/disconnect", h.Disconnect)
		api.POST("/wallet/password", h.ChangePassword)
		api.POST("/wallet/clear", h.Clear)

		api.GET("/approvals", h.ListApprovals)
		api.POST("/approvals/:id", h.DecideApproval)
	}

	return r
}
