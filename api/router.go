package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ogsm-service/logger"
)

type RouterConfig struct {
	ComponentHandler *ComponentHandler
	Log              *logger.Logger
	CORSOrigins      []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(cfg.Log))
	router.Use(CORS(cfg.CORSOrigins))

	router.GET("/healthcheck", HealthCheck)

	ogsm := router.Group("/api/ogsm")
	{
		h := cfg.ComponentHandler
		ogsm.GET("/components", h.ListComponents)
		ogsm.POST("/components", h.CreateComponent)
		ogsm.GET("/components/tree", h.GetTree)
		ogsm.POST("/components/bulk-reorder", h.BulkReorder)
		ogsm.POST("/components/validate-hierarchy", h.ValidateHierarchy)
		ogsm.POST("/components/templates/apply", h.ApplyTemplate)
		ogsm.GET("/components/:id", h.GetComponent)
		ogsm.PUT("/components/:id", h.UpdateComponent)
		ogsm.DELETE("/components/:id", h.DeleteComponent)
		ogsm.GET("/components/:id/children", h.ListChildren)
		ogsm.POST("/components/:id/duplicate", h.DuplicateComponent)
	}

	return router
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
