package api

import (
	"github.com/gin-gonic/gin"

	"dubbot/config"
)

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(cfg *config.Config, runner JobRunner) *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	RegisterDubRoutes(r, cfg, runner)
	RegisterHealthRoutes(r)
	r.Static("/output", cfg.Cache.OutputDir)
	return r
}
