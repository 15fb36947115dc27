package app

import (
	"errors"
	"net/http"

	"github.com/garyellow/ntpu-directory-bot/internal/directory"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routes builds the HTTP surface.
func (a *Application) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", a.redirectToProject)
	router.HEAD("/", a.redirectToProject)
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.GET("/healthz", a.healthCheck)
	router.HEAD("/healthz", a.healthCheck)

	// LINE console setups in the wild point at either path.
	router.POST("/webhook", a.readinessMiddleware(), a.webhookHandler.Handle)
	router.POST("/callback", a.readinessMiddleware(), a.webhookHandler.Handle)

	router.GET("/metrics",
		metricsAuthMiddleware(a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return router
}

func (a *Application) redirectToProject(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, projectURL)
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// readinessCheck reports 200 once the first refresh pass has finished, or
// once the warmup grace period ran out.
func (a *Application) readinessCheck(c *gin.Context) {
	if !a.readinessState.IsReady() {
		status := a.readinessState.Status()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"timeout_seconds": status.TimeoutSeconds,
			},
		})
		return
	}

	ctx := c.Request.Context()
	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	stats := a.index.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"directory": gin.H{
			"entries": stats.Entries,
			"cohorts": stats.Cohorts,
			"loaded":  stats.Ready,
		},
		"stickers": a.stickerManager.Count(),
	})
}

// healthCheck turns unhealthy while the directory service cannot be
// reached at all.
func (a *Application) healthCheck(c *gin.Context) {
	err := a.index.Health()
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	reason := err.Error()
	if errors.Is(err, directory.ErrServiceUnreachable) {
		reason = "directory service unreachable"
	}
	last := a.index.Stats().LastRefresh
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":       "unhealthy",
		"reason":       reason,
		"last_refresh": last.Finished,
	})
}

// readinessMiddleware answers 503 until the service is ready so LINE
// redelivers the events later.
func (a *Application) readinessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.readinessState.IsReady() {
			status := a.readinessState.Status()
			a.logger.WithField("elapsed_seconds", status.ElapsedSeconds).
				Debug("Webhook rejected: warmup in progress")
			c.Header("Retry-After", "60")
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":       "service warming up",
				"retry_after": 60,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
