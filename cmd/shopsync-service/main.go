// shopsync-service runs the storefront cleanup worker on its own deployment:
// a streaming-pull Pub/Sub consumer plus a push endpoint for environments
// that deliver over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/klosetlabs/kloset_backend/config"
	"bitbucket.org/klosetlabs/kloset_backend/shopsync"
	"bitbucket.org/klosetlabs/kloset_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SHOPSYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(gin.Recovery())

	// Pub/Sub push endpoint for the sync worker.
	r.POST("/pubsub/shopsync", shopsync.PubSubPushHandler())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	// Streaming-pull consumer unless push-only.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SHOPSYNC_PUSH_ONLY")), "true") {
		go func() {
			if err := shopsync.RunWorker(workerCtx); err != nil {
				logger.WithFields(logrus.Fields{"field": "shopsync_worker"}).Error("worker stopped: " + err.Error())
			}
		}()
	}

	select {
	case <-sigCtx.Done():
		cancelWorker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}
