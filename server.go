package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/config"
	"bitbucket.org/mmdatafocus/invoice_backend/middlewares"
	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/permissions"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/uploads"
	"bitbucket.org/mmdatafocus/invoice_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func newRouter(a *api, logger *logrus.Logger, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestContext())
	r.Use(cors.New(corsConfig()))
	r.Use(extra...)
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())
	a.routes(r)
	r.NoRoute(customNotFoundHandler)
	return r
}

// corsConfig denies every origin in production unless CORS_ALLOWED_ORIGINS
// lists them, and allows every origin elsewhere.
func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = true
	return corsConfig
}

func loadRoleGrants(path string) (permissions.RoleGrants, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return permissions.LoadRoleGrantsYAML(f)
}

func newObjectStore(ctx context.Context, logger *logrus.Logger) uploads.ObjectStore {
	if strings.TrimSpace(os.Getenv("GCS_BUCKET")) == "" {
		logger.WithFields(logrus.Fields{"field": "uploads"}).Warn("GCS_BUCKET not set; documents are kept in memory")
		return uploads.NewMemoryStorage()
	}
	gcs, err := uploads.NewGCSStorageFromEnv(ctx, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "uploads"}).Fatal(err.Error())
	}
	return gcs
}

func notificationSinks(ctx context.Context, settings config.Settings, logger *logrus.Logger) []workflow.Sink {
	sinks := []workflow.Sink{&workflow.LogSink{Logger: logger}}
	if settings.NotificationChannel != "" && config.GetRedisDB() != nil {
		sinks = append(sinks, &workflow.RedisSink{Client: config.GetRedisDB(), Channel: settings.NotificationChannel})
	}
	if settings.NotificationTopic != "" && config.PubSubConfigured() {
		client, err := config.GetPubSubClient(ctx)
		if err == nil {
			_, err = config.CreateTopicIfNotExists(ctx, client, settings.NotificationTopic)
		}
		if err != nil {
			logger.WithFields(logrus.Fields{
				"field": "pubsub",
				"topic": settings.NotificationTopic,
			}).Error("pubsub sink disabled: " + err.Error())
		} else {
			sinks = append(sinks, workflow.NewPubSubSink(settings.NotificationTopic))
		}
	}
	return sinks
}

func rateLimit(logger *logrus.Logger) []gin.HandlerFunc {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	if config.GetRedisDB() == nil {
		logger.WithFields(logrus.Fields{"field": "ratelimit"}).Warn("RATE_LIMIT_ENABLED needs REDIS_ADDRESS; rate limiting is off")
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	rl := middlewares.NewRateLimiter(config.GetRedisDB(), limit, time.Duration(windowSec)*time.Second)
	return []gin.HandlerFunc{rl.RateLimitMiddleware}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.LoadSettings()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := config.ConnectDatabaseWithRetry(sigCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Error(err.Error())
		return
	}
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	if config.RedisEnabled() {
		if err := config.ConnectRedisWithRetry(sigCtx); err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Error(err.Error())
			return
		}
	}

	roles, err := loadRoleGrants(settings.PermissionDefaultsFile)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "permissions",
			"file":  settings.PermissionDefaultsFile,
		}).Fatal(err.Error())
	}

	dispatcher := workflow.NewNotificationDispatcher(logger, settings.NotificationQueueSize, notificationSinks(sigCtx, settings, logger)...)
	dispatcher.Workers = settings.NotificationWorkers
	dispatcher.SendTimeout = settings.NotificationSendTimeout
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(context.Background())
		close(dispatcherDone)
	}()

	objects := newObjectStore(sigCtx, logger)

	engine := workflow.NewEngine(store.NewGormStore(db), permissions.NewEvaluator(roles), dispatcher, logger)
	engine.Files = objects
	engine.AutoAssign = settings.AutoAssignEnabled
	engine.AccessCodeLength = settings.AccessCodeLength
	if lock := config.GetRedisLock(); lock != nil {
		engine.Locker = store.NewRedisLocker(lock, settings.InvoiceLockTTL, settings.InvoiceLockWait)
	}

	a := &api{engine: engine, objects: objects, logger: logger}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(a, logger, rateLimit(logger)...),
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{
		"field": "http",
		"port":  port,
	}).Info("invoice workflow listening")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// no request can notify any more; let queued notifications drain
	dispatcher.Close()
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		logger.WithFields(logrus.Fields{"field": "notifications"}).Warn("shutdown before notification queue drained")
	}

	if gcs, ok := objects.(*uploads.GCSStorage); ok {
		_ = gcs.Close()
	}
	if err := config.ClosePubSub(); err != nil {
		logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn("pubsub close: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
