package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

func GetDB() *gorm.DB {
	return db
}

func init() {
	_ = godotenv.Load()
}

// DatabaseDSN builds the invoices DSN from DB_USER, DB_PASSWORD, DB_HOST,
// DB_PORT and DB_NAME. A DB_HOST of /cloudsql/<instance> dials the unix socket.
func DatabaseDSN() string {
	cfg := mysqlDriver.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	host := os.Getenv("DB_HOST")
	if strings.HasPrefix(host, "/cloudsql/") {
		cfg.Net, cfg.Addr = "unix", host
	} else {
		cfg.Net, cfg.Addr = "tcp", host+":"+os.Getenv("DB_PORT")
	}
	return cfg.FormatDSN()
}

// ConnectDatabaseWithRetry opens the database and keeps retrying with backoff
// until it answers or ctx is done.
func ConnectDatabaseWithRetry(ctx context.Context) error {
	dsn := DatabaseDSN()
	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(mysql.Open(dsn), gormConfig())
		if err == nil {
			err = configurePool(conn)
		}
		if err == nil {
			if pluginErr := conn.Use(otelgorm.NewPlugin()); pluginErr != nil {
				logg.WithFields(logrus.Fields{"field": "database"}).Warn("otelgorm plugin not installed: " + pluginErr.Error())
			}
			db = conn
			logg.WithFields(logrus.Fields{"field": "database", "attempt": attempt}).Info("database connected")
			return nil
		}

		delay := retryDelay(attempt)
		logg.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
			"retry":   delay.String(),
		}).Warn("database unavailable: " + err.Error())
		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
	}
}

// configurePool applies DB_MAX_OPEN_CONNS (25), DB_MAX_IDLE_CONNS (10) and
// DB_CONN_MAX_LIFETIME_SECONDS (300).
func configurePool(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(intFromEnv("DB_MAX_OPEN_CONNS", 25))
	sqlDB.SetMaxIdleConns(intFromEnv("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxLifetime(time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second)
	return nil
}

func gormConfig() *gorm.Config {
	level := logger.Error
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GORM_LOG_LEVEL")), "info") {
		level = logger.Info
	}
	return &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			LogLevel:      level,
			SlowThreshold: time.Second,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// retryDelay doubles from 2s and stops growing at 30s.
func retryDelay(attempt int) time.Duration {
	return min(time.Second<<min(attempt, 5), 30*time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
