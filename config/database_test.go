package config

import (
	"context"
	"errors"
	"testing"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

func TestDatabaseDSN(t *testing.T) {
	cases := []struct {
		name string
		host string
		port string
		net  string
		addr string
	}{
		{"tcp", "db.internal", "3306", "tcp", "db.internal:3306"},
		{"cloud sql socket", "/cloudsql/proj:region:inst", "", "unix", "/cloudsql/proj:region:inst"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("DB_USER", "app")
			t.Setenv("DB_PASSWORD", "s3cret")
			t.Setenv("DB_HOST", tc.host)
			t.Setenv("DB_PORT", tc.port)
			t.Setenv("DB_NAME", "invoices")

			cfg, err := mysqlDriver.ParseDSN(DatabaseDSN())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if cfg.Net != tc.net || cfg.Addr != tc.addr || cfg.User != "app" || cfg.Passwd != "s3cret" || cfg.DBName != "invoices" {
				t.Fatalf("unexpected config %+v", cfg)
			}
			if !cfg.ParseTime || cfg.Loc != time.UTC {
				t.Fatalf("time handling not set: parseTime=%v loc=%v", cfg.ParseTime, cfg.Loc)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	want := map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 4: 16 * time.Second, 5: 30 * time.Second, 12: 30 * time.Second}
	for attempt, d := range want {
		if got := retryDelay(attempt); got != d {
			t.Fatalf("retryDelay(%d)=%s want %s", attempt, got, d)
		}
	}
}

func TestSleepCtx_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
}

func TestConnectRedisWithRetry_NeedsAddress(t *testing.T) {
	t.Setenv("REDIS_ADDRESS", "")
	if RedisEnabled() {
		t.Fatalf("redis enabled without address")
	}
	if err := ConnectRedisWithRetry(context.Background()); err == nil {
		t.Fatalf("expected an error without REDIS_ADDRESS")
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		" error ": logrus.ErrorLevel,
		"loud":    logrus.InfoLevel,
	}
	for raw, want := range cases {
		t.Setenv("LOG_LEVEL", raw)
		if got := logLevelFromEnv(); got != want {
			t.Fatalf("LOG_LEVEL=%q: got %s want %s", raw, got, want)
		}
	}
}
