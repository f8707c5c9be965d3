package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings groups the workflow knobs read from the environment.
type Settings struct {
	// notification fan-out
	NotificationQueueSize   int
	NotificationWorkers     int
	NotificationSendTimeout time.Duration
	NotificationTopic       string
	NotificationChannel     string

	// cross-instance serialization of invoice writes (Redis)
	InvoiceLockTTL  time.Duration
	InvoiceLockWait time.Duration

	// PermissionDefaultsFile optionally replaces the built-in role grant table (YAML).
	PermissionDefaultsFile string

	AutoAssignEnabled bool
	AccessCodeLength  int
}

// LoadSettings reads Settings from env.
//
//   - NOTIFICATION_QUEUE_SIZE (default 256)
//   - NOTIFICATION_WORKERS (default 2)
//   - NOTIFICATION_SEND_TIMEOUT_SECONDS (default 10)
//   - NOTIFICATION_TOPIC (Pub/Sub topic; empty disables the Pub/Sub sink)
//   - NOTIFICATION_CHANNEL (Redis channel; empty disables the Redis sink)
//   - INVOICE_LOCK_TTL_SECONDS (default 30)
//   - INVOICE_LOCK_WAIT_SECONDS (default 5)
//   - PERMISSION_DEFAULTS_FILE
//   - AUTO_ASSIGN_ENABLED (default true)
//   - ACCESS_CODE_LENGTH (default 10)
func LoadSettings() Settings {
	return Settings{
		NotificationQueueSize:   intFromEnv("NOTIFICATION_QUEUE_SIZE", 256),
		NotificationWorkers:     intFromEnv("NOTIFICATION_WORKERS", 2),
		NotificationSendTimeout: time.Duration(intFromEnv("NOTIFICATION_SEND_TIMEOUT_SECONDS", 10)) * time.Second,
		NotificationTopic:       strings.TrimSpace(os.Getenv("NOTIFICATION_TOPIC")),
		NotificationChannel:     strings.TrimSpace(os.Getenv("NOTIFICATION_CHANNEL")),
		InvoiceLockTTL:          time.Duration(intFromEnv("INVOICE_LOCK_TTL_SECONDS", 30)) * time.Second,
		InvoiceLockWait:         time.Duration(intFromEnv("INVOICE_LOCK_WAIT_SECONDS", 5)) * time.Second,
		PermissionDefaultsFile:  strings.TrimSpace(os.Getenv("PERMISSION_DEFAULTS_FILE")),
		AutoAssignEnabled:       boolFromEnv("AUTO_ASSIGN_ENABLED", true),
		AccessCodeLength:        intFromEnv("ACCESS_CODE_LENGTH", 10),
	}
}

func intFromEnv(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}
