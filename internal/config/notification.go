package config

import "time"

// NotificationConfig tunes the worker that drains the notification queue.
type NotificationConfig struct {
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	PromoteBatch int64         `yaml:"promote_batch"`
}

func loadNotificationConfig() *NotificationConfig {
	return &NotificationConfig{
		PollTimeout:  getEnvAsDuration("NOTIFICATION_POLL_TIMEOUT", 5*time.Second),
		MaxAttempts:  getEnvAsInt("NOTIFICATION_MAX_ATTEMPTS", 5),
		RetryBackoff: getEnvAsDuration("NOTIFICATION_RETRY_BACKOFF", 30*time.Second),
		PromoteBatch: int64(getEnvAsInt("NOTIFICATION_PROMOTE_BATCH", 100)),
	}
}
