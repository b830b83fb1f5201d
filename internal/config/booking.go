package config

import "time"

type BookingConfig struct {
	// PatientCancelWindow is the minimum lead time for a patient cancel.
	PatientCancelWindow time.Duration `yaml:"patient_cancel_window"`
	// MaxRetries bounds retries of optimistic-concurrency conflicts.
	MaxRetries       int           `yaml:"max_retries"`
	ReminderLead     time.Duration `yaml:"reminder_lead"`
	ReferralCacheTTL time.Duration `yaml:"referral_cache_ttl"`
	// DefaultMaxUsagePerUser applies to codes created without a per-user cap.
	DefaultMaxUsagePerUser int `yaml:"default_max_usage_per_user"`
}

func loadBookingConfig() *BookingConfig {
	return &BookingConfig{
		PatientCancelWindow:    getEnvAsDuration("BOOKING_PATIENT_CANCEL_WINDOW", 2*time.Hour),
		MaxRetries:             getEnvAsInt("BOOKING_MAX_RETRIES", 3),
		ReminderLead:           getEnvAsDuration("BOOKING_REMINDER_LEAD", 24*time.Hour),
		ReferralCacheTTL:       getEnvAsDuration("REFERRAL_CACHE_TTL", 5*time.Minute),
		DefaultMaxUsagePerUser: getEnvAsInt("REFERRAL_DEFAULT_MAX_USAGE_PER_USER", 1),
	}
}
