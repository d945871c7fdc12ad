// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetTriggerRatePerMinute() float64
	GetTriggerRateBurst() int
}

// ProfileStoreConfig provides settings for the behavioral profile store (Unomi).
type ProfileStoreConfig interface {
	GetUnomiURL() string
	GetUnomiUser() string
	GetUnomiPassword() string
	GetUnomiTimeout() time.Duration
	GetUnomiRateLimit() float64
}

// CRMConfig provides settings for the CRM / marketing system (Mautic).
type CRMConfig interface {
	GetMauticURL() string
	GetMauticUser() string
	GetMauticPassword() string
	GetMauticTimeout() time.Duration
	GetMauticRateLimit() float64
}

// SegmentationConfig provides rule thresholds, segment identifiers and
// batch tuning for the segmentation engine.
type SegmentationConfig interface {
	GetCategorySegments() map[string]int
	GetDefaultCategorySegment() int
	GetEngagedNoPurchaseSegment() int
	GetHighVolumeSegment() int
	GetHighClaimsSegment() int
	GetInactiveSegment() int
	GetCategoryClickThreshold() int64
	GetTotalClickThreshold() int64
	GetPurchaseThreshold() int64
	GetClaimAmountThreshold() float64
	GetInactivityWindow() time.Duration
	GetRuleTriggerMode() string
	GetSyncConcurrency() int
	GetProfilePageSize() int
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSyncCron() string
	GetSyncLockTTL() time.Duration
	GetSyncRunRetention() time.Duration
	GetRetentionInterval() time.Duration
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSyncReports() string
	IsMinIOEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	MigrationsDir            string
	JWTAccessSecret          string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	TriggerRatePerMinute     float64
	TriggerRateBurst         int
	UnomiURL                 string
	UnomiUser                string
	UnomiPassword            string
	UnomiTimeout             time.Duration
	UnomiRateLimit           float64
	MauticURL                string
	MauticUser               string
	MauticPassword           string
	MauticTimeout            time.Duration
	MauticRateLimit          float64
	CategorySegments         map[string]int
	DefaultCategorySegment   int
	EngagedNoPurchaseSegment int
	HighVolumeSegment        int
	HighClaimsSegment        int
	InactiveSegment          int
	CategoryClickThreshold   int64
	TotalClickThreshold      int64
	PurchaseThreshold        int64
	ClaimAmountThreshold     float64
	InactivityWindow         time.Duration
	RuleTriggerMode          string
	SyncConcurrency          int
	ProfilePageSize          int
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	SyncCron                 string
	SyncLockTTL              time.Duration
	SyncRunRetention         time.Duration
	RetentionInterval        time.Duration
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	MinioBucketSyncReports   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string              { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool            { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string         { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool          { return c.CORSAllowCreds }
func (c *Config) GetTriggerRatePerMinute() float64 { return c.TriggerRatePerMinute }
func (c *Config) GetTriggerRateBurst() int         { return c.TriggerRateBurst }

// ProfileStoreConfig implementation
func (c *Config) GetUnomiURL() string            { return c.UnomiURL }
func (c *Config) GetUnomiUser() string           { return c.UnomiUser }
func (c *Config) GetUnomiPassword() string       { return c.UnomiPassword }
func (c *Config) GetUnomiTimeout() time.Duration { return c.UnomiTimeout }
func (c *Config) GetUnomiRateLimit() float64     { return c.UnomiRateLimit }

// CRMConfig implementation
func (c *Config) GetMauticURL() string            { return c.MauticURL }
func (c *Config) GetMauticUser() string           { return c.MauticUser }
func (c *Config) GetMauticPassword() string       { return c.MauticPassword }
func (c *Config) GetMauticTimeout() time.Duration { return c.MauticTimeout }
func (c *Config) GetMauticRateLimit() float64     { return c.MauticRateLimit }

// SegmentationConfig implementation
func (c *Config) GetCategorySegments() map[string]int { return c.CategorySegments }
func (c *Config) GetDefaultCategorySegment() int      { return c.DefaultCategorySegment }
func (c *Config) GetEngagedNoPurchaseSegment() int    { return c.EngagedNoPurchaseSegment }
func (c *Config) GetHighVolumeSegment() int           { return c.HighVolumeSegment }
func (c *Config) GetHighClaimsSegment() int           { return c.HighClaimsSegment }
func (c *Config) GetInactiveSegment() int             { return c.InactiveSegment }
func (c *Config) GetCategoryClickThreshold() int64    { return c.CategoryClickThreshold }
func (c *Config) GetTotalClickThreshold() int64       { return c.TotalClickThreshold }
func (c *Config) GetPurchaseThreshold() int64         { return c.PurchaseThreshold }
func (c *Config) GetClaimAmountThreshold() float64    { return c.ClaimAmountThreshold }
func (c *Config) GetInactivityWindow() time.Duration  { return c.InactivityWindow }
func (c *Config) GetRuleTriggerMode() string          { return c.RuleTriggerMode }
func (c *Config) GetSyncConcurrency() int             { return c.SyncConcurrency }
func (c *Config) GetProfilePageSize() int             { return c.ProfilePageSize }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                 { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool           { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string           { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int            { return c.AsynqConcurrency }
func (c *Config) GetSyncCron() string                 { return c.SyncCron }
func (c *Config) GetSyncLockTTL() time.Duration       { return c.SyncLockTTL }
func (c *Config) GetSyncRunRetention() time.Duration  { return c.SyncRunRetention }
func (c *Config) GetRetentionInterval() time.Duration { return c.RetentionInterval }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string          { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string         { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string         { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool              { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSyncReports() string { return c.MinioBucketSyncReports }
func (c *Config) IsMinIOEnabled() bool              { return c.MinIOEndpoint != "" }

// Rule trigger modes.
const (
	TriggerModeExact    = "exact"
	TriggerModeCrossing = "crossing"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	categorySegments, err := parseSegmentMap(getEnv("SEGMENT_CATEGORY_MAP", "Health=3,Life=4,Travel=5,Auto=7,Business=6"))
	if err != nil {
		return nil, fmt.Errorf("SEGMENT_CATEGORY_MAP: %w", err)
	}

	cfg := &Config{
		Env:                      getEnv("APP_ENV", "development"),
		HTTPAddr:                 getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		MigrationsDir:            getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:          getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:             corsAllowAll,
		CORSOrigins:              corsOrigins,
		CORSAllowCreds:           strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		TriggerRatePerMinute:     mustFloat(getEnv("TRIGGER_RATE_PER_MINUTE", "120")),
		TriggerRateBurst:         mustInt(getEnv("TRIGGER_RATE_BURST", "20")),
		UnomiURL:                 strings.TrimRight(getEnv("UNOMI_API_URL", ""), "/"),
		UnomiUser:                getEnv("UNOMI_USER", "karaf"),
		UnomiPassword:            getEnv("UNOMI_PASS", "karaf"),
		UnomiTimeout:             mustDuration(getEnv("UNOMI_TIMEOUT", "10s")),
		UnomiRateLimit:           mustFloat(getEnv("UNOMI_RATE_LIMIT", "20")),
		MauticURL:                strings.TrimRight(getEnv("MAUTIC_BASE_URL", ""), "/"),
		MauticUser:               getEnv("MAUTIC_USER", ""),
		MauticPassword:           getEnv("MAUTIC_PASS", ""),
		MauticTimeout:            mustDuration(getEnv("MAUTIC_TIMEOUT", "10s")),
		MauticRateLimit:          mustFloat(getEnv("MAUTIC_RATE_LIMIT", "10")),
		CategorySegments:         categorySegments,
		DefaultCategorySegment:   mustInt(getEnv("SEGMENT_CATEGORY_DEFAULT", "3")),
		EngagedNoPurchaseSegment: mustInt(getEnv("SEGMENT_ENGAGED_NO_PURCHASE", "10")),
		HighVolumeSegment:        mustInt(getEnv("SEGMENT_HIGH_VOLUME_PURCHASER", "8")),
		HighClaimsSegment:        mustInt(getEnv("SEGMENT_HIGH_CLAIMS", "9")),
		InactiveSegment:          mustInt(getEnv("SEGMENT_INACTIVE", "11")),
		CategoryClickThreshold:   mustInt64(getEnv("RULE_CATEGORY_CLICKS", "10")),
		TotalClickThreshold:      mustInt64(getEnv("RULE_TOTAL_CLICKS", "100")),
		PurchaseThreshold:        mustInt64(getEnv("RULE_PURCHASE_COUNT", "10")),
		ClaimAmountThreshold:     mustFloat(getEnv("RULE_CLAIM_AMOUNT", "15000")),
		InactivityWindow:         mustDuration(getEnv("RULE_INACTIVITY_WINDOW", "720h")),
		RuleTriggerMode:          strings.ToLower(getEnv("RULE_TRIGGER_MODE", TriggerModeExact)),
		SyncConcurrency:          mustInt(getEnv("SYNC_CONCURRENCY", "4")),
		ProfilePageSize:          mustInt(getEnv("UNOMI_PAGE_SIZE", "1000")),
		RedisURL:                 getEnv("REDIS_URL", ""),
		RedisTLSInsecure:         strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:           getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:         mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		SyncCron:                 getEnv("SYNC_CRON", "0 9 * * *"),
		SyncLockTTL:              mustDuration(getEnv("SYNC_LOCK_TTL", "6h")),
		SyncRunRetention:         mustDuration(getEnv("SYNC_RUN_RETENTION", "2160h")),
		RetentionInterval:        mustDuration(getEnv("SYNC_RUN_RETENTION_INTERVAL", "1h")),
		MinIOEndpoint:            getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSyncReports:   getEnv("MINIO_BUCKET_SYNC_REPORTS", "segment-sync-reports"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.UnomiURL == "" {
		return fmt.Errorf("UNOMI_API_URL is required")
	}
	if c.MauticURL == "" {
		return fmt.Errorf("MAUTIC_BASE_URL is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.RuleTriggerMode != TriggerModeExact && c.RuleTriggerMode != TriggerModeCrossing {
		return fmt.Errorf("RULE_TRIGGER_MODE must be %q or %q", TriggerModeExact, TriggerModeCrossing)
	}
	if c.InactivityWindow <= 0 {
		return fmt.Errorf("RULE_INACTIVITY_WINDOW must be a positive duration")
	}
	if err := c.validateRules(); err != nil {
		return err
	}
	if c.SyncConcurrency < 1 {
		c.SyncConcurrency = 1
	}
	if c.ProfilePageSize < 1 {
		c.ProfilePageSize = 1000
	}
	return nil
}

// validateRules requires positive thresholds and segment ids. Unparsable
// numbers load as 0 and land here.
func (c *Config) validateRules() error {
	segments := []struct {
		env string
		id  int
	}{
		{"SEGMENT_CATEGORY_DEFAULT", c.DefaultCategorySegment},
		{"SEGMENT_ENGAGED_NO_PURCHASE", c.EngagedNoPurchaseSegment},
		{"SEGMENT_HIGH_VOLUME_PURCHASER", c.HighVolumeSegment},
		{"SEGMENT_HIGH_CLAIMS", c.HighClaimsSegment},
		{"SEGMENT_INACTIVE", c.InactiveSegment},
	}
	for _, seg := range segments {
		if seg.id <= 0 {
			return fmt.Errorf("%s must be a positive segment id", seg.env)
		}
	}
	for name, id := range c.CategorySegments {
		if id <= 0 {
			return fmt.Errorf("SEGMENT_CATEGORY_MAP: segment id for %q must be positive", name)
		}
	}

	if c.CategoryClickThreshold <= 0 {
		return fmt.Errorf("RULE_CATEGORY_CLICKS must be a positive number")
	}
	if c.TotalClickThreshold <= 0 {
		return fmt.Errorf("RULE_TOTAL_CLICKS must be a positive number")
	}
	if c.PurchaseThreshold <= 0 {
		return fmt.Errorf("RULE_PURCHASE_COUNT must be a positive number")
	}
	if c.ClaimAmountThreshold <= 0 {
		return fmt.Errorf("RULE_CLAIM_AMOUNT must be a positive number")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}

// parseSegmentMap parses "Category=ID,Category=ID" pairs.
func parseSegmentMap(value string) (map[string]int, error) {
	result := make(map[string]int)
	for _, pair := range splitCSV(value) {
		name, rawID, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid pair %q", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rawID))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid segment id in %q", pair)
		}
		result[name] = id
	}
	return result, nil
}
