package config

import "time"

// ClusteringConfig holds the knobs the clustering engine and clusterer
// service read at batch-tick time. Every field has a BATTLESCOPE_-prefixed
// environment variable, following the teacher's ZKB_-prefixed convention
// for zkillboard-specific settings.
type ClusteringConfig struct {
	WindowMinutes          int
	GapMaxMinutes          int
	MinKills               int
	ProcessingDelayMinutes int
	BatchSize              int
	RulesetMinPilots       int
}

// LoadClusteringConfig reads the clustering configuration from the
// environment, applying spec.md's documented defaults and bounds.
func LoadClusteringConfig() ClusteringConfig {
	cfg := ClusteringConfig{
		WindowMinutes:          GetIntEnv("BATTLESCOPE_WINDOW_MINUTES", 30),
		GapMaxMinutes:          GetIntEnv("BATTLESCOPE_GAP_MAX_MINUTES", 15),
		MinKills:               GetIntEnv("BATTLESCOPE_MIN_KILLS", 2),
		ProcessingDelayMinutes: GetIntEnv("BATTLESCOPE_PROCESSING_DELAY_MINUTES", 5),
		BatchSize:              GetIntEnv("BATTLESCOPE_BATCH_SIZE", 250),
		RulesetMinPilots:       GetIntEnv("BATTLESCOPE_RULESET_MIN_PILOTS", 2),
	}

	if cfg.ProcessingDelayMinutes < 1 {
		cfg.ProcessingDelayMinutes = 1
	} else if cfg.ProcessingDelayMinutes > 30 {
		cfg.ProcessingDelayMinutes = 30
	}

	if cfg.BatchSize < 100 {
		cfg.BatchSize = 100
	} else if cfg.BatchSize > 500 {
		cfg.BatchSize = 500
	}

	return cfg
}

// GetPollIntervalMs returns the feed consumer's configured poll interval,
// the BATTLESCOPE_ equivalent of the teacher's ZKB_TTW_* settings.
func GetPollIntervalMs() int {
	return GetIntEnv("BATTLESCOPE_POLL_INTERVAL_MS", 2000)
}

// GetEnrichmentThrottleMs returns the minimum spacing between outbound
// enrichment requests to the killmail detail endpoint.
func GetEnrichmentThrottleMs() int {
	return GetIntEnv("BATTLESCOPE_ENRICHMENT_THROTTLE_MS", 1000)
}

// GetClusterTickInterval returns how often the clusterer service runs a
// batch tick.
func GetClusterTickInterval() time.Duration {
	return GetDurationEnv("BATTLESCOPE_TICK_INTERVAL", time.Minute)
}

// GetFeedEndpoint returns the RedisQ-shaped long-poll endpoint the feed
// consumer polls.
func GetFeedEndpoint() string {
	return GetEnv("BATTLESCOPE_FEED_ENDPOINT", "https://zkillredisq.stream/listen.php")
}

// GetFeedQueueID returns the queue identifier the feed consumer registers
// with the upstream feed, so restarts resume the same queue.
func GetFeedQueueID() string {
	return GetEnv("BATTLESCOPE_FEED_QUEUE_ID", "")
}
