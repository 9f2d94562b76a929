package fs

import (
	"context"
	"time"
)

// Config holds every tunable enumerated in spec.md section 6. It is
// carried on the context rather than as package globals so that concurrent
// callers (and tests) never share mutable state, mirroring the teacher's
// fs.Config/GetConfig/AddConfig pattern.
type Config struct {
	// GatherBatchSize bounds concurrent coroutines/goroutines per bulk call.
	GatherBatchSize int
	// NoFilesGatherBatchSize bounds concurrency for operations that open
	// local file descriptors, kept smaller to respect ulimits.
	NoFilesGatherBatchSize int
	// ListingsExpiryTime is the directory-listing cache TTL. Zero means
	// entries never expire by time (only by capacity).
	ListingsExpiryTime time.Duration
	// UseListingsCache disables the directory-listing cache entirely when false.
	UseListingsCache bool
	// ListingsMaxPaths caps the number of cached directories (LRU eviction).
	ListingsMaxPaths int
	// SkipInstanceCache bypasses Fs instance deduplication for this call.
	SkipInstanceCache bool
	// AutoMkdir implicitly creates missing parent directories in copy/put.
	AutoMkdir bool
	// Asynchronous constructs filesystems in async-native mode.
	Asynchronous bool
	// CacheType names the default read-buffer strategy for Open.
	CacheType string
	// CacheOptions carries per-strategy parameters (block size, count, ...).
	CacheOptions map[string]string
	// LowLevelRetries is a retry count carried on the Config; no package
	// in this module reads it.
	LowLevelRetries int
}

// DefaultConfig returns a Config populated with the teacher's defaults.
func DefaultConfig() *Config {
	return &Config{
		GatherBatchSize:        128,
		NoFilesGatherBatchSize: 8,
		UseListingsCache:       true,
		ListingsMaxPaths:       0,
		AutoMkdir:              false,
		CacheType:              "readahead",
		CacheOptions:           map[string]string{},
		LowLevelRetries:        3,
	}
}

type configContextKey struct{}

// GetConfig returns the Config attached to ctx, or the process default if
// none was attached via AddConfig.
func GetConfig(ctx context.Context) *Config {
	if ctx != nil {
		if c, ok := ctx.Value(configContextKey{}).(*Config); ok {
			return c
		}
	}
	return globalConfig
}

// AddConfig attaches a fresh copy of the current config to ctx and returns
// both the new context and the config, so callers can mutate fields that
// should only apply to the returned context's descendants.
func AddConfig(ctx context.Context) (context.Context, *Config) {
	current := GetConfig(ctx)
	clone := *current
	clone.CacheOptions = make(map[string]string, len(current.CacheOptions))
	for k, v := range current.CacheOptions {
		clone.CacheOptions[k] = v
	}
	return context.WithValue(ctx, configContextKey{}, &clone), &clone
}

var globalConfig = DefaultConfig()
