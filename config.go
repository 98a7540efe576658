package dextralhorn

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/always-cache/dextral-horn/cache"
	"github.com/always-cache/dextral-horn/pkg/events"
	"github.com/always-cache/dextral-horn/pkg/identifier"
	"github.com/always-cache/dextral-horn/pkg/routing"
	"github.com/always-cache/dextral-horn/pkg/rules"
	"github.com/always-cache/dextral-horn/pkg/strategy"
	"github.com/always-cache/dextral-horn/pkg/validator"
)

const (
	DefaultCacheTTL            = 60 * time.Second
	DefaultPrefetchPrefix      = "demon_dextral_horn"
	DefaultQueueName           = "prefetch"
	DefaultQueueSize           = 100
	DefaultQueueTries          = 2
	DefaultDispatchConcurrency = 4
	DefaultPrefetchHeader      = "Demon-Prefetch-Call"
	DefaultSessionCookieName   = "laravel_session"
	DefaultCacheDB             = "cache.db"

	CacheStoreSQLite = "sqlite"
	CacheStoreMemory = "memory"
)

type Config struct {
	// Prefetching and the fast path are pass-through unless enabled.
	Enabled bool `yaml:"enabled"`
	// How long prefetched responses are kept.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Namespace of cache keys, also the tag every entry carries.
	PrefetchPrefix string `yaml:"prefetch_prefix"`
	// Responses larger than this many bytes are not cached.
	CacheMaxSize int64 `yaml:"cache_max_size"`
	// Name of the job queue, used in logs.
	QueueName string `yaml:"queue_name"`
	// Jobs waiting beyond this are dropped.
	QueueSize int `yaml:"queue_size"`
	// Attempts per job, including the first.
	QueueTries int `yaml:"queue_tries"`
	// Targets of one job dispatched in parallel.
	DispatchConcurrency int `yaml:"dispatch_concurrency"`
	// Header marking synthesized requests.
	PrefetchHeader string `yaml:"prefetch_header"`
	// One of guest, session or jwt.
	AuthDriver        string `yaml:"auth_driver"`
	SessionCookieName string `yaml:"session_cookie_name"`
	// sqlite or memory; ignored when Cache is set.
	CacheStore string      `yaml:"cache_store"`
	CacheDB    string      `yaml:"cache_db"`
	Rules      rules.Rules `yaml:"rules"`

	// Router serving the application. Required when enabled.
	Router *routing.Router `yaml:"-"`
	// Storage for cache entries. Created from CacheStore if nil.
	Cache cache.CacheProvider `yaml:"-"`
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger `yaml:"-"`
	// Event sink. Events are logged if nil.
	Reporter events.Reporter `yaml:"-"`
	// Strategies available to rules. The built-in set is used if nil.
	Registry *strategy.Registry `yaml:"-"`
}

// LoadConfig reads a YAML config file and applies defaults.
func LoadConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err = yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.PrefetchPrefix == "" {
		c.PrefetchPrefix = DefaultPrefetchPrefix
	}
	if c.CacheMaxSize <= 0 {
		c.CacheMaxSize = validator.DefaultMaxSize
	}
	if c.QueueName == "" {
		c.QueueName = DefaultQueueName
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.QueueTries <= 0 {
		c.QueueTries = DefaultQueueTries
	}
	if c.DispatchConcurrency <= 0 {
		c.DispatchConcurrency = DefaultDispatchConcurrency
	}
	if c.PrefetchHeader == "" {
		c.PrefetchHeader = DefaultPrefetchHeader
	}
	if c.AuthDriver == "" {
		c.AuthDriver = identifier.DriverSession
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = DefaultSessionCookieName
	}
	if c.CacheStore == "" {
		c.CacheStore = CacheStoreSQLite
	}
	if c.CacheDB == "" {
		c.CacheDB = DefaultCacheDB
	}
}

// NewCacheProvider creates the store named by CacheStore.
func (c Config) NewCacheProvider() cache.CacheProvider {
	if c.CacheStore == CacheStoreMemory {
		return cache.NewMemCache()
	}
	return cache.NewSQLiteCache(c.CacheDB)
}
