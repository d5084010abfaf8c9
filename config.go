package raffle

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config is the full configuration of an allocation deployment
type Config struct {
	Engine *EngineConfig `mapstructure:"engine"`

	// Session snapshots
	Snapshot *SnapshotConfig `mapstructure:"snapshot"`

	Redis *RedisConfig `mapstructure:"redis"`

	CircuitBreaker *CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	Log *LogConfig `mapstructure:"log"`
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.Engine == nil || c.Snapshot == nil || c.Redis == nil {
		return ErrConfigInvalid.WithDetails("engine, snapshot and redis sections are required")
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := c.Snapshot.Validate(); err != nil {
		return err
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool size must be positive")
	}

	if c.Log != nil && c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level: %s", c.Log.Level)
		}
	}

	return nil
}

// EngineConfig tunes the allocation engine
type EngineConfig struct {
	MaxCategoryQuantity int           `mapstructure:"max_category_quantity"`
	NotifyDelay         time.Duration `mapstructure:"notify_delay"`
}

// Validate checks the engine limits
func (c *EngineConfig) Validate() error {
	if c.MaxCategoryQuantity < MinCategoryQuantity {
		return ErrInvalidQuantityLimit
	}
	if c.NotifyDelay < 0 || c.NotifyDelay > MaxNotifyDelay {
		return ErrInvalidNotifyDelay
	}
	return nil
}

// DefaultEngineConfig returns the engine defaults
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxCategoryQuantity: MaxCategoryQuantity,
		NotifyDelay:         DefaultNotifyDelay,
	}
}

// NewEngineConfig creates an engine configuration
func NewEngineConfig(maxQuantity int, notifyDelay time.Duration) *EngineConfig {
	return &EngineConfig{
		MaxCategoryQuantity: maxQuantity,
		NotifyDelay:         notifyDelay,
	}
}

// SnapshotConfig tunes the session snapshot store
type SnapshotConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// Validate checks the snapshot retry settings
func (c *SnapshotConfig) Validate() error {
	if c.RetryAttempts < 0 || c.RetryAttempts > MaxRetryAttempts {
		return ErrInvalidRetryAttempts
	}
	if c.RetryInterval < 0 {
		return ErrInvalidRetryInterval
	}
	if c.TTL < 0 {
		return ErrConfigInvalid.WithDetails("snapshot ttl cannot be negative")
	}
	return nil
}

// DefaultSnapshotConfig returns the snapshot defaults
func DefaultSnapshotConfig() *SnapshotConfig {
	return &SnapshotConfig{
		TTL:           DefaultSnapshotTTL,
		RetryAttempts: DefaultRetryAttempts,
		RetryInterval: DefaultRetryInterval,
	}
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Pool
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
	MaxRetries   int `mapstructure:"max_retries"`

	// Timeouts
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Name          string        `mapstructure:"name"`
	MaxRequests   uint32        `mapstructure:"max_requests"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailureRatio  float64       `mapstructure:"failure_ratio"`
	MinRequests   uint32        `mapstructure:"min_requests"`
	OnStateChange bool          `mapstructure:"on_state_change"`
}

// DefaultCircuitBreakerConfig returns the circuit breaker defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:       true,
		Name:          DefaultCircuitBreakerName,
		MaxRequests:   DefaultCircuitBreakerMaxRequests,
		Interval:      DefaultCircuitBreakerInterval,
		Timeout:       DefaultCircuitBreakerTimeout,
		FailureRatio:  DefaultCircuitBreakerFailureRatio,
		MinRequests:   DefaultCircuitBreakerMinRequests,
		OnStateChange: DefaultCircuitBreakerOnStateChange,
	}
}

// LogConfig selects the log level of the default logger
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultLogConfig returns the logging defaults
func DefaultLogConfig() *LogConfig {
	return &LogConfig{Level: DefaultLogLevel}
}

// ConfigManager loads configuration from file and environment
type ConfigManager struct {
	viper *viper.Viper

	mu     sync.RWMutex
	config *Config
}

// NewConfigManager creates a manager reading config.yaml and RAFFLE_* variables
func NewConfigManager() *ConfigManager {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/raffle")
	v.AddConfigPath("$HOME/.raffle")

	v.SetEnvPrefix("RAFFLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigManager{
		viper: v,
	}
}

// NewConfigManagerFromFile creates a manager reading one explicit file
func NewConfigManagerFromFile(path string) *ConfigManager {
	cm := NewConfigManager()
	cm.viper.SetConfigFile(path)
	return cm
}

// LoadConfig reads, decodes and validates the configuration.
// A missing config file is not an error; defaults apply.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	cm.setDefaults()

	if err := cm.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := cm.viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cm.mu.Lock()
	cm.config = config
	cm.mu.Unlock()
	return config, nil
}

func (cm *ConfigManager) setDefaults() {
	cm.viper.SetDefault("engine.max_category_quantity", MaxCategoryQuantity)
	cm.viper.SetDefault("engine.notify_delay", DefaultNotifyDelay.String())

	cm.viper.SetDefault("snapshot.ttl", DefaultSnapshotTTL.String())
	cm.viper.SetDefault("snapshot.retry_attempts", DefaultRetryAttempts)
	cm.viper.SetDefault("snapshot.retry_interval", DefaultRetryInterval.String())

	cm.viper.SetDefault("redis.addr", DefaultRedisAddr)
	cm.viper.SetDefault("redis.password", DefaultRedisPassword)
	cm.viper.SetDefault("redis.db", DefaultRedisDB)
	cm.viper.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	cm.viper.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	cm.viper.SetDefault("redis.max_retries", DefaultRedisMaxRetries)
	cm.viper.SetDefault("redis.dial_timeout", DefaultRedisDialTimeout.String())
	cm.viper.SetDefault("redis.read_timeout", DefaultRedisReadTimeout.String())
	cm.viper.SetDefault("redis.write_timeout", DefaultRedisWriteTimeout.String())
	cm.viper.SetDefault("redis.pool_timeout", DefaultRedisPoolTimeout.String())

	cm.viper.SetDefault("circuit_breaker.enabled", true)
	cm.viper.SetDefault("circuit_breaker.name", DefaultCircuitBreakerName)
	cm.viper.SetDefault("circuit_breaker.max_requests", DefaultCircuitBreakerMaxRequests)
	cm.viper.SetDefault("circuit_breaker.interval", DefaultCircuitBreakerInterval.String())
	cm.viper.SetDefault("circuit_breaker.timeout", DefaultCircuitBreakerTimeout.String())
	cm.viper.SetDefault("circuit_breaker.failure_ratio", DefaultCircuitBreakerFailureRatio)
	cm.viper.SetDefault("circuit_breaker.min_requests", DefaultCircuitBreakerMinRequests)
	cm.viper.SetDefault("circuit_breaker.on_state_change", DefaultCircuitBreakerOnStateChange)

	cm.viper.SetDefault("log.level", DefaultLogLevel)
}

// WatchConfig reloads the configuration when the file changes.
// Invalid revisions are logged and skipped; the last valid one stays current.
func (cm *ConfigManager) WatchConfig(logger Logger, callback func(*Config)) {
	if logger == nil {
		logger = NewSilentLogger()
	}

	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		config := &Config{}
		if err := cm.viper.Unmarshal(config); err != nil {
			logger.Error("Ignoring config change %s: %v", e.Name, err)
			return
		}
		if err := config.Validate(); err != nil {
			logger.Error("Ignoring invalid config change %s: %v", e.Name, err)
			return
		}

		cm.mu.Lock()
		cm.config = config
		cm.mu.Unlock()

		logger.Info("Configuration reloaded from %s (%s)", e.Name, e.Op)
		if callback != nil {
			callback(config)
		}
	})
	cm.viper.WatchConfig()
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return cm.config
}

// ReloadConfig reads the configuration again
func (cm *ConfigManager) ReloadConfig() (*Config, error) { return cm.LoadConfig() }

// DefaultConfig returns a configuration made of every section's defaults
func DefaultConfig() *Config {
	return &Config{
		Engine:         DefaultEngineConfig(),
		Snapshot:       DefaultSnapshotConfig(),
		Redis:          DefaultRedisConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Log:            DefaultLogConfig(),
	}
}

// NewDefaultConfigManager creates a manager preloaded with defaults
func NewDefaultConfigManager() *ConfigManager {
	cm := NewConfigManager()
	cm.setDefaults()
	cm.config = DefaultConfig()
	return cm
}

// DefaultRedisConfig returns the Redis defaults
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         DefaultRedisAddr,
		Password:     DefaultRedisPassword,
		DB:           DefaultRedisDB,
		PoolSize:     DefaultRedisPoolSize,
		MinIdleConns: DefaultRedisMinIdleConns,
		MaxRetries:   DefaultRedisMaxRetries,
		DialTimeout:  DefaultRedisDialTimeout,
		ReadTimeout:  DefaultRedisReadTimeout,
		WriteTimeout: DefaultRedisWriteTimeout,
		PoolTimeout:  DefaultRedisPoolTimeout,
	}
}

// NewRedisClientFromConfig creates a Redis client; a nil config uses defaults
func NewRedisClientFromConfig(config *RedisConfig) *redis.Client {
	if config == nil {
		config = DefaultRedisConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})
}

// NewEngineFromConfig builds a logger and an engine from a loaded configuration
func NewEngineFromConfig(poolSize int, config *Config) (*AllocationEngine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	level := DefaultLogLevel
	if config.Log != nil && config.Log.Level != "" {
		level = config.Log.Level
	}
	return NewAllocationEngineWithConfig(poolSize, config.Engine, NewDefaultLogger(level)), nil
}
