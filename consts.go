package raffle

import "time"

const (
	// MaxCategoryQuantity is the absolute ceiling for a single category's quantity
	MaxCategoryQuantity = 100

	// TicketNumberMinWidth is the minimum width of a formatted ticket number
	TicketNumberMinWidth = 6

	// DefaultNotifyDelay is the default delay before a change notification is published
	DefaultNotifyDelay = 10 * time.Millisecond

	// MaxNotifyDelay is the maximum notify delay allowed
	MaxNotifyDelay = 5 * time.Second

	// MinCategoryQuantity is the floor applied to active category quantities
	MinCategoryQuantity = 1
)

const (
	// DefaultRetryAttempts is the default number of retry attempts
	DefaultRetryAttempts = 3

	// DefaultRetryInterval is the default interval between retry attempts
	DefaultRetryInterval = 100 * time.Millisecond

	// MaxRetryAttempts is the maximum number of retry attempts allowed
	MaxRetryAttempts = 10

	// SnapshotKeyPrefix is the prefix for Redis session snapshot keys
	SnapshotKeyPrefix = "raffle:session:"

	// DefaultSnapshotTTL is the default TTL for a saved session snapshot
	DefaultSnapshotTTL = 24 * time.Hour

	// MaxSnapshotSize is the maximum allowed size for a serialized snapshot (10MB)
	MaxSnapshotSize = 10 * 1024 * 1024
)

const (
	// DefaultCircuitBreakerName is the default name for Circuit Breaker
	DefaultCircuitBreakerName = "raffle-snapshots"

	// DefaultCircuitBreakerMaxRequests is the default max requests
	DefaultCircuitBreakerMaxRequests = 3

	// DefaultCircuitBreakerInterval is the default interval
	DefaultCircuitBreakerInterval = 60 * time.Second

	// DefaultCircuitBreakerTimeout is the default timeout
	DefaultCircuitBreakerTimeout = 30 * time.Second

	// DefaultCircuitBreakerFailureRatio is the default failure ratio
	DefaultCircuitBreakerFailureRatio = 0.6

	// DefaultCircuitBreakerMinRequests is the default min requests
	DefaultCircuitBreakerMinRequests = 3

	// DefaultCircuitBreakerOnStateChange is the default on state change
	DefaultCircuitBreakerOnStateChange = true
)

const (
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPassword     = ""
	DefaultRedisDB           = 0
	DefaultRedisPoolSize     = 10
	DefaultRedisMinIdleConns = 2
	DefaultRedisMaxRetries   = 3
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisPoolTimeout  = 4 * time.Second
)

const DefaultLogLevel = "info"
