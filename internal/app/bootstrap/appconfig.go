// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// Values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings: ports, TLS, log level, body limits and the
// CORS settings applied outside /api.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Bearer tokens
	JWTSecret string        // HS256 signing secret (32+ chars in production)
	JWTTTL    time.Duration // Token lifetime (default: 24h)

	// File storage configuration
	StorageType      string // Storage backend: "local" or "s3"
	StorageLocalPath string // Local storage path (e.g., "./uploads")
	StorageLocalURL  string // URL prefix for serving local files (e.g., "/files")

	// S3/CloudFront configuration (only used if StorageType is "s3")
	StorageS3Region    string
	StorageS3Bucket    string
	StorageS3Prefix    string // Key prefix (e.g., "drive/")
	StorageCFURL       string // CloudFront distribution URL
	StorageCFKeyPairID string
	StorageCFKeyPath   string // Path to CloudFront private key file

	// Drive engine
	CreditsPerFile      int64 // Credits charged per uploaded file (0 = free)
	SignupCredits       int64 // Credits granted to new accounts
	UploadMaxMemory     int64 // Multipart memory budget in bytes; larger parts spill to disk
	UploadConcurrency   int   // Parallel blob writes per upload batch
	RequireTransactions bool  // Refuse compensated writes on standalone MongoDB

	// Login rate limiting
	RateLimitEnabled       bool
	RateLimitLoginAttempts int           // Failed attempts before lockout (default: 5)
	RateLimitLoginWindow   time.Duration // Counting window (default: 15m)
	RateLimitLoginLockout  time.Duration // Lockout duration (default: 15m)

	// Audit logging: "all" (MongoDB + zap), "db", "log" or "off"
	AuditLogAuth string

	// API surface
	CORSOrigins  []string // Allowed origins for /api (empty = any)
	MetricsToken string   // Bearer token guarding /metrics (empty = unauthenticated)

	// Timeouts for work outside the request deadline
	TimeoutPing  time.Duration
	TimeoutShort time.Duration
	TimeoutLong  time.Duration
}
