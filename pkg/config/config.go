package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CLINICCARE"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv                = "CLINICCARE_APP_ENV"
	EnvPort                  = "CLINICCARE_APP_PORT"
	EnvDBDSN                 = "CLINICCARE_DB_DSN"
	EnvDBHost                = "CLINICCARE_DB_HOST"
	EnvDBUser                = "CLINICCARE_DB_USER"
	EnvDBName                = "CLINICCARE_DB_NAME"
	EnvRedisURL              = "CLINICCARE_REDIS_URL"
	EnvGCPProjectID          = "CLINICCARE_GCP_PROJECT_ID"
	EnvGCSBucket             = "CLINICCARE_GCS_BUCKET_NAME"
	EnvPubSubLowStockTopic   = "CLINICCARE_PUBSUB_LOW_STOCK_TOPIC"
	EnvPubSubLowStockSub     = "CLINICCARE_PUBSUB_LOW_STOCK_SUBSCRIPTION"
	EnvInventoryLowStockTrip = "CLINICCARE_INVENTORY_LOW_STOCK_THRESHOLD"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Inventory    InventoryConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLINICCARE_APP_ENV" required:"true"`
	Port         string `envconfig:"CLINICCARE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLINICCARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLINICCARE_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"CLINICCARE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CLINICCARE_DB_DSN"`
	Driver string `envconfig:"CLINICCARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLINICCARE_DB_HOST"`
	LegacyPort     int    `envconfig:"CLINICCARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLINICCARE_DB_USER"`
	LegacyPassword string `envconfig:"CLINICCARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLINICCARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLINICCARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLINICCARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLINICCARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLINICCARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLINICCARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLINICCARE_REDIS_URL"`
	Address      string        `envconfig:"CLINICCARE_REDIS_ADDR"`
	Password     string        `envconfig:"CLINICCARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLINICCARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLINICCARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLINICCARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLINICCARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLINICCARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLINICCARE_REDIS_WRITE_TIMEOUT" default:"5s"`
	LockTTL      time.Duration `envconfig:"CLINICCARE_REDIS_LOCK_TTL" default:"10s"`
}

// Configured reports whether a Redis endpoint was provided. Redis is optional:
// without it, cart mutations fall back to in-process serialization.
func (r RedisConfig) Configured() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLINICCARE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CLINICCARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLINICCARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"CLINICCARE_GCS_BUCKET_NAME"`
	KeyPrefix  string `envconfig:"CLINICCARE_GCS_KEY_PREFIX" default:"items"`
}

type PubSubConfig struct {
	LowStockTopic        string `envconfig:"CLINICCARE_PUBSUB_LOW_STOCK_TOPIC" default:"cc-low-stock-events"`
	LowStockSubscription string `envconfig:"CLINICCARE_PUBSUB_LOW_STOCK_SUBSCRIPTION"`
}

type InventoryConfig struct {
	// Items at or above the threshold never trigger a low-stock alert.
	LowStockThreshold int `envconfig:"CLINICCARE_INVENTORY_LOW_STOCK_THRESHOLD" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CLINICCARE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
