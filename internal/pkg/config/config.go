package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable configuration guidelines:
// - required: Values that differ between environments (port, DB/Redis connection)
// - default: Values common across all environments (TTLs, timeouts, pool sizes)
// -----------------------------------------------------------------------------

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	CORS    CORSConfig
	Log     LogConfig
	Cache   CacheConfig
	Seckill SeckillConfig
}

type ServerConfig struct {
	Port string `envconfig:"PORT" required:"true"`
}

type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	DBName   string `envconfig:"DB_NAME" required:"true"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
	TimeZone string `envconfig:"DB_TIMEZONE" default:"Asia/Tokyo"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type CORSConfig struct {
	AllowOrigins     []string      `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000,http://localhost:8080"`
	AllowMethods     []string      `envconfig:"CORS_ALLOW_METHODS" default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowHeaders     []string      `envconfig:"CORS_ALLOW_HEADERS" default:"Origin,Content-Type,Accept,X-User-ID"`
	ExposeHeaders    []string      `envconfig:"CORS_EXPOSE_HEADERS" default:"Content-Length"`
	AllowCredentials bool          `envconfig:"CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"CORS_MAX_AGE" default:"12h"`
}

type LogConfig struct {
	Level          string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone       string `envconfig:"LOG_TIMEZONE" default:"Asia/Tokyo"`
	TimeFormat     string `envconfig:"LOG_TIME_FORMAT" default:"2006-01-02 15:04:05.000"`
	TimeZoneOffset int    `envconfig:"LOG_TIMEZONE_OFFSET" default:"32400"` // 9*60*60
}

// CacheConfig controls the cache resilience layer. Strategy is one of
// pass_through / mutex / logical_expire and is chosen per deployment.
type CacheConfig struct {
	Strategy       string        `envconfig:"CACHE_STRATEGY" default:"pass_through"`
	ShopTTL        time.Duration `envconfig:"CACHE_SHOP_TTL" default:"30m"`
	NullTTL        time.Duration `envconfig:"CACHE_NULL_TTL" default:"2m"`
	LogicalTTL     time.Duration `envconfig:"CACHE_LOGICAL_TTL" default:"20s"`
	RebuildWorkers int           `envconfig:"CACHE_REBUILD_WORKERS" default:"10"`
	RebuildQueue   int           `envconfig:"CACHE_REBUILD_QUEUE" default:"64"`
}

type SeckillConfig struct {
	Stream         string        `envconfig:"SECKILL_STREAM" default:"stream.orders"`
	Group          string        `envconfig:"SECKILL_GROUP" default:"g1"`
	Consumer       string        `envconfig:"SECKILL_CONSUMER" default:"c1"`
	BlockTimeout   time.Duration `envconfig:"SECKILL_BLOCK_TIMEOUT" default:"2s"`
	OrderLockTTL   time.Duration `envconfig:"SECKILL_ORDER_LOCK_TTL" default:"10s"`
	PendingBackoff time.Duration `envconfig:"SECKILL_PENDING_BACKOFF" default:"2s"`
}

func (c *DBConfig) BuildDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&timezone=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode, c.TimeZone,
	)
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port: "8889", // Test port
		},
		DB: DBConfig{
			Host:     "localhost",
			Port:     "15433", // Test DB port
			User:     "test",
			Password: "test",
			DBName:   "test_db",
			SSLMode:  "disable",
			TimeZone: "Asia/Tokyo",
		},
		Redis: RedisConfig{
			Addr: "localhost:16379", // Test Redis port
		},
		Log: LogConfig{
			Level:          "error", // Error level only for tests
			TimeZone:       "Asia/Tokyo",
			TimeFormat:     "2006-01-02 15:04:05.000",
			TimeZoneOffset: 32400,
		},
		Cache: CacheConfig{
			Strategy:       "pass_through",
			ShopTTL:        30 * time.Minute,
			NullTTL:        2 * time.Minute,
			LogicalTTL:     20 * time.Second,
			RebuildWorkers: 2,
			RebuildQueue:   8,
		},
		Seckill: SeckillConfig{
			Stream:         "stream.orders",
			Group:          "g1",
			Consumer:       "c1",
			BlockTimeout:   100 * time.Millisecond,
			OrderLockTTL:   10 * time.Second,
			PendingBackoff: 10 * time.Millisecond,
		},
	}
}
