package config

import (
	"errors"
	"fmt"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/logger"

	"github.com/caarlos0/env/v6"
)

// MongoConfig selects the document store. An empty URI runs the service on
// the in-memory store.
type MongoConfig struct {
	URI        string `env:"MONGODB_URI" json:"uri"`
	Database   string `env:"MONGODB_DATABASE" envDefault:"firestore_access" json:"database"`
	Collection string `env:"MONGODB_COLLECTION" envDefault:"documents" json:"collection"`
}

// RedisConfig locates the audit log. An empty address disables it.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" json:"addr"`
	Password string `env:"REDIS_PASSWORD" json:"-"`
	DB       int    `env:"REDIS_DB" envDefault:"0" json:"db"`
}

// AuditConfig shapes the audit streams.
type AuditConfig struct {
	StreamPrefix string `env:"AUDIT_STREAM_PREFIX" envDefault:"audit" json:"stream_prefix"`
	// StreamMaxLen approximately caps each stream; 0 keeps everything.
	StreamMaxLen int64 `env:"AUDIT_STREAM_MAXLEN" envDefault:"10000" json:"stream_max_len"`
}

// JWTConfig verifies the bearer tokens callers act with.
type JWTConfig struct {
	SecretKey string `env:"JWT_SECRET_KEY,required" json:"-"`
	Issuer    string `env:"JWT_ISSUER" envDefault:"firestore-access" json:"issuer"`
}

// PaginationConfig tunes query ordering and the final-batch rule.
type PaginationConfig struct {
	FinalBatchFactor      float64 `env:"PAGINATION_FINAL_BATCH_FACTOR" envDefault:"1.7" json:"final_batch_factor"`
	DefaultOrderField     string  `env:"DEFAULT_ORDER_FIELD" envDefault:"$standard.created_at" json:"default_order_field"`
	DefaultOrderDirection string  `env:"DEFAULT_ORDER_DIRECTION" envDefault:"desc" json:"default_order_direction"`
}

// ServerConfig is the HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"localhost" json:"host"`
	Port string `env:"SERVER_PORT" envDefault:"3000" json:"port"`
}

// LogConfig picks the logger backend.
type LogConfig struct {
	Backend string `env:"LOG_BACKEND" envDefault:"logrus" json:"backend"`
	Level   string `env:"LOG_LEVEL" envDefault:"info" json:"level"`
	Format  string `env:"LOG_FORMAT" envDefault:"text" json:"format"`
}

// Config holds all configuration for the access service.
type Config struct {
	Mongo      MongoConfig      `json:"mongo"`
	Redis      RedisConfig      `json:"redis"`
	Audit      AuditConfig      `json:"audit"`
	JWT        JWTConfig        `json:"jwt"`
	Pagination PaginationConfig `json:"pagination"`
	Server     ServerConfig     `json:"server"`
	Log        LogConfig        `json:"log"`
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load access configuration from environment: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a configuration for local runs and tests: memory
// store, no audit log.
func DefaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{Database: "firestore_access", Collection: "documents"},
		Audit: AuditConfig{StreamPrefix: "audit", StreamMaxLen: 10000},
		JWT:   JWTConfig{SecretKey: "local-development-secret-key-000000", Issuer: "firestore-access"},
		Pagination: PaginationConfig{
			FinalBatchFactor:      model.DefaultFinalBatchFactor,
			DefaultOrderField:     model.FieldCreatedAt,
			DefaultOrderDirection: string(model.Descending),
		},
		Server: ServerConfig{Host: "localhost", Port: "3000"},
		Log:    LogConfig{Backend: logger.BackendLogrus, Level: "info", Format: "text"},
	}
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return errors.New("jwt secret key is required")
	}
	if c.Pagination.FinalBatchFactor < 0 {
		return fmt.Errorf("pagination final batch factor must not be negative, got %v", c.Pagination.FinalBatchFactor)
	}
	if _, err := c.DefaultOrder(); err != nil {
		return err
	}
	if c.Audit.StreamMaxLen < 0 {
		return errors.New("audit stream max length must not be negative")
	}
	switch c.Log.Backend {
	case logger.BackendLogrus, logger.BackendZap:
	default:
		return fmt.Errorf("unknown log backend %q", c.Log.Backend)
	}
	return nil
}

// DefaultOrder returns the configured ordering for queries naming none.
func (c *Config) DefaultOrder() (model.Order, error) {
	o := model.Order{Field: c.Pagination.DefaultOrderField, Direction: model.Direction(c.Pagination.DefaultOrderDirection)}
	if o.Field == "" || !o.Direction.Valid() {
		return model.Order{}, fmt.Errorf("invalid default order %q", o.String())
	}
	return o, nil
}

// UseMemoryStore reports whether no MongoDB URI was configured.
func (c *Config) UseMemoryStore() bool { return c.Mongo.URI == "" }

// AuditEnabled reports whether a Redis address was configured.
func (c *Config) AuditEnabled() bool { return c.Redis.Addr != "" }

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return c.Server.Host + ":" + c.Server.Port }
