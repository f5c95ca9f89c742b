// Package config loads service configuration from environment variables and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all service configuration.
type Config struct {
	Port string

	DBDriver   string
	DBURL      string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPass     string
	DBMaxConns int32

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	MongoURI string
	MongoDB  string

	AllowedOrigins []string
}

// key -> environment variable
var envKeys = map[string]string{
	"port":                 "PORT",
	"db.driver":            "DB_DRIVER",
	"db.url":               "DATABASE_URL",
	"db.host":              "DB_HOST",
	"db.port":              "DB_PORT",
	"db.name":              "DB_NAME",
	"db.user":              "DB_USER",
	"db.pass":              "DB_PASS",
	"db.max_conns":         "DB_MAX_CONNS",
	"sqlite.path":          "SQLITE_PATH",
	"redis.addr":           "REDIS_ADDR",
	"redis.password":       "REDIS_PASSWORD",
	"redis.channel":        "REDIS_CHANNEL",
	"mongo.uri":            "MONGO_URI",
	"mongo.db":             "MONGO_DB",
	"cors.allowed_origins": "CORS_ALLOWED_ORIGINS",
}

// Load reads configuration. When configFile is empty a .env file in the
// working directory is used if present. Environment variables always win.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("sqlite.path", "task_manager.db")
	v.SetDefault("redis.channel", "task-manager.events")
	v.SetDefault("mongo.db", "task_manager")
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://localhost:5173")

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			configFile = ".env"
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if strings.HasSuffix(configFile, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		// dotenv files use the env names as keys
		for key, env := range envKeys {
			if _, inEnv := os.LookupEnv(env); inEnv {
				continue
			}
			if val := v.GetString(strings.ToLower(env)); val != "" {
				v.Set(key, val)
			}
		}
	}

	cfg := &Config{
		Port:          v.GetString("port"),
		DBDriver:      strings.ToLower(v.GetString("db.driver")),
		DBURL:         v.GetString("db.url"),
		DBHost:        v.GetString("db.host"),
		DBPort:        v.GetString("db.port"),
		DBName:        v.GetString("db.name"),
		DBUser:        v.GetString("db.user"),
		DBPass:        v.GetString("db.pass"),
		DBMaxConns:    v.GetInt32("db.max_conns"),
		SQLitePath:    v.GetString("sqlite.path"),
		RedisAddr:     v.GetString("redis.addr"),
		RedisPassword: v.GetString("redis.password"),
		RedisChannel:  v.GetString("redis.channel"),
		MongoURI:      v.GetString("mongo.uri"),
		MongoDB:       v.GetString("mongo.db"),
	}
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot produce a working store.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBURL == "" && (c.DBHost == "" || c.DBName == "") {
			return errors.New("postgres requires DATABASE_URL or DB_HOST and DB_NAME")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite requires SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// PostgresDSN returns DBURL, or a postgres:// URL assembled from the parts.
func (c *Config) PostgresDSN() string {
	if c.DBURL != "" {
		return c.DBURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPass)
	}
	return u.String()
}
