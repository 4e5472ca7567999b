package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/session"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultAuthServiceURL = "http://localhost:8003"
	defaultEnvironment    = logger.EnvDevelopment
	defaultStore          = credstore.KindFile
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment: dev logs text, prod logs json
	Environment string

	// Address on which the portal will be run by 'serve' command
	ListenAddr string

	// Identity service to talk to
	AuthServiceURL string

	// Timeout of one request to identity service
	RequestTimeout time.Duration

	// How long identified user is kept for the same access token
	CacheTTL time.Duration

	// Credential store: memory, file, redis or postgres
	Store string

	// File store location
	StorePath string

	// Redis store connection url
	RedisURL string

	// Postgres store connection string
	DatabaseDSN string

	// Profile name, separates credentials in shared stores
	Namespace string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		Environment:    defaultEnvironment,
		ListenAddr:     defaultListenAddr,
		AuthServiceURL: defaultAuthServiceURL,
		RequestTimeout: identity.DefaultRequestTimeout,
		CacheTTL:       session.DefaultCacheTTL,
		Store:          defaultStore,
		StorePath:      credstore.DefaultFilePath(),
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":      setString(&c.ListenAddr),
		"AUTH_SERVICE_URL": setString(&c.AuthServiceURL),
		"STORE":            setString(&c.Store),
		"STORE_PATH":       setString(&c.StorePath),
		"REDIS_URL":        setString(&c.RedisURL),
		"DATABASE_URI":     setString(&c.DatabaseDSN),
		"STORE_NAMESPACE":  setString(&c.Namespace),
		"LOG_LEVEL":        setString(&c.LogLevel),
		"ENVIRONMENT":      setString(&c.Environment),
		"REQUEST_TIMEOUT":  setDuration(&c.RequestTimeout),
		"CACHE_TTL":        setDuration(&c.CacheTTL),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ParseFlags parses flags and returns positional arguments: command and its args
func (c *Config) ParseFlags(args []string) ([]string, error) {
	fs := pflag.NewFlagSet("skyauth", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Portal listen address")
	fs.StringVarP(&c.AuthServiceURL, "auth-service", "u", c.AuthServiceURL, "Identity service address")
	fs.StringVarP(&c.Store, "store", "s", c.Store, "Credential store (memory, file, redis, postgres)")
	fs.StringVar(&c.StorePath, "store-path", c.StorePath, "File store location")
	fs.StringVar(&c.RedisURL, "redis", c.RedisURL, "Redis store connection url")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Postgres store connection string")
	fs.StringVarP(&c.Namespace, "namespace", "n", c.Namespace, "Credentials profile name")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Identity service request timeout")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "How long identified user is cached per access token")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func (c *Config) StoreConfig() credstore.Config {
	return credstore.Config{
		Kind:        c.Store,
		Path:        c.StorePath,
		RedisURL:    c.RedisURL,
		DatabaseDSN: c.DatabaseDSN,
		Namespace:   c.Namespace,
	}
}
