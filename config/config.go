// Package config reads the environment for the taskstore server and the
// taskboard CLI.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStoreURL    = "http://localhost:8080"
	defaultHTTPTimeout = 10 * time.Second
	defaultDeduperTTL  = 24 * time.Hour
	defaultCacheTTL    = 30 * time.Second
	defaultPort        = 8080
)

// Client configures the taskboard CLI.
type Client struct {
	StoreURL    string
	Email       string
	Token       string
	HTTPTimeout time.Duration
	Debug       bool
}

// Store configures the taskstore server.
type Store struct {
	Port       int
	Redis      *redis.Options
	DeduperTTL time.Duration
	CacheTTL   time.Duration
	Debug      bool

	// AuthDomain and AuthAudience enable RS256 token checks against the
	// provider's JWKS. LocalAuthSecret enables HS256 checks instead. With
	// neither set the server does not check tokens.
	AuthDomain      string
	AuthAudience    string
	LocalAuthSecret string
}

// AuthEnabled reports whether requests must carry a valid bearer token.
func (s Store) AuthEnabled() bool {
	return s.LocalAuthSecret != "" || s.AuthDomain != ""
}

// JWKSURL is where the provider publishes its signing keys.
func (s Store) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", s.AuthDomain)
}

// Issuer is the expected iss claim for provider tokens.
func (s Store) Issuer() string {
	return "https://" + s.AuthDomain + "/"
}

// LoadClient reads TASKSTORE_URL, TASKBOARD_EMAIL, TASKBOARD_TOKEN,
// HTTP_TIMEOUT and DEBUG.
func LoadClient() (Client, error) {
	timeout, err := envDur("HTTP_TIMEOUT", defaultHTTPTimeout)
	if err != nil {
		return Client{}, err
	}
	debug, err := envBool("DEBUG", false)
	if err != nil {
		return Client{}, err
	}
	url := strings.TrimSpace(os.Getenv("TASKSTORE_URL"))
	if url == "" {
		url = defaultStoreURL
	}
	return Client{
		StoreURL:    url,
		Email:       strings.TrimSpace(os.Getenv("TASKBOARD_EMAIL")),
		Token:       strings.TrimSpace(os.Getenv("TASKBOARD_TOKEN")),
		HTTPTimeout: timeout,
		Debug:       debug,
	}, nil
}

// LoadStore reads the server configuration. REDIS_CONNECTION_STRING is
// required.
func LoadStore() (Store, error) {
	var cfg Store
	var err error

	if cfg.Port, err = envInt("STORE_PORT", defaultPort); err != nil {
		return Store{}, err
	}
	if cfg.Port <= 0 {
		return Store{}, errors.New("invalid STORE_PORT: must be greater than zero")
	}
	if cfg.DeduperTTL, err = envDur("DEDUPER_TTL", defaultDeduperTTL); err != nil {
		return Store{}, err
	}
	if cfg.CacheTTL, err = envDur("CACHE_TTL", defaultCacheTTL); err != nil {
		return Store{}, err
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return Store{}, err
	}

	conn := strings.TrimSpace(os.Getenv("REDIS_CONNECTION_STRING"))
	if conn == "" {
		return Store{}, errors.New("missing redis config")
	}
	cfg.Redis = RedisOptions(conn)

	switch mode := strings.ToLower(os.Getenv("LOCAL_AUTH_MODE")); mode {
	case "":
		cfg.AuthDomain = strings.TrimSpace(os.Getenv("AUTH_ISSUER_DOMAIN"))
		cfg.AuthAudience = strings.TrimSpace(os.Getenv("AUTH_AUDIENCE"))
		if cfg.AuthDomain != "" && cfg.AuthAudience == "" {
			return Store{}, errors.New("AUTH_AUDIENCE must be set when AUTH_ISSUER_DOMAIN is set")
		}
	case "hs256":
		cfg.LocalAuthSecret = os.Getenv("LOCAL_AUTH_SHARED_SECRET")
		if cfg.LocalAuthSecret == "" {
			return Store{}, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		return Store{}, fmt.Errorf("unsupported LOCAL_AUTH_MODE value %q", mode)
	}
	return cfg, nil
}

// RedisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=True" connection string.
func RedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
