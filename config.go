package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"storyboard-api/api"
	"storyboard-api/autosave"
	"storyboard-api/board"
)

type config struct {
	Debug bool

	StorageConnStr string
	ProjectsTable  string
	CardsTable     string
	CleanupQueue   string

	RedisConnStr string
	CacheTTL     time.Duration
	DeduperTTL   time.Duration

	AutosaveDelay  time.Duration
	SessionIdleTTL time.Duration

	// Auth0 settings; ignored when SharedSecret is set.
	AuthDomain   string
	AuthAudience string
	JWKSCacheTTL time.Duration
	SharedSecret string

	Pprof      bool
	ListenAddr string
}

// loadConfig reads the service configuration from getenv.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		StorageConnStr: getenv("STORAGE_CONNECTION_STRING"),
		ProjectsTable:  getenv("PROJECTS_TABLE"),
		CardsTable:     getenv("CARDS_TABLE"),
		CleanupQueue:   getenv("CLEANUP_QUEUE"),
		RedisConnStr:   getenv("REDIS_CONNECTION_STRING"),
		AuthDomain:     getenv("AUTH0_DOMAIN"),
		AuthAudience:   getenv("AUTH0_AUDIENCE"),
		ListenAddr:     ":8080",
	}
	if dbg, err := strconv.ParseBool(getenv("DEBUG")); err == nil && dbg {
		cfg.Debug = true
	}
	if p, err := strconv.ParseBool(getenv("PPROF")); err == nil && p {
		cfg.Pprof = true
	}
	if cfg.StorageConnStr == "" || cfg.ProjectsTable == "" || cfg.CardsTable == "" || cfg.CleanupQueue == "" {
		return config{}, errors.New("missing storage config")
	}
	if cfg.RedisConnStr == "" {
		return config{}, errors.New("missing redis config")
	}

	var err error
	if cfg.CacheTTL, err = durationEnv(getenv, "CACHE_TTL", 5*time.Minute); err != nil {
		return config{}, err
	}
	if cfg.DeduperTTL, err = durationEnv(getenv, "DEDUPER_TTL", 24*time.Hour); err != nil {
		return config{}, err
	}
	if cfg.AutosaveDelay, err = durationEnv(getenv, "AUTOSAVE_DELAY", autosave.DefaultDelay); err != nil {
		return config{}, err
	}
	if cfg.SessionIdleTTL, err = durationEnv(getenv, "SESSION_IDLE_TTL", board.DefaultIdleTTL); err != nil {
		return config{}, err
	}
	if cfg.JWKSCacheTTL, err = durationEnv(getenv, "JWKS_CACHE_TTL", api.DefaultJWKSCacheTTL); err != nil {
		return config{}, err
	}

	switch {
	case getenv("AUTH0_TEST_MODE") == "1":
		cfg.SharedSecret = getenv("TEST_JWT_SECRET")
		if cfg.SharedSecret == "" {
			return config{}, errors.New("AUTH0_TEST_MODE requires TEST_JWT_SECRET")
		}
	case getenv("LOCAL_AUTH_MODE") == "1":
		cfg.SharedSecret = getenv("LOCAL_AUTH_SHARED_SECRET")
		if cfg.SharedSecret == "" {
			return config{}, errors.New("LOCAL_AUTH_MODE requires LOCAL_AUTH_SHARED_SECRET")
		}
	case cfg.AuthDomain == "" || cfg.AuthAudience == "":
		return config{}, errors.New("missing Auth0 config")
	}

	if port := getenv("FUNCTIONS_CUSTOMHANDLER_PORT"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	return cfg, nil
}

func (c config) issuer() string {
	if c.AuthDomain == "" {
		return ""
	}
	return "https://" + c.AuthDomain + "/"
}

func (c config) jwksURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.AuthDomain)
}

func durationEnv(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

// redisOptions accepts either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
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
