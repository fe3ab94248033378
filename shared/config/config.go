// Package config loads runtime configuration from the environment.
// Every knob has a default except the Dropbox access token, which the
// service cannot run without.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Dropbox  DropboxConfig
	Cache    CacheConfig
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
	// APIKey guards the mutating admin surface; empty disables the guard.
	APIKey string
}

type DatabaseConfig struct {
	Path string
}

type DropboxConfig struct {
	AccessToken string
	RootFolder  string
	// MaxRequests calls are allowed per Window against the Dropbox API.
	MaxRequests int
	Window      time.Duration
}

type CacheConfig struct {
	PostTTL         time.Duration
	ListTTL         time.Duration
	StatsTTL        time.Duration
	MaxPosts        int
	MaxLists        int
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for everything optional. It fails when DROPBOX_ACCESS_TOKEN is unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("BASE_URL", "http://localhost:3000")
	v.SetDefault("API_KEY", "")
	v.SetDefault("DATABASE_PATH", "./dropblog.db")
	v.SetDefault("DROPBOX_ROOT_FOLDER", "/BlogStorage")
	v.SetDefault("DROPBOX_MAX_REQUESTS", 450)
	v.SetDefault("DROPBOX_WINDOW_SECONDS", 60)
	v.SetDefault("CACHE_POST_TTL_SECONDS", 600)
	v.SetDefault("CACHE_LIST_TTL_SECONDS", 300)
	v.SetDefault("CACHE_STATS_TTL_SECONDS", 900)
	v.SetDefault("CACHE_MAX_POSTS", 1000)
	v.SetDefault("CACHE_MAX_LISTS", 50)
	v.SetDefault("CACHE_CLEANUP_INTERVAL_SECONDS", 300)

	token := v.GetString("DROPBOX_ACCESS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DROPBOX_ACCESS_TOKEN must be set")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:    v.GetString("SERVER_HOST"),
			Port:    v.GetInt("SERVER_PORT"),
			BaseURL: v.GetString("BASE_URL"),
			APIKey:  v.GetString("API_KEY"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DATABASE_PATH"),
		},
		Dropbox: DropboxConfig{
			AccessToken: token,
			RootFolder:  v.GetString("DROPBOX_ROOT_FOLDER"),
			MaxRequests: v.GetInt("DROPBOX_MAX_REQUESTS"),
			Window:      time.Duration(v.GetInt("DROPBOX_WINDOW_SECONDS")) * time.Second,
		},
		Cache: CacheConfig{
			PostTTL:         time.Duration(v.GetInt("CACHE_POST_TTL_SECONDS")) * time.Second,
			ListTTL:         time.Duration(v.GetInt("CACHE_LIST_TTL_SECONDS")) * time.Second,
			StatsTTL:        time.Duration(v.GetInt("CACHE_STATS_TTL_SECONDS")) * time.Second,
			MaxPosts:        v.GetInt("CACHE_MAX_POSTS"),
			MaxLists:        v.GetInt("CACHE_MAX_LISTS"),
			CleanupInterval: time.Duration(v.GetInt("CACHE_CLEANUP_INTERVAL_SECONDS")) * time.Second,
		},
	}

	return cfg, nil
}

// ListenAddr is the host:port pair the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
