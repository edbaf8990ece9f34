// Package config provides configuration management for auctiond.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the auctiond configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Auction  AuctionConfig  `yaml:"auction"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Log      LogConfig      `yaml:"log"`
}

// HTTPConfig contains listener settings.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects and configures the auction record store.
type StorageConfig struct {
	Driver          string        `yaml:"driver"` // "memory", "sqlite" or "mongo"
	SQLitePath      string        `yaml:"sqlite_path"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	MongoCollection string        `yaml:"mongo_collection"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// AuctionConfig contains bidding and lifecycle settings.
type AuctionConfig struct {
	BidTimeout       time.Duration `yaml:"bid_timeout"`
	SaveTimeout      time.Duration `yaml:"save_timeout"`
	RejectSelfOutbid bool          `yaml:"reject_self_outbid"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	RetentionWindow  time.Duration `yaml:"retention_window"`
}

// RealtimeConfig contains connection settings shared by all transports.
type RealtimeConfig struct {
	MemberBuffer  int           `yaml:"member_buffer"`
	BidsPerSecond float64       `yaml:"bids_per_second"`
	BidBurst      int           `yaml:"bid_burst"`
	PingInterval  time.Duration `yaml:"ping_interval"`
	PongTimeout   time.Duration `yaml:"pong_timeout"`
	// BidderHeader names the request header carrying the bidder id set by
	// the upstream auth layer. Empty means the join message is trusted.
	BidderHeader   string   `yaml:"bidder_header"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ICEServers     []string `yaml:"ice_servers"`
}

// LogConfig sets the log level for every subsystem.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:          "memory",
			SQLitePath:      filepath.Join(homeDir, ".auctiond", "auctions.db"),
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "auctiond",
			MongoCollection: "auctions",
			ConnectTimeout:  30 * time.Second,
		},
		Auction: AuctionConfig{
			BidTimeout:       2 * time.Second,
			SaveTimeout:      5 * time.Second,
			RejectSelfOutbid: true,
			SweepInterval:    time.Second,
			RetentionWindow:  5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			MemberBuffer:  256,
			BidsPerSecond: 5,
			BidBurst:      10,
			PingInterval:  30 * time.Second,
			PongTimeout:   60 * time.Second,
			ICEServers:    []string{"stun:stun.l.google.com:19302"},
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".auctiond", "config.yaml")
}

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides settings from AUCTIOND_* environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.HTTP.Addr, "AUCTIOND_HTTP_ADDR")
	setString(&c.Storage.Driver, "AUCTIOND_STORE")
	setString(&c.Storage.SQLitePath, "AUCTIOND_SQLITE_PATH")
	setString(&c.Storage.MongoURI, "AUCTIOND_MONGO_URI")
	setString(&c.Storage.MongoDatabase, "AUCTIOND_MONGO_DATABASE")
	setString(&c.Realtime.BidderHeader, "AUCTIOND_BIDDER_HEADER")
	setString(&c.Log.Level, "AUCTIOND_LOG_LEVEL")
	if v := os.Getenv("AUCTIOND_REJECT_SELF_OUTBID"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUCTIOND_REJECT_SELF_OUTBID: %w", err)
		}
		c.Auction.RejectSelfOutbid = b
	}
	if v := os.Getenv("AUCTIOND_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUCTIOND_SWEEP_INTERVAL: %w", err)
		}
		c.Auction.SweepInterval = d
	}
	return nil
}

// Validate checks the settings that have no usable fallback.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path required for sqlite driver")
		}
	case "mongo":
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage.mongo_uri and storage.mongo_database required for mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auction.SweepInterval <= 0 {
		return fmt.Errorf("auction.sweep_interval must be positive")
	}
	if c.Realtime.MemberBuffer <= 0 {
		return fmt.Errorf("realtime.member_buffer must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
