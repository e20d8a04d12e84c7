package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Database DatabaseConfig `yaml:"database"`
	Twitch   TwitchConfig   `yaml:"twitch"`
	Kick     KickConfig     `yaml:"kick"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	S3       S3Config       `yaml:"s3"`
	Uploader UploaderConfig `yaml:"uploader"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// OverlayConfig holds the overlay's polling and rendering configuration
type OverlayConfig struct {
	Enabled          bool              `yaml:"enabled"`
	Listen           string            `yaml:"listen"`
	ContainerID      string            `yaml:"container_id"`
	Snapshot         string            `yaml:"snapshot"`            // Path, http(s) URL or s3://bucket/key
	Log              string            `yaml:"log"`                 // Path, http(s) URL or s3://bucket/key
	MaxMessages      int               `yaml:"max_messages"`        // Messages held in memory at most
	MaxMessageAge    int               `yaml:"max_message_age"`     // Seconds a message stays on screen
	ChatSpeed        float64           `yaml:"chat_speed"`          // Spacers per second, one spacer is 2px
	MaxSpacers       int               `yaml:"max_spacers"`         // Maximum margin between messages
	DBPollRateMS     int               `yaml:"db_poll_rate_ms"`     // Time between log polls
	ChatUpdateRateMS int               `yaml:"chat_update_rate_ms"` // Time between re-renders
	FetchTimeoutMS   int               `yaml:"fetch_timeout_ms"`
	Watch            bool              `yaml:"watch"` // Poll immediately when a local log file changes
	ProviderTags     map[string]string `yaml:"provider_tags"`
}

// DatabaseConfig holds the collector's JSONL database configuration
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled"`
	LogPath        string `yaml:"log_path"`
	CheckpointPath string `yaml:"checkpoint_path"`
	MaxSize        int    `yaml:"max_size"`
	BufferSize     int    `yaml:"buffer_size"`
}

// TwitchConfig holds Twitch-specific configuration
type TwitchConfig struct {
	Username    string            `yaml:"username"`
	OAuth       string            `yaml:"oauth"`
	Channels    []string          `yaml:"channels"`
	BadgeImages map[string]string `yaml:"badge_images"` // "name/version" -> image URL
}

// KickConfig holds Kick-specific configuration
type KickConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Channels    []KickChannelConfig `yaml:"channels"`
	BadgeImages map[string]string   `yaml:"badge_images,omitempty"` // badge type -> image URL
}

// KickChannelConfig is a Kick channel with an optional pre-resolved chatroom ID
type KickChannelConfig struct {
	Slug       string `yaml:"slug"`
	ChatroomID int    `yaml:"chatroom_id"`
}

// MatrixConfig holds Matrix-specific configuration
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	RoomID      string   `yaml:"room_id"`  // Single room, kept for older configs
	RoomIDs     []string `yaml:"room_ids"` // Rooms followed in addition to room_id
}

// Rooms returns every followed room without duplicates
func (m MatrixConfig) Rooms() []string {
	var rooms []string
	seen := make(map[string]bool)
	for _, r := range append([]string{m.RoomID}, m.RoomIDs...) {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		rooms = append(rooms, r)
	}
	return rooms
}

// S3Config holds S3 configuration shared by the uploader and s3:// sources
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	RoleARN         string `yaml:"role_arn"`          // IAM role ARN for OIDC authentication
	AccessKeyID     string `yaml:"access_key_id"`     // Legacy: static credentials
	SecretAccessKey string `yaml:"secret_access_key"` // Legacy: static credentials
	Endpoint        string `yaml:"endpoint"`          // For S3-compatible services
	Prefix          string `yaml:"prefix"`
}

// UploaderConfig holds uploader configuration
type UploaderConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxRetries int  `yaml:"max_retries"`
}

// Default provider tags shown on screen
var DefaultProviderTags = map[string]string{
	"twitch": "Tw@",
	"matrix": "Mx@",
	"kick":   "Ki@",
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Load .env if present, real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Read YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration and applies overrides, defaults and validation
func Parse(data []byte) (*Config, error) {
	cfg := Config{
		Overlay:  OverlayConfig{Enabled: true, Watch: true},
		Database: DatabaseConfig{Enabled: false},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if oauth := os.Getenv("TWITCH_OAUTH"); oauth != "" {
		cfg.Twitch.OAuth = oauth
	}
	if token := os.Getenv("MATRIX_ACCESS_TOKEN"); token != "" {
		cfg.Matrix.AccessToken = token
	}
	if roleARN := os.Getenv("AWS_ROLE_ARN"); roleARN != "" {
		cfg.S3.RoleARN = roleARN
	}
	if keyID := os.Getenv("S3_ACCESS_KEY_ID"); keyID != "" {
		cfg.S3.AccessKeyID = keyID
	}
	if secretKey := os.Getenv("S3_SECRET_ACCESS_KEY"); secretKey != "" {
		cfg.S3.SecretAccessKey = secretKey
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	o := &cfg.Overlay
	if o.Listen == "" {
		o.Listen = ":8080"
	}
	if o.ContainerID == "" {
		o.ContainerID = "content"
	}
	if o.Snapshot == "" {
		o.Snapshot = "yarrdb_data.jsonl"
	}
	if o.Log == "" {
		o.Log = "yarrdb_log.jsonl"
	}
	if o.MaxMessages == 0 {
		o.MaxMessages = 50
	}
	if o.MaxMessageAge == 0 {
		o.MaxMessageAge = 60 * 60 * 8
	}
	if o.ChatSpeed == 0 {
		o.ChatSpeed = 1 / 60.0
	}
	if o.MaxSpacers == 0 {
		o.MaxSpacers = 10
	}
	if o.DBPollRateMS == 0 {
		o.DBPollRateMS = 250
	}
	if o.ChatUpdateRateMS == 0 {
		o.ChatUpdateRateMS = 2 * 1000
	}
	if o.FetchTimeoutMS == 0 {
		o.FetchTimeoutMS = 5 * 1000
	}
	tags := make(map[string]string, len(DefaultProviderTags)+len(o.ProviderTags))
	for k, v := range DefaultProviderTags {
		tags[k] = v
	}
	for k, v := range o.ProviderTags {
		tags[k] = v
	}
	o.ProviderTags = tags

	d := &cfg.Database
	if d.LogPath == "" {
		d.LogPath = "yarrdb_log.jsonl"
	}
	if d.CheckpointPath == "" {
		d.CheckpointPath = "yarrdb_data.jsonl"
	}
	if d.MaxSize == 0 {
		d.MaxSize = 100
	}
	if d.BufferSize == 0 {
		d.BufferSize = 100
	}

	if cfg.Uploader.MaxRetries == 0 {
		cfg.Uploader.MaxRetries = 3
	}
}

// Validate checks required fields and value ranges
func (cfg *Config) Validate() error {
	if !cfg.Overlay.Enabled && !cfg.Database.Enabled {
		return fmt.Errorf("at least one of overlay.enabled or database.enabled is required")
	}

	o := cfg.Overlay
	if o.MaxMessages < 0 || o.MaxSpacers < 0 || o.MaxMessageAge < 0 || o.ChatSpeed < 0 {
		return fmt.Errorf("overlay limits must not be negative")
	}
	if o.DBPollRateMS < 0 || o.ChatUpdateRateMS < 0 || o.FetchTimeoutMS < 0 {
		return fmt.Errorf("overlay intervals must not be negative")
	}

	if cfg.Database.Enabled {
		if cfg.Database.MaxSize < 1 {
			return fmt.Errorf("database.max_size must be positive")
		}
		if cfg.Database.LogPath == cfg.Database.CheckpointPath {
			return fmt.Errorf("database.log_path and database.checkpoint_path must differ")
		}
		if len(cfg.Twitch.Channels) == 0 && !cfg.Kick.Enabled && len(cfg.Matrix.Rooms()) == 0 {
			return fmt.Errorf("database needs at least one chat provider (twitch, kick or matrix)")
		}
	}

	if len(cfg.Matrix.Rooms()) > 0 {
		if cfg.Matrix.Homeserver == "" || cfg.Matrix.UserID == "" {
			return fmt.Errorf("matrix.homeserver and matrix.user_id are required when matrix rooms are set")
		}
		if cfg.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required (or set MATRIX_ACCESS_TOKEN env var)")
		}
	}

	if cfg.Kick.Enabled && len(cfg.Kick.Channels) == 0 {
		return fmt.Errorf("at least one kick channel is required when kick is enabled")
	}

	if cfg.NeedsS3() {
		if cfg.S3.Bucket == "" && cfg.Uploader.Enabled {
			return fmt.Errorf("s3.bucket is required")
		}
		if cfg.S3.Region == "" {
			return fmt.Errorf("s3.region is required")
		}
		// Either OIDC role or static credentials required
		if cfg.S3.RoleARN == "" && cfg.S3.AccessKeyID == "" {
			return fmt.Errorf("either s3.role_arn (OIDC) or s3.access_key_id (legacy) is required")
		}
		// If using static credentials, both key and secret are required
		if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey == "" {
			return fmt.Errorf("s3.secret_access_key is required when using access_key_id")
		}
	}

	return nil
}

// NeedsS3 reports whether any component talks to S3
func (cfg *Config) NeedsS3() bool {
	if cfg.Uploader.Enabled && cfg.Database.Enabled {
		return true
	}
	if !cfg.Overlay.Enabled {
		return false
	}
	return strings.HasPrefix(cfg.Overlay.Snapshot, "s3://") || strings.HasPrefix(cfg.Overlay.Log, "s3://")
}

// PollInterval returns the log poll interval
func (o OverlayConfig) PollInterval() time.Duration {
	return time.Duration(o.DBPollRateMS) * time.Millisecond
}

// RenderInterval returns the re-render interval
func (o OverlayConfig) RenderInterval() time.Duration {
	return time.Duration(o.ChatUpdateRateMS) * time.Millisecond
}

// FetchTimeout returns the per-fetch timeout
func (o OverlayConfig) FetchTimeout() time.Duration {
	return time.Duration(o.FetchTimeoutMS) * time.Millisecond
}
