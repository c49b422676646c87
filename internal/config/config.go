// ABOUTME: Configuration of the play command line client
// ABOUTME: Defaults, then a TOML file, then .env and PLAY_* environment variables, then flags
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Resonate-Protocol/play-go/pkg/play"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	EnvAppID  = "PLAY_APP_ID"
	EnvAppKey = "PLAY_APP_KEY"
	EnvUserID = "PLAY_USER_ID"
	EnvServer = "PLAY_SERVER"
)

var validate = validator.New()

// Config holds the settings of one play-cli session
type Config struct {
	AppID            string `validate:"required"`
	AppKey           string
	UserID           string `validate:"required,max=128"`
	Server           string
	Insecure         bool
	GameVersion      string `validate:"omitempty,max=64"`
	DiscoveryTimeout time.Duration

	Room       string
	Create     bool
	Lobby      bool
	MaxPlayers int `validate:"min=1,max=255"`

	LogFile string
	NoTUI   bool
}

type fileConfig struct {
	AppID            string `toml:"app_id"`
	AppKey           string `toml:"app_key"`
	UserID           string `toml:"user_id"`
	Server           string `toml:"server"`
	Insecure         bool   `toml:"insecure"`
	GameVersion      string `toml:"game_version"`
	DiscoveryTimeout string `toml:"discovery_timeout"`
	Room             string `toml:"room"`
	Lobby            bool   `toml:"lobby"`
	MaxPlayers       int    `toml:"max_players"`
	LogFile          string `toml:"log_file"`
}

// Default returns the settings used when nothing else is configured
func Default() Config {
	return Config{
		GameVersion:      play.DefaultGameVersion,
		DiscoveryTimeout: play.DefaultDiscoveryTimeout,
		MaxPlayers:       4,
		LogFile:          "play-cli.log",
	}
}

// LoadFile overlays the keys present in the TOML file at path onto cfg
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("app_id") {
		cfg.AppID = strings.TrimSpace(raw.AppID)
	}
	if meta.IsDefined("app_key") {
		cfg.AppKey = strings.TrimSpace(raw.AppKey)
	}
	if meta.IsDefined("user_id") {
		cfg.UserID = strings.TrimSpace(raw.UserID)
	}
	if meta.IsDefined("server") {
		cfg.Server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("insecure") {
		cfg.Insecure = raw.Insecure
	}
	if meta.IsDefined("game_version") {
		cfg.GameVersion = strings.TrimSpace(raw.GameVersion)
	}
	if meta.IsDefined("discovery_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.DiscoveryTimeout))
		if err != nil {
			return fmt.Errorf("parse discovery_timeout: %w", err)
		}
		cfg.DiscoveryTimeout = d
	}
	if meta.IsDefined("room") {
		cfg.Room = strings.TrimSpace(raw.Room)
	}
	if meta.IsDefined("lobby") {
		cfg.Lobby = raw.Lobby
	}
	if meta.IsDefined("max_players") {
		cfg.MaxPlayers = raw.MaxPlayers
	}
	if meta.IsDefined("log_file") {
		cfg.LogFile = strings.TrimSpace(raw.LogFile)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}
	return nil
}

// LoadEnv reads envFile when it exists, then applies PLAY_* variables to cfg.
// Variables already set in the process win over the file.
func LoadEnv(envFile string, cfg *Config) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if v, ok := lookup(EnvAppID); ok {
		cfg.AppID = v
	}
	if v, ok := lookup(EnvAppKey); ok {
		cfg.AppKey = v
	}
	if v, ok := lookup(EnvUserID); ok {
		cfg.UserID = v
	}
	if v, ok := lookup(EnvServer); ok {
		cfg.Server = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Validate reports the first invalid field
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Client returns the SDK configuration for this session
func (c Config) Client(logger *zap.Logger) play.Config {
	return play.Config{
		AppID:            c.AppID,
		AppKey:           c.AppKey,
		UserID:           c.UserID,
		Insecure:         c.Insecure,
		GameVersion:      c.GameVersion,
		PlayServer:       c.Server,
		DiscoveryTimeout: c.DiscoveryTimeout,
		Logger:           logger,
	}
}

// RoomOptions returns the options used when the session creates a room
func (c Config) RoomOptions() *play.RoomOptions {
	opts := play.NewRoomOptions()
	opts.MaxPlayerCount = c.MaxPlayers
	opts.PlayerTTL = 30 * time.Second
	return opts
}
