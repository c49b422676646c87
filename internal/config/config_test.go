// ABOUTME: Tests for play-cli configuration loading
// ABOUTME: Checks the TOML overlay, .env and environment precedence, and validation
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFileOverlaysDefinedKeys(t *testing.T) {
	path := writeFile(t, "play.toml", `
app_id = "app"
user_id = "alice"
server = "localhost:8927"
insecure = true
discovery_timeout = "2s"
max_players = 6
`)

	cfg := Default()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.AppID != "app" || cfg.UserID != "alice" || cfg.Server != "localhost:8927" || !cfg.Insecure {
		t.Errorf("unexpected identity fields: %+v", cfg)
	}
	if cfg.DiscoveryTimeout != 2*time.Second || cfg.MaxPlayers != 6 {
		t.Errorf("unexpected tuning fields: %+v", cfg)
	}
	if cfg.GameVersion != Default().GameVersion || cfg.LogFile != "play-cli.log" {
		t.Error("keys absent from the file must keep their defaults")
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := map[string]string{
		"bad duration": `discovery_timeout = "soon"`,
		"unknown key":  `colour = "blue"`,
		"not toml":     `app_id = `,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			if err := LoadFile(writeFile(t, "play.toml", content), &cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadEnvPrecedence(t *testing.T) {
	envFile := writeFile(t, ".env", "PLAY_APP_ID=from-file\nPLAY_USER_ID=file-user\n")
	t.Setenv(EnvUserID, "process-user")
	t.Setenv(EnvServer, "")

	// godotenv only fills variables the process does not have
	t.Setenv(EnvAppID, "")
	os.Unsetenv(EnvAppID)

	cfg := Default()
	cfg.Server = "from-config"
	if err := LoadEnv(envFile, &cfg); err != nil {
		t.Fatalf("load env failed: %v", err)
	}

	if cfg.AppID != "from-file" {
		t.Errorf("expected app id from .env, got %q", cfg.AppID)
	}
	if cfg.UserID != "process-user" {
		t.Errorf("process environment should win over .env, got %q", cfg.UserID)
	}
	if cfg.Server != "from-config" {
		t.Errorf("empty variables must not override, got %q", cfg.Server)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	cfg := Default()
	if err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"), &cfg); err != nil {
		t.Errorf("missing .env should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.AppID, valid.UserID = "app", "alice"
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	missing := valid
	missing.AppID = ""
	if err := missing.Validate(); err == nil {
		t.Error("expected missing app id to fail")
	}

	crowded := valid
	crowded.MaxPlayers = 0
	if err := crowded.Validate(); err == nil {
		t.Error("expected zero max players to fail")
	}
}

func TestClientConfig(t *testing.T) {
	cfg := Default()
	cfg.AppID, cfg.UserID, cfg.Server, cfg.Insecure = "app", "alice", "localhost:1", true

	pc := cfg.Client(nil)
	if pc.AppID != "app" || pc.UserID != "alice" || pc.PlayServer != "localhost:1" || !pc.Insecure {
		t.Errorf("unexpected client config %+v", pc)
	}
	if opts := cfg.RoomOptions(); opts.MaxPlayerCount != 4 || !opts.Open {
		t.Errorf("unexpected room options %+v", opts)
	}
}
