package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	Port     int    `envconfig:"PORT" default:"3001"`
	DataPath string `envconfig:"DATA_PATH" default:"./data"`
	LogPath  string `envconfig:"LOG_PATH" default:""`

	// Database
	DBDriver   string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath     string `envconfig:"DB_PATH" default:""`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"0"`
	DBUser     string `envconfig:"DB_USER" default:""`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"tunnelui"`

	// cloudflared and systemd
	CloudflaredBin  string `envconfig:"CLOUDFLARED_BIN" default:"cloudflared"`
	CloudflaredHome string `envconfig:"CLOUDFLARED_HOME" default:""`
	SystemdDir      string `envconfig:"SYSTEMD_DIR" default:"/etc/systemd/system"`
	UnitStageDir    string `envconfig:"UNIT_STAGE_DIR" default:""`
	ServiceUser     string `envconfig:"SERVICE_USER" default:""`

	// Cloudflare API
	ValidateAPIToken bool          `envconfig:"VALIDATE_API_TOKEN" default:"false"`
	ValidateZoneID   bool          `envconfig:"VALIDATE_ZONE_ID" default:"false"`
	CloudflareAPIURL string        `envconfig:"CLOUDFLARE_API_URL" default:"https://api.cloudflare.com/client/v4"`
	ReleaseURL       string        `envconfig:"RELEASE_URL" default:"https://api.github.com/repos/cloudflare/cloudflared/releases/latest"`
	ReleaseTimeout   time.Duration `envconfig:"RELEASE_TIMEOUT" default:"4s"`
	LoginTimeout     time.Duration `envconfig:"LOGIN_TIMEOUT" default:"30s"`

	StatusSyncSchedule string `envconfig:"STATUS_SYNC_SCHEDULE" default:"@every 1m"`

	AuthDisabled      bool   `envconfig:"AUTH_DISABLED" default:"false"`
	AllowRegistration bool   `envconfig:"ALLOW_REGISTRATION" default:"false"`
	FrontendDir       string `envconfig:"FRONTEND_DIR" default:""`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("TUNNELUI", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	Cfg.applyDerivedDefaults()
}

// applyDerivedDefaults fills paths that depend on DataPath or the
// process environment.
func (s *Settings) applyDerivedDefaults() {
	if s.DBPath == "" {
		s.DBPath = filepath.Join(s.DataPath, "tunnelui.db")
	}
	if s.LogPath == "" {
		s.LogPath = filepath.Join(s.DataPath, "tunnelui.log")
	}
	if s.UnitStageDir == "" {
		s.UnitStageDir = filepath.Join(s.DataPath, "units")
	}
	if s.CloudflaredHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/root"
		}
		s.CloudflaredHome = filepath.Join(home, ".cloudflared")
	}
	if s.ServiceUser == "" {
		s.ServiceUser = os.Getenv("USER")
		if s.ServiceUser == "" {
			s.ServiceUser = "root"
		}
	}
}
