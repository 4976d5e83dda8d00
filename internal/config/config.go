package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ErrMissingEngineConfig is returned when the decision engine cannot be reached
// because its URL or private key is not configured.
var ErrMissingEngineConfig = errors.New("decision engine configuration missing")

// EngineConfig holds decision engine connection settings.
type EngineConfig struct {
	APIURL string
	APIKey string
	// CheckpointTimeout is forwarded to the engine as the checkpoint option, in milliseconds.
	CheckpointTimeout int
	RequestTimeout    time.Duration
}

// Validate reports which required engine settings are absent.
func (e EngineConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(e.APIURL) == "" {
		missing = append(missing, "DODGEBALL_API_URL")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		missing = append(missing, "DODGEBALL_PRIVATE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEngineConfig, strings.Join(missing, ", "))
	}
	return nil
}

// ClientIPConfig controls how the originating address of a request is derived.
type ClientIPConfig struct {
	Fallback string
	Static   string
	// TrustedProxies lists addresses or CIDRs whose forwarding headers are honoured.
	TrustedProxies []string
}

// Config is the process configuration, built once at startup.
type Config struct {
	Engine                EngineConfig
	ClientIP              ClientIPConfig
	TrackCheckpointEvents bool
	AllowedOrigins        []string
	DBPath                string
	Port                  string
	LogLevel              logrus.Level
}

// LookupFunc resolves a single configuration key.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv seeds the process environment from a .env file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv builds a Config from the process environment.
func FromEnv() Config {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from the supplied lookup function.
func FromLookup(lookup LookupFunc) Config {
	get := func(key string) string {
		if lookup == nil {
			return ""
		}
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	cfg := Config{
		Engine: EngineConfig{
			APIURL: get("DODGEBALL_API_URL"),
			APIKey: get("DODGEBALL_PRIVATE_API_KEY"),
		},
		ClientIP: ClientIPConfig{
			Fallback: get("CLIENT_IP_FALLBACK"),
			Static:   get("CLIENT_IP_STATIC"),
		},
		TrackCheckpointEvents: strings.EqualFold(get("TRACK_CHECKPOINT_EVENTS"), "true"),
		DBPath:                get("CHECKPOINT_DB_PATH"),
		Port:                  get("PORT"),
		LogLevel:              logrus.InfoLevel,
	}

	if timeout := get("CHECKPOINT_TIMEOUT"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil && v > 0 {
			cfg.Engine.CheckpointTimeout = v
		} else {
			logrus.WithField("value", timeout).Warn("ignoring invalid CHECKPOINT_TIMEOUT")
		}
	}
	if timeout := get("DODGEBALL_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Engine.RequestTimeout = d
		} else {
			logrus.WithField("value", timeout).Warn("ignoring invalid DODGEBALL_REQUEST_TIMEOUT")
		}
	}
	if level := get("LOG_LEVEL"); level != "" {
		if parsed, err := logrus.ParseLevel(level); err == nil {
			cfg.LogLevel = parsed
		} else {
			logrus.WithField("value", level).Warn("ignoring invalid LOG_LEVEL")
		}
	}
	cfg.AllowedOrigins = splitList(get("ALLOWED_ORIGINS"))
	cfg.ClientIP.TrustedProxies = splitList(get("TRUSTED_PROXIES"))
	if cfg.Port == "" {
		cfg.Port = "3020"
	}
	return cfg
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
