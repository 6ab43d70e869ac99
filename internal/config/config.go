package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/bhandras/devpanel/internal/transport"
	"github.com/bhandras/devpanel/pkg/logger"
)

// Transport names accepted by the transport key.
const (
	TransportSocketIO  = "socketio"
	TransportWebSocket = "websocket"
)

// Keys understood by Load. Environment variables use the DEVPANEL_ prefix
// and upper case, e.g. DEVPANEL_SERVER_URL.
const (
	KeyServerURL   = "server_url"
	KeyTransport   = "transport"
	KeyPath        = "path"
	KeyEvent       = "event"
	KeyToken       = "token"
	KeySecret      = "secret"
	KeyLogLevel    = "log_level"
	KeyInspectAddr = "inspect_addr"
	KeyEchoLogs    = "echo_logs"
	KeyMaxLogs     = "max_logs"
	KeyAutoSelect  = "auto_select"
)

const (
	envPrefix   = "DEVPANEL"
	homeEnv     = "DEVPANEL_HOME"
	defaultHome = ".devpanel"
	fileName    = "config"
)

type Config struct {
	// ServerURL is the address of the runtime's devtools endpoint.
	ServerURL string
	// Transport selects the Communication Layer (socketio|websocket).
	Transport string
	// Path is the Socket.IO handshake path.
	Path string
	// Event is the Socket.IO event carrying devtools messages.
	Event string
	// Token is an optional bearer token sent on connect.
	Token string
	// Secret enables payload sealing when set.
	Secret *[32]byte

	// Home is the directory holding config.yaml.
	Home string
	// LogLevel is the panel's own log verbosity.
	LogLevel logger.Level
	// InspectAddr is the listen address of the inspect API. Empty disables it.
	InspectAddr string
	// EchoLogs re-emits runtime log events through the panel logger.
	EchoLogs bool
	// MaxLogs bounds the retained runtime log entries.
	MaxLogs int
	// AutoSelect selects the first announced instance when nothing is
	// selected.
	AutoSelect bool
}

// Defaults registers default values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyServerURL, "http://localhost:8090")
	v.SetDefault(KeyTransport, TransportSocketIO)
	v.SetDefault(KeyPath, "/devtools")
	v.SetDefault(KeyEvent, "devtools-message")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMaxLogs, 500)
	v.SetDefault(KeyEchoLogs, false)
	v.SetDefault(KeyAutoSelect, false)
}

// Load reads configuration from flags already bound to v, the environment and
// an optional config.yaml in the devpanel home directory, in that order of
// precedence.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	Defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	home, err := Home()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("failed to create devpanel home: %w", err)
	}

	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(home)
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return FromViper(v, home)
}

// FromViper builds and validates a Config from values already present in v.
func FromViper(v *viper.Viper, home string) (*Config, error) {
	cfg := &Config{
		ServerURL:   strings.TrimSpace(v.GetString(KeyServerURL)),
		Transport:   strings.ToLower(strings.TrimSpace(v.GetString(KeyTransport))),
		Path:        v.GetString(KeyPath),
		Event:       v.GetString(KeyEvent),
		Token:       v.GetString(KeyToken),
		Home:        home,
		InspectAddr: v.GetString(KeyInspectAddr),
		EchoLogs:    v.GetBool(KeyEchoLogs),
		MaxLogs:     v.GetInt(KeyMaxLogs),
		AutoSelect:  v.GetBool(KeyAutoSelect),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("%s is required", KeyServerURL)
	}
	if cfg.Transport != TransportSocketIO && cfg.Transport != TransportWebSocket {
		return nil, fmt.Errorf("invalid transport %q (expected %s or %s)",
			cfg.Transport, TransportSocketIO, TransportWebSocket)
	}
	if cfg.MaxLogs <= 0 {
		return nil, fmt.Errorf("invalid %s %d (expected a positive number)", KeyMaxLogs, cfg.MaxLogs)
	}

	level, err := logger.ParseLevel(v.GetString(KeyLogLevel))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if raw := strings.TrimSpace(v.GetString(KeySecret)); raw != "" {
		key, err := transport.ParseKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeySecret, err)
		}
		cfg.Secret = key
	}

	return cfg, nil
}

// Home returns the devpanel home directory.
func Home() (string, error) {
	if dir := os.Getenv(homeEnv); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultHome), nil
}

// Sealed reports whether payload sealing is enabled.
func (c *Config) Sealed() bool { return c.Secret != nil }
