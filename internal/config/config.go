// Package config binds flags, environment and an optional .env file to the
// settings of the server.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/instantly-mcp/pkg/client"
	"github.com/Sternrassler/instantly-mcp/pkg/logging"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
)

// EnvFile is loaded on Init when present. Existing environment wins.
const EnvFile = ".env"

// ErrInvalid marks a configuration that cannot start the server.
var ErrInvalid = errors.New("invalid configuration")

// flagKeys maps persistent flag names to configuration keys.
var flagKeys = map[string]string{
	"api-key":         KeyAPIKey,
	"base-url":        KeyBaseURL,
	"redis-url":       KeyRedisURL,
	"log-level":       KeyLogLevel,
	"log-pretty":      KeyLogPretty,
	"transport":       KeyTransport,
	"host":            KeyHost,
	"port":            KeyPort,
	"profiles-file":   KeyProfilesFile,
	"client-name":     KeyClientName,
	"memory-limit-mb": KeyMemoryLimitMB,
	"history-size":    KeyHistorySize,
}

// Init wires environment, .env and the root command's persistent flags
// into viper.
func Init(root *cobra.Command) {
	viper.AutomaticEnv()
	_ = godotenv.Load(EnvFile)
	if root != nil {
		for name, key := range flagKeys {
			if f := root.PersistentFlags().Lookup(name); f != nil {
				_ = viper.BindPFlag(key, f)
			}
		}
	}
	setDefaults()
}

func setDefaults() {
	viper.SetDefault(KeyBaseURL, client.DefaultBaseURL)
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyLogPretty, false)
	viper.SetDefault(KeyTransport, TransportStdio)
	viper.SetDefault(KeyHost, "127.0.0.1")
	viper.SetDefault(KeyPort, 8080)
	viper.SetDefault(KeyMemoryLimitMB, 0)
	viper.SetDefault(KeyHistorySize, monitor.DefaultHistorySize)
}

func APIKey() string       { return viper.GetString(KeyAPIKey) }
func BaseURL() string      { return viper.GetString(KeyBaseURL) }
func RedisURL() string     { return viper.GetString(KeyRedisURL) }
func LogLevel() string     { return viper.GetString(KeyLogLevel) }
func LogPretty() bool      { return viper.GetBool(KeyLogPretty) }
func Transport() string    { return strings.ToLower(viper.GetString(KeyTransport)) }
func Host() string         { return viper.GetString(KeyHost) }
func Port() int            { return viper.GetInt(KeyPort) }
func ProfilesFile() string { return viper.GetString(KeyProfilesFile) }
func ClientName() string   { return viper.GetString(KeyClientName) }
func MemoryLimitMB() int   { return viper.GetInt(KeyMemoryLimitMB) }
func HistorySize() int     { return viper.GetInt(KeyHistorySize) }

// Settings is a validated snapshot of the configuration.
type Settings struct {
	APIKey           string
	BaseURL          string
	RedisURL         string
	LogLevel         logging.LogLevel
	LogPretty        bool
	Transport        string
	Host             string
	Port             int
	ProfilesFile     string
	ClientName       string
	MemoryLimitBytes uint64
	HistorySize      int
}

// Addr is the listen address of the HTTP transport.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads and validates the current configuration.
func Load() (Settings, error) {
	level, err := logging.ParseLevel(LogLevel())
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	s := Settings{
		APIKey:       strings.TrimSpace(APIKey()),
		BaseURL:      strings.TrimRight(BaseURL(), "/"),
		RedisURL:     RedisURL(),
		LogLevel:     level,
		LogPretty:    LogPretty(),
		Transport:    Transport(),
		Host:         Host(),
		Port:         Port(),
		ProfilesFile: ProfilesFile(),
		ClientName:   ClientName(),
		HistorySize:  HistorySize(),
	}

	if s.APIKey == "" {
		return Settings{}, fmt.Errorf("%w: %s is required", ErrInvalid, strings.ToUpper(KeyAPIKey))
	}
	switch s.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return Settings{}, fmt.Errorf("%w: transport %q (want %s or %s)", ErrInvalid, s.Transport, TransportStdio, TransportHTTP)
	}
	if s.Transport == TransportHTTP && (s.Port <= 0 || s.Port > 65535) {
		return Settings{}, fmt.Errorf("%w: port %d out of range", ErrInvalid, s.Port)
	}
	mb := MemoryLimitMB()
	if mb < 0 {
		return Settings{}, fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyMemoryLimitMB)
	}
	s.MemoryLimitBytes = uint64(mb) << 20
	if s.HistorySize <= 0 {
		s.HistorySize = monitor.DefaultHistorySize
	}

	return s, nil
}
