package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	// Embedded zone database so the institution zone resolves on minimal images
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Environment variable holding the optional JSON config file path
const ConfigFileEnv = "SAMS_CONFIG_FILE"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database   *DatabaseConfig   `json:"database"`
	HTTP       *HTTPConfig       `json:"http"`
	WebSocket  *WebSocketConfig  `json:"websocket"`
	Auth       *AuthConfig       `json:"auth"`
	Attendance *AttendanceConfig `json:"attendance"`
}

// FUNCTIONAL DISCOVERY: Database configuration supports SQLite optimizations
type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
}

type HTTPConfig struct {
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	RequestTimeout time.Duration `json:"request_timeout"`
	Host           string        `json:"host"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// AuthConfig holds the shared token signing secret
type AuthConfig struct {
	JWTSecret string        `json:"-"`
	Issuer    string        `json:"issuer"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// AttendanceConfig holds institution-wide attendance rules
type AttendanceConfig struct {
	TimeZone                 string `json:"time_zone"`
	MaxCodeExpirationMinutes int    `json:"max_code_expiration_minutes"`
	CodeAttempts             int    `json:"code_attempts"`
	CheckInsPerMinute        int    `json:"check_ins_per_minute"`
}

// Location resolves the institution time zone
func (a *AttendanceConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", a.TimeZone, err)
	}
	return loc, nil
}

// FUNCTIONAL DISCOVERY: Production-ready defaults; the JWT secret has no
// default and must be supplied
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/sams.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			RequestTimeout: 15 * time.Second,
			Host:           "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Auth: &AuthConfig{
			Issuer:   "sams",
			TokenTTL: 12 * time.Hour,
		},
		Attendance: &AttendanceConfig{
			TimeZone:                 "Asia/Colombo",
			MaxCodeExpirationMinutes: 30,
			CodeAttempts:             3,
			CheckInsPerMinute:        10,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return fmt.Errorf("HTTP request timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required (set SAMS_JWT_SECRET)")
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("JWT issuer cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Attendance == nil {
		return fmt.Errorf("attendance configuration is required")
	}
	if _, err := c.Attendance.Location(); err != nil {
		return err
	}
	if c.Attendance.MaxCodeExpirationMinutes <= 0 {
		return fmt.Errorf("max code expiration minutes must be positive")
	}
	if c.Attendance.CodeAttempts <= 0 {
		return fmt.Errorf("code attempts must be positive")
	}
	if c.Attendance.CheckInsPerMinute <= 0 {
		return fmt.Errorf("check-ins per minute must be positive")
	}

	return nil
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// envSource reads SAMS_* variables and remembers every value it could not parse
type envSource struct {
	errs []error
}

func (e *envSource) intVar(key string, target *int) {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s=%q is not an integer", key, value))
			return
		}
		*target = n
	}
}

func (e *envSource) durationVar(key string, target *time.Duration) {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s=%q is not a duration", key, value))
			return
		}
		*target = d
	}
}

func (e *envSource) stringVar(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

// LoadFromEnv overlays environment variables onto the defaults.
// FUNCTIONAL DISCOVERY: A malformed value is an error, never a silent fallback
// to the default; every malformed variable is reported at once
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	env := &envSource{}

	env.stringVar("SAMS_DATABASE_PATH", &config.Database.Path)
	env.durationVar("SAMS_DATABASE_TIMEOUT", &config.Database.Timeout)
	env.intVar("SAMS_DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)

	env.stringVar("SAMS_HTTP_HOST", &config.HTTP.Host)
	env.intVar("SAMS_HTTP_PORT", &config.HTTP.Port)
	env.durationVar("SAMS_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	env.durationVar("SAMS_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	env.durationVar("SAMS_HTTP_REQUEST_TIMEOUT", &config.HTTP.RequestTimeout)

	env.durationVar("SAMS_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	env.durationVar("SAMS_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	env.durationVar("SAMS_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	env.intVar("SAMS_WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	env.stringVar("SAMS_JWT_SECRET", &config.Auth.JWTSecret)
	env.stringVar("SAMS_JWT_ISSUER", &config.Auth.Issuer)
	env.durationVar("SAMS_JWT_TTL", &config.Auth.TokenTTL)

	env.stringVar("SAMS_TIME_ZONE", &config.Attendance.TimeZone)
	env.intVar("SAMS_MAX_CODE_EXPIRATION_MINUTES", &config.Attendance.MaxCodeExpirationMinutes)
	env.intVar("SAMS_CODE_ATTEMPTS", &config.Attendance.CodeAttempts)
	env.intVar("SAMS_CHECK_INS_PER_MINUTE", &config.Attendance.CheckInsPerMinute)

	if err := errors.Join(env.errs...); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return config, nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database   *DatabaseConfigFile   `json:"database"`
	HTTP       *HTTPConfigFile       `json:"http"`
	WebSocket  *WebSocketConfigFile  `json:"websocket"`
	Auth       *AuthConfigFile       `json:"auth"`
	Attendance *AttendanceConfigFile `json:"attendance"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfigFile struct {
	Port           int    `json:"port"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	RequestTimeout string `json:"request_timeout"`
	Host           string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	TokenTTL  string `json:"token_ttl"`
}

type AttendanceConfigFile struct {
	TimeZone                 string `json:"time_zone"`
	MaxCodeExpirationMinutes int    `json:"max_code_expiration_minutes"`
	CodeAttempts             int    `json:"code_attempts"`
	CheckInsPerMinute        int    `json:"check_ins_per_minute"`
}

func fileDuration(value string, target *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

func fileString(value string, target *string) {
	if value != "" {
		*target = value
	}
}

func fileInt(value int, target *int) {
	if value > 0 {
		*target = value
	}
}

// apply overlays the fields present in the file onto config
func (f *ConfigFile) apply(config *Config) error {
	var errs []error

	if f.Database != nil {
		fileString(f.Database.Path, &config.Database.Path)
		errs = append(errs, fileDuration(f.Database.Timeout, &config.Database.Timeout))
		fileInt(f.Database.MaxConnections, &config.Database.MaxConnections)
	}
	if f.HTTP != nil {
		fileInt(f.HTTP.Port, &config.HTTP.Port)
		fileString(f.HTTP.Host, &config.HTTP.Host)
		errs = append(errs,
			fileDuration(f.HTTP.ReadTimeout, &config.HTTP.ReadTimeout),
			fileDuration(f.HTTP.WriteTimeout, &config.HTTP.WriteTimeout),
			fileDuration(f.HTTP.RequestTimeout, &config.HTTP.RequestTimeout),
		)
	}
	if f.WebSocket != nil {
		fileInt(f.WebSocket.BufferSize, &config.WebSocket.BufferSize)
		errs = append(errs,
			fileDuration(f.WebSocket.PingInterval, &config.WebSocket.PingInterval),
			fileDuration(f.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout),
			fileDuration(f.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout),
		)
	}
	if f.Auth != nil {
		fileString(f.Auth.JWTSecret, &config.Auth.JWTSecret)
		fileString(f.Auth.Issuer, &config.Auth.Issuer)
		errs = append(errs, fileDuration(f.Auth.TokenTTL, &config.Auth.TokenTTL))
	}
	if f.Attendance != nil {
		fileString(f.Attendance.TimeZone, &config.Attendance.TimeZone)
		fileInt(f.Attendance.MaxCodeExpirationMinutes, &config.Attendance.MaxCodeExpirationMinutes)
		fileInt(f.Attendance.CodeAttempts, &config.Attendance.CodeAttempts)
		fileInt(f.Attendance.CheckInsPerMinute, &config.Attendance.CheckInsPerMinute)
	}

	return errors.Join(errs...)
}

func readConfigFile(filepath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}
	return &configFile, nil
}

// LoadFromFile reads a JSON file on top of the defaults and validates the result
func LoadFromFile(filepath string) (*Config, error) {
	configFile, err := readConfigFile(filepath)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := configFile.apply(config); err != nil {
		return nil, fmt.Errorf("invalid duration in %s: %w", filepath, err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence resolves defaults < .env < environment < file.
// FUNCTIONAL DISCOVERY: godotenv never overrides variables already set in
// the process environment, and a missing .env file is not an error
func LoadConfigWithPrecedence(filepath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath == "" {
		filepath = os.Getenv(ConfigFileEnv)
	}
	if filepath != "" {
		configFile, err := readConfigFile(filepath)
		if err != nil {
			return nil, err
		}
		if err := configFile.apply(config); err != nil {
			return nil, fmt.Errorf("invalid duration in %s: %w", filepath, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
