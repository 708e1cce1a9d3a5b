// Package config provides Viper-based configuration loading for the roll bot.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// BotConfig holds chat-command conventions.
type BotConfig struct {
	// Prefix is the sigil that marks a line as a command, e.g. "!" in "!roll".
	Prefix string `mapstructure:"prefix"`
	// CodeBlock wraps replies in ``` fences.
	CodeBlock bool `mapstructure:"code_block"`
	// Color enables ANSI colors in telnet replies.
	Color bool `mapstructure:"color"`
	// Greeting is sent to every new telnet session.
	Greeting string `mapstructure:"greeting"`
}

// DiceConfig holds roll engine settings.
type DiceConfig struct {
	// Source is the randomness provider: "crypto" or "seeded".
	Source string `mapstructure:"source"`
	// Seed seeds the "seeded" source.
	Seed uint64 `mapstructure:"seed"`
	// MaxDice caps the dice rolled by one command; 0 disables the cap.
	MaxDice uint64 `mapstructure:"max_dice"`
}

// TelnetConfig holds Telnet acceptor settings.
type TelnetConfig struct {
	// Host is the bind address for the Telnet listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the Telnet listener. 0 picks a free port.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for Telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for Telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// GRPCConfig holds roll service gRPC settings.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// EvaluateTimeout bounds a single RPC evaluation; 0 means no bound.
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout"`
}

// Addr returns the "host:port" gRPC address.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// WebSocketConfig holds settings for the browser chat front end.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// Path is the HTTP path that upgrades to a WebSocket, e.g. "/ws".
	Path string `mapstructure:"path"`
	// AllowedOrigins lists accepted Origin headers; empty allows same-host only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" HTTP listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// ScriptingConfig holds Lua macro settings.
type ScriptingConfig struct {
	// MacroDir is the directory of *.lua macro files; empty disables macros.
	MacroDir string `mapstructure:"macro_dir"`
	// InstructionLimit caps Lua opcodes per macro call; 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// TracingConfig holds OpenTelemetry trace and metric export settings.
type TracingConfig struct {
	// Endpoint is an OTLP/HTTP collector URL such as http://localhost:4318;
	// empty disables export.
	Endpoint string `mapstructure:"endpoint"`
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `mapstructure:"service_name"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, also writes JSON logs to this path with rotation.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which File is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays is the age after which rotated files are removed.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Config is the top-level application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Dice      DiceConfig      `mapstructure:"dice"`
	Telnet    TelnetConfig    `mapstructure:"telnet"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateBot(c.Bot),
		validateDice(c.Dice),
		validateTelnet(c.Telnet),
		validateGRPC(c.GRPC),
		validateWebSocket(c.WebSocket),
		validateScripting(c.Scripting),
		validateTracing(c.Tracing),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBot(b BotConfig) error {
	if b.Prefix == "" {
		return errors.New("bot.prefix must not be empty")
	}
	if strings.ContainsAny(b.Prefix, " \t\r\n") {
		return fmt.Errorf("bot.prefix must not contain whitespace, got %q", b.Prefix)
	}
	return nil
}

func validateDice(d DiceConfig) error {
	validSources := map[string]bool{"crypto": true, "seeded": true}
	if !validSources[d.Source] {
		return fmt.Errorf("dice.source must be one of [crypto, seeded], got %q", d.Source)
	}
	return nil
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	if t.Port < 0 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("telnet.port must be 0-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	if !g.Enabled {
		return nil
	}
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if g.Port < 0 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be 0-65535, got %d", g.Port))
	}
	if g.EvaluateTimeout < 0 {
		errs = append(errs, "grpc.evaluate_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	if !w.Enabled {
		return nil
	}
	var errs []string
	if w.Port < 0 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 0-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with /, got %q", w.Path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateScripting(s ScriptingConfig) error {
	if s.InstructionLimit < 0 {
		return fmt.Errorf("scripting.instruction_limit must be >= 0, got %d", s.InstructionLimit)
	}
	return nil
}

func validateTracing(t TracingConfig) error {
	if t.Endpoint != "" && t.ServiceName == "" {
		return errors.New("tracing.service_name must not be empty when tracing.endpoint is set")
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && l.MaxSizeMB < 1 {
		return fmt.Errorf("logging.max_size_mb must be >= 1 when logging.file is set, got %d", l.MaxSizeMB)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// Defaults returns the configuration used when no file is given, with
// environment overrides applied.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Defaults() (Config, error) {
	return LoadFromViper(viper.New())
}

// LoadFromViper builds a Config from a Viper instance, adding defaults and
// ROLLBOT_ environment overrides (e.g. ROLLBOT_BOT_PREFIX).
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("ROLLBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.prefix", "!")
	v.SetDefault("bot.code_block", false)
	v.SetDefault("bot.color", true)
	v.SetDefault("bot.greeting", "Roll some dice. Try !roll 2d6 1d20, or !help.")

	v.SetDefault("dice.source", "crypto")
	v.SetDefault("dice.seed", 0)
	v.SetDefault("dice.max_dice", 100000)

	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4000)
	v.SetDefault("telnet.read_timeout", "30m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "127.0.0.1")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.evaluate_timeout", "5s")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8080)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("scripting.macro_dir", "")
	v.SetDefault("scripting.instruction_limit", 0)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "rollbot")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}
