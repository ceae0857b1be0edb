// Package config provides functionality for managing configuration options
// for the binaries using command-line flags, a JSON config file and
// environment variables. A .env file, when present, is loaded into the
// environment first.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Options holds the configuration values for the mock admin backend.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// Config is the path to the Config file.
	Config string

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string

	// JWTSecret signs the bearer tokens.
	JWTSecret string

	// TokenTTL is the lifetime of an issued token.
	TokenTTL time.Duration

	// CaptchaTTL is the lifetime of an issued captcha.
	CaptchaTTL time.Duration

	// Env is the deployment environment. Dev login only works in local and dev.
	Env string

	LogLevel string
}

// fileOptions is the JSON shape of the config file. Durations are strings
// such as "24h".
type fileOptions struct {
	Port        string `json:"address"`
	DatabaseDSN string `json:"database_dsn"`
	TLSCert     string `json:"tls_cert"`
	TLSKey      string `json:"tls_key"`
	JWTSecret   string `json:"jwt_secret"`
	TokenTTL    string `json:"token_ttl"`
	CaptchaTTL  string `json:"captcha_ttl"`
	Env         string `json:"env"`
	LogLevel    string `json:"log_level"`
}

// DevSecret is used when no JWT secret is configured outside production.
const DevSecret = "tea-admin-dev-secret"

func defaults() *Options {
	return &Options{
		Port:       "localhost:8080",
		Config:     "config.json",
		TokenTTL:   24 * time.Hour,
		CaptchaTTL: 5 * time.Minute,
		Env:        "local",
		LogLevel:   "info",
	}
}

// Parse reads the server configuration. Values are applied in order:
// defaults, config file, environment, then flags given on the command line.
func Parse(args []string) (*Options, error) {
	options := defaults()
	flags := *options

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&flags.Port, "a", options.Port, "run on ip:port server")
	fs.StringVar(&flags.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&flags.Config, "config", options.Config, "path to config file")
	fs.StringVar(&flags.Config, "c", options.Config, "path to config file (shorthand)")
	fs.StringVar(&flags.TLSCert, "tls-cert", "", "server TLS certificate")
	fs.StringVar(&flags.TLSKey, "tls-key", "", "server TLS key")
	fs.StringVar(&flags.JWTSecret, "jwt-secret", "", "token signing secret")
	fs.DurationVar(&flags.TokenTTL, "token-ttl", options.TokenTTL, "token lifetime")
	fs.DurationVar(&flags.CaptchaTTL, "captcha-ttl", options.CaptchaTTL, "captcha lifetime")
	fs.StringVar(&flags.Env, "env", options.Env, "environment: local, dev, prod")
	fs.StringVar(&flags.LogLevel, "log-level", options.LogLevel, "log level")
	envFile := fs.String("env-file", ".env", "dotenv file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := loadDotEnv(*envFile); err != nil {
		return nil, err
	}

	options.Config = flags.Config
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}
	if err := options.readFile(); err != nil {
		return nil, err
	}

	if err := options.readEnv(); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "a":
			options.Port = flags.Port
		case "d":
			options.DatabaseDSN = flags.DatabaseDSN
		case "tls-cert":
			options.TLSCert = flags.TLSCert
		case "tls-key":
			options.TLSKey = flags.TLSKey
		case "jwt-secret":
			options.JWTSecret = flags.JWTSecret
		case "token-ttl":
			options.TokenTTL = flags.TokenTTL
		case "captcha-ttl":
			options.CaptchaTTL = flags.CaptchaTTL
		case "env":
			options.Env = flags.Env
		case "log-level":
			options.LogLevel = flags.LogLevel
		}
	})

	if options.JWTSecret == "" {
		if options.Env == "prod" {
			return nil, errors.New("JWT_SECRET is required in prod")
		}
		options.JWTSecret = DevSecret
	}
	return options, nil
}

// DevLoginEnabled reports whether the openid shortcut is served.
func (o *Options) DevLoginEnabled() bool {
	return o.Env == "local" || o.Env == "dev"
}

// UseTLS reports whether a certificate pair is configured.
func (o *Options) UseTLS() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}

func (o *Options) readFile() error {
	if o.Config == "" {
		return nil
	}
	data, err := os.ReadFile(o.Config)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	var f fileOptions
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}

	setString(&o.Port, f.Port)
	setString(&o.DatabaseDSN, f.DatabaseDSN)
	setString(&o.TLSCert, f.TLSCert)
	setString(&o.TLSKey, f.TLSKey)
	setString(&o.JWTSecret, f.JWTSecret)
	setString(&o.Env, f.Env)
	setString(&o.LogLevel, f.LogLevel)
	if err := setDuration(&o.TokenTTL, f.TokenTTL); err != nil {
		return fmt.Errorf("token_ttl: %w", err)
	}
	if err := setDuration(&o.CaptchaTTL, f.CaptchaTTL); err != nil {
		return fmt.Errorf("captcha_ttl: %w", err)
	}
	return nil
}

func (o *Options) readEnv() error {
	setString(&o.Port, os.Getenv("SERVER_ADDRESS"))
	setString(&o.DatabaseDSN, os.Getenv("DATABASE_DSN"))
	setString(&o.JWTSecret, os.Getenv("JWT_SECRET"))
	setString(&o.Env, os.Getenv("APP_ENV"))
	if err := setDuration(&o.TokenTTL, os.Getenv("TOKEN_TTL")); err != nil {
		return fmt.Errorf("TOKEN_TTL: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
