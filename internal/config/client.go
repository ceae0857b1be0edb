package config

import (
	"flag"
	"os"
	"path/filepath"
	"time"
)

// ClientOptions configures the admin shell.
type ClientOptions struct {
	// URL is the backend base URL.
	URL string
	// TokenFile is where the bearer token is persisted.
	TokenFile string
	// Timeout bounds every request.
	Timeout time.Duration
	// CA trusts a private certificate authority for an https URL.
	CA string
	// Refresh is the permission refresh interval; zero disables it.
	Refresh  time.Duration
	LogLevel string
	Version  bool
}

// DefaultTokenFile is the token location under the user config directory.
func DefaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "token.json"
	}
	return filepath.Join(dir, "tea-admin", "token.json")
}

// ParseClient reads the admin shell configuration from args and the
// environment. Flags given on the command line win over the environment.
func ParseClient(args []string) (*ClientOptions, error) {
	o := &ClientOptions{}
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.StringVar(&o.URL, "url", "http://localhost:8080", "server base URL")
	fs.StringVar(&o.TokenFile, "token-file", DefaultTokenFile(), "path to the persisted token")
	fs.DurationVar(&o.Timeout, "timeout", 30*time.Second, "request timeout")
	fs.StringVar(&o.CA, "ca", "", "path to CA cert")
	fs.DurationVar(&o.Refresh, "refresh", 5*time.Minute, "permission refresh interval, 0 to disable")
	fs.StringVar(&o.LogLevel, "log-level", "warn", "log level")
	fs.BoolVar(&o.Version, "version", false, "show build version and date")
	envFile := fs.String("env-file", ".env", "dotenv file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := loadDotEnv(*envFile); err != nil {
		return nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if v := os.Getenv("TEA_ADMIN_URL"); v != "" && !set["url"] {
		o.URL = v
	}
	if v := os.Getenv("TEA_ADMIN_TOKEN_FILE"); v != "" && !set["token-file"] {
		o.TokenFile = v
	}
	return o, nil
}
