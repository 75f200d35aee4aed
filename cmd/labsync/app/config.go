package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/agentstation/labsync/pkg/errors"
	"github.com/agentstation/labsync/pkg/store"
)

// EnvPrefix prefixes every environment variable the CLI reads.
const EnvPrefix = "LABSYNC"

// Config holds the application configuration loaded from config files,
// environment variables, .env files and flags.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	ConfigFile string

	// Lab API
	BaseURL    string
	Token      string
	AuthScheme string

	// Preference store
	StoreBackend string
	StorePath    string

	JobNotifications bool

	// Relay
	Listen    string
	APIKey    string
	CORS      bool
	RateLimit int

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (applied later by UpdateFromFlags)
//  2. LABSYNC_* environment variables
//  3. .env and .env.local files
//  4. Config file (path, or .labsync.yaml in the working or home directory)
//  5. Defaults
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "cannot read "+path, err)
		}
	} else {
		v.SetConfigName(".labsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		// a missing config file is fine
		_ = v.ReadInConfig()
	}

	return &Config{
		Verbose:          v.GetBool("verbose"),
		Quiet:            v.GetBool("quiet"),
		NoColor:          v.GetBool("no_color"),
		Format:           v.GetString("format"),
		ConfigFile:       v.ConfigFileUsed(),
		BaseURL:          v.GetString("base_url"),
		Token:            v.GetString("token"),
		AuthScheme:       v.GetString("auth_scheme"),
		StoreBackend:     v.GetString("store_backend"),
		StorePath:        v.GetString("store_path"),
		JobNotifications: v.GetBool("job_notifications"),
		Listen:           v.GetString("listen"),
		APIKey:           v.GetString("api_key"),
		CORS:             v.GetBool("cors"),
		RateLimit:        v.GetInt("rate_limit"),
		LogLevel:         v.GetString("log_level"),
		LogFormat:        v.GetString("log_format"),
		LogOutput:        v.GetString("log_output"),
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store_backend", store.KindFile)
	v.SetDefault("store_path", defaultStorePath())
	v.SetDefault("job_notifications", true)
	v.SetDefault("listen", "localhost:8080")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// defaultStorePath is ~/.labsync/preferences.yaml, or a relative path when
// the home directory is unknown.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".labsync", "preferences.yaml")
	}
	return filepath.Join(home, ".labsync", "preferences.yaml")
}

// UpdateFromFlags copies every flag the user set onto the config. Flag
// names match the config keys with dashes.
func (c *Config) UpdateFromFlags(flags *pflag.FlagSet) {
	str := func(name string, dst *string) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	boolean := func(name string, dst *bool) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String() == "true"
		}
	}

	boolean("verbose", &c.Verbose)
	boolean("quiet", &c.Quiet)
	boolean("no-color", &c.NoColor)
	str("format", &c.Format)
	str("log-level", &c.LogLevel)
	str("base-url", &c.BaseURL)
	str("token", &c.Token)
	str("store", &c.StorePath)
	str("store-backend", &c.StoreBackend)
}

// loadEnvFiles loads environment variables from .env files. Variables that
// are already set win, and .env.local is loaded before .env so it overrides it.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}
