package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/yurifrl/mizan/pkg/models"
	"github.com/yurifrl/mizan/pkg/parser"
	"github.com/yurifrl/mizan/pkg/store"
)

// EnvPrefix prefixes every environment override, e.g. MIZAN_DATABASE_PATH.
const EnvPrefix = "MIZAN"

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Import   ImportConfig   `mapstructure:"import"`
	Report   ReportConfig   `mapstructure:"report"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. Empty keeps statements in memory.
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type ImportConfig struct {
	// FieldsFile replaces the embedded canonical field tables.
	FieldsFile string `mapstructure:"fields_file"`
	XLSCharset string `mapstructure:"xls_charset"`
}

type ReportConfig struct {
	TolerateFetchErrors bool `mapstructure:"tolerate_fetch_errors"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// flagKeys maps command-line flags onto config keys. Flags missing from the
// set are ignored.
var flagKeys = map[string]string{
	"db":        "database.path",
	"timeout":   "database.timeout",
	"addr":      "server.addr",
	"cors":      "server.cors_origins",
	"fields":    "import.fields_file",
	"charset":   "import.xls_charset",
	"tolerant":  "report.tolerate_fetch_errors",
	"log-level": "log.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "mizan.db")
	v.SetDefault("database.timeout", store.DefaultTimeout)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("import.fields_file", "")
	v.SetDefault("import.xls_charset", parser.DefaultXLSCharset)
	v.SetDefault("report.tolerate_fetch_errors", false)
	v.SetDefault("log.level", "info")
}

// Build loads configuration from defaults, an optional config file, a .env
// file in the working directory, MIZAN_* environment variables and finally
// the given flags, later sources overriding earlier ones. An empty cfgFile
// looks for config.yaml in the working directory and tolerates its absence.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if cfg.Database.Timeout <= 0 {
		cfg.Database.Timeout = store.DefaultTimeout
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	return &cfg, nil
}

// Tables returns the canonical field tables, read from FieldsFile when set.
func (c *Config) Tables() (models.Tables, error) {
	if c.Import.FieldsFile == "" {
		return models.DefaultTables(), nil
	}
	return models.LoadTables(c.Import.FieldsFile)
}

// Level is the parsed log level; Build has already validated it.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}
