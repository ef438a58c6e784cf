package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`
	Log           struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Project struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"project"`
	Workflow struct {
		File string `mapstructure:"file"`
	} `mapstructure:"workflow"`
	Storage struct {
		Driver     string `mapstructure:"driver"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Auth struct {
		Issuer   string `mapstructure:"issuer"`
		ClientID string `mapstructure:"client_id"`
	} `mapstructure:"auth"`
}

// LoadConfig loads the configuration from a file and the environment. An
// explicit path wins over the config.yaml search path; a missing config.yaml
// is not an error since every key has a default.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("INITIATIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.normalize(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "PROD")
	v.SetDefault("dev_mode_bypass", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("project.root", ".")
	v.SetDefault("workflow.file", "")
	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.sqlite_path", "initiatives.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "initiatives")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.client_id", "")
}

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case DriverFile, DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("config: unsupported storage.driver %q", c.Storage.Driver)
	}
	root, err := filepath.Abs(c.Project.Root)
	if err != nil {
		return fmt.Errorf("config: resolve project.root: %w", err)
	}
	c.Project.Root = root
	// normalize issuer url (strip trailing slash if any)
	c.Auth.Issuer = strings.TrimRight(strings.TrimSpace(c.Auth.Issuer), "/")
	return nil
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

// PostgresURL renders the DB settings as a connection URL.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}
