// Package config defines the application configuration and loads it from a
// YAML file, a .env file and TAMERUN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/logging"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/internal/tracing"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for tamerun-invest.
type Configuration struct {
	Logging     logging.Config
	Output      OutputConfig
	Backend     BackendConfig
	Investment  InvestmentConfig
	Installment InstallmentConfig
	Session     session.Config
	Tracing     tracing.Config
	Web         WebConfig
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format   string // pretty, csv
	Encoding string // utf-8, cp1251 (csv only)
}

// BackendConfig locates the calculation API.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// InvestmentConfig controls investment forecasts.
type InvestmentConfig struct {
	Mode       string // local, remote
	AnnualRate float64
}

// InstallmentConfig controls payment schedule computation.
type InstallmentConfig struct {
	Mode string // local, remote
}

// WebConfig holds the web front listener.
type WebConfig struct {
	Address      string
	SecureCookie bool
}

// defaults are registered for every key so environment overrides resolve
// even when the file omits the key.
var defaults = map[string]interface{}{
	"logging.level":          "info",
	"logging.format":         "json",
	"logging.outputFile":     "",
	"output.format":          constants.OutputFormatPretty,
	"output.encoding":        constants.OutputEncodingUTF8,
	"backend.baseURL":        constants.DefaultBackendURL,
	"backend.timeout":        constants.DefaultBackendTimeout,
	"investment.mode":        constants.ModeRemote,
	"investment.annualRate":  constants.DefaultAnnualRate,
	"installment.mode":       constants.ModeRemote,
	"session.store":          constants.SessionStoreMemory,
	"session.ttl":            constants.DefaultSessionTTL,
	"session.redis.address":  "localhost:6379",
	"session.redis.password": "",
	"session.redis.db":       0,
	"tracing.endpoint":       "",
	"tracing.serviceName":    constants.DefaultServiceName,
	"web.address":            constants.DefaultWebAddress,
	"web.secureCookie":       false,
}

// LoadConfiguration loads the YAML-formatted configuration at configPath.
// Variables from a .env file in the working directory are exported first,
// then TAMERUN_<SECTION>_<KEY> variables override file values. A missing
// file yields the defaults.
func LoadConfiguration(configPath string) (*Configuration, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file, %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file, %w", err)
			}
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	return &configuration, nil
}

// Validate returns the first setting that prevents startup.
func (c *Configuration) Validate() error {
	if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
		return err
	}
	if err := validation.ValidateOutputEncoding(c.Output.Encoding); err != nil {
		return err
	}
	if err := validation.ValidateMode(c.Investment.Mode); err != nil {
		return fmt.Errorf("investment: %w", err)
	}
	if err := validation.ValidateMode(c.Installment.Mode); err != nil {
		return fmt.Errorf("installment: %w", err)
	}
	if err := validation.ValidatePercentage("investment annual rate", c.Investment.AnnualRate); err != nil {
		return err
	}
	if err := validation.ValidateSessionStore(c.Session.Store); err != nil {
		return err
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive, got %s", c.Backend.Timeout)
	}
	if c.UsesBackend() {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backend base URL %q is not an absolute URL", c.Backend.BaseURL)
		}
	}
	return nil
}

// UsesBackend reports whether any computation is delegated to the backend.
func (c *Configuration) UsesBackend() bool {
	return c.Investment.Mode == constants.ModeRemote || c.Installment.Mode == constants.ModeRemote
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.Output.Encoding == constants.OutputEncodingCP1251 && c.Output.Format != constants.OutputFormatCSV {
		warnings = append(warnings, fmt.Sprintf("output encoding %s only applies to csv output", c.Output.Encoding))
	}
	if c.UsesBackend() && c.Backend.BaseURL != "" && !strings.HasSuffix(c.Backend.BaseURL, "/") {
		warnings = append(warnings, fmt.Sprintf("backend base URL %q has no trailing slash, one will be added", c.Backend.BaseURL))
	}
	if c.Backend.Timeout > time.Minute {
		warnings = append(warnings, fmt.Sprintf("backend timeout %s is unusually long", c.Backend.Timeout))
	}
	if c.Session.Store == constants.SessionStoreMemory && c.Session.TTL <= 0 {
		warnings = append(warnings, "session TTL is not positive, in-memory sessions will never expire")
	}
	if c.Session.Store == constants.SessionStoreRedis && c.Session.Redis.Address == "" {
		warnings = append(warnings, "redis session store selected without an address")
	}
	if !c.UsesBackend() && c.Backend.BaseURL != constants.DefaultBackendURL {
		warnings = append(warnings, "backend base URL is configured but every computation runs locally")
	}

	return warnings
}
