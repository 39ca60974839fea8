package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/iwvelando/tamerun-invest/internal/logging"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"gopkg.in/yaml.v3"
)

// DefaultAllowedOrigins are the front-end origins served by default.
var DefaultAllowedOrigins = []string{
	"http://localhost:443",
	"https://tamerun-invest.ru",
	"http://0.0.0.0:443",
}

// Config defines runtime parameters for the HTTP server.
type Config struct {
	Address        string         `yaml:"address"`
	MaxBodySize    string         `yaml:"maxBodySize"`
	AllowedOrigins []string       `yaml:"allowedOrigins"`
	Limits         Limits         `yaml:"limits"`
	Document       DocumentConfig `yaml:"document"`
	Logging        logging.Config `yaml:"logging"`
	bodySizeBytes  int64
}

// Limits bound the accepted calculation inputs.
type Limits struct {
	MinStartingCapital float64 `yaml:"minStartingCapital"`
	MaxStartingCapital float64 `yaml:"maxStartingCapital"`
	MinYears           int     `yaml:"minYears"`
	MaxYears           int     `yaml:"maxYears"`
	MaxApartmentNumber int     `yaml:"maxApartmentNumber"`
	DefaultAnnualRate  float64 `yaml:"defaultAnnualRate"`
}

// DocumentConfig controls PDF rendering.
type DocumentConfig struct {
	FontFile string `yaml:"fontFile"`
}

// DefaultLimits returns the limits enforced when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MinStartingCapital: constants.MinStartingCapital,
		MaxStartingCapital: constants.MaxStartingCapital,
		MinYears:           constants.MinInvestmentYears,
		MaxYears:           constants.MaxInvestmentYears,
		MaxApartmentNumber: constants.MaxApartmentNumber,
		DefaultAnnualRate:  constants.DefaultAnnualRate,
	}
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Address:        constants.DefaultServerAddress,
		MaxBodySize:    fmt.Sprintf("%d", constants.DefaultMaxBodySizeBytes),
		AllowedOrigins: append([]string(nil), DefaultAllowedOrigins...),
		Limits:         DefaultLimits(),
		bodySizeBytes:  constants.DefaultMaxBodySizeBytes,
	}
}

// LoadConfig loads the server configuration from YAML. If the file does not exist,
// defaults are returned without error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BodySizeBytes returns the configured request body limit in bytes.
func (c *Config) BodySizeBytes() int64 {
	if c.bodySizeBytes <= 0 {
		return constants.DefaultMaxBodySizeBytes
	}
	return c.bodySizeBytes
}

// SetBodySizeBytes overrides the configured request body limit.
func (c *Config) SetBodySizeBytes(size int64) {
	if size > 0 {
		c.bodySizeBytes = size
		c.MaxBodySize = fmt.Sprintf("%d", size)
	}
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}

	defaults := DefaultLimits()
	if c.Limits.MinStartingCapital <= 0 {
		c.Limits.MinStartingCapital = defaults.MinStartingCapital
	}
	if c.Limits.MaxStartingCapital <= 0 {
		c.Limits.MaxStartingCapital = defaults.MaxStartingCapital
	}
	if c.Limits.MinYears <= 0 {
		c.Limits.MinYears = defaults.MinYears
	}
	if c.Limits.MaxYears <= 0 {
		c.Limits.MaxYears = defaults.MaxYears
	}
	if c.Limits.MaxApartmentNumber <= 0 {
		c.Limits.MaxApartmentNumber = defaults.MaxApartmentNumber
	}
	if c.Limits.DefaultAnnualRate < 0 || c.Limits.DefaultAnnualRate > 100 {
		return fmt.Errorf("default annual rate must be between 0 and 100, got %v", c.Limits.DefaultAnnualRate)
	}
	if c.Limits.MinStartingCapital > c.Limits.MaxStartingCapital {
		return fmt.Errorf("minimum starting capital %v exceeds maximum %v", c.Limits.MinStartingCapital, c.Limits.MaxStartingCapital)
	}
	if c.Limits.MinYears > c.Limits.MaxYears {
		return fmt.Errorf("minimum years %d exceeds maximum %d", c.Limits.MinYears, c.Limits.MaxYears)
	}

	sizeStr := strings.TrimSpace(c.MaxBodySize)
	if sizeStr == "" {
		c.bodySizeBytes = constants.DefaultMaxBodySizeBytes
		c.MaxBodySize = fmt.Sprintf("%d", constants.DefaultMaxBodySizeBytes)
		return nil
	}

	bytes, err := ParseSize(sizeStr)
	if err != nil {
		return err
	}
	if bytes <= 0 {
		bytes = constants.DefaultMaxBodySizeBytes
	}
	c.bodySizeBytes = bytes
	return nil
}

// ParseSize converts a human-friendly byte string (e.g., "256K", "10M") into bytes.
func ParseSize(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return constants.DefaultMaxBodySizeBytes, nil
	}

	upper := strings.ToUpper(trimmed)
	idx := len(upper)
	for idx > 0 && !unicode.IsDigit(rune(upper[idx-1])) {
		idx--
	}
	if idx == 0 {
		return 0, fmt.Errorf("invalid size: %s", value)
	}
	numPart := strings.TrimSpace(upper[:idx])
	unitPart := strings.TrimSpace(upper[idx:])

	n, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", value, err)
	}

	var multiplier int64
	switch unitPart {
	case "", "B":
		multiplier = 1
	case "K", "KB":
		multiplier = 1024
	case "M", "MB":
		multiplier = 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported size unit %q", unitPart)
	}

	result := n * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size overflow for value %s", value)
	}
	return result, nil
}
