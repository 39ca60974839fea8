// Package constants provides shared constants for the tamerun-invest application.
package constants

import "time"

// DateLayout is the wire format for down-payment dates.
const DateLayout = "2006-01-02"

// FormDateLayout is the date format used by the input forms.
const FormDateLayout = "02.01.2006"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// CurrencySymbol is appended to every formatted amount.
	CurrencySymbol = "₽"

	// DefaultAnnualRate is the investment rate offered when none is configured.
	DefaultAnnualRate = 15.0
)

// Investment forecast limits enforced by the backend.
const (
	MinStartingCapital = 9_000_000.0
	MaxStartingCapital = 1_000_000_000.0
	MinInvestmentYears = 1
	MaxInvestmentYears = 100
)

// Installment limits enforced by the backend.
const (
	MaxApartmentNumber = 999999
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputEncodingUTF8 writes output unchanged.
	OutputEncodingUTF8 = "utf-8"

	// OutputEncodingCP1251 re-encodes CSV output for Russian spreadsheet software.
	OutputEncodingCP1251 = "cp1251"
)

// Computation modes
const (
	// ModeLocal computes results in-process.
	ModeLocal = "local"

	// ModeRemote delegates computation to the backend API.
	ModeRemote = "remote"
)

// Session store kinds
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "TAMERUN"
)

// Client and server defaults
const (
	// DefaultBackendURL is the production backend base URL.
	DefaultBackendURL = "https://tamerun-invest.ru/"

	// DefaultBackendTimeout bounds every backend call.
	DefaultBackendTimeout = 10 * time.Second

	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultWebAddress is the default HTTP listen address for the web front
	DefaultWebAddress = ":8443"

	// DefaultMaxBodySizeBytes is the default maximum request body size (256 KB)
	DefaultMaxBodySizeBytes int64 = 256 * 1024

	// DefaultSessionTTL is how long a form hand-off survives without activity.
	DefaultSessionTTL = time.Hour

	// DefaultServiceName names the service in traces.
	DefaultServiceName = "tamerun-invest"

	// SessionCookieName carries the session hand-off identifier.
	SessionCookieName = "tamerun_session"
)
