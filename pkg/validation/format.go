// Package validation provides common validation utilities.
package validation

import (
	"fmt"

	"github.com/iwvelando/tamerun-invest/pkg/constants"
)

// ValidateOutputFormat checks if the output format is one of the supported formats.
func ValidateOutputFormat(format string) error {
	if format != constants.OutputFormatPretty && format != constants.OutputFormatCSV {
		return fmt.Errorf("expected output format of %s or %s, got %s",
			constants.OutputFormatPretty, constants.OutputFormatCSV, format)
	}
	return nil
}

// ValidateOutputEncoding checks if the CSV encoding is supported.
func ValidateOutputEncoding(encoding string) error {
	if encoding != constants.OutputEncodingUTF8 && encoding != constants.OutputEncodingCP1251 {
		return fmt.Errorf("expected output encoding of %s or %s, got %s",
			constants.OutputEncodingUTF8, constants.OutputEncodingCP1251, encoding)
	}
	return nil
}

// ValidateMode checks if a computation mode is local or remote.
func ValidateMode(mode string) error {
	if mode != constants.ModeLocal && mode != constants.ModeRemote {
		return fmt.Errorf("expected mode of %s or %s, got %s",
			constants.ModeLocal, constants.ModeRemote, mode)
	}
	return nil
}

// ValidateSessionStore checks if the session store kind is supported.
func ValidateSessionStore(store string) error {
	if store != constants.SessionStoreMemory && store != constants.SessionStoreRedis {
		return fmt.Errorf("expected session store of %s or %s, got %s",
			constants.SessionStoreMemory, constants.SessionStoreRedis, store)
	}
	return nil
}

// ValidatePercentage checks that value lies within [0, 100].
func ValidatePercentage(name string, value float64) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("%s must be between 0 and 100, got %v", name, value)
	}
	return nil
}
