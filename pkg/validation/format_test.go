package validation

import "testing"

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		expectErr bool
	}{
		{
			name:      "Valid pretty format",
			format:    "pretty",
			expectErr: false,
		},
		{
			name:      "Valid csv format",
			format:    "csv",
			expectErr: false,
		},
		{
			name:      "Invalid format",
			format:    "json",
			expectErr: true,
		},
		{
			name:      "Empty format",
			format:    "",
			expectErr: true,
		},
		{
			name:      "Case sensitive - uppercase",
			format:    "PRETTY",
			expectErr: true,
		},
		{
			name:      "Case sensitive - mixed case",
			format:    "Pretty",
			expectErr: true,
		},
		{
			name:      "Case sensitive - CSV uppercase",
			format:    "CSV",
			expectErr: true,
		},
		{
			name:      "Leading/trailing spaces",
			format:    " pretty ",
			expectErr: true,
		},
		{
			name:      "Similar but incorrect format",
			format:    "prettyprint",
			expectErr: true,
		},
		{
			name:      "XML format not supported",
			format:    "xml",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format)

			if tt.expectErr {
				if err == nil {
					t.Errorf("ValidateOutputFormat(%s) expected error but got none", tt.format)
				}
			} else {
				if err != nil {
					t.Errorf("ValidateOutputFormat(%s) unexpected error = %v", tt.format, err)
				}
			}
		})
	}
}

func TestValidateOutputEncoding(t *testing.T) {
	tests := []struct {
		name      string
		encoding  string
		expectErr bool
	}{
		{name: "UTF-8", encoding: "utf-8", expectErr: false},
		{name: "Windows-1251", encoding: "cp1251", expectErr: false},
		{name: "Uppercase", encoding: "UTF-8", expectErr: true},
		{name: "Latin-1", encoding: "latin1", expectErr: true},
		{name: "Empty", encoding: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputEncoding(tt.encoding)
			if (err != nil) != tt.expectErr {
				t.Errorf("ValidateOutputEncoding(%q) error = %v, expectErr %v", tt.encoding, err, tt.expectErr)
			}
		})
	}
}

func TestValidateModeAndStore(t *testing.T) {
	for _, mode := range []string{"local", "remote"} {
		if err := ValidateMode(mode); err != nil {
			t.Errorf("ValidateMode(%q) error = %v", mode, err)
		}
	}
	if err := ValidateMode("hybrid"); err == nil {
		t.Error("ValidateMode(hybrid) expected error")
	}

	for _, store := range []string{"memory", "redis"} {
		if err := ValidateSessionStore(store); err != nil {
			t.Errorf("ValidateSessionStore(%q) error = %v", store, err)
		}
	}
	if err := ValidateSessionStore("sqlite"); err == nil {
		t.Error("ValidateSessionStore(sqlite) expected error")
	}
}

func TestValidatePercentage(t *testing.T) {
	tests := []struct {
		value     float64
		expectErr bool
	}{
		{0, false},
		{15, false},
		{100, false},
		{-0.1, true},
		{100.01, true},
	}
	for _, tt := range tests {
		if err := ValidatePercentage("rate", tt.value); (err != nil) != tt.expectErr {
			t.Errorf("ValidatePercentage(%v) error = %v, expectErr %v", tt.value, err, tt.expectErr)
		}
	}
}
