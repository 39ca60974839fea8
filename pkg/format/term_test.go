package format

import "testing"

func TestTermWord(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{1, "год"},
		{2, "года"},
		{4, "года"},
		{5, "лет"},
		{10, "лет"},
		{11, "лет"},
		{12, "лет"},
		{14, "лет"},
		{15, "лет"},
		{21, "год"},
		{22, "года"},
		{100, "лет"},
		{101, "год"},
		{111, "лет"},
		{112, "лет"},
		{-3, "года"},
	}

	for _, tt := range tests {
		if result := TermWord(tt.n); result != tt.expected {
			t.Errorf("TermWord(%d) = %q, expected %q", tt.n, result, tt.expected)
		}
	}
}

func TestMonthWord(t *testing.T) {
	tests := map[int]string{
		1:  "месяц",
		6:  "месяцев",
		12: "месяцев",
		24: "месяца",
		21: "месяц",
		36: "месяцев",
	}
	for n, expected := range tests {
		if result := MonthWord(n); result != expected {
			t.Errorf("MonthWord(%d) = %q, expected %q", n, result, expected)
		}
	}
}
