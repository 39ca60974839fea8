package format

// TermWord returns the form of "год" that agrees with n: "год" for 1, 21,
// 101; "года" for 2-4, 22-24; "лет" otherwise, including 11-14.
func TermWord(n int) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastTwoDigits >= 11 && lastTwoDigits <= 14 {
		return "лет"
	}
	if lastDigit == 1 {
		return "год"
	}
	if lastDigit >= 2 && lastDigit <= 4 {
		return "года"
	}
	return "лет"
}

// MonthWord returns the form of "месяц" that agrees with n.
func MonthWord(n int) string {
	switch TermWord(n) {
	case "год":
		return "месяц"
	case "года":
		return "месяца"
	default:
		return "месяцев"
	}
}
