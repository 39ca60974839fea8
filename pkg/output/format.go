// Package output provides utilities for formatting and displaying forecast
// and payment schedule results.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/format"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// NewEncodedWriter wraps w so that text is written in the named encoding.
// Characters the encoding cannot represent are replaced. Close flushes the
// wrapper without closing w.
func NewEncodedWriter(w io.Writer, name string) (io.WriteCloser, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", constants.OutputEncodingUTF8:
		return nopCloser{w}, nil
	case constants.OutputEncodingCP1251:
		return transform.NewWriter(w, encoding.ReplaceUnsupported(charmap.Windows1251.NewEncoder())), nil
	default:
		return nil, fmt.Errorf("unsupported output encoding %q", name)
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// PrettyInvestment outputs a human-readable investment forecast table.
func PrettyInvestment(w io.Writer, f *growth.Forecast) error {
	years := len(f.Yearly)
	if _, err := fmt.Fprintf(w, "--- Прогноз на %d %s ---\n", years, format.TermWord(years)); err != nil {
		return err
	}
	fmt.Fprintf(w, "Год | Начало года | Доход за год | Конец года\n")
	fmt.Fprintf(w, "___ | ___________ | ____________ | __________\n")
	for _, record := range f.Yearly {
		fmt.Fprintf(w, "%d | %s | %s | %s\n",
			record.Year,
			format.Money(record.StartAmount),
			format.Money(record.YearlyProfit),
			format.Money(record.EndAmount))
	}
	fmt.Fprintf(w, "\nСтартовый капитал: %s\n", format.Money(f.StartingCapital()))
	fmt.Fprintf(w, "Доход: %s\n", format.Money(f.Profit))
	_, err := fmt.Fprintf(w, "Итоговая сумма: %s\n", format.Money(f.Total))
	return err
}

// CsvInvestment outputs the investment forecast in comma-separated value format.
func CsvInvestment(w io.Writer, f *growth.Forecast) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "start_amount", "yearly_profit", "end_amount"}); err != nil {
		return err
	}
	for _, record := range f.Yearly {
		row := []string{
			strconv.Itoa(record.Year),
			amount(record.StartAmount),
			amount(record.YearlyProfit),
			amount(record.EndAmount),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PrettySchedule outputs a human-readable payment schedule table.
func PrettySchedule(w io.Writer, plan installment.Plan, result *installment.ScheduleResult) error {
	if _, err := fmt.Fprintf(w, "--- График платежей: %s ---\n", plan.Label()); err != nil {
		return err
	}
	fmt.Fprintf(w, "№ | Дата | Сумма | Пояснение\n")
	fmt.Fprintf(w, "_ | ____ | _____ | _________\n")
	for _, entry := range result.PaymentSchedule {
		marker := ""
		if entry.OnetimePayment {
			marker = " *"
		}
		fmt.Fprintf(w, "%d | %s | %s | %s%s\n",
			entry.Month, entry.Date, format.Money(entry.Amount), entry.Note, marker)
	}
	_, err := fmt.Fprintf(w, "\nСтоимость с рассрочкой: %s\n", format.Money(result.TotalCost))
	return err
}

// CsvSchedule outputs the payment schedule in comma-separated value format.
func CsvSchedule(w io.Writer, result *installment.ScheduleResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "date", "amount", "note", "onetime_payment"}); err != nil {
		return err
	}
	for _, entry := range result.PaymentSchedule {
		row := []string{
			strconv.Itoa(entry.Month),
			entry.Date,
			amount(entry.Amount),
			entry.Note,
			strconv.FormatBool(entry.OnetimePayment),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
