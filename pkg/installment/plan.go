// Package installment describes the amortization plans offered to buyers,
// the requests used to price them, and the resulting payment schedules.
package installment

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/format"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
)

// DefaultPeriod is the plan shown when a result page opens.
const DefaultPeriod = 6

// IntermediatePayment is an extra lump sum due in a given month, expressed
// as a percentage of the total cost. On the wire it is a [month, percent] pair.
type IntermediatePayment struct {
	Month            int
	AmountPercentage float64
}

// MarshalJSON encodes the payment as a two-element array.
func (p IntermediatePayment) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Month, p.AmountPercentage})
}

// UnmarshalJSON decodes a [month, percent] pair. The month must be integral.
func (p *IntermediatePayment) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("intermediate payment must be a [month, percent] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("intermediate payment must have 2 elements, got %d", len(pair))
	}
	if pair[0] != math.Trunc(pair[0]) {
		return fmt.Errorf("intermediate payment month must be an integer, got %v", pair[0])
	}
	p.Month = int(pair[0])
	p.AmountPercentage = pair[1]
	return nil
}

// Plan is one amortization scenario. Percentages are out of 100.
type Plan struct {
	InitialPaymentPercentage float64               `json:"initial_payment_percentage"`
	InstallmentPercentage    float64               `json:"installment_percentage"`
	InstallmentPeriod        int                   `json:"installment_period"`
	MonthlyPaymentPercentage float64               `json:"monthly_payment_percentage"`
	IntermediatePayments     []IntermediatePayment `json:"intermediate_payments"`
}

var plans = [...]Plan{
	{
		InitialPaymentPercentage: 50,
		InstallmentPercentage:    0,
		InstallmentPeriod:        6,
		MonthlyPaymentPercentage: 0,
	},
	{
		InitialPaymentPercentage: 20,
		InstallmentPercentage:    5,
		InstallmentPeriod:        12,
		MonthlyPaymentPercentage: 0.5,
		IntermediatePayments:     []IntermediatePayment{{Month: 7, AmountPercentage: 10}},
	},
	{
		InitialPaymentPercentage: 30,
		InstallmentPercentage:    7.5,
		InstallmentPeriod:        18,
		MonthlyPaymentPercentage: 0.74,
		IntermediatePayments:     []IntermediatePayment{{Month: 10, AmountPercentage: 10}},
	},
	{
		InitialPaymentPercentage: 35,
		InstallmentPercentage:    10,
		InstallmentPeriod:        24,
		MonthlyPaymentPercentage: 0.99,
		IntermediatePayments:     []IntermediatePayment{{Month: 12, AmountPercentage: 15}},
	},
	{
		InitialPaymentPercentage: 30,
		InstallmentPercentage:    20,
		InstallmentPeriod:        36,
		MonthlyPaymentPercentage: 0.16,
		IntermediatePayments: []IntermediatePayment{
			{Month: 12, AmountPercentage: 10},
			{Month: 24, AmountPercentage: 10},
		},
	},
}

// Plans returns the offered plans ordered by period.
func Plans() []Plan {
	result := make([]Plan, len(plans))
	for i, plan := range plans {
		result[i] = plan.clone()
	}
	return result
}

// Periods returns the period of every offered plan, ascending.
func Periods() []int {
	result := make([]int, len(plans))
	for i, plan := range plans {
		result[i] = plan.InstallmentPeriod
	}
	return result
}

// Lookup returns the offered plan with the given period.
func Lookup(period int) (Plan, bool) {
	for _, plan := range plans {
		if plan.InstallmentPeriod == period {
			return plan.clone(), true
		}
	}
	return Plan{}, false
}

// Label names the plan on its tab, e.g. "24 месяца".
func (p Plan) Label() string {
	return fmt.Sprintf("%d %s", p.InstallmentPeriod, format.MonthWord(p.InstallmentPeriod))
}

// Validate checks the plan's structural invariants.
func (p Plan) Validate() error {
	if p.InstallmentPeriod <= 0 {
		return apperror.Invalid("installment_period", "must be positive, got %d", p.InstallmentPeriod)
	}
	percentages := []struct {
		field string
		value float64
	}{
		{"initial_payment_percentage", p.InitialPaymentPercentage},
		{"installment_percentage", p.InstallmentPercentage},
		{"monthly_payment_percentage", p.MonthlyPaymentPercentage},
	}
	for _, pct := range percentages {
		if err := validatePercentage(pct.field, pct.value); err != nil {
			return err
		}
	}
	for _, payment := range p.IntermediatePayments {
		if payment.Month < 1 || payment.Month > p.InstallmentPeriod {
			return apperror.Invalid("intermediate_payments", "month %d is outside 1..%d", payment.Month, p.InstallmentPeriod)
		}
		if err := validatePercentage("intermediate_payments", payment.AmountPercentage); err != nil {
			return err
		}
	}
	return nil
}

// intermediatePercentage returns the extra payment due in month, if any.
// The first entry wins when a month is listed twice.
func (p Plan) intermediatePercentage(month int) (float64, bool) {
	for _, payment := range p.IntermediatePayments {
		if payment.Month == month {
			return payment.AmountPercentage, true
		}
	}
	return 0, false
}

func (p Plan) clone() Plan {
	cloned := p
	cloned.IntermediatePayments = make([]IntermediatePayment, len(p.IntermediatePayments))
	copy(cloned.IntermediatePayments, p.IntermediatePayments)
	return cloned
}

func validatePercentage(field string, value float64) error {
	if !mathutil.IsFinite(value) || value < 0 || value > 100 {
		return apperror.Invalid(field, "must be between 0 and 100, got %v", value)
	}
	return nil
}
