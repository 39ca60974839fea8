package installment

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/datetime"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
)

// Schedule notes, as printed for the buyer.
const (
	noteDownPayment  = "Внесение ПВ %s%%"
	noteIntermediate = "Внесение %s%%"
	noteClosing      = "Закрывающий платеж собственными средствами или переход на ипотеку"
	noteMonthly      = "Ежемесячный платёж"
)

// ScheduleEntry is one row of a payment schedule.
type ScheduleEntry struct {
	Month          int     `json:"month"`
	Date           string  `json:"date"`
	Amount         float64 `json:"amount"`
	Note           string  `json:"note"`
	OnetimePayment bool    `json:"onetime_payment"`
}

// ScheduleResult is a month-by-month schedule and the total cost including
// the installment surcharge.
type ScheduleResult struct {
	PaymentSchedule []ScheduleEntry `json:"payment_schedule"`
	TotalCost       float64         `json:"total_cost"`
}

// SortByMonth orders the schedule by ascending month, keeping the relative
// order of rows that share a month.
func (r *ScheduleResult) SortByMonth() {
	sort.SliceStable(r.PaymentSchedule, func(i, j int) bool {
		return r.PaymentSchedule[i].Month < r.PaymentSchedule[j].Month
	})
}

// Generate builds the payment schedule for req. Month 1 carries the down
// payment, listed months carry their extra payments, the last month closes
// the remaining balance and every other month carries the monthly payment.
// Payments never exceed the remaining balance. The schedule starts on the
// down-payment date, or on today when req has none. A zero price yields a
// schedule of zero payments.
func Generate(req CalculationRequest, today time.Time) (*ScheduleResult, error) {
	if !mathutil.IsFinite(req.PropertyPrice) || req.PropertyPrice < 0 {
		return nil, apperror.Invalid("property_price", "must not be negative")
	}
	if err := req.Plan.Validate(); err != nil {
		return nil, err
	}

	start := today
	if req.InitialPaymentDate != nil {
		start = *req.InitialPaymentDate
	}
	start = datetime.Day(start)

	plan := req.Plan
	interest := mathutil.ApplyPercentage(req.PropertyPrice, plan.InstallmentPercentage)
	totalCost := req.PropertyPrice + interest
	if !mathutil.IsFinite(totalCost) {
		return nil, apperror.Invalid("property_price", "total cost is out of range")
	}
	initialPayment := mathutil.ApplyPercentage(totalCost, plan.InitialPaymentPercentage)
	monthlyPayment := mathutil.ApplyPercentage(totalCost, plan.MonthlyPaymentPercentage)

	schedule := make([]ScheduleEntry, 0, plan.InstallmentPeriod)
	remaining := totalCost
	for month := 1; month <= plan.InstallmentPeriod; month++ {
		entry := ScheduleEntry{
			Month: month,
			Date:  datetime.ShortMonthLabel(datetime.AddMonths(start, month-1)),
		}

		var amount float64
		last := month == plan.InstallmentPeriod
		switch {
		case month == 1:
			amount = initialPayment
			if last {
				amount = remaining
			}
			entry.Note = fmt.Sprintf(noteDownPayment, percentString(plan.InitialPaymentPercentage))
			entry.OnetimePayment = true
		case last:
			amount = remaining
			entry.Note = noteClosing
			entry.OnetimePayment = true
		default:
			if pct, ok := plan.intermediatePercentage(month); ok {
				amount = mathutil.ApplyPercentage(totalCost, pct)
				entry.Note = fmt.Sprintf(noteIntermediate, percentString(pct))
				entry.OnetimePayment = true
			} else {
				amount = monthlyPayment
				entry.Note = noteMonthly
			}
		}

		amount = mathutil.Min(amount, remaining)
		if amount < 0 {
			amount = 0
		}
		remaining -= amount
		entry.Amount = mathutil.RoundWhole(amount)
		schedule = append(schedule, entry)
	}

	return &ScheduleResult{
		PaymentSchedule: schedule,
		TotalCost:       totalCost,
	}, nil
}

func percentString(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64)
}
