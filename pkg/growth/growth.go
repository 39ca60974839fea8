// Package growth computes year-by-year compound growth of invested capital.
package growth

import (
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
)

// YearRecord is the breakdown of a single year of growth.
type YearRecord struct {
	Year         int     `json:"year"`
	StartAmount  float64 `json:"start_amount"`
	YearlyProfit float64 `json:"yearly_profit"`
	EndAmount    float64 `json:"end_amount"`
}

// Forecast is the outcome of growing capital over a term. Its JSON form is
// the investment forecast response of the backend.
type Forecast struct {
	Total  float64      `json:"total_amount"`
	Profit float64      `json:"profit"`
	Yearly []YearRecord `json:"yearly_details"`
}

// Compute grows initialAmount at annualRatePercent, compounded once a year,
// for termYears years. Amounts are not rounded; rounding is left to display.
func Compute(initialAmount, annualRatePercent float64, termYears int) (*Forecast, error) {
	if !mathutil.IsFinite(initialAmount) || initialAmount <= 0 {
		return nil, apperror.Invalid("starting_capital", "must be a positive amount")
	}
	if !mathutil.IsFinite(annualRatePercent) || annualRatePercent < 0 {
		return nil, apperror.Invalid("annual_interest_rate", "must not be negative")
	}
	if termYears < 1 {
		return nil, apperror.Invalid("years", "must be at least 1")
	}

	yearly := make([]YearRecord, 0, termYears)
	current := initialAmount
	for year := 1; year <= termYears; year++ {
		profit := mathutil.ApplyPercentage(current, annualRatePercent)
		next := current + profit
		yearly = append(yearly, YearRecord{
			Year:         year,
			StartAmount:  current,
			YearlyProfit: profit,
			EndAmount:    next,
		})
		current = next
	}

	return &Forecast{
		Total:  current,
		Profit: current - initialAmount,
		Yearly: yearly,
	}, nil
}

// StartingCapital returns the amount the forecast started from.
func (f *Forecast) StartingCapital() float64 {
	if len(f.Yearly) == 0 {
		return f.Total - f.Profit
	}
	return f.Yearly[0].StartAmount
}

// Rounded returns a copy with every amount rounded to kopecks.
func (f *Forecast) Rounded() *Forecast {
	rounded := &Forecast{
		Total:  mathutil.Round(f.Total),
		Profit: mathutil.Round(f.Profit),
		Yearly: make([]YearRecord, len(f.Yearly)),
	}
	for i, record := range f.Yearly {
		rounded.Yearly[i] = YearRecord{
			Year:         record.Year,
			StartAmount:  mathutil.Round(record.StartAmount),
			YearlyProfit: mathutil.Round(record.YearlyProfit),
			EndAmount:    mathutil.Round(record.EndAmount),
		}
	}
	return rounded
}
