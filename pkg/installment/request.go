package installment

import (
	"encoding/json"
	"time"

	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
)

// CalculationRequest is the input bundle priced by the backend for one plan.
// A nil InitialPaymentDate means the down payment is made today.
type CalculationRequest struct {
	PropertyPrice      float64
	InitialPaymentDate *time.Time
	Plan               Plan
}

// ExportRequest asks for a printable schedule of one apartment.
type ExportRequest struct {
	CalculationRequest
	ApartmentNumber int
}

// wireRequest flattens the plan fields next to the price and date, matching
// the backend request body.
type wireRequest struct {
	PropertyPrice      float64 `json:"property_price"`
	InitialPaymentDate *string `json:"initial_payment_date"`
	Plan
	ApartmentNumber *int `json:"apartment_number,omitempty"`
}

// NewCalculationRequest assembles the request for plan. It performs no
// computation; the price and plan are only validated.
func NewCalculationRequest(propertyPrice float64, downPaymentDate *time.Time, plan Plan) (CalculationRequest, error) {
	req := CalculationRequest{
		PropertyPrice:      propertyPrice,
		InitialPaymentDate: downPaymentDate,
		Plan:               plan.clone(),
	}
	if err := req.Validate(); err != nil {
		return CalculationRequest{}, err
	}
	return req, nil
}

// Validate checks the price and the plan.
func (r CalculationRequest) Validate() error {
	if !mathutil.IsFinite(r.PropertyPrice) || r.PropertyPrice <= 0 {
		return apperror.Invalid("property_price", "must be a positive amount")
	}
	return r.Plan.Validate()
}

// WithApartment turns the request into an export request.
func (r CalculationRequest) WithApartment(apartmentNumber int) (ExportRequest, error) {
	if apartmentNumber < 0 || apartmentNumber > constants.MaxApartmentNumber {
		return ExportRequest{}, apperror.Invalid("apartment_number", "must be between 0 and %d", constants.MaxApartmentNumber)
	}
	return ExportRequest{CalculationRequest: r, ApartmentNumber: apartmentNumber}, nil
}

// MarshalJSON encodes the flat backend request body.
func (r CalculationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// MarshalJSON encodes the flat backend request body with the apartment number.
func (r ExportRequest) MarshalJSON() ([]byte, error) {
	wire := r.CalculationRequest.wire()
	apartment := r.ApartmentNumber
	wire.ApartmentNumber = &apartment
	return json.Marshal(wire)
}

func (r CalculationRequest) wire() wireRequest {
	wire := wireRequest{
		PropertyPrice: r.PropertyPrice,
		Plan:          r.Plan.clone(),
	}
	if r.InitialPaymentDate != nil {
		date := r.InitialPaymentDate.Format(constants.DateLayout)
		wire.InitialPaymentDate = &date
	}
	return wire
}
