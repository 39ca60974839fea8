// Package forecast selects whether forecasts and payment schedules are
// computed in-process or by the backend API.
package forecast

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/internal/document"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.uber.org/zap"
)

// Forecaster grows capital at an annual rate over a number of years.
type Forecaster interface {
	Forecast(ctx context.Context, capital, rate float64, years int) (*growth.Forecast, error)
}

// Scheduler prices an installment request.
type Scheduler interface {
	CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error)
}

// Local computes forecasts in-process.
type Local struct {
	Logger *zap.Logger
}

// Forecast implements Forecaster.
func (l Local) Forecast(ctx context.Context, capital, rate float64, years int) (*growth.Forecast, error) {
	result, err := growth.Compute(capital, rate, years)
	if err != nil {
		return nil, err
	}
	if l.Logger != nil {
		l.Logger.Debug("computed investment forecast locally",
			zap.String("op", "forecast.Local.Forecast"),
			zap.Float64("capital", capital),
			zap.Float64("rate", rate),
			zap.Int("years", years),
		)
	}
	return result, nil
}

// Remote delegates forecasts to the backend.
type Remote struct {
	Client *client.Client
}

// Forecast implements Forecaster.
func (r Remote) Forecast(ctx context.Context, capital, rate float64, years int) (*growth.Forecast, error) {
	return r.Client.CalculateInvestmentForecast(ctx, rate, capital, years)
}

// LocalScheduler generates schedules in-process. Now supplies "today" for
// requests without a down-payment date and defaults to time.Now.
type LocalScheduler struct {
	Now func() time.Time
}

// CalculatePaymentSchedule implements Scheduler.
func (s LocalScheduler) CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return installment.Generate(req, now())
}

// Exporter renders the schedule document for an installment request.
type Exporter interface {
	DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*client.Document, error)
}

// LocalExporter renders schedule documents in-process.
type LocalExporter struct {
	FontFile string
	Now      func() time.Time
}

// DownloadPaymentSchedule implements Exporter.
func (e LocalExporter) DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*client.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	generatedAt := now()
	result, err := installment.Generate(req.CalculationRequest, generatedAt)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	in := document.Input{
		Schedule:        result.PaymentSchedule,
		PropertyPrice:   req.PropertyPrice,
		Period:          req.Plan.InstallmentPeriod,
		ApartmentNumber: req.ApartmentNumber,
		GeneratedAt:     generatedAt,
	}
	if err := document.Render(&buf, in, document.Options{FontFile: e.FontFile}); err != nil {
		return nil, fmt.Errorf("render schedule document: %w", err)
	}
	return &client.Document{
		FileName:    document.FileName(req.ApartmentNumber, req.Plan.InstallmentPeriod),
		ContentType: document.ContentType,
		Data:        buf.Bytes(),
	}, nil
}

// NewForecaster returns the Forecaster for mode. Remote mode requires c.
func NewForecaster(logger *zap.Logger, mode string, c *client.Client) (Forecaster, error) {
	switch mode {
	case constants.ModeLocal:
		return Local{Logger: logger}, nil
	case constants.ModeRemote:
		if c == nil {
			return nil, fmt.Errorf("remote forecasts require a backend client")
		}
		return Remote{Client: c}, nil
	default:
		return nil, fmt.Errorf("unknown forecast mode %q", mode)
	}
}

// NewScheduler returns the Scheduler for mode. Remote mode requires c.
func NewScheduler(mode string, c *client.Client) (Scheduler, error) {
	switch mode {
	case constants.ModeLocal:
		return LocalScheduler{}, nil
	case constants.ModeRemote:
		if c == nil {
			return nil, fmt.Errorf("remote schedules require a backend client")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", mode)
	}
}

// NewExporter returns the Exporter for mode. Local documents use fontFile
// when it is set. Remote mode requires c.
func NewExporter(mode string, c *client.Client, fontFile string) (Exporter, error) {
	switch mode {
	case constants.ModeLocal:
		return LocalExporter{FontFile: fontFile}, nil
	case constants.ModeRemote:
		if c == nil {
			return nil, fmt.Errorf("remote documents require a backend client")
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown schedule mode %q", mode)
	}
}
