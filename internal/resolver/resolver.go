// Package resolver keeps the installment schedule shown to one user in step
// with the plan they selected last, no matter in which order the backend
// answers.
package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.uber.org/zap"
)

// ErrSuperseded is returned when a response arrives after a newer selection
// was issued. The response is dropped.
var ErrSuperseded = errors.New("schedule response superseded by a newer selection")

// ScheduleFetcher prices an installment request.
type ScheduleFetcher interface {
	CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error)
}

// DocumentExporter renders the schedule document for an installment request.
type DocumentExporter interface {
	DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*client.Document, error)
}

// Inputs are the user's answers the resolver is bound to.
type Inputs struct {
	PropertyPrice   float64
	DownPaymentDate *time.Time
}

// Options configures a Resolver. A zero Timeout leaves calls bounded only by
// the caller's context.
type Options struct {
	Fetcher  ScheduleFetcher
	Exporter DocumentExporter
	Timeout  time.Duration
}

// View is the schedule currently displayed.
type View struct {
	Period   int
	Plan     installment.Plan
	Request  installment.CalculationRequest
	Schedule *installment.ScheduleResult
}

// Resolver applies schedule responses with last-issued-wins semantics.
type Resolver struct {
	logger   *zap.Logger
	inputs   Inputs
	fetcher  ScheduleFetcher
	exporter DocumentExporter
	timeout  time.Duration

	issued atomic.Uint64

	mu       sync.Mutex
	selected int
	current  *View
}

// New binds a Resolver to inputs.
func New(logger *zap.Logger, inputs Inputs, opts Options) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Fetcher == nil {
		return nil, errors.New("resolver requires a schedule fetcher")
	}
	if inputs.PropertyPrice <= 0 {
		return nil, apperror.Invalid("property_price", "must be positive")
	}
	return &Resolver{
		logger:   logger,
		inputs:   inputs,
		fetcher:  opts.Fetcher,
		exporter: opts.Exporter,
		timeout:  opts.Timeout,
		selected: installment.DefaultPeriod,
	}, nil
}

// Inputs returns the answers the resolver is bound to.
func (r *Resolver) Inputs() Inputs {
	return r.inputs
}

// Select records period as selected and fetches its schedule. The response
// replaces the current view only if no other selection was issued in the
// meantime; otherwise ErrSuperseded is returned together with the view that
// is still current. A failed fetch leaves the current view untouched.
func (r *Resolver) Select(ctx context.Context, period int) (View, error) {
	plan, ok := installment.Lookup(period)
	if !ok {
		return r.currentView(), apperror.Invalid("plan", "no installment plan for %d months", period)
	}
	req, err := installment.NewCalculationRequest(r.inputs.PropertyPrice, r.inputs.DownPaymentDate, plan)
	if err != nil {
		return r.currentView(), err
	}

	r.mu.Lock()
	seq := r.issued.Add(1)
	r.selected = period
	r.mu.Unlock()

	fetchCtx, cancel := r.bound(ctx)
	result, err := r.fetcher.CalculatePaymentSchedule(fetchCtx, req)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if latest := r.issued.Load(); seq != latest {
		metrics.SupersededResponses.Inc()
		r.logger.Debug("dropping superseded schedule response",
			zap.String("op", "resolver.Select"),
			zap.Int("period", period),
			zap.Uint64("sequence", seq),
			zap.Uint64("latest", latest),
		)
		return r.viewLocked(), ErrSuperseded
	}

	if err != nil {
		r.logger.Warn("failed to fetch payment schedule",
			zap.String("op", "resolver.Select"),
			zap.Int("period", period),
			zap.Error(err),
		)
		return r.viewLocked(), asNetworkError("calculate_payment_schedule", err)
	}

	r.current = &View{
		Period:   period,
		Plan:     plan,
		Request:  req,
		Schedule: result,
	}
	return *r.current, nil
}

// Current returns the displayed view, if any schedule was applied yet.
func (r *Resolver) Current() (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return View{}, false
	}
	return *r.current, true
}

// Selected returns the period selected last.
func (r *Resolver) Selected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Reset clears the view and drops every response still in flight.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued.Add(1)
	r.selected = installment.DefaultPeriod
	r.current = nil
}

// Export fetches the schedule document of the selected plan for the given
// apartment. Failures affect only this call.
func (r *Resolver) Export(ctx context.Context, apartmentNumber int) (*client.Document, error) {
	if r.exporter == nil {
		return nil, errors.New("resolver has no document exporter")
	}

	period := r.Selected()
	plan, ok := installment.Lookup(period)
	if !ok {
		return nil, apperror.Invalid("plan", "no installment plan for %d months", period)
	}
	req, err := installment.NewCalculationRequest(r.inputs.PropertyPrice, r.inputs.DownPaymentDate, plan)
	if err != nil {
		return nil, err
	}
	exportReq, err := req.WithApartment(apartmentNumber)
	if err != nil {
		return nil, err
	}

	exportCtx, cancel := r.bound(ctx)
	defer cancel()
	doc, err := r.exporter.DownloadPaymentSchedule(exportCtx, exportReq)
	if err != nil {
		r.logger.Warn("failed to export payment schedule",
			zap.String("op", "resolver.Export"),
			zap.Int("period", period),
			zap.Int("apartment", apartmentNumber),
			zap.Error(err),
		)
		if apperror.IsMissingMetadata(err) || apperror.IsValidation(err) {
			return nil, err
		}
		return nil, asNetworkError("download_pdf_payment_schedule", err)
	}
	return doc, nil
}

func (r *Resolver) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Resolver) currentView() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Resolver) viewLocked() View {
	if r.current == nil {
		return View{}
	}
	return *r.current
}

func asNetworkError(op string, err error) error {
	if apperror.IsNetwork(err) {
		return err
	}
	return &apperror.NetworkError{Op: op, Err: err}
}
