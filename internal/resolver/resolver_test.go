package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.uber.org/zap"
)

type pendingCall struct {
	req     installment.CalculationRequest
	respond chan response
}

type response struct {
	result *installment.ScheduleResult
	err    error
}

// gatedFetcher hands every call to the test, which decides when and how it
// completes.
type gatedFetcher struct {
	calls chan pendingCall
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{calls: make(chan pendingCall)}
}

func (f *gatedFetcher) CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error) {
	call := pendingCall{req: req, respond: make(chan response, 1)}
	f.calls <- call
	select {
	case resp := <-call.respond:
		return resp.result, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type selectOutcome struct {
	view View
	err  error
}

func startSelect(r *Resolver, period int) chan selectOutcome {
	done := make(chan selectOutcome, 1)
	go func() {
		view, err := r.Select(context.Background(), period)
		done <- selectOutcome{view: view, err: err}
	}()
	return done
}

func marked(total float64) response {
	return response{result: &installment.ScheduleResult{TotalCost: total}}
}

func newResolver(t *testing.T, fetcher ScheduleFetcher, exporter DocumentExporter) *Resolver {
	t.Helper()
	r, err := New(zap.NewNop(), Inputs{PropertyPrice: 10000000}, Options{Fetcher: fetcher, Exporter: exporter})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestLastIssuedSelectionWins(t *testing.T) {
	fetcher := newGatedFetcher()
	r := newResolver(t, fetcher, nil)

	first := startSelect(r, 6)
	call6a := <-fetcher.calls
	second := startSelect(r, 12)
	call12 := <-fetcher.calls
	third := startSelect(r, 6)
	call6b := <-fetcher.calls

	if call12.req.Plan.InstallmentPeriod != 12 || call6b.req.Plan.InstallmentPeriod != 6 {
		t.Fatalf("unexpected request order: %d, %d", call12.req.Plan.InstallmentPeriod, call6b.req.Plan.InstallmentPeriod)
	}

	call6b.respond <- marked(3)
	outcome := <-third
	if outcome.err != nil {
		t.Fatalf("latest selection error = %v", outcome.err)
	}

	call12.respond <- marked(2)
	if outcome := <-second; !errors.Is(outcome.err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for the 12 month response, got %v", outcome.err)
	}
	call6a.respond <- marked(1)
	if outcome := <-first; !errors.Is(outcome.err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded for the first response, got %v", outcome.err)
	}

	view, ok := r.Current()
	if !ok {
		t.Fatal("expected a current view")
	}
	if view.Period != 6 || view.Schedule.TotalCost != 3 {
		t.Errorf("current view = period %d total %v, expected the third response", view.Period, view.Schedule.TotalCost)
	}
	if r.Selected() != 6 {
		t.Errorf("Selected() = %d, expected 6", r.Selected())
	}
}

func TestSequentialSelectionsApply(t *testing.T) {
	fetcher := newGatedFetcher()
	r := newResolver(t, fetcher, nil)

	first := startSelect(r, 12)
	call12 := <-fetcher.calls
	call12.respond <- marked(12)
	if outcome := <-first; outcome.err != nil || outcome.view.Period != 12 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	second := startSelect(r, 24)
	call24 := <-fetcher.calls
	call24.respond <- marked(24)
	if outcome := <-second; outcome.err != nil || outcome.view.Schedule.TotalCost != 24 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if view, ok := r.Current(); !ok || view.Period != 24 {
		t.Errorf("current view = %+v, expected the 24 month schedule", view)
	}
}

func TestFailurePreservesView(t *testing.T) {
	fetcher := newGatedFetcher()
	r := newResolver(t, fetcher, nil)

	ok := startSelect(r, 6)
	(<-fetcher.calls).respond <- marked(6)
	if outcome := <-ok; outcome.err != nil {
		t.Fatalf("Select() error = %v", outcome.err)
	}

	failing := startSelect(r, 18)
	(<-fetcher.calls).respond <- response{err: &apperror.NetworkError{Op: "calculate_payment_schedule", StatusCode: 500}}
	outcome := <-failing
	if !apperror.IsNetwork(outcome.err) {
		t.Fatalf("expected NetworkError, got %v", outcome.err)
	}
	if outcome.view.Period != 6 || outcome.view.Schedule.TotalCost != 6 {
		t.Errorf("failure returned view %+v, expected the previous one", outcome.view)
	}

	view, _ := r.Current()
	if view.Period != 6 {
		t.Errorf("current view period = %d, expected 6", view.Period)
	}
}

func TestTransportErrorsBecomeNetworkErrors(t *testing.T) {
	fetcher := newGatedFetcher()
	r, err := New(zap.NewNop(), Inputs{PropertyPrice: 1000000}, Options{Fetcher: fetcher, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := startSelect(r, 36)
	<-fetcher.calls
	outcome := <-done

	var netErr *apperror.NetworkError
	if !errors.As(outcome.err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", outcome.err)
	}
	if !netErr.Timeout() {
		t.Errorf("expected a timeout, got %v", outcome.err)
	}
}

func TestUnknownPlanIssuesNoRequest(t *testing.T) {
	fetcher := newGatedFetcher()
	r := newResolver(t, fetcher, nil)

	_, err := r.Select(context.Background(), 9)
	if !apperror.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	select {
	case call := <-fetcher.calls:
		t.Errorf("unexpected request %+v", call.req)
	default:
	}
	if r.Selected() != installment.DefaultPeriod {
		t.Errorf("Selected() = %d, expected the default", r.Selected())
	}
}

func TestResetDropsInFlightResponses(t *testing.T) {
	fetcher := newGatedFetcher()
	r := newResolver(t, fetcher, nil)

	done := startSelect(r, 24)
	call := <-fetcher.calls
	r.Reset()
	call.respond <- marked(24)

	if outcome := <-done; !errors.Is(outcome.err, ErrSuperseded) {
		t.Errorf("expected ErrSuperseded after reset, got %v", outcome.err)
	}
	if _, ok := r.Current(); ok {
		t.Error("expected no view after reset")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Inputs{PropertyPrice: 0}, Options{Fetcher: newGatedFetcher()}); !apperror.IsValidation(err) {
		t.Errorf("expected validation error for zero price, got %v", err)
	}
	if _, err := New(nil, Inputs{PropertyPrice: 1}, Options{}); err == nil {
		t.Error("expected error without a fetcher")
	}
}

type fakeExporter struct {
	got installment.ExportRequest
	doc *client.Document
	err error
}

func (e *fakeExporter) DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*client.Document, error) {
	e.got = req
	return e.doc, e.err
}

func TestExportUsesSelectedPlan(t *testing.T) {
	fetcher := newGatedFetcher()
	exporter := &fakeExporter{doc: &client.Document{FileName: "график.pdf"}}
	r := newResolver(t, fetcher, exporter)

	done := startSelect(r, 18)
	(<-fetcher.calls).respond <- marked(18)
	<-done

	doc, err := r.Export(context.Background(), 314)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if doc.FileName != "график.pdf" {
		t.Errorf("FileName = %q", doc.FileName)
	}
	if exporter.got.Plan.InstallmentPeriod != 18 || exporter.got.ApartmentNumber != 314 || exporter.got.PropertyPrice != 10000000 {
		t.Errorf("unexpected export request: %+v", exporter.got)
	}
}

func TestExportFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		apt   int
	}{
		{name: "Missing disposition", err: &apperror.MissingMetadataError{Header: "Content-Disposition"}, check: apperror.IsMissingMetadata, apt: 1},
		{name: "Backend failure", err: errors.New("connection refused"), check: apperror.IsNetwork, apt: 1},
		{name: "Invalid apartment", check: apperror.IsValidation, apt: -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, newGatedFetcher(), &fakeExporter{err: tt.err})
			if _, err := r.Export(context.Background(), tt.apt); !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}
