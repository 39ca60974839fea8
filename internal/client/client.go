// Package client calls the tamerun-invest calculation API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/internal/tracing"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/disposition"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// API paths, relative to the base URL.
const (
	PathPaymentSchedule    = "api/calculate_payment_schedule"
	PathScheduleDocument   = "api/download_pdf_payment_schedule"
	PathInvestmentForecast = "api/calculate_investment_forecast/"
)

// RequestIDHeader carries a fresh identifier on every call.
const RequestIDHeader = "X-Request-ID"

const maxErrorBody = 64 * 1024

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Document is an exported file as returned by the backend.
type Document struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Client issues calculation requests against the backend API.
type Client struct {
	logger     *zap.Logger
	baseURL    *url.URL
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
}

// InvestmentRequest is the body of an investment forecast call.
type InvestmentRequest struct {
	AnnualInterestRate float64 `json:"annual_interest_rate"`
	StartingCapital    float64 `json:"starting_capital"`
	Years              int     `json:"years"`
}

// New creates a Client. An empty base URL selects the production backend
// and a zero timeout the default.
func New(logger *zap.Logger, opts Options) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	raw := opts.BaseURL
	if raw == "" {
		raw = constants.DefaultBackendURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend base URL %q must be absolute", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultBackendTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		logger:     logger,
		baseURL:    base,
		timeout:    timeout,
		httpClient: httpClient,
		tracer:     tracing.Tracer("tamerun-invest/client"),
	}, nil
}

// CalculatePaymentSchedule prices req on the backend.
func (c *Client) CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error) {
	var result installment.ScheduleResult
	if err := c.postJSON(ctx, PathPaymentSchedule, req, &result); err != nil {
		return nil, err
	}
	result.SortByMonth()
	return &result, nil
}

// CalculateInvestmentForecast asks the backend to grow capital at rate for years.
func (c *Client) CalculateInvestmentForecast(ctx context.Context, rate, capital float64, years int) (*growth.Forecast, error) {
	body := InvestmentRequest{
		AnnualInterestRate: rate,
		StartingCapital:    capital,
		Years:              years,
	}
	var result growth.Forecast
	if err := c.postJSON(ctx, PathInvestmentForecast, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadPaymentSchedule fetches the schedule document for req. The file
// name is taken from the Content-Disposition header.
func (c *Client) DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*Document, error) {
	var doc *Document
	err := c.post(ctx, PathScheduleDocument, req, func(resp *http.Response) error {
		name, err := disposition.FileName(resp.Header.Get(disposition.Header))
		if err != nil {
			return err
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &apperror.NetworkError{Op: PathScheduleDocument, Message: "failed to read document", Err: err}
		}
		doc = &Document{
			FileName:    name,
			ContentType: resp.Header.Get("Content-Type"),
			Data:        data,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.post(ctx, path, body, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &apperror.NetworkError{Op: path, StatusCode: resp.StatusCode, Message: "malformed response body", Err: err}
		}
		return nil
	})
}

// post sends body to path and hands a 2xx response to handle. The timeout
// covers reading the response.
func (c *Client) post(ctx context.Context, path string, body interface{}, handle func(*http.Response) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "POST "+path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("request.id", requestID),
	)

	logger := c.logger.With(
		zap.String("op", "client.post"),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)

	err := c.send(ctx, path, requestID, body, span, handle)
	status := "ok"
	if err != nil {
		status = errorStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("backend call failed", zap.Error(err))
	} else {
		logger.Debug("backend call succeeded")
	}
	metrics.BackendRequests.WithLabelValues(path, status).Inc()
	return err
}

func (c *Client) send(ctx context.Context, path, requestID string, body interface{}, span trace.Span, handle func(*http.Response) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	endpoint := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apperror.NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperror.NetworkError{
			Op:         path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}

	return handle(resp)
}

// errorMessage extracts the backend's {"error": msg} text, falling back to
// the raw body.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(data))
}

func errorStatus(err error) string {
	var netErr *apperror.NetworkError
	switch {
	case errors.As(err, &netErr) && netErr.StatusCode != 0:
		return strconv.Itoa(netErr.StatusCode)
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case apperror.IsMissingMetadata(err):
		return "missing_metadata"
	default:
		return "error"
	}
}
