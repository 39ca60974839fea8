// Package server exposes the calculation API over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/iwvelando/tamerun-invest/internal/document"
	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/internal/tracing"
	"github.com/iwvelando/tamerun-invest/pkg/datetime"
	"github.com/iwvelando/tamerun-invest/pkg/disposition"
	"github.com/iwvelando/tamerun-invest/pkg/format"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Error messages returned to API clients.
const (
	msgNoJSON            = "Не были предоставлены JSON данные"
	msgInvalidInput      = "Некорректные входные данные. Проверьте типы и диапазоны значений"
	msgParseFailed       = "Ошибка при парсинге входных данных: %s. Убедитесь, что все числовые поля корректны"
	msgInvalidDate       = "Invalid date format: %s"
	msgPaymentsNotList   = "'intermediate_payments' должен быть списком"
	msgPaymentsNotPair   = "Элементы 'intermediate_payments' должны быть кортежами (месяц, процент)"
	msgPaymentMonth      = "Некорректный номер месяца в 'intermediate_payments'"
	msgPaymentPercent    = "Некорректный процент в 'intermediate_payments'"
	msgInvestBody        = "Тело запроса должно быть в формате JSON"
	msgInvestNumbers     = "Некорректный формат числовых данных. Пожалуйста, введите числа."
	msgInvestCapital     = "Стартовый капитал должен быть от %s до %s руб."
	msgInvestYears       = "Срок инвестирования должен быть от %d до %d лет."
	msgInvestRate        = "Годовая процентная ставка должна быть от 0 до 100%)."
	msgInternal          = "Внутренняя ошибка сервера при расчете доходности."
	msgDocumentFailed    = "Не удалось сформировать PDF документ"
	msgRequestTooLarge   = "Размер запроса превышает %d байт"
	errorTypeValidation  = "validation"
	errorTypeInternal    = "internal"
	errorTypeBodyTooBig  = "body_too_large"
	allowedRequestHeader = "Content-Type, Authorization, X-Request-ID"
)

type handler struct {
	logger  *zap.Logger
	cfg     *Config
	version string
	now     func() time.Time
	tracer  trace.Tracer
}

// NewHandler constructs the router that serves the calculation API,
// the version endpoint and Prometheus metrics.
func NewHandler(logger *zap.Logger, cfg *Config, version string) *mux.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:  logger,
		cfg:     cfg,
		version: trimmedVersion,
		now:     time.Now,
		tracer:  tracing.Tracer("tamerun-invest/server"),
	}
	return h.routes()
}

func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument, h.cors)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/calculate_payment_schedule", h.handlePaymentSchedule).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/download_pdf_payment_schedule", h.handleScheduleDocument).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/calculate_investment_forecast", h.handleInvestmentForecast).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/calculate_investment_forecast/", h.handleInvestmentForecast).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/version", h.handleVersion).Methods(http.MethodGet)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handlePaymentSchedule(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePaymentSchedule"

	in, apiErr := h.decodeSchedule(w, r, false)
	if apiErr != nil {
		h.respondAPIError(w, r, apiErr, op)
		return
	}

	result, err := installment.Generate(in.request, h.now())
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msgInvalidInput, errorTypeValidation, op)
		return
	}

	h.logger.Debug("computed payment schedule",
		zap.String("op", op),
		zap.Int("period", in.request.Plan.InstallmentPeriod),
		zap.Float64("total_cost", result.TotalCost),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *handler) handleScheduleDocument(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleScheduleDocument"

	in, apiErr := h.decodeSchedule(w, r, true)
	if apiErr != nil {
		h.respondAPIError(w, r, apiErr, op)
		return
	}

	now := h.now()
	result, err := installment.Generate(in.request, now)
	if err != nil {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msgInvalidInput, errorTypeValidation, op)
		return
	}

	var buf bytes.Buffer
	docInput := document.Input{
		Schedule:        result.PaymentSchedule,
		PropertyPrice:   in.request.PropertyPrice,
		Period:          in.request.Plan.InstallmentPeriod,
		ApartmentNumber: in.apartment,
		GeneratedAt:     now,
	}
	if err := document.Render(&buf, docInput, document.Options{FontFile: h.cfg.Document.FontFile}); err != nil {
		h.logger.Error("failed to render schedule document",
			zap.String("op", op),
			zap.Error(err),
		)
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, msgDocumentFailed, errorTypeInternal, op)
		return
	}

	period := in.request.Plan.InstallmentPeriod
	w.Header().Set("Content-Type", document.ContentType)
	w.Header().Set(disposition.Header, disposition.Attachment(
		document.FallbackFileName(in.apartment),
		document.FileName(in.apartment, period),
	))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("failed to write schedule document",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

type investmentBody struct {
	StartingCapital    *float64 `json:"starting_capital"`
	Years              *float64 `json:"years"`
	AnnualInterestRate *float64 `json:"annual_interest_rate"`
}

func (h *handler) handleInvestmentForecast(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleInvestmentForecast"

	var body investmentBody
	raw, apiErr := h.readBody(w, r)
	if apiErr != nil {
		if apiErr.message == msgNoJSON {
			apiErr.message = msgInvestBody
		}
		h.respondAPIError(w, r, apiErr, op)
		return
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msgInvestBody, errorTypeValidation, op)
		return
	}
	if body.StartingCapital == nil || body.Years == nil || !isWhole(*body.Years) {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msgInvestNumbers, errorTypeValidation, op)
		return
	}

	limits := h.cfg.Limits
	capital := *body.StartingCapital
	years := int(*body.Years)
	rate := limits.DefaultAnnualRate
	if body.AnnualInterestRate != nil {
		rate = *body.AnnualInterestRate
	}

	if capital < limits.MinStartingCapital || capital > limits.MaxStartingCapital {
		msg := fmt.Sprintf(msgInvestCapital,
			format.Thousands(int64(limits.MinStartingCapital), ","),
			format.Thousands(int64(limits.MaxStartingCapital), ","))
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msg, errorTypeValidation, op)
		return
	}
	if years < limits.MinYears || years > limits.MaxYears {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, fmt.Sprintf(msgInvestYears, limits.MinYears, limits.MaxYears), errorTypeValidation, op)
		return
	}
	if rate < 0 || rate > 100 {
		h.respondErrorWithOp(w, r, http.StatusBadRequest, msgInvestRate, errorTypeValidation, op)
		return
	}

	forecast, err := growth.Compute(capital, rate, years)
	if err != nil {
		h.logger.Error("failed to compute investment forecast",
			zap.String("op", op),
			zap.Error(err),
		)
		h.respondErrorWithOp(w, r, http.StatusInternalServerError, msgInternal, errorTypeInternal, op)
		return
	}

	h.writeJSON(w, http.StatusOK, forecast.Rounded())
}

// apiError is a rejected request with its status and client message.
type apiError struct {
	status    int
	message   string
	errorType string
}

type scheduleInput struct {
	request   installment.CalculationRequest
	apartment int
}

type scheduleBody struct {
	PropertyPrice            *float64        `json:"property_price"`
	InstallmentPercentage    *float64        `json:"installment_percentage"`
	InitialPaymentPercentage *float64        `json:"initial_payment_percentage"`
	InstallmentPeriod        *float64        `json:"installment_period"`
	MonthlyPaymentPercentage *float64        `json:"monthly_payment_percentage"`
	IntermediatePayments     json.RawMessage `json:"intermediate_payments"`
	InitialPaymentDate       *string         `json:"initial_payment_date"`
	ApartmentNumber          *float64        `json:"apartment_number"`
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *apiError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.BodySizeBytes())
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, &apiError{
				status:    http.StatusRequestEntityTooLarge,
				message:   fmt.Sprintf(msgRequestTooLarge, h.cfg.BodySizeBytes()),
				errorType: errorTypeBodyTooBig,
			}
		}
		return nil, invalid(msgNoJSON)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, invalid(msgNoJSON)
	}
	return trimmed, nil
}

// decodeSchedule parses and validates a schedule request body. The
// apartment number is required and checked only for documents.
func (h *handler) decodeSchedule(w http.ResponseWriter, r *http.Request, withApartment bool) (scheduleInput, *apiError) {
	raw, apiErr := h.readBody(w, r)
	if apiErr != nil {
		return scheduleInput{}, apiErr
	}

	var body scheduleBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return scheduleInput{}, invalid(fmt.Sprintf(msgParseFailed, err.Error()))
	}

	required := []struct {
		name  string
		value *float64
	}{
		{"property_price", body.PropertyPrice},
		{"installment_percentage", body.InstallmentPercentage},
		{"initial_payment_percentage", body.InitialPaymentPercentage},
		{"installment_period", body.InstallmentPeriod},
		{"monthly_payment_percentage", body.MonthlyPaymentPercentage},
	}
	for _, field := range required {
		if field.value == nil {
			return scheduleInput{}, invalid(fmt.Sprintf(msgParseFailed, "missing field "+field.name))
		}
	}

	var start *time.Time
	if body.InitialPaymentDate != nil {
		parsed, err := datetime.ParseDate(*body.InitialPaymentDate)
		if err != nil {
			return scheduleInput{}, invalid(fmt.Sprintf(msgInvalidDate, err.Error()))
		}
		start = &parsed
	}

	price := *body.PropertyPrice
	period := *body.InstallmentPeriod
	valid := price >= 0 && !math.IsInf(price, 0) &&
		inPercentRange(*body.InstallmentPercentage) &&
		inPercentRange(*body.InitialPaymentPercentage) &&
		isWhole(period) && period > 0 &&
		inPercentRange(*body.MonthlyPaymentPercentage)

	apartment := 0
	if withApartment {
		maxApartment := float64(h.cfg.Limits.MaxApartmentNumber)
		valid = valid && body.ApartmentNumber != nil &&
			isWhole(*body.ApartmentNumber) &&
			*body.ApartmentNumber >= 0 && *body.ApartmentNumber <= maxApartment
		if valid {
			apartment = int(*body.ApartmentNumber)
		}
	}
	if !valid {
		return scheduleInput{}, invalid(msgInvalidInput)
	}

	payments, apiErr := decodeIntermediatePayments(body.IntermediatePayments, int(period))
	if apiErr != nil {
		return scheduleInput{}, apiErr
	}

	return scheduleInput{
		request: installment.CalculationRequest{
			PropertyPrice:      price,
			InitialPaymentDate: start,
			Plan: installment.Plan{
				InitialPaymentPercentage: *body.InitialPaymentPercentage,
				InstallmentPercentage:    *body.InstallmentPercentage,
				InstallmentPeriod:        int(period),
				MonthlyPaymentPercentage: *body.MonthlyPaymentPercentage,
				IntermediatePayments:     payments,
			},
		},
		apartment: apartment,
	}, nil
}

func decodeIntermediatePayments(raw json.RawMessage, period int) ([]installment.IntermediatePayment, *apiError) {
	payments := []installment.IntermediatePayment{}
	if len(raw) == 0 || string(raw) == "null" {
		return payments, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, invalid(msgPaymentsNotList)
	}
	for _, item := range items {
		var pair []json.RawMessage
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			return nil, invalid(msgPaymentsNotPair)
		}
		var month, percent float64
		if err := json.Unmarshal(pair[0], &month); err != nil || !isWhole(month) || month <= 0 || int(month) > period {
			return nil, invalid(msgPaymentMonth)
		}
		if err := json.Unmarshal(pair[1], &percent); err != nil || !inPercentRange(percent) {
			return nil, invalid(msgPaymentPercent)
		}
		payments = append(payments, installment.IntermediatePayment{Month: int(month), AmountPercentage: percent})
	}
	return payments, nil
}

func invalid(msg string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: msg, errorType: errorTypeValidation}
}

func inPercentRange(v float64) bool {
	return v >= 0 && v <= 100
}

func isWhole(v float64) bool {
	return !math.IsInf(v, 0) && v == math.Trunc(v)
}

func (h *handler) respondAPIError(w http.ResponseWriter, r *http.Request, apiErr *apiError, op string) {
	h.respondErrorWithOp(w, r, apiErr.status, apiErr.message, apiErr.errorType, op)
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, r *http.Request, status int, msg, errorType, op string) {
	h.logger.Info("calculation request rejected",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	metrics.CalculationErrors.WithLabelValues(routeName(r), errorType).Inc()
	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.SetStatus(codes.Error, msg)
	}

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

// statusRecorder remembers the status written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// instrument wraps every request in a span and counts it by route and status.
func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeName(r)
		ctx, span := h.tracer.Start(r.Context(), r.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rec.status),
		)
		metrics.APIRequests.WithLabelValues(route, fmt.Sprintf("%d", rec.status)).Inc()
	})
}

// cors answers preflight requests and marks responses for allowed origins.
func (h *handler) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(h.cfg.AllowedOrigins))
	for _, origin := range h.cfg.AllowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Expose-Headers", disposition.Header)
		}
		if r.Method == http.MethodOptions {
			if origin != "" && (allowed[origin] || allowed["*"]) {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", allowedRequestHeader)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
