package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/client"
	"github.com/iwvelando/tamerun-invest/internal/forecast"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/disposition"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.uber.org/zap"
)

var fixedNow = func() time.Time { return time.Date(2025, time.August, 20, 12, 0, 0, 0, time.UTC) }

// visitor replays the session cookie the handler issued on earlier requests.
type visitor struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func (v *visitor) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	v.t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if v.cookie != nil {
		req.AddCookie(v.cookie)
	}

	rr := httptest.NewRecorder()
	v.handler.ServeHTTP(rr, req)
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == constants.SessionCookieName {
			v.cookie = cookie
		}
	}
	return rr
}

func expectRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %s, got %s", location, got)
	}
}

func expectBody(t *testing.T, rr *httptest.ResponseRecorder, fragments ...string) {
	t.Helper()
	body := rr.Body.String()
	for _, fragment := range fragments {
		if !strings.Contains(body, fragment) {
			t.Errorf("expected page to contain %q\n%s", fragment, body)
		}
	}
}

func newVisitor(t *testing.T, opts Options) *visitor {
	t.Helper()
	if opts.Forecaster == nil {
		opts.Forecaster = forecast.Local{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = forecast.LocalScheduler{Now: fixedNow}
	}
	if opts.Exporter == nil {
		opts.Exporter = forecast.LocalExporter{Now: fixedNow}
	}
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore(time.Hour, nil)
	}

	h, err := NewHandler(zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return &visitor{t: t, handler: h}
}

func submitInstallment(v *visitor, price, date string) *httptest.ResponseRecorder {
	return v.do(http.MethodPost, "/installment", url.Values{
		"property_price":    {price},
		"down_payment_date": {date},
	})
}

func TestNewHandlerRequiresCollaborators(t *testing.T) {
	if _, err := NewHandler(nil, Options{}); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestHomePage(t *testing.T) {
	v := newVisitor(t, Options{})

	rr := v.do(http.MethodGet, "/", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	expectBody(t, rr, `href="/invest"`, `href="/installment"`)
	if v.cookie == nil {
		t.Fatal("expected a session cookie")
	}
}

func TestInvestFlow(t *testing.T) {
	v := newVisitor(t, Options{})

	rr := v.do(http.MethodPost, "/invest", url.Values{
		"initial_amount": {"10 000 000"},
		"term":           {"5"},
	})
	expectRedirect(t, rr, "/invest/result")

	rr = v.do(http.MethodGet, "/invest/result", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	expectBody(t, rr,
		"Прогноз на 5 лет",
		"Доход: 10 113 571.88 ₽",
		"Итоговая сумма: 20 113 571.88 ₽",
		"<td>1</td><td>10 000 000.00 ₽</td><td>1 500 000.00 ₽</td><td>11 500 000.00 ₽</td>",
	)

	rr = v.do(http.MethodGet, "/invest", nil)
	expectBody(t, rr, `value="10000000"`, `<option value="5" selected>5 лет</option>`)

	expectRedirect(t, v.do(http.MethodPost, "/invest/finish", url.Values{}), "/invest")
	expectRedirect(t, v.do(http.MethodGet, "/invest/result", nil), "/invest")
}

func TestInvestUsesConfiguredRate(t *testing.T) {
	v := newVisitor(t, Options{AnnualRate: 10})

	v.do(http.MethodPost, "/invest", url.Values{"initial_amount": {"9000000"}, "term": {"1"}})
	rr := v.do(http.MethodGet, "/invest/result", nil)
	expectBody(t, rr, "Прогноз на 1 год", "Итоговая сумма: 9 900 000.00 ₽")
}

func TestInvestValidation(t *testing.T) {
	tests := []struct {
		name    string
		form    url.Values
		message string
	}{
		{"missing term", url.Values{"initial_amount": {"9000000"}}, "Выберите срок инвестирования"},
		{"bad amount", url.Values{"initial_amount": {"много"}, "term": {"5"}}, "Некорректная сумма"},
		{"NaN amount", url.Values{"initial_amount": {"NaN"}, "term": {"5"}}, "Некорректная сумма"},
		{"missing amount", url.Values{"term": {"5"}}, "Введите стартовый капитал"},
		{"term too long", url.Values{"initial_amount": {"9000000"}, "term": {"101"}}, "Выберите срок от 1 до 100 лет"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := session.NewMemoryStore(time.Hour, nil)
			v := newVisitor(t, Options{Store: store})

			rr := v.do(http.MethodPost, "/invest", tt.form)
			if rr.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected status 422, got %d", rr.Code)
			}
			expectBody(t, rr, tt.message)
			if store.Len() != 0 {
				t.Fatal("rejected answers should not be stored")
			}
		})
	}
}

type failingForecaster struct{}

func (failingForecaster) Forecast(ctx context.Context, capital, rate float64, years int) (*growth.Forecast, error) {
	return nil, &apperror.NetworkError{Op: "calculate_investment_forecast", StatusCode: 400, Message: "Стартовый капитал должен быть от 9,000,000 до 1,000,000,000 руб."}
}

func TestInvestResultShowsBackendMessage(t *testing.T) {
	v := newVisitor(t, Options{Forecaster: failingForecaster{}})

	v.do(http.MethodPost, "/invest", url.Values{"initial_amount": {"100"}, "term": {"1"}})
	rr := v.do(http.MethodGet, "/invest/result", nil)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	expectBody(t, rr, "Стартовый капитал должен быть от 9,000,000 до 1,000,000,000 руб.")
}

// flakyScheduler prices the first call locally and fails every later one.
type flakyScheduler struct {
	mu    sync.Mutex
	calls int
}

func (s *flakyScheduler) CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error) {
	s.mu.Lock()
	s.calls++
	calls := s.calls
	s.mu.Unlock()

	if calls > 1 {
		return nil, &apperror.NetworkError{Op: "calculate_payment_schedule", StatusCode: http.StatusBadGateway}
	}
	return forecast.LocalScheduler{Now: fixedNow}.CalculatePaymentSchedule(ctx, req)
}

type missingHeaderExporter struct{}

func (missingHeaderExporter) DownloadPaymentSchedule(ctx context.Context, req installment.ExportRequest) (*client.Document, error) {
	return nil, &apperror.MissingMetadataError{Header: disposition.Header}
}

func TestInstallmentFlow(t *testing.T) {
	v := newVisitor(t, Options{})

	expectRedirect(t, submitInstallment(v, "10 000 000", "2025-08-01"), "/installment/result")

	rr := v.do(http.MethodGet, "/installment/result", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	expectBody(t, rr,
		`<a href="/installment/result?plan=6" class="active" aria-current="page">6 месяцев</a>`,
		`<a href="/installment/result?plan=36">36 месяцев</a>`,
		"<td>1</td><td>авг. 2025</td><td>5 000 000.00 ₽</td><td>Внесение ПВ 50%</td>",
		"Итого выплачено: 10 000 000.00 ₽",
	)

	rr = v.do(http.MethodGet, "/installment/result?plan=12", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	expectBody(t, rr,
		`class="active" aria-current="page">12 месяцев</a>`,
		`<tr class="onetime"><td>7</td><td>фев. 2026</td><td>1 050 000.00 ₽</td><td>Внесение 10%</td></tr>`,
		"Итого выплачено: 10 500 000.00 ₽",
	)

	rr = v.do(http.MethodGet, "/installment", nil)
	expectBody(t, rr, `value="10000000"`, `value="2025-08-01"`)
}

// fixedScheduler returns the same schedule for every request.
type fixedScheduler struct {
	result installment.ScheduleResult
}

func (s fixedScheduler) CalculatePaymentSchedule(ctx context.Context, req installment.CalculationRequest) (*installment.ScheduleResult, error) {
	result := s.result
	return &result, nil
}

func TestInstallmentResultShowsReportedTotalCost(t *testing.T) {
	v := newVisitor(t, Options{Scheduler: fixedScheduler{result: installment.ScheduleResult{
		PaymentSchedule: []installment.ScheduleEntry{
			{Month: 1, Date: "авг. 2025", Amount: 100, Note: "Внесение ПВ 50%", OnetimePayment: true},
		},
		TotalCost: 1234567.5,
	}}})

	expectRedirect(t, submitInstallment(v, "10000000", "2025-08-01"), "/installment/result")
	rr := v.do(http.MethodGet, "/installment/result", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	expectBody(t, rr, "Итого выплачено: 1 234 567.50 ₽")
	if strings.Contains(rr.Body.String(), "Итого выплачено: 100.00 ₽") {
		t.Error("total should come from the schedule's total cost, not the row sum")
	}
}

func TestInstallmentFormValidation(t *testing.T) {
	v := newVisitor(t, Options{})

	rr := submitInstallment(v, "", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	expectBody(t, rr, "Введите стоимость квартиры")

	rr = submitInstallment(v, "10000000", "завтра")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	expectBody(t, rr, "Некорректная дата", `value="завтра"`)

	rr = submitInstallment(v, "Inf", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for an infinite price, got %d", rr.Code)
	}
	expectBody(t, rr, "Некорректная сумма")

	expectRedirect(t, submitInstallment(v, "10000000", "01.08.2025"), "/installment/result")
}

func TestInstallmentResultWithoutAnswersRedirects(t *testing.T) {
	v := newVisitor(t, Options{})
	expectRedirect(t, v.do(http.MethodGet, "/installment/result", nil), "/installment")
	expectRedirect(t, v.do(http.MethodPost, "/installment/export", url.Values{"apartment_number": {"1"}}), "/installment")
}

func TestInstallmentUnknownPlan(t *testing.T) {
	v := newVisitor(t, Options{})
	submitInstallment(v, "10000000", "2025-08-01")

	rr := v.do(http.MethodGet, "/installment/result?plan=7", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	expectBody(t, rr, "no installment plan for 7 months", `class="active" aria-current="page">6 месяцев</a>`)
}

func TestInstallmentFailureKeepsPreviousView(t *testing.T) {
	v := newVisitor(t, Options{Scheduler: &flakyScheduler{}})
	submitInstallment(v, "10000000", "2025-08-01")

	rr := v.do(http.MethodGet, "/installment/result", nil)
	expectBody(t, rr, "Итого выплачено: 10 000 000.00 ₽")

	rr = v.do(http.MethodGet, "/installment/result?plan=12", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	expectBody(t, rr,
		noticeScheduleFailed,
		"Итого выплачено: 10 000 000.00 ₽",
		`class="active" aria-current="page">12 месяцев</a>`,
	)
}

func TestInstallmentResubmitRebindsResolver(t *testing.T) {
	v := newVisitor(t, Options{})

	submitInstallment(v, "10000000", "2025-08-01")
	v.do(http.MethodGet, "/installment/result?plan=12", nil)

	submitInstallment(v, "20000000", "2025-08-01")
	rr := v.do(http.MethodGet, "/installment/result", nil)
	expectBody(t, rr,
		`class="active" aria-current="page">6 месяцев</a>`,
		"Итого выплачено: 20 000 000.00 ₽",
	)
}

func TestInstallmentExport(t *testing.T) {
	v := newVisitor(t, Options{})
	submitInstallment(v, "10000000", "2025-08-01")
	v.do(http.MethodGet, "/installment/result?plan=24", nil)

	rr := v.do(http.MethodPost, "/installment/export", url.Values{"apartment_number": {"42"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected PDF content type, got %q", ct)
	}
	name, err := disposition.FileName(rr.Header().Get(disposition.Header))
	if err != nil {
		t.Fatalf("FileName() error = %v", err)
	}
	if name != "График платежей № 42 на 24 месяца.pdf" {
		t.Fatalf("unexpected file name %q", name)
	}
}

func TestInstallmentExportFailures(t *testing.T) {
	v := newVisitor(t, Options{Exporter: missingHeaderExporter{}})
	submitInstallment(v, "10000000", "2025-08-01")

	rr := v.do(http.MethodPost, "/installment/export", url.Values{"apartment_number": {"сорок"}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	expectBody(t, rr, "Введите номер апартаментов")

	rr = v.do(http.MethodPost, "/installment/export", url.Values{"apartment_number": {"42"}})
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	expectBody(t, rr, noticeExportFailed, `value="42"`)

	rr = v.do(http.MethodGet, "/installment/result", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export failure should not affect the result page, got %d", rr.Code)
	}
}

func TestInstallmentFinishClearsSession(t *testing.T) {
	store := session.NewMemoryStore(time.Hour, nil)
	v := newVisitor(t, Options{Store: store})
	submitInstallment(v, "10000000", "2025-08-01")
	v.do(http.MethodGet, "/installment/result", nil)

	expectRedirect(t, v.do(http.MethodPost, "/installment/finish", url.Values{}), "/installment")
	if store.Len() != 0 {
		t.Fatalf("expected session to be cleared, %d left", store.Len())
	}
	expectRedirect(t, v.do(http.MethodGet, "/installment/result", nil), "/installment")
}

func TestParseAmount(t *testing.T) {
	tests := map[string]float64{
		"":                     0,
		"9000000":              9000000,
		"9 000 000":            9000000,
		"9\u00a0000\u00a0000": 9000000,
		"1 234,5":              1234.5,
		"15 000 000 ₽":         15000000,
	}
	for input, want := range tests {
		got, err := parseAmount("amount", input)
		if err != nil {
			t.Fatalf("parseAmount(%q) error = %v", input, err)
		}
		if got != want {
			t.Errorf("parseAmount(%q) = %v, want %v", input, got, want)
		}
	}

	for _, input := range []string{"12abc", "NaN", "Inf", "-inf", "1e400"} {
		if _, err := parseAmount("amount", input); !apperror.IsValidation(err) {
			t.Errorf("parseAmount(%q): expected validation error, got %v", input, err)
		}
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestIdleResolversAreDiscarded(t *testing.T) {
	clock := &testClock{now: fixedNow()}
	opts := Options{
		Scheduler:  forecast.LocalScheduler{Now: fixedNow},
		Exporter:   forecast.LocalExporter{Now: fixedNow},
		Forecaster: forecast.Local{},
		Store:      session.NewMemoryStore(time.Hour, clock.Now),
		SessionTTL: time.Hour,
		Now:        clock.Now,
	}
	h, err := NewHandler(zap.NewNop(), opts)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	visit := func() *visitor {
		v := &visitor{t: t, handler: h}
		expectRedirect(t, submitInstallment(v, "10000000", "2025-08-01"), "/installment/result")
		if rr := v.do(http.MethodGet, "/installment/result", nil); rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		return v
	}
	bound := func(v *visitor) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, ok := h.resolvers[v.cookie.Value]
		return ok
	}

	abandoned := visit()
	clock.Advance(45 * time.Minute)
	recent := visit()
	clock.Advance(25 * time.Minute)
	latest := visit()

	if bound(abandoned) {
		t.Error("resolver of a session idle past its TTL should be discarded")
	}
	if !bound(recent) || !bound(latest) {
		t.Error("resolvers of active sessions should be kept")
	}

	h.mu.Lock()
	count := len(h.resolvers)
	h.mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 bound resolvers, got %d", count)
	}
}
