// Package web serves the investment and installment pages.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/iwvelando/tamerun-invest/internal/forecast"
	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/internal/resolver"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/format"
	"github.com/iwvelando/tamerun-invest/pkg/mathutil"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Notices shown above a page.
const (
	noticeForecastFailed = "Не удалось рассчитать доходность. Попробуйте позже."
	noticeScheduleFailed = "Не удалось загрузить график платежей. Показан предыдущий расчет."
	noticeExportFailed   = "Не удалось скачать документ. Попробуйте позже."
)

var pages = []string{"home.html", "invest.html", "invest_result.html", "installment.html", "installment_result.html"}

// Options wires the pages to their collaborators. A zero AnnualRate uses
// the default rate; a zero Timeout leaves backend calls bounded only by the
// request. Resolvers idle for longer than SessionTTL are discarded; a zero
// SessionTTL uses the default session lifetime.
type Options struct {
	Forecaster   forecast.Forecaster
	Scheduler    forecast.Scheduler
	Exporter     forecast.Exporter
	Store        session.Store
	AnnualRate   float64
	Timeout      time.Duration
	SessionTTL   time.Duration
	SecureCookie bool
	Now          func() time.Time
}

// Handler serves the web pages. Each session gets its own resolver, kept
// until the installment answers change, the visitor finishes or the
// session goes idle.
type Handler struct {
	logger    *zap.Logger
	opts      Options
	templates map[string]*template.Template
	router    *mux.Router

	mu        sync.Mutex
	resolvers map[string]*boundResolver
}

type boundResolver struct {
	res      *resolver.Resolver
	lastUsed time.Time
}

// NewHandler parses the embedded templates and mounts the page routes.
func NewHandler(logger *zap.Logger, opts Options) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Forecaster == nil || opts.Scheduler == nil || opts.Store == nil {
		return nil, errors.New("web handler requires a forecaster, a scheduler and a session store")
	}
	if opts.AnnualRate == 0 {
		opts.AnnualRate = constants.DefaultAnnualRate
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = constants.DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	h := &Handler{
		logger:    logger,
		opts:      opts,
		templates: templates,
		resolvers: make(map[string]*boundResolver),
	}
	h.router = h.routes()
	return h, nil
}

func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"money":     format.Money,
		"termWord":  format.TermWord,
		"monthWord": format.MonthWord,
	}
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFiles, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		templates[page] = t
	}
	return templates, nil
}

func (h *Handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", h.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/invest", h.handleInvestForm).Methods(http.MethodGet)
	r.HandleFunc("/invest", h.handleInvestSubmit).Methods(http.MethodPost)
	r.HandleFunc("/invest/result", h.handleInvestResult).Methods(http.MethodGet)
	r.HandleFunc("/invest/finish", h.handleInvestFinish).Methods(http.MethodPost)
	r.HandleFunc("/installment", h.handleInstallmentForm).Methods(http.MethodGet)
	r.HandleFunc("/installment", h.handleInstallmentSubmit).Methods(http.MethodPost)
	r.HandleFunc("/installment/result", h.handleInstallmentResult).Methods(http.MethodGet)
	r.HandleFunc("/installment/export", h.handleInstallmentExport).Methods(http.MethodPost)
	r.HandleFunc("/installment/finish", h.handleInstallmentFinish).Methods(http.MethodPost)
	return r
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Register mounts the pages on r next to routes registered elsewhere.
func (h *Handler) Register(r *mux.Router) {
	r.PathPrefix("/").Handler(h)
}

type pageData struct {
	Notice string
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "home.html", pageData{})
}

func (h *Handler) render(w http.ResponseWriter, status int, page string, data interface{}) {
	t, ok := h.templates[page]
	if !ok {
		h.logger.Error("unknown page template", zap.String("op", "web.render"), zap.String("page", page))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout.html", data); err != nil {
		h.logger.Error("failed to render page",
			zap.String("op", "web.render"),
			zap.String("page", page),
			zap.Error(err),
		)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// sessionID returns the visitor's session identifier, issuing a new cookie
// when the request carries none.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(constants.SessionCookieName); err == nil && session.ValidID(cookie.Value) {
		return cookie.Value
	}
	id := session.NewID()
	http.SetCookie(w, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// loadState returns the stored answers. Unknown sessions yield an empty
// state; other store failures are returned.
func (h *Handler) loadState(ctx context.Context, id string) (session.State, error) {
	state, err := h.opts.Store.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return session.State{}, nil
	}
	return state, err
}

func (h *Handler) storeFailed(w http.ResponseWriter, op string, err error) {
	h.logger.Error("session store failed", zap.String("op", op), zap.Error(err))
	metrics.CalculationErrors.WithLabelValues("web", "session").Inc()
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// bound applies the configured timeout to ctx.
func (h *Handler) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.opts.Timeout)
}

// parseAmount reads a money amount typed with optional group spaces, a
// decimal comma or a trailing ruble sign.
func parseAmount(field, value string) (float64, error) {
	cleaned := strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", constants.CurrencySymbol, "", ",", ".").Replace(value)
	if cleaned == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || !mathutil.IsFinite(amount) {
		return 0, apperror.Invalid(field, "Некорректная сумма")
	}
	return amount, nil
}

func validationMessage(err error) string {
	var validationErr *apperror.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return err.Error()
}
