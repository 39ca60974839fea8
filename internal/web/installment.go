package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/tamerun-invest/internal/document"
	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/internal/resolver"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/datetime"
	"github.com/iwvelando/tamerun-invest/pkg/disposition"
	"github.com/iwvelando/tamerun-invest/pkg/installment"
	"go.uber.org/zap"
)

type installmentFormValues struct {
	PropertyPrice   string
	DownPaymentDate string
}

type installmentFormPage struct {
	Notice string
	Form   installmentFormValues
}

type planTab struct {
	Period int
	Label  string
	Active bool
}

type installmentResultPage struct {
	Notice    string
	Tabs      []planTab
	Schedule  *installment.ScheduleResult
	Apartment string
}

func (h *Handler) handleInstallmentForm(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInstallmentForm"

	id := h.sessionID(w, r)
	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return
	}

	var page installmentFormPage
	if form := state.Installment; form != nil {
		page.Form.PropertyPrice = strconv.FormatFloat(form.PropertyPrice, 'f', -1, 64)
		if form.DownPaymentDate != nil {
			page.Form.DownPaymentDate = form.DownPaymentDate.Format(datetime.DateLayout)
		}
	}
	h.render(w, http.StatusOK, "installment.html", page)
}

func (h *Handler) handleInstallmentSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInstallmentSubmit"

	id := h.sessionID(w, r)
	values := installmentFormValues{
		PropertyPrice:   strings.TrimSpace(r.PostFormValue("property_price")),
		DownPaymentDate: strings.TrimSpace(r.PostFormValue("down_payment_date")),
	}

	form, err := parseInstallmentForm(values)
	if err == nil {
		err = form.Validate()
	}
	if err != nil {
		h.logger.Info("installment form rejected",
			zap.String("op", op),
			zap.Error(err),
		)
		h.render(w, http.StatusUnprocessableEntity, "installment.html", installmentFormPage{
			Notice: validationMessage(err),
			Form:   values,
		})
		return
	}

	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return
	}
	state.Installment = &form
	if err := h.opts.Store.Save(r.Context(), id, state); err != nil {
		h.storeFailed(w, op, err)
		return
	}
	h.dropResolver(id)
	redirect(w, r, "/installment/result")
}

func parseInstallmentForm(values installmentFormValues) (session.InstallmentForm, error) {
	price, err := parseAmount("property_price", values.PropertyPrice)
	if err != nil {
		return session.InstallmentForm{}, err
	}
	form := session.InstallmentForm{PropertyPrice: price}
	if values.DownPaymentDate != "" {
		date, err := datetime.ParseDate(values.DownPaymentDate)
		if err != nil {
			return session.InstallmentForm{}, apperror.Invalid("down_payment_date", "Некорректная дата")
		}
		form.DownPaymentDate = &date
	}
	return form, nil
}

func (h *Handler) handleInstallmentResult(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInstallmentResult"

	id := h.sessionID(w, r)
	res, ok := h.sessionResolver(w, r, id, op)
	if !ok {
		return
	}

	period := res.Selected()
	if raw := r.URL.Query().Get("plan"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			parsed = -1
		}
		period = parsed
	}

	_, err := res.Select(r.Context(), period)
	status := http.StatusOK
	notice := ""
	switch {
	case err == nil, errors.Is(err, resolver.ErrSuperseded):
	case apperror.IsValidation(err):
		status = http.StatusBadRequest
		notice = validationMessage(err)
	default:
		h.logger.Warn("showing previous schedule",
			zap.String("op", op),
			zap.Int("period", period),
			zap.Error(err),
		)
		metrics.CalculationErrors.WithLabelValues("web", errorType(err)).Inc()
		notice = noticeScheduleFailed
	}

	h.renderResult(w, status, res, notice, "")
}

func (h *Handler) handleInstallmentExport(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInstallmentExport"

	id := h.sessionID(w, r)
	res, ok := h.sessionResolver(w, r, id, op)
	if !ok {
		return
	}

	raw := strings.TrimSpace(r.PostFormValue("apartment_number"))
	apartment, err := strconv.Atoi(raw)
	if err != nil || apartment < 0 || apartment > constants.MaxApartmentNumber {
		h.renderResult(w, http.StatusUnprocessableEntity, res, "Введите номер апартаментов", raw)
		return
	}

	doc, err := res.Export(r.Context(), apartment)
	if err != nil {
		h.logger.Warn("failed to export payment schedule",
			zap.String("op", op),
			zap.Int("apartment", apartment),
			zap.Error(err),
		)
		metrics.CalculationErrors.WithLabelValues("web", errorType(err)).Inc()
		status := http.StatusBadGateway
		notice := noticeExportFailed
		if apperror.IsValidation(err) {
			status = http.StatusUnprocessableEntity
			notice = validationMessage(err)
		}
		h.renderResult(w, status, res, notice, raw)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = document.ContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set(disposition.Header, disposition.Attachment(document.FallbackFileName(apartment), doc.FileName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc.Data); err != nil {
		h.logger.Warn("failed to write document", zap.String("op", op), zap.Error(err))
	}
}

func (h *Handler) handleInstallmentFinish(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInstallmentFinish"

	id := h.sessionID(w, r)
	if err := h.opts.Store.Clear(r.Context(), id); err != nil {
		h.storeFailed(w, op, err)
		return
	}
	h.dropResolver(id)
	redirect(w, r, "/installment")
}

func (h *Handler) renderResult(w http.ResponseWriter, status int, res *resolver.Resolver, notice, apartment string) {
	page := installmentResultPage{Notice: notice, Apartment: apartment}
	if view, ok := res.Current(); ok {
		page.Schedule = view.Schedule
	}

	selected := res.Selected()
	for _, plan := range installment.Plans() {
		page.Tabs = append(page.Tabs, planTab{
			Period: plan.InstallmentPeriod,
			Label:  plan.Label(),
			Active: plan.InstallmentPeriod == selected,
		})
	}
	h.render(w, status, "installment_result.html", page)
}

// sessionResolver returns the resolver bound to the session's installment
// answers. Without answers the visitor is sent back to the form.
func (h *Handler) sessionResolver(w http.ResponseWriter, r *http.Request, id, op string) (*resolver.Resolver, bool) {
	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return nil, false
	}
	if state.Installment == nil {
		h.dropResolver(id)
		redirect(w, r, "/installment")
		return nil, false
	}

	inputs := resolver.Inputs{
		PropertyPrice:   state.Installment.PropertyPrice,
		DownPaymentDate: state.Installment.DownPaymentDate,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.opts.Now()
	h.pruneResolvers(now)
	if bound, ok := h.resolvers[id]; ok && sameInputs(bound.res.Inputs(), inputs) {
		bound.lastUsed = now
		return bound.res, true
	}

	res, err := resolver.New(h.logger, inputs, resolver.Options{
		Fetcher:  h.opts.Scheduler,
		Exporter: h.opts.Exporter,
		Timeout:  h.opts.Timeout,
	})
	if err != nil {
		h.logger.Info("stored installment answers rejected",
			zap.String("op", op),
			zap.Error(err),
		)
		redirect(w, r, "/installment")
		return nil, false
	}
	h.resolvers[id] = &boundResolver{res: res, lastUsed: now}
	return res, true
}

func (h *Handler) dropResolver(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if bound, ok := h.resolvers[id]; ok {
		bound.res.Reset()
		delete(h.resolvers, id)
	}
}

// pruneResolvers discards resolvers of sessions idle for at least the
// session TTL. The caller holds h.mu.
func (h *Handler) pruneResolvers(now time.Time) {
	for id, bound := range h.resolvers {
		if now.Sub(bound.lastUsed) >= h.opts.SessionTTL {
			bound.res.Reset()
			delete(h.resolvers, id)
		}
	}
}

func sameInputs(a, b resolver.Inputs) bool {
	if a.PropertyPrice != b.PropertyPrice {
		return false
	}
	return sameDate(a.DownPaymentDate, b.DownPaymentDate)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
