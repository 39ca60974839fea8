package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/iwvelando/tamerun-invest/internal/metrics"
	"github.com/iwvelando/tamerun-invest/internal/session"
	"github.com/iwvelando/tamerun-invest/pkg/apperror"
	"github.com/iwvelando/tamerun-invest/pkg/constants"
	"github.com/iwvelando/tamerun-invest/pkg/growth"
	"go.uber.org/zap"
)

type investFormValues struct {
	InitialAmount string
	Term          int
}

type investFormPage struct {
	Notice string
	Form   investFormValues
	Terms  []int
}

type investResultPage struct {
	Notice   string
	Term     int
	Forecast *growth.Forecast
}

func termOptions() []int {
	terms := make([]int, 0, constants.MaxInvestmentYears)
	for term := constants.MinInvestmentYears; term <= constants.MaxInvestmentYears; term++ {
		terms = append(terms, term)
	}
	return terms
}

func (h *Handler) handleInvestForm(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInvestForm"

	id := h.sessionID(w, r)
	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return
	}

	page := investFormPage{Terms: termOptions()}
	if state.Invest != nil {
		page.Form = investFormValues{
			InitialAmount: strconv.FormatFloat(state.Invest.InitialAmount, 'f', -1, 64),
			Term:          state.Invest.Term,
		}
	}
	h.render(w, http.StatusOK, "invest.html", page)
}

func (h *Handler) handleInvestSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInvestSubmit"

	id := h.sessionID(w, r)
	values := investFormValues{InitialAmount: strings.TrimSpace(r.PostFormValue("initial_amount"))}
	values.Term, _ = strconv.Atoi(strings.TrimSpace(r.PostFormValue("term")))

	form, err := parseInvestForm(values)
	if err == nil {
		err = form.Validate()
	}
	if err != nil {
		h.logger.Info("investment form rejected",
			zap.String("op", op),
			zap.Error(err),
		)
		h.render(w, http.StatusUnprocessableEntity, "invest.html", investFormPage{
			Notice: validationMessage(err),
			Form:   values,
			Terms:  termOptions(),
		})
		return
	}

	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return
	}
	state.Invest = &form
	if err := h.opts.Store.Save(r.Context(), id, state); err != nil {
		h.storeFailed(w, op, err)
		return
	}
	redirect(w, r, "/invest/result")
}

func parseInvestForm(values investFormValues) (session.InvestForm, error) {
	amount, err := parseAmount("initial_amount", values.InitialAmount)
	if err != nil {
		return session.InvestForm{}, err
	}
	if values.Term == 0 {
		return session.InvestForm{}, apperror.Invalid("term", "Выберите срок инвестирования")
	}
	return session.InvestForm{InitialAmount: amount, Term: values.Term}, nil
}

func (h *Handler) handleInvestResult(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInvestResult"

	id := h.sessionID(w, r)
	state, err := h.loadState(r.Context(), id)
	if err != nil {
		h.storeFailed(w, op, err)
		return
	}
	if state.Invest == nil {
		redirect(w, r, "/invest")
		return
	}

	ctx, cancel := h.bound(r.Context())
	defer cancel()

	form := state.Invest
	result, err := h.opts.Forecaster.Forecast(ctx, form.InitialAmount, h.opts.AnnualRate, form.Term)
	if err != nil {
		h.logger.Warn("failed to compute investment forecast",
			zap.String("op", op),
			zap.Float64("capital", form.InitialAmount),
			zap.Int("term", form.Term),
			zap.Error(err),
		)
		metrics.CalculationErrors.WithLabelValues("web", errorType(err)).Inc()
		h.render(w, http.StatusBadGateway, "invest_result.html", investResultPage{
			Notice: forecastNotice(err),
			Term:   form.Term,
		})
		return
	}

	h.render(w, http.StatusOK, "invest_result.html", investResultPage{
		Term:     form.Term,
		Forecast: result,
	})
}

func (h *Handler) handleInvestFinish(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleInvestFinish"

	id := h.sessionID(w, r)
	if err := h.opts.Store.Clear(r.Context(), id); err != nil {
		h.storeFailed(w, op, err)
		return
	}
	h.dropResolver(id)
	redirect(w, r, "/invest")
}

// forecastNotice prefers the backend's own explanation of a rejected input.
func forecastNotice(err error) string {
	var netErr *apperror.NetworkError
	if errors.As(err, &netErr) && netErr.Message != "" {
		return netErr.Message
	}
	if apperror.IsValidation(err) {
		return validationMessage(err)
	}
	return noticeForecastFailed
}

func errorType(err error) string {
	switch {
	case apperror.IsValidation(err):
		return "validation"
	case apperror.IsMissingMetadata(err):
		return "missing_metadata"
	case apperror.IsNetwork(err):
		return "network"
	default:
		return "internal"
	}
}
