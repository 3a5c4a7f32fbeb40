package order

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// API exposes the order command and query endpoints.
type API struct {
	cmds *CommandService
	log  zerolog.Logger
}

func NewAPI(cmds *CommandService, log zerolog.Logger) *API {
	return &API{cmds: cmds, log: log.With().Str("component", "order_api").Logger()}
}

func (a *API) Routes(r chi.Router) {
	r.Post("/orders", a.createOrder)
	r.Get("/orders/{orderID}", a.getOrder)
	r.Get("/orders/{orderID}/events", a.getOrderEvents)
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	o, err := a.cmds.CreateOrder(r.Context(), req)
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		a.log.Error().Err(err).Msg("create order failed")
		writeError(w, http.StatusInternalServerError, "could not create order")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"orderId": o.ID,
		"status":  o.Status,
		"total":   o.TotalAmount,
	})
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.cmds.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		a.log.Error().Err(err).Msg("get order failed")
		writeError(w, http.StatusInternalServerError, "could not load order")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (a *API) getOrderEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.cmds.OrderHistory(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.log.Error().Err(err).Msg("get order events failed")
		writeError(w, http.StatusInternalServerError, "could not load order events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
