// Package httpapi exposes flow creation and inspection over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/flow"
	"github.com/SirClappington/guildq/internal/logging"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type API struct {
	flows   *flow.Store
	service *flow.Service
	store   Pinger
	log     logging.Logger
}

func New(flows *flow.Store, service *flow.Service, store Pinger, log logging.Logger) *API {
	return &API{flows: flows, service: service, store: store, log: logging.OrNop(log)}
}

func (a *API) Router() http.Handler {
	rtr := chi.NewRouter()
	rtr.Use(middleware.RequestID)
	rtr.Use(middleware.Recoverer)

	rtr.Get("/healthz", a.health)
	rtr.Route("/v1/flows", func(rtr chi.Router) {
		rtr.Post("/", a.createFlow)
		rtr.Get("/{id}", a.getFlow)
		rtr.Delete("/{id}", a.deleteFlow)
	})
	return rtr
}

type createFlowResponse struct {
	FlowID domain.FlowID `json:"flowId"`
}

func (a *API) createFlow(w http.ResponseWriter, r *http.Request) {
	var opts domain.CreateAccessFlowOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := a.service.CreateAccessFlow(r.Context(), opts)
	if err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createFlowResponse{FlowID: id})
}

func (a *API) getFlow(w http.ResponseWriter, r *http.Request) {
	id := domain.FlowID(chi.URLParam(r, "id"))
	rec, err := a.flows.Get(r.Context(), id)
	if domain.IsFlowNotFound(err) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) deleteFlow(w http.ResponseWriter, r *http.Request) {
	id := domain.FlowID(chi.URLParam(r, "id"))
	if err := a.flows.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.log.Warn("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Error("request failed", "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
