// Copyright 2025 The Climate Authors
// SPDX-License-Identifier: Apache-2.0

// Package api exposes the lease and host inventory operations over
// HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/scroiset/climate/internal/alloc"
	"github.com/scroiset/climate/internal/conf"
	"github.com/scroiset/climate/internal/constraint"
	"github.com/scroiset/climate/internal/db"
	"github.com/scroiset/climate/internal/fleet"
	"github.com/scroiset/climate/internal/inventory"
	"github.com/scroiset/climate/internal/manager"
	"github.com/scroiset/climate/internal/pool"
	"github.com/scroiset/climate/internal/store"
)

type HTTPAPI interface {
	// Bind the server handlers.
	Init(*http.ServeMux)
}

type httpAPI struct {
	service   *manager.Service
	inventory *inventory.Inventory
	config    conf.APIConfig
	monitor   Monitor
}

func NewAPI(config conf.APIConfig, service *manager.Service, inv *inventory.Inventory, m Monitor) HTTPAPI {
	return &httpAPI{service: service, inventory: inv, config: config, monitor: m}
}

// Init the API mux and bind the handlers.
func (api *httpAPI) Init(mux *http.ServeMux) {
	mux.HandleFunc("GET /up", api.Up)
	mux.HandleFunc("POST /v1/leases", api.CreateLease)
	mux.HandleFunc("GET /v1/leases", api.ListLeases)
	mux.HandleFunc("GET /v1/leases/{id}", api.GetLease)
	mux.HandleFunc("PUT /v1/leases/{id}", api.UpdateLease)
	mux.HandleFunc("DELETE /v1/leases/{id}", api.DeleteLease)
	mux.HandleFunc("POST /v1/hosts", api.CreateHost)
	mux.HandleFunc("GET /v1/hosts", api.ListHosts)
	mux.HandleFunc("GET /v1/hosts/{id}", api.GetHost)
	mux.HandleFunc("PUT /v1/hosts/{id}", api.UpdateHost)
	mux.HandleFunc("DELETE /v1/hosts/{id}", api.DeleteHost)
}

// Helper carrying the request through the handler, responding and
// observing the handling time on the way out.
type httpAPIhelper struct {
	api     *httpAPI
	w       http.ResponseWriter
	r       *http.Request
	pattern string
	t       time.Time
}

func (api *httpAPI) newHelper(w http.ResponseWriter, r *http.Request, pattern string) httpAPIhelper {
	return httpAPIhelper{api: api, w: w, r: r, pattern: pattern, t: time.Now()}
}

func (h httpAPIhelper) observe(code int) {
	if h.api.monitor.apiRequestsTimer != nil {
		observer := h.api.monitor.apiRequestsTimer.WithLabelValues(
			h.r.Method, h.pattern, strconv.Itoa(code),
		)
		observer.Observe(time.Since(h.t).Seconds())
	}
}

// Respond with the JSON encoding of v.
func (h httpAPIhelper) respond(code int, v any) {
	h.observe(code)
	h.w.Header().Set("Content-Type", "application/json")
	h.w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(h.w).Encode(v); err != nil {
		slog.Error("api: failed to encode response", "error", err)
	}
}

// Respond with the status code matching the error's place in the error
// taxonomy. Internal details stay out of the response body.
func (h httpAPIhelper) fail(err error) {
	code := http.StatusInternalServerError
	text := "internal error"
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, fleet.ErrPoolNotFound),
		errors.Is(err, fleet.ErrHostNotFound):
		code, text = http.StatusNotFound, "not found"
	case errors.Is(err, db.ErrDuplicateEntry):
		code, text = http.StatusConflict, "duplicate entry"
	case errors.Is(err, alloc.ErrInsufficientResources),
		errors.Is(err, inventory.ErrHostHasServers),
		errors.Is(err, inventory.ErrHostAllocated),
		errors.Is(err, pool.ErrPoolHasHosts):
		code, text = http.StatusConflict, err.Error()
	case errors.Is(err, manager.ErrInvalidDate),
		errors.Is(err, manager.ErrInvalidWindow),
		errors.Is(err, manager.ErrUnsupportedResourceType),
		errors.Is(err, alloc.ErrInvalidCountRange),
		errors.Is(err, constraint.ErrMalformed),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, store.ErrUnknownEventType),
		errors.Is(err, inventory.ErrUnknownCapability):
		code, text = http.StatusBadRequest, err.Error()
	}
	slog.Error("api: request failed", "method", h.r.Method, "url", h.r.URL.Path, "error", err)
	h.observe(code)
	http.Error(h.w, text, code)
}

func (api *httpAPI) Up(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (api *httpAPI) CreateLease(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/leases")
	defer r.Body.Close()
	var req manager.LeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(http.StatusBadRequest, map[string]string{"error": "failed to decode request body"})
		return
	}
	lease, err := api.service.CreateLease(r.Context(), req)
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusCreated, lease)
}

func (api *httpAPI) ListLeases(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/leases")
	leases, err := api.service.ListLeases(r.URL.Query().Get("project_id"))
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, leases)
}

func (api *httpAPI) GetLease(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/leases/{id}")
	lease, err := api.service.GetLease(r.PathValue("id"))
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, lease)
}

func (api *httpAPI) UpdateLease(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/leases/{id}")
	defer r.Body.Close()
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(http.StatusBadRequest, map[string]string{"error": "failed to decode request body"})
		return
	}
	lease, err := api.service.UpdateLease(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, lease)
}

func (api *httpAPI) DeleteLease(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/leases/{id}")
	if err := api.service.DeleteLease(r.Context(), r.PathValue("id")); err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusNoContent, nil)
}

func (api *httpAPI) CreateHost(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/hosts")
	defer r.Body.Close()
	var req struct {
		Name         string            `json:"name"`
		Capabilities map[string]string `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(http.StatusBadRequest, map[string]string{"error": "failed to decode request body"})
		return
	}
	host, err := api.inventory.AddHost(r.Context(), req.Name, req.Capabilities)
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusCreated, host)
}

func (api *httpAPI) ListHosts(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/hosts")
	hosts, err := api.inventory.ListHosts()
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, hosts)
}

func (api *httpAPI) GetHost(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/hosts/{id}")
	host, err := api.inventory.GetHost(r.PathValue("id"))
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, host)
}

func (api *httpAPI) UpdateHost(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/hosts/{id}")
	defer r.Body.Close()
	var req struct {
		Capabilities map[string]string `json:"capabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(http.StatusBadRequest, map[string]string{"error": "failed to decode request body"})
		return
	}
	id := r.PathValue("id")
	if err := api.inventory.UpdateHost(r.Context(), id, req.Capabilities); err != nil {
		h.fail(err)
		return
	}
	host, err := api.inventory.GetHost(id)
	if err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusOK, host)
}

func (api *httpAPI) DeleteHost(w http.ResponseWriter, r *http.Request) {
	h := api.newHelper(w, r, "/v1/hosts/{id}")
	if err := api.inventory.RemoveHost(r.Context(), r.PathValue("id")); err != nil {
		h.fail(err)
		return
	}
	h.respond(http.StatusNoContent, nil)
}
