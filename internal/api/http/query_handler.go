package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"nft-rental-escrow/internal/custody"
	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
	"nft-rental-escrow/internal/metrics"
	"nft-rental-escrow/internal/repository"
	"nft-rental-escrow/internal/taskqueue"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// QueryHandler serves read-only views of rentals, holdings and queued tasks.
// All writes go through the gRPC Submit call.
type QueryHandler struct {
	store     repository.Store
	custodian *custody.Custodian
	queue     taskqueue.Queue
	checks    map[string]HealthCheck
}

func NewQueryHandler(store repository.Store, custodian *custody.Custodian, queue taskqueue.Queue, checks map[string]HealthCheck) *QueryHandler {
	return &QueryHandler{store: store, custodian: custodian, queue: queue, checks: checks}
}

// RegisterRoutes registers the query, health and metrics endpoints
func RegisterRoutes(router *mux.Router, h *QueryHandler, m *metrics.Metrics) {
	router.HandleFunc("/healthz", h.HandleHealth).Methods("GET")
	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods("GET")
	}

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/rentals/{address}", h.HandleGetRental).Methods("GET")
	v1.HandleFunc("/owners/{owner}/rentals", h.HandleListByOwner).Methods("GET")
	v1.HandleFunc("/derive", h.HandleDerive).Methods("GET")
	v1.HandleFunc("/holdings/{unit}/{owner}", h.HandleGetHolding).Methods("GET")
	v1.HandleFunc("/tasks/{slot}", h.HandleGetTask).Methods("GET")
	v1.HandleFunc("/crankers/{address}/rewards", h.HandleGetRewards).Methods("GET")
}

func (h *QueryHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	statuses := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.Warn("Health check failed", "dependency", name, "error", err)
			statuses[name] = err.Error()
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"healthy": healthy, "checks": statuses})
}

func (h *QueryHandler) HandleGetRental(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	rec, err := h.store.Rentals().Get(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *QueryHandler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	recs, err := h.store.Rentals().ListByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.RentalRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleDerive returns the record address a List by owner of asset would use.
func (h *QueryHandler) HandleDerive(w http.ResponseWriter, r *http.Request) {
	asset, err := domain.ParseAddress(r.URL.Query().Get("asset"))
	if err != nil {
		http.Error(w, "Invalid asset parameter", http.StatusBadRequest)
		return
	}
	owner, err := domain.ParseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		http.Error(w, "Invalid owner parameter", http.StatusBadRequest)
		return
	}
	record, bump, err := h.custodian.RecordAddress(asset, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": record, "bump": bump})
}

func (h *QueryHandler) HandleGetHolding(w http.ResponseWriter, r *http.Request) {
	unit, ok := pathAddress(w, r, "unit")
	if !ok {
		return
	}
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	holding, err := h.store.Holdings().Get(r.Context(), unit, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holding)
}

func (h *QueryHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.queue.Get(r.Context(), mux.Vars(r)["slot"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *QueryHandler) HandleGetRewards(w http.ResponseWriter, r *http.Request) {
	cranker, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	earned, err := h.queue.Rewards(r.Context(), cranker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cranker": cranker, "rewards": earned})
}

func pathAddress(w http.ResponseWriter, r *http.Request, name string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(mux.Vars(r)[name])
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return domain.ZeroAddress, false
	}
	return addr, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, taskqueue.ErrTaskNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		logger.Error("Query failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
