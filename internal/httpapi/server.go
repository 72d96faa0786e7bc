// Package httpapi exposes the internal API surface: triggered payout
// processing for the scheduler, policy data for the pricing layer, and
// operational probes.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	aggrouter "github.com/triggerr/core/internal/aggregator/router"
	weatherdomain "github.com/triggerr/core/internal/app/domain/weather"
	"github.com/triggerr/core/internal/app/storage"
	"github.com/triggerr/core/internal/services/monitor"
	payoutengine "github.com/triggerr/core/internal/services/payout"
	"github.com/triggerr/core/internal/services/wallet"
	"github.com/triggerr/core/pkg/logger"
	"github.com/triggerr/core/pkg/metrics"
)

const internalAPIKeyHeader = "X-Internal-API-Key"

// Server wires the HTTP handlers.
type Server struct {
	router  *aggrouter.Router
	engine  *payoutengine.Engine
	monitor *monitor.Monitor
	wallets *wallet.Service
	apiKey  string
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New constructs the API server. monitor may be nil in on-demand deployments;
// wallets may be nil when no encryption secret is configured.
func New(router *aggrouter.Router, engine *payoutengine.Engine, mon *monitor.Monitor, wallets *wallet.Service, apiKey string, log *logger.Logger, m *metrics.Metrics) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		router:  router,
		engine:  engine,
		monitor: mon,
		wallets: wallets,
		apiKey:  apiKey,
		log:     log,
		metrics: m,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/internal").Subrouter()
	api.Use(s.requireInternalKey)
	api.HandleFunc("/payouts/process-triggered", s.handleProcessTriggered).Methods(http.MethodPost)
	api.HandleFunc("/policy-data", s.handlePolicyData).Methods(http.MethodPost)
	api.HandleFunc("/wallets", s.handleProvisionWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{userId}", s.handleLookupWallet).Methods(http.MethodGet)

	return s.instrument(r)
}

// requireInternalKey authenticates internal callers by shared secret.
func (s *Server) requireInternalKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			writeError(w, http.StatusServiceUnavailable, "internal API key not configured")
			return
		}
		supplied := r.Header.Get(internalAPIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid internal API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if s.metrics != nil {
			path := r.URL.Path
			s.metrics.RequestsTotal.WithLabelValues("core", r.Method, path, strconv.Itoa(recorder.status)).Inc()
			s.metrics.RequestDuration.WithLabelValues("core", r.Method, path).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if s.monitor != nil {
		payload["monitorRunning"] = s.monitor.Running()
		payload["monitorState"] = s.monitor.State()
	}
	writeJSON(w, http.StatusOK, payload)
}

type processTriggeredRequest struct {
	PolicyIDs   []string `json:"policyIds"`
	Reason      string   `json:"reason"`
	RequestedBy string   `json:"requestedBy"`
}

func (s *Server) handleProcessTriggered(w http.ResponseWriter, r *http.Request) {
	var req processTriggeredRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.PolicyIDs) == 0 {
		writeError(w, http.StatusBadRequest, "policyIds is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "external trigger"
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "internal-api"
	}

	summary := s.engine.ProcessTriggeredPayouts(r.Context(), req.PolicyIDs, req.Reason, req.RequestedBy)
	writeJSON(w, http.StatusOK, summary)
}

type policyDataRequest struct {
	FlightNumber       string    `json:"flightNumber"`
	Date               string    `json:"date"`
	Airports           []string  `json:"airports,omitempty"`
	IncludeWeather     *bool     `json:"includeWeather,omitempty"`
	WeatherCoordinates []coords  `json:"weatherCoordinates,omitempty"`
}

type coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (s *Server) handlePolicyData(w http.ResponseWriter, r *http.Request) {
	var req policyDataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FlightNumber == "" || req.Date == "" {
		writeError(w, http.StatusBadRequest, "flightNumber and date are required")
		return
	}

	routerReq := aggrouter.Request{
		FlightNumber:   req.FlightNumber,
		Date:           req.Date,
		Airports:       req.Airports,
		IncludeWeather: req.IncludeWeather,
	}
	for _, c := range req.WeatherCoordinates {
		routerReq.WeatherCoordinates = append(routerReq.WeatherCoordinates, weatherdomain.Coordinates{Lat: c.Lat, Lon: c.Lon})
	}

	bundle, err := s.router.GetDataForPolicy(r.Context(), routerReq)
	if err != nil {
		s.log.WithError(err).
			WithField("flight_number", req.FlightNumber).
			Warn("policy data request failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type provisionWalletRequest struct {
	UserID string `json:"userId"`
	Chain  string `json:"chain,omitempty"`
}

type walletResponse struct {
	WalletID  string `json:"walletId"`
	UserID    string `json:"userId"`
	Address   string `json:"address"`
	Chain     string `json:"chain"`
	IsPrimary bool   `json:"isPrimary"`
	Balance   string `json:"balance,omitempty"`
}

func (s *Server) handleProvisionWallet(w http.ResponseWriter, r *http.Request) {
	if s.wallets == nil {
		writeError(w, http.StatusServiceUnavailable, "wallet service not configured")
		return
	}
	var req provisionWalletRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	created, err := s.wallets.Provision(r.Context(), req.UserID, req.Chain)
	if err != nil {
		s.log.WithError(err).WithField("user_id", req.UserID).Warn("wallet provisioning failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	// The sealed secret never leaves the persistence layer.
	writeJSON(w, http.StatusOK, walletResponse{
		WalletID:  created.ID,
		UserID:    created.UserID,
		Address:   created.Address,
		Chain:     created.Chain,
		IsPrimary: created.IsPrimary,
	})
}

func (s *Server) handleLookupWallet(w http.ResponseWriter, r *http.Request) {
	if s.wallets == nil {
		writeError(w, http.StatusServiceUnavailable, "wallet service not configured")
		return
	}
	userID := mux.Vars(r)["userId"]

	found, info, err := s.wallets.Lookup(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{
		WalletID:  found.ID,
		UserID:    found.UserID,
		Address:   found.Address,
		Chain:     found.Chain,
		IsPrimary: found.IsPrimary,
		Balance:   info.Balance,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
