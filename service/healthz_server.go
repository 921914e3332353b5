package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"

	"github.com/ethereum-optimism/infra/op-suite/types"
)

// BatchStatus summarises the last completed run of all selected suites
type BatchStatus struct {
	BatchID string                      `json:"batch_id"`
	Status  types.TestStatus            `json:"status"`
	Suites  map[string]types.TestStatus `json:"suites"`
}

type HealthzServer struct {
	srvMu  sync.Mutex
	ctx    context.Context
	server *http.Server
	log    log.Logger

	mu   sync.RWMutex
	last *BatchStatus
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	return &HealthzServer{log: logger}
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.srvMu.Lock()
	h.server = server
	h.ctx = ctx
	h.srvMu.Unlock()
	return server.ListenAndServe()
}

// Handler serves /healthz and /status
func (h *HealthzServer) Handler() http.Handler {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	hdlr.HandleFunc("/status", h.HandleStatus)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(hdlr)
}

func (h *HealthzServer) Shutdown() error {
	h.srvMu.Lock()
	defer h.srvMu.Unlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

// HandleStatus reports the last batch. It answers 503 until the first batch completes.
func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	last := h.last
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"pending"}`)) //nolint:errcheck
		return
	}
	if err := json.NewEncoder(w).Encode(last); err != nil {
		h.log.Error("Failed to encode status", "error", err)
	}
}

// SetStatus records the outcome of a batch
func (h *HealthzServer) SetStatus(status *BatchStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = status
}
