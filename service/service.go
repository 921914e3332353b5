package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-suite/metrics"
)

// Service runs the HTTP side servers next to the suites
type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	healthzAddr string
	metricsAddr string
	log         log.Logger
}

// NewService creates the servers enabled in cfg
func NewService(cfg *Config) *Service {
	s := &Service{
		Healthz:     NewHealthzServer(cfg.Log),
		Metrics:     &MetricsServer{},
		healthzAddr: cfg.HealthzAddr,
		log:         cfg.Log,
	}
	if cfg.Metrics.Enabled {
		s.metricsAddr = net.JoinHostPort(cfg.Metrics.ListenAddr, strconv.Itoa(cfg.Metrics.ListenPort))
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.healthzAddr != "" {
		go func() {
			s.log.Info("starting healthz server", "addr", s.healthzAddr)
			if err := s.Healthz.Start(ctx, s.healthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.metricsAddr != "" {
		go func() {
			s.log.Info("starting metrics server", "addr", s.metricsAddr)
			if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
}
