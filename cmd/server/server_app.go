package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	crawlv1 "github.com/SanjoDeundiak/crawl-runner/api/v1"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/history"
	"github.com/SanjoDeundiak/crawl-runner/pkg/lib/supervisor"
)

const shutdownTimeout = 10 * time.Second

// GRPCServer pairs a gRPC server with its listener.
type GRPCServer struct {
	lis net.Listener
	s   *grpc.Server
}

// NewGRPCServer registers svc on a server bound to lis. With tlsConfig set the
// server requires client certificates (mTLS); without it every caller is the
// local identity.
func NewGRPCServer(lis net.Listener, svc crawlv1.CrawlServiceServer, tlsConfig *tls.Config, logger *zap.Logger) *GRPCServer {
	identify := identifyLocal
	var opts []grpc.ServerOption
	if tlsConfig != nil {
		identify = extractSpiffeIdFromTls
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(injectSpiffeIdUnary(identify), logUnary(logger)),
		grpc.ChainStreamInterceptor(injectSpiffeIdStream(identify)),
	)

	s := grpc.NewServer(opts...)
	crawlv1.RegisterCrawlServiceServer(s, svc)
	return &GRPCServer{lis: lis, s: s}
}

// Serve starts serving gRPC on the configured listener.
func (g *GRPCServer) Serve() error {
	return g.s.Serve(g.lis)
}

// Addr returns the network address the server is bound to.
func (g *GRPCServer) Addr() net.Addr { return g.lis.Addr() }

// Stop gracefully stops the gRPC server.
func (g *GRPCServer) Stop() { g.s.GracefulStop() }

func logUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc", zap.String("method", info.FullMethod), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return resp, err
	}
}

// serverTLSConfig builds the mTLS config from PEM material.
func serverTLSConfig(certPEM, keyPEM, caPEM string) (*tls.Config, error) {
	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}

	caPool := x509.NewCertPool()
	if ok := caPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
		return nil, errors.New("failed to append CA certificate to pool")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// App is the whole daemon: supervisor, history, gRPC and the HTTP side listener.
type App struct {
	logger  *zap.Logger
	sup     *supervisor.Supervisor
	history *history.Store
	grpc    *GRPCServer

	httpLis net.Listener
	http    *http.Server
}

func NewApp(cfg Config, logger *zap.Logger) (app *App, err error) {
	var tlsConfig *tls.Config
	if !cfg.Insecure {
		if tlsConfig, err = serverTLSConfig(cfg.TLSCert, cfg.TLSKey, cfg.CATLSCert); err != nil {
			return nil, err
		}
	}

	// Everything opened so far is released if a later step fails.
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	store, err := history.Open(cfg.HistoryDir)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	cleanup = append(cleanup, func() { _ = store.Close() })

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := supervisor.NewMetrics(registry)

	opts := append(cfg.supervisorOptions(),
		supervisor.WithLogger(logger.Named("supervisor")),
		supervisor.WithMetrics(metrics),
		supervisor.WithRecorder(store),
	)
	sup := supervisor.New(supervisor.NewCLILauncher(cfg.CrawlerCommand...), opts...)
	cleanup = append(cleanup, func() { _ = sup.Close() })

	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	cleanup = append(cleanup, func() { _ = lis.Close() })

	svc := NewCrawlServiceServer(sup, store, cfg.HistoryLimit, logger.Named("server"))
	app = &App{
		logger:  logger,
		sup:     sup,
		history: store,
		grpc:    NewGRPCServer(lis, svc, tlsConfig, logger.Named("grpc")),
	}

	if cfg.MetricsAddress != "" {
		httpLis, err := net.Listen("tcp", cfg.MetricsAddress)
		if err != nil {
			return nil, fmt.Errorf("failed to listen for metrics: %w", err)
		}
		app.httpLis = httpLis
		app.http = &http.Server{Handler: newHTTPRouter(sup, registry), ReadHeaderTimeout: 5 * time.Second}
	}
	return app, nil
}

func (a *App) Addr() net.Addr { return a.grpc.Addr() }

// Run serves until ctx is done or a listener fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.grpc.Serve(); err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	if a.http != nil {
		g.Go(func() error {
			if err := a.http.Serve(a.httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve metrics: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	return g.Wait()
}

// shutdown kills a live crawl first: closing the supervisor ends the event
// stream, which lets following Watch calls return before GracefulStop.
func (a *App) shutdown() {
	a.logger.Info("shutting down")
	_ = a.sup.Close()
	a.grpc.Stop()
	if a.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.http.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics listener shutdown", zap.Error(err))
		}
	}
	if err := a.history.Close(); err != nil {
		a.logger.Warn("closing run history", zap.Error(err))
	}
}

func newHTTPRouter(sup *supervisor.Supervisor, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap := sup.Status()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"state":  snap.State.String(),
			"run_id": snap.RunID,
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return r
}
