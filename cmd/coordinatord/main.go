// Command coordinatord hosts the Cypress transaction coordinator core as
// a long-running daemon: an in-memory Sequoia store, a raft-backed
// per-cell state machine, a gRPC health/reflection surface, and a
// Prometheus metrics endpoint. It starts no QUIC listener: actions are
// routed only to the local cell's state machine. This is the same kind of
// flag-driven, component-by-component
// startup sequence gojodb_server/main.go follows (raft, then gRPC, then
// HTTP), adapted to this daemon's own components.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/cypressdb/coordinator/internal/actions"
	"github.com/cypressdb/coordinator/internal/cellfsm"
	"github.com/cypressdb/coordinator/internal/config"
	"github.com/cypressdb/coordinator/internal/mutation"
	"github.com/cypressdb/coordinator/internal/obslog"
	"github.com/cypressdb/coordinator/internal/plans"
	"github.com/cypressdb/coordinator/internal/sequoia"
)

var configPath = flag.String("config", "", "path to a coordinator.yaml config file; defaults are used if empty")

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "coordinatord: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := obslog.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordinatord: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tracerProvider := sdktrace.NewTracerProvider()
	defer tracerProvider.Shutdown(context.Background())

	registry := prometheus.NewRegistry()
	metrics := mutation.NewMetrics(registry)

	router := actions.NewRouter()
	store := sequoia.NewStore(nil, router)

	cell := cellfsm.New()
	raftLogger := obslog.For(logger, cfg.Log, "raft")
	raftNode, err := startRaft(cfg, cell, raftLogger)
	if err != nil {
		raftLogger.Fatal("failed to start raft", zap.Error(err))
	}
	cell.Attach(raftNode)
	router.Register(cfg.LocalCellTag, cell)

	invoker := mutation.NewInvoker(8)
	defer invoker.Close()
	coord := plans.NewCoordinator(store, invoker, obslog.For(logger, cfg.Log, "plans"), metrics, cfg.LocalCellTag, cell)

	grpcServer := startGRPCServer(cfg, obslog.For(logger, cfg.Log, "grpc"))
	metricsServer := startMetricsServer(cfg, registry, obslog.For(logger, cfg.Log, "metrics"))

	logger.Info("coordinatord started",
		zap.Uint32("local_cell_tag", uint32(cfg.LocalCellTag)),
		zap.String("raft_bind_address", cfg.RaftBindAddress),
		zap.Int("registered_cells", 1))

	// coord is the entry point a client-facing RPC service would call
	// into; wiring that RPC surface is out of scope here (spec.md §1
	// scopes out "client-facing RPC plumbing"), so coordinatord runs
	// with its coordinator reachable only in-process for now.
	registerDebugCoordinator(coord)

	waitForShutdown(logger, grpcServer, metricsServer)
}

func startRaft(cfg config.Config, fsm raft.FSM, logger *zap.Logger) (*raft.Raft, error) {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.RaftID)
	raftConfig.Logger = hclog.New(&hclog.LoggerOptions{Name: "raft", Level: hclog.Info})

	dataDir := filepath.Join(cfg.RaftDataDir, cfg.RaftID)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("coordinatord: raft data dir: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.RaftBindAddress)
	if err != nil {
		return nil, fmt.Errorf("coordinatord: resolve raft address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.RaftBindAddress, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinatord: raft transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("coordinatord: snapshot store: %w", err)
	}

	boltDB, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("coordinatord: bolt store: %w", err)
	}

	raftNode, err := raft.NewRaft(raftConfig, fsm, boltDB, boltDB, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("coordinatord: new raft: %w", err)
	}

	if cfg.Bootstrap {
		servers := []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}}
		for _, p := range cfg.Peers {
			servers = append(servers, raft.Server{ID: raft.ServerID(p.RaftID), Address: raft.ServerAddress(p.Address)})
		}
		future := raftNode.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := future.Error(); err != nil {
			return nil, fmt.Errorf("coordinatord: bootstrap raft cluster: %w", err)
		}
		logger.Info("bootstrapped raft cluster", zap.Int("peers", len(servers)))
	}

	return raftNode, nil
}

func startGRPCServer(cfg config.Config, logger *zap.Logger) *grpc.Server {
	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	lis, err := net.Listen("tcp", cfg.GRPCListenAddress)
	if err != nil {
		logger.Fatal("failed to listen for gRPC", zap.Error(err), zap.String("address", cfg.GRPCListenAddress))
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("address", cfg.GRPCListenAddress))
		if err := server.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()
	return server
}

func startMetricsServer(cfg config.Config, registry *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsListenAddress, Handler: mux}
	go func() {
		logger.Info("metrics server listening", zap.String("address", cfg.MetricsListenAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return server
}

// registerDebugCoordinator is the seam a future client-facing RPC
// service would hang off of; it is a no-op today beyond keeping coord
// reachable for that purpose.
func registerDebugCoordinator(coord *plans.Coordinator) {
	_ = coord
}

func waitForShutdown(logger *zap.Logger, grpcServer *grpc.Server, metricsServer *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down coordinatord")
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
