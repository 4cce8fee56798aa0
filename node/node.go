// Package node wires the consensus engine to its collaborators: storage,
// networking, metrics, and the process lifecycle.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stratumlabs/stratum/config"
	"github.com/stratumlabs/stratum/crypto"
	"github.com/stratumlabs/stratum/engine"
	"github.com/stratumlabs/stratum/networking"
	"github.com/stratumlabs/stratum/observability/metrics"
	"github.com/stratumlabs/stratum/storage"
	"github.com/stratumlabs/stratum/storage/memory"
	"github.com/stratumlabs/stratum/storage/pebblestore"
	"github.com/stratumlabs/stratum/types"
)

// Node is the top-level consensus client.
type Node struct {
	cfg    *config.Config
	logger *slog.Logger

	engine  *engine.Engine
	net     *networking.Service
	db      storage.Store
	metrics *http.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options carry host-supplied collaborators. State and Mempool default to
// the engine's in-process stand-ins; Keys are the locally hosted validator
// keys.
type Options struct {
	Logger  *slog.Logger
	State   engine.StateEngine
	Mempool engine.Mempool
	Keys    []crypto.PrivateKey
}

// storageBlockSource serves req/resp block fetches from persistent storage,
// which is safe to read outside the consensus task.
type storageBlockSource struct {
	db storage.Store
}

func (s storageBlockSource) BlockByHash(hash types.Hash) (*types.Block, bool) {
	block, err := s.db.GetBlock(hash)
	if err != nil {
		return nil, false
	}
	return block, true
}

// New assembles a node from configuration.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Node, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var db storage.Store
	var err error
	if cfg.DataDir != "" {
		db, err = pebblestore.Open(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	} else {
		db = memory.New()
	}

	registry := prometheus.NewRegistry()
	mets := metrics.New(registry)

	n := &Node{cfg: cfg, logger: logger, db: db}

	host, err := networking.NewHost(ctx, networking.HostConfig{ListenAddrs: cfg.ListenAddrs})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create host: %w", err)
	}

	handlers := &networking.MessageHandlers{
		OnBlock: func(ctx context.Context, block *types.Block, from peer.ID) error {
			err := n.engine.IngestBlock(ctx, block)
			if errors.Is(err, engine.ErrOrphaned) || errors.Is(err, engine.ErrDuplicateBlock) {
				return nil
			}
			return err
		},
		OnAttestation: func(ctx context.Context, att *types.Attestation, from peer.ID) error {
			return n.engine.IngestAttestation(ctx, att)
		},
	}

	netSvc, err := networking.NewService(ctx, networking.ServiceConfig{
		Host:         host,
		Handlers:     handlers,
		Bootnodes:    networking.ParseBootnodes(cfg.Bootnodes),
		SlotDuration: cfg.SlotDuration(),
		BlockSource:  storageBlockSource{db: db},
		Logger:       logger,
	})
	if err != nil {
		host.Close()
		db.Close()
		return nil, fmt.Errorf("create networking service: %w", err)
	}
	n.net = netSvc

	eng, err := engine.New(cfg, engine.Deps{
		Network: netSvc,
		State:   opts.State,
		Mempool: opts.Mempool,
		DB:      db,
		Metrics: mets,
		Logger:  logger,
		Keys:    opts.Keys,
	})
	if err != nil {
		netSvc.Stop()
		db.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	n.engine = eng

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		n.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}
	return n, nil
}

// Start launches networking, the consensus task, and the metrics endpoint.
func (n *Node) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	n.net.Start()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("consensus task stopped", "error", err)
		}
	}()

	if n.metrics != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				n.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	n.logger.Info("node started",
		"genesis_time", n.cfg.GenesisTime,
		"validators", len(n.cfg.GenesisValidators),
	)
}

// Stop shuts the node down in reverse start order.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	if n.metrics != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
		_ = n.metrics.Shutdown(shutdownCtx)
		done()
	}
	n.wg.Wait()
	n.net.Stop()
	if err := n.db.Close(); err != nil {
		n.logger.Error("close storage failed", "error", err)
	}
	n.logger.Info("node stopped")
}

// Engine exposes the consensus engine for status queries.
func (n *Node) Engine() *engine.Engine { return n.engine }

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int { return n.net.PeerCount() }
