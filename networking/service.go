package networking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/stratumlabs/stratum/types"
)

var ErrNoPeers = errors.New("no connected peers")

// MessageHandlers are the inbound callbacks into the consensus engine.
type MessageHandlers struct {
	OnBlock       func(ctx context.Context, block *types.Block, from peer.ID) error
	OnAttestation func(ctx context.Context, att *types.Attestation, from peer.ID) error
}

// ServiceConfig holds configuration for the networking service.
type ServiceConfig struct {
	Host         host.Host
	Handlers     *MessageHandlers
	Bootnodes    []peer.AddrInfo
	SlotDuration time.Duration
	BlockSource  BlockSource
	Logger       *slog.Logger
}

// Service ties the gossip topics and the req/resp protocol to the engine.
// It implements the engine's outbound Network capability set.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	reqresp  *reqrespHandler
	logger   *slog.Logger

	blockTopic       *pubsub.Topic
	blockSub         *pubsub.Subscription
	attestationTopic *pubsub.Topic
	attestationSub   *pubsub.Subscription

	failedBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates the networking service and joins the consensus topics.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ps, err := NewGossipSub(ctx, cfg.Host, cfg.SlotDuration)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	blockTopic, err := ps.Join(BlockTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join block topic: %w", err)
	}
	attestationTopic, err := ps.Join(AttestationTopic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join attestation topic: %w", err)
	}
	blockSub, err := blockTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe block topic: %w", err)
	}
	attestationSub, err := attestationTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe attestation topic: %w", err)
	}

	svc := &Service{
		host:             cfg.Host,
		pubsub:           ps,
		handlers:         cfg.Handlers,
		logger:           logger,
		blockTopic:       blockTopic,
		blockSub:         blockSub,
		attestationTopic: attestationTopic,
		attestationSub:   attestationSub,
		ctx:              ctx,
		cancel:           cancel,
	}
	svc.reqresp = newReqRespHandler(cfg.Host, cfg.BlockSource, logger)
	svc.reqresp.register()

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.Warn("failed to connect to bootnode", "peer", pi.ID, "error", err)
			svc.failedBootnodes = append(svc.failedBootnodes, pi)
		} else {
			logger.Info("connected to bootnode", "peer", pi.ID)
		}
	}
	return svc, nil
}

// Start launches the subscription loops.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.processBlocks()
	go s.processAttestations()

	if len(s.failedBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.Info("networking service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

// Stop shuts down the networking service.
func (s *Service) Stop() {
	s.cancel()
	s.blockSub.Cancel()
	s.attestationSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("networking service stopped")
}

// BroadcastBlock publishes a block to the network.
func (s *Service) BroadcastBlock(ctx context.Context, block *types.Block) error {
	return s.blockTopic.Publish(ctx, CompressMessage(block.AppendCanonical(nil)))
}

// BroadcastAttestation publishes an attestation to the network.
func (s *Service) BroadcastAttestation(ctx context.Context, att *types.Attestation) error {
	return s.attestationTopic.Publish(ctx, CompressMessage(att.AppendCanonical(nil)))
}

// RequestBlockByHash fetches a block from a connected peer and hands it to
// the block handler as if it had arrived on gossip.
func (s *Service) RequestBlockByHash(ctx context.Context, hash types.Hash) error {
	peers := s.host.Network().Peers()
	if len(peers) == 0 {
		return ErrNoPeers
	}

	var lastErr error
	for _, pid := range peers {
		block, err := s.reqresp.requestBlock(ctx, pid, hash)
		if err != nil {
			lastErr = err
			continue
		}
		if s.handlers != nil && s.handlers.OnBlock != nil {
			return s.handlers.OnBlock(ctx, block, pid)
		}
		return nil
	}
	return fmt.Errorf("request block %s: %w", hash.Short(), lastErr)
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

const bootnodeRetryInterval = 30 * time.Second

func (s *Service) retryBootnodes() {
	defer s.wg.Done()

	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedBootnodes {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					s.logger.Debug("bootnode reconnect failed", "peer", pi.ID, "error", err)
					remaining = append(remaining, pi)
				} else {
					s.logger.Info("reconnected to bootnode", "peer", pi.ID)
				}
			}
			s.failedBootnodes = remaining
			if len(s.failedBootnodes) == 0 {
				return
			}
		}
	}
}

func (s *Service) processBlocks() {
	defer s.wg.Done()

	for {
		msg, err := s.blockSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("block subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}

		data, err := DecompressMessage(msg.Data)
		if err != nil {
			s.logger.Debug("undecodable block message", "peer", msg.ReceivedFrom, "error", err)
			continue
		}
		block, err := types.DecodeBlock(data)
		if err != nil {
			s.logger.Debug("malformed block message", "peer", msg.ReceivedFrom, "error", err)
			continue
		}
		if s.handlers != nil && s.handlers.OnBlock != nil {
			if err := s.handlers.OnBlock(s.ctx, block, msg.ReceivedFrom); err != nil {
				s.logger.Debug("block rejected", "peer", msg.ReceivedFrom, "error", err)
			}
		}
	}
}

func (s *Service) processAttestations() {
	defer s.wg.Done()

	for {
		msg, err := s.attestationSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("attestation subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}

		data, err := DecompressMessage(msg.Data)
		if err != nil {
			s.logger.Debug("undecodable attestation message", "peer", msg.ReceivedFrom, "error", err)
			continue
		}
		att, err := types.DecodeAttestation(data)
		if err != nil {
			s.logger.Debug("malformed attestation message", "peer", msg.ReceivedFrom, "error", err)
			continue
		}
		if s.handlers != nil && s.handlers.OnAttestation != nil {
			if err := s.handlers.OnAttestation(s.ctx, att, msg.ReceivedFrom); err != nil {
				s.logger.Debug("attestation rejected", "peer", msg.ReceivedFrom, "error", err)
			}
		}
	}
}
