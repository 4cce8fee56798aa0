package engine

import (
	"context"

	"github.com/stratumlabs/stratum/crypto"
	"github.com/stratumlabs/stratum/types"
)

// Network is the outbound capability set toward the gossip layer.
type Network interface {
	BroadcastBlock(ctx context.Context, block *types.Block) error
	BroadcastAttestation(ctx context.Context, att *types.Attestation) error
	RequestBlockByHash(ctx context.Context, hash types.Hash) error
}

// StateEngine applies a block's transactions against a prior state root.
// Must be pure with respect to its inputs and deterministic.
type StateEngine interface {
	ApplyBlock(prevStateRoot types.Hash, txs []types.Transaction) (types.Hash, error)
}

// Mempool supplies pending transactions for block building, best-effort
// ordered under the gas limit.
type Mempool interface {
	PendingTransactions(gasLimit uint64) []types.Transaction
}

// NopNetwork drops every outbound message. Used by tests and solo nodes.
type NopNetwork struct{}

func (NopNetwork) BroadcastBlock(context.Context, *types.Block) error { return nil }

func (NopNetwork) BroadcastAttestation(context.Context, *types.Attestation) error { return nil }

func (NopNetwork) RequestBlockByHash(context.Context, types.Hash) error { return nil }

// NopMempool has no pending transactions.
type NopMempool struct{}

func (NopMempool) PendingTransactions(uint64) []types.Transaction { return nil }

// HashStateEngine is a deterministic stand-in state engine: the new root is
// the digest of the previous root and the transaction list. Real deployments
// inject the execution layer instead.
type HashStateEngine struct{}

func (HashStateEngine) ApplyBlock(prev types.Hash, txs []types.Transaction) (types.Hash, error) {
	buf := append([]byte(nil), prev[:]...)
	for i := range txs {
		buf = txs[i].AppendCanonical(buf)
	}
	return crypto.Hash(buf), nil
}
