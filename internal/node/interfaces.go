package node

import (
	"context"

	"github.com/vertachain/vertad/internal/chainindex"
)

// RPCInterface defines the contract for node RPC operations the services
// depend on, allowing mocks in tests. All methods take a context for
// cancellation and timeout handling; errors follow Go conventions with
// wrapped causes.
type RPCInterface interface {
	// GetBlockCount returns the current best chain height.
	GetBlockCount(ctx context.Context) (int64, error)

	// GetBestBlockHash returns the hash of the current best block.
	GetBestBlockHash(ctx context.Context) (string, error)

	// GetBlockHash returns the best-chain block hash at a height.
	GetBlockHash(ctx context.Context, height int64) (string, error)

	// GetBlockHeader retrieves a block header by hash.
	GetBlockHeader(ctx context.Context, hash string) (chainindex.Header, error)

	// Ping tests connectivity to the node.
	Ping(ctx context.Context) error

	// Close gracefully shuts down the client.
	Close()
}

var _ RPCInterface = (*RPCClient)(nil)
