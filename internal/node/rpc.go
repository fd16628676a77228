// Package node provides the clients that follow a Verta full node: the
// JSON-RPC interface used to read chain state and header history, and the
// ZMQ subscriber that delivers new-block notifications. Header parsing and
// chain storage live elsewhere; this package only moves confirmed header
// data into the process.
package node

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/vertachain/vertad/internal/chainindex"
	"github.com/vertachain/vertad/pkg/circuit"
	"github.com/vertachain/vertad/pkg/errors"
	"github.com/vertachain/vertad/pkg/retry"
)

// RPCClient provides a high-level interface to the Verta node's JSON-RPC
// API. It wraps btcd's RPC client with circuit breaking and retry, and
// converts verbose header results into the index's header records.
type RPCClient struct {
	client         *rpcclient.Client
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewRPCClient creates a new node RPC client. The connection uses HTTP
// POST mode with TLS disabled, which is how local node deployments are
// typically exposed.
func NewRPCClient(host string, port int, username, password string) (*RPCClient, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", host, port),
		User:         username,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNode, "rpc_client_creation",
			"failed to create node RPC client").
			WithContext("host", host).
			WithContext("port", port)
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &RPCClient{
		client:         client,
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}, nil
}

// Close gracefully shuts down the RPC client and releases any resources.
func (c *RPCClient) Close() {
	c.client.Shutdown()
}

// Ping tests connectivity to the node.
func (c *RPCClient) Ping(ctx context.Context) error {
	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			if err := c.client.PingAsync().Receive(); err != nil {
				return errors.Wrap(err, errors.ErrorTypeNode, "ping",
					"failed to ping node")
			}
			return nil
		})
	})
}

// GetBlockCount returns the current best chain height.
func (c *RPCClient) GetBlockCount(ctx context.Context) (int64, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (int64, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (int64, error) {
			count, err := c.client.GetBlockCountAsync().Receive()
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeNode, "get_block_count",
					"failed to retrieve current block height")
			}
			return count, nil
		})
	})
}

// GetBestBlockHash returns the hash of the current best block.
func (c *RPCClient) GetBestBlockHash(ctx context.Context) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			hash, err := c.client.GetBestBlockHashAsync().Receive()
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeNode, "get_best_block_hash",
					"failed to retrieve best block hash")
			}
			return hash.String(), nil
		})
	})
}

// GetBlockHash returns the hash of the best-chain block at a height.
func (c *RPCClient) GetBlockHash(ctx context.Context, height int64) (string, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (string, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (string, error) {
			hash, err := c.client.GetBlockHashAsync(height).Receive()
			if err != nil {
				return "", errors.Wrap(err, errors.ErrorTypeNode, "get_block_hash",
					"failed to retrieve block hash").
					WithContext("height", height)
			}
			return hash.String(), nil
		})
	})
}

// GetBlockHeader retrieves a verbose block header by hash and converts it
// to the index header record.
func (c *RPCClient) GetBlockHeader(ctx context.Context, hash string) (chainindex.Header, error) {
	blockHash, err := chainhash.NewHashFromStr(hash)
	if err != nil {
		return chainindex.Header{}, errors.Wrap(err, errors.ErrorTypeValidation, "hash_parsing",
			"failed to parse block hash").
			WithContext("hash", hash)
	}

	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (chainindex.Header, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (chainindex.Header, error) {
			verbose, err := c.client.GetBlockHeaderVerboseAsync(blockHash).Receive()
			if err != nil {
				return chainindex.Header{}, errors.Wrap(err, errors.ErrorTypeNode, "get_block_header",
					"failed to retrieve block header").
					WithContext("block_hash", hash)
			}
			return HeaderFromVerbose(verbose)
		})
	})
}

// HeaderFromVerbose converts a verbose RPC header result into the index
// header record used throughout the service.
func HeaderFromVerbose(verbose *btcjson.GetBlockHeaderVerboseResult) (chainindex.Header, error) {
	hash, err := chainhash.NewHashFromStr(verbose.Hash)
	if err != nil {
		return chainindex.Header{}, errors.Wrap(err, errors.ErrorTypeValidation, "header_conversion",
			"invalid block hash in verbose header").
			WithContext("hash", verbose.Hash)
	}

	var prevHash chainhash.Hash
	if verbose.PreviousHash != "" {
		prev, err := chainhash.NewHashFromStr(verbose.PreviousHash)
		if err != nil {
			return chainindex.Header{}, errors.Wrap(err, errors.ErrorTypeValidation, "header_conversion",
				"invalid previous hash in verbose header").
				WithContext("prev_hash", verbose.PreviousHash)
		}
		prevHash = *prev
	}

	bits, err := ParseBits(verbose.Bits)
	if err != nil {
		return chainindex.Header{}, err
	}

	return chainindex.Header{
		Height:   int64(verbose.Height),
		Hash:     *hash,
		PrevHash: prevHash,
		Time:     verbose.Time,
		Bits:     bits,
	}, nil
}

// ParseBits parses the hex compact-bits string the RPC interface uses
// (e.g. "1d00ffff") into its numeric form.
func ParseBits(bitsHex string) (uint32, error) {
	bits, err := strconv.ParseUint(bitsHex, 16, 32)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeValidation, "bits_parsing",
			"invalid compact bits hex string").
			WithContext("bits", bitsHex)
	}
	return uint32(bits), nil
}
