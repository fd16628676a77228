package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vertachain/vertad/internal/chainindex"
)

// MockRPCClient provides a mock implementation of RPCInterface for testing.
type MockRPCClient struct {
	// Control mock behavior
	ShouldError bool
	ErrorMsg    string

	// Mock chain: headers by hash string plus the best tip
	Headers       map[string]chainindex.Header
	HashAtHeight  map[int64]string
	BlockCount    int64
	BestBlockHash string
}

// NewMockRPCClient creates a mock client seeded with a short chain.
func NewMockRPCClient() *MockRPCClient {
	m := &MockRPCClient{
		Headers:      make(map[string]chainindex.Header),
		HashAtHeight: make(map[int64]string),
	}

	var prev chainhash.Hash
	for height := int64(0); height <= 5; height++ {
		var hash chainhash.Hash
		// Synthetic but distinct hashes, one byte per height.
		hash[0] = byte(height + 1)
		header := chainindex.Header{
			Height:   height,
			Hash:     hash,
			PrevHash: prev,
			Time:     1500000000 + height*600,
			Bits:     0x1d00ffff,
		}
		m.Headers[hash.String()] = header
		m.HashAtHeight[height] = hash.String()
		prev = hash
	}

	m.BlockCount = 5
	m.BestBlockHash = m.HashAtHeight[5]
	return m
}

// GetBlockCount returns the mock chain height.
func (m *MockRPCClient) GetBlockCount(_ context.Context) (int64, error) {
	if m.ShouldError {
		return 0, errors.New(m.ErrorMsg)
	}
	return m.BlockCount, nil
}

// GetBestBlockHash returns the mock best block hash.
func (m *MockRPCClient) GetBestBlockHash(_ context.Context) (string, error) {
	if m.ShouldError {
		return "", errors.New(m.ErrorMsg)
	}
	return m.BestBlockHash, nil
}

// GetBlockHash returns the mock hash at a height.
func (m *MockRPCClient) GetBlockHash(_ context.Context, height int64) (string, error) {
	if m.ShouldError {
		return "", errors.New(m.ErrorMsg)
	}
	hash, ok := m.HashAtHeight[height]
	if !ok {
		return "", fmt.Errorf("no block at height %d", height)
	}
	return hash, nil
}

// GetBlockHeader returns the mock header for a hash.
func (m *MockRPCClient) GetBlockHeader(_ context.Context, hash string) (chainindex.Header, error) {
	if m.ShouldError {
		return chainindex.Header{}, errors.New(m.ErrorMsg)
	}
	header, ok := m.Headers[hash]
	if !ok {
		return chainindex.Header{}, fmt.Errorf("unknown block hash %s", hash)
	}
	return header, nil
}

// Ping always succeeds unless the mock is set to error.
func (m *MockRPCClient) Ping(_ context.Context) error {
	if m.ShouldError {
		return errors.New(m.ErrorMsg)
	}
	return nil
}

// Close is a no-op for the mock.
func (m *MockRPCClient) Close() {}

var _ RPCInterface = (*MockRPCClient)(nil)
