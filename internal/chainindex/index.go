// Package chainindex maintains the append-only header index the consensus
// core reads its chain history from. Headers are stored in a height-keyed
// arena, so predecessor and ancestor lookups are random access rather than
// pointer chasing, and positions handed out to callers are non-owning
// views into the arena.
package chainindex

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vertachain/vertad/internal/consensus"
)

// Header is one confirmed block header, reduced to the fields difficulty
// computation needs.
type Header struct {
	Height   int64
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Time     int64
	Bits     uint32
}

// Index is an append-only arena of confirmed headers, contiguous by height.
// Appends take the write lock; reads share the read lock. Once a header is
// published at a height it is never modified, so positions handed out
// earlier stay valid as the chain grows.
type Index struct {
	mu      sync.RWMutex
	base    int64
	entries []Header
}

// NewIndex creates an empty header index. The first appended header
// establishes the base height; retarget windows can only be computed once
// the index reaches back far enough to cover them.
func NewIndex() *Index {
	return &Index{}
}

// Append adds the next confirmed header to the index. After the first
// header, heights must increase by exactly one and each header must
// reference its predecessor's hash.
func (ix *Index) Append(h Header) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if h.Height < 0 {
		return fmt.Errorf("negative header height %d", h.Height)
	}

	if len(ix.entries) == 0 {
		ix.base = h.Height
		ix.entries = append(ix.entries, h)
		return nil
	}

	tip := ix.entries[len(ix.entries)-1]
	if h.Height != tip.Height+1 {
		return fmt.Errorf("non-contiguous header height %d after tip %d",
			h.Height, tip.Height)
	}
	if h.PrevHash != tip.Hash {
		return fmt.Errorf("header %d prev hash %s does not match tip hash %s",
			h.Height, h.PrevHash, tip.Hash)
	}

	ix.entries = append(ix.entries, h)
	return nil
}

// Load bulk-appends headers, typically from persistent storage at startup.
func (ix *Index) Load(headers []Header) error {
	for _, h := range headers {
		if err := ix.Append(h); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of indexed headers.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// BaseHeight returns the lowest indexed height, or -1 when empty.
func (ix *Index) BaseHeight() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return -1
	}
	return ix.base
}

// TipHeight returns the highest indexed height, or -1 when empty.
func (ix *Index) TipHeight() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return -1
	}
	return ix.base + int64(len(ix.entries)) - 1
}

// TipHeader returns a copy of the tip header, false when empty.
func (ix *Index) TipHeader() (Header, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return Header{}, false
	}
	return ix.entries[len(ix.entries)-1], true
}

// HeaderAt returns a copy of the header at a height, false if unindexed.
func (ix *Index) HeaderAt(height int64) (Header, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	h, ok := ix.headerAtLocked(height)
	return h, ok
}

func (ix *Index) headerAtLocked(height int64) (Header, bool) {
	if len(ix.entries) == 0 || height < ix.base {
		return Header{}, false
	}
	offset := height - ix.base
	if offset >= int64(len(ix.entries)) {
		return Header{}, false
	}
	return ix.entries[offset], true
}

// Tip returns the tip as a chain position for the consensus core, or nil
// when the index is empty.
func (ix *Index) Tip() consensus.ChainPosition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.entries) == 0 {
		return nil
	}
	return &position{ix: ix, height: ix.base + int64(len(ix.entries)) - 1}
}

// PositionAt returns the chain position at a height, or nil if unindexed.
func (ix *Index) PositionAt(height int64) consensus.ChainPosition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if _, ok := ix.headerAtLocked(height); !ok {
		return nil
	}
	return &position{ix: ix, height: height}
}

// position is a non-owning view of one indexed header. It stores only the
// height, so it stays cheap and remains valid as the arena grows.
type position struct {
	ix     *Index
	height int64
}

var _ consensus.ChainPosition = (*position)(nil)

func (p *position) header() Header {
	h, ok := p.ix.HeaderAt(p.height)
	if !ok {
		// Positions are only constructed for indexed heights and the
		// arena never shrinks, so this cannot happen through the API.
		panic(fmt.Sprintf("chainindex: position at unindexed height %d", p.height))
	}
	return h
}

// Height returns the block height of this position.
func (p *position) Height() int64 {
	return p.height
}

// Time returns the block timestamp in unix seconds.
func (p *position) Time() int64 {
	return p.header().Time
}

// Bits returns the compact target bits of the block header.
func (p *position) Bits() uint32 {
	return p.header().Bits
}

// Hash returns the block hash at this position.
func (p *position) Hash() chainhash.Hash {
	return p.header().Hash
}

// Parent returns the predecessor position, or nil at the base of the index.
func (p *position) Parent() consensus.ChainPosition {
	return p.AncestorAt(p.height - 1)
}

// AncestorAt returns the ancestor at the given height, or nil when the
// height is above this position or below the indexed range.
func (p *position) AncestorAt(height int64) consensus.ChainPosition {
	if height > p.height {
		return nil
	}
	if _, ok := p.ix.HeaderAt(height); !ok {
		return nil
	}
	return &position{ix: p.ix, height: height}
}
