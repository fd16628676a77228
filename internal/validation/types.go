package validation

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// CandidateHeader is the block header under evaluation, as assembled or
// parsed by an upstream collaborator. Read-only to this package.
type CandidateHeader struct {
	Height   int64
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Time     int64
	Bits     uint32
}
