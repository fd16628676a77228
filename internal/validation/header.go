// Package validation provides contextual validation of candidate block
// headers against the consensus rules: linkage to the current tip,
// timestamp sanity, required difficulty, and proof of work.
package validation

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vertachain/vertad/internal/consensus"
)

// HeaderValidator validates candidate headers extending a known tip
type HeaderValidator struct {
	params         *consensus.Params
	maxFutureDrift time.Duration
}

// NewHeaderValidator creates a new header validator
func NewHeaderValidator(params *consensus.Params, maxFutureDrift time.Duration) *HeaderValidator {
	return &HeaderValidator{
		params:         params,
		maxFutureDrift: maxFutureDrift,
	}
}

// ValidateCandidate performs full contextual validation of a candidate
// header extending tip. tipHash is the hash of the tip block, which the
// chain position interface does not carry. now is the validator's wall
// clock in unix seconds.
func (v *HeaderValidator) ValidateCandidate(candidate *CandidateHeader, tip consensus.ChainPosition, tipHash chainhash.Hash, now int64) error {
	if err := v.validateLinkage(candidate, tip, tipHash); err != nil {
		return fmt.Errorf("linkage validation failed: %w", err)
	}

	if err := v.validateTime(candidate, now); err != nil {
		return fmt.Errorf("time validation failed: %w", err)
	}

	if err := v.validateRequiredBits(candidate, tip); err != nil {
		return fmt.Errorf("difficulty validation failed: %w", err)
	}

	if err := v.validateProofOfWork(candidate); err != nil {
		return fmt.Errorf("proof of work validation failed: %w", err)
	}

	return nil
}

// validateLinkage checks the candidate actually extends the tip
func (v *HeaderValidator) validateLinkage(candidate *CandidateHeader, tip consensus.ChainPosition, tipHash chainhash.Hash) error {
	if tip == nil {
		return fmt.Errorf("no chain tip to extend")
	}

	if candidate.Height != tip.Height()+1 {
		return fmt.Errorf("candidate height %d does not extend tip height %d",
			candidate.Height, tip.Height())
	}

	if candidate.PrevHash != tipHash {
		return fmt.Errorf("candidate prev hash %s does not match tip hash %s",
			candidate.PrevHash, tipHash)
	}

	return nil
}

// validateTime checks the candidate timestamp is not absurdly far ahead
func (v *HeaderValidator) validateTime(candidate *CandidateHeader, now int64) error {
	if candidate.Time <= 0 {
		return fmt.Errorf("candidate timestamp %d is not positive", candidate.Time)
	}

	maxTime := now + int64(v.maxFutureDrift.Seconds())
	if candidate.Time > maxTime {
		return fmt.Errorf("candidate timestamp %d more than %s in the future",
			candidate.Time, v.maxFutureDrift)
	}

	return nil
}

// validateRequiredBits checks the claimed bits equal the required target
func (v *HeaderValidator) validateRequiredBits(candidate *CandidateHeader, tip consensus.ChainPosition) error {
	required := consensus.NextWorkRequired(tip, candidate.Time, v.params)
	if candidate.Bits != required {
		return fmt.Errorf("candidate bits %08x do not match required bits %08x",
			candidate.Bits, required)
	}
	return nil
}

// validateProofOfWork checks the hash satisfies the claimed bits
func (v *HeaderValidator) validateProofOfWork(candidate *CandidateHeader) error {
	if !consensus.CheckProofOfWork(&candidate.Hash, candidate.Bits, v.params) {
		return fmt.Errorf("hash %s does not satisfy target bits %08x",
			candidate.Hash, candidate.Bits)
	}
	return nil
}
