package consensus

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// retargetRegime describes the difficulty adjustment rules in force from a
// given activation height. The network's two hard forks each shortened the
// retarget window while tightening the allowed per-adjustment swing, and
// the second additionally blends a longer observation window to smooth the
// noise of the very short one. Keeping the rules in a table means a future
// fork is a data change, not new branching.
type retargetRegime struct {
	// activation is the first height, inclusive, governed by this regime.
	activation int64

	// timespan is the nominal retarget window length in seconds.
	timespan int64

	// clampNum/clampDen bound the observed timespan to
	// [timespan*num/den, timespan*den/num] before retargeting.
	clampNum int64
	clampDen int64

	// longWindow blends a 4x-interval observation window with 25% damping.
	longWindow bool
}

// regimesFor returns the regime table for a network, newest first. The
// active regime is the first whose activation height is at or below the
// candidate height.
func regimesFor(params *Params) [3]retargetRegime {
	return [3]retargetRegime{
		{
			activation: params.ForkTwoHeight,
			timespan:   7 * 86400 / 32,
			clampNum:   453,
			clampDen:   494,
			longWindow: true,
		},
		{
			activation: params.ForkOneHeight,
			timespan:   7 * 86400 / 8,
			clampNum:   70,
			clampDen:   99,
		},
		{
			activation: 0,
			timespan:   params.TargetTimespan,
			clampNum:   1,
			clampDen:   4,
		},
	}
}

// regimeAt selects the regime governing the given height.
func regimeAt(params *Params, height int64) retargetRegime {
	regimes := regimesFor(params)
	for _, r := range regimes {
		if height >= r.activation {
			return r
		}
	}
	// The base regime activates at height 0 and heights are non-negative.
	return regimes[len(regimes)-1]
}

// RetargetSchedule returns the retarget interval in blocks and the nominal
// window timespan in seconds governing a block at the given height.
func RetargetSchedule(params *Params, height int64) (interval, timespan int64) {
	regime := regimeAt(params, height)
	return regime.timespan / params.TargetSpacing, regime.timespan
}

// IsRetargetHeight reports whether the block at the given height recomputes
// the target rather than carrying it forward: interval boundaries and fork
// activations. Networks with retargeting disabled never retarget.
func IsRetargetHeight(params *Params, height int64) bool {
	if params.NoRetargeting || height <= 0 {
		return false
	}
	if height == params.ForkOneHeight || height == params.ForkTwoHeight {
		return true
	}
	interval, _ := RetargetSchedule(params, height)
	if interval < 1 {
		return false
	}
	return height%interval == 0
}

// NextWorkRequired computes the compact target bits a block extending tip
// must satisfy. candidateTime is the timestamp of the block under
// construction or validation, in unix seconds; it only influences the
// result on test networks with min-difficulty relief enabled.
//
// The function is pure and safe for concurrent use. A nil tip, a retarget
// window reaching below genesis, or a missing ancestor the window requires
// all indicate a corrupted or misused chain index and panic rather than
// return a meaningless target.
func NextWorkRequired(tip ChainPosition, candidateTime int64, params *Params) uint32 {
	if tip == nil {
		panic("consensus: NextWorkRequired called with nil chain tip")
	}

	height := tip.Height() + 1
	regime := regimeAt(params, height)
	timespan := regime.timespan

	interval := timespan / params.TargetSpacing
	if interval < 1 {
		panic(fmt.Sprintf("consensus: retarget interval %d below 1 "+
			"(timespan %d, spacing %d)", interval, timespan, params.TargetSpacing))
	}

	// A fork activation always forces a retarget, even mid-interval, so
	// the new window rules take effect immediately.
	hardFork := height == params.ForkOneHeight || height == params.ForkTwoHeight

	// Off the retarget boundary the target carries forward unchanged,
	// except for the min-difficulty relief rule on test networks.
	if height%interval != 0 && !hardFork {
		if params.AllowMinDifficulty {
			// A gap of more than twice the target spacing permits a
			// minimum-difficulty block so a stalled low-hashrate chain
			// keeps moving.
			if candidateTime > tip.Time()+2*params.TargetSpacing {
				return params.PowLimitBits
			}
			// Otherwise inherit the last real difficulty, skipping over
			// any run of relief blocks. Inheriting a relief block's easy
			// bits would let difficulty oscillate downward permanently.
			pos := tip
			for {
				parent := pos.Parent()
				if parent == nil || pos.Height()%interval == 0 ||
					pos.Bits() != params.PowLimitBits {
					break
				}
				pos = parent
			}
			return pos.Bits()
		}
		return tip.Bits()
	}

	// Fixed-difficulty networks never retarget.
	if params.NoRetargeting {
		return tip.Bits()
	}

	firstHeight := tip.Height() - (interval - 1)
	if firstHeight < 0 {
		panic(fmt.Sprintf("consensus: retarget window start %d below genesis "+
			"at height %d", firstHeight, height))
	}
	first := tip.AncestorAt(firstHeight)
	if first == nil {
		panic(fmt.Sprintf("consensus: missing retarget window ancestor "+
			"at height %d", firstHeight))
	}

	actualTimespan := tip.Time() - first.Time()

	if regime.longWindow {
		// Blend in a window four intervals long, scaled back down, then
		// damp 75% toward the nominal timespan. The short post-fork
		// window reacts fast but is noisy on its own.
		longCount := interval * 4
		pos := tip
		for i := int64(0); pos != nil && i < longCount; i++ {
			pos = pos.Parent()
		}
		if pos == nil {
			panic(fmt.Sprintf("consensus: chain shorter than long retarget "+
				"window of %d blocks at height %d", longCount, height))
		}
		longTimespan := (tip.Time() - pos.Time()) / 4

		average := (actualTimespan + longTimespan) / 2
		actualTimespan = (average + 3*timespan) / 4
	}

	// Bound the adjustment step to the regime's allowed deviation.
	minTimespan := timespan * regime.clampNum / regime.clampDen
	maxTimespan := timespan * regime.clampDen / regime.clampNum
	if actualTimespan < minTimespan {
		actualTimespan = minTimespan
	}
	if actualTimespan > maxTimespan {
		actualTimespan = maxTimespan
	}

	// Scale the previous target by observed/nominal, multiplying before
	// dividing. When the target sits within one bit of the pow limit the
	// multiply could carry past 256 bits, so drop a bit first and restore
	// it after.
	newTarget, _, _ := CompactToBig(tip.Bits())
	shifted := newTarget.BitLen() > params.PowLimit.BitLen()-1
	if shifted {
		newTarget.Rsh(newTarget, 1)
	}
	newTarget.Mul(newTarget, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(timespan))
	if shifted {
		newTarget.Lsh(newTarget, 1)
	}

	// Never easier than the network floor.
	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget.Set(params.PowLimit)
	}

	return BigToCompact(newTarget)
}

// CheckProofOfWork reports whether a block hash satisfies the claimed
// compact target bits under the given network rules. The bits must decode
// to a positive, non-overflowing target no easier than the pow limit, and
// the hash interpreted as a 256-bit magnitude must not exceed the target.
// Strictly boolean: invalid inputs fail validation, they never panic.
func CheckProofOfWork(hash *chainhash.Hash, bits uint32, params *Params) bool {
	target, negative, overflow := CompactToBig(bits)

	if negative || target.Sign() == 0 || overflow ||
		target.Cmp(params.PowLimit) > 0 {
		return false
	}

	return HashToBig(hash).Cmp(target) <= 0
}
