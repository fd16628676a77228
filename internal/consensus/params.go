// Package consensus implements the proof-of-work arithmetic core of the
// Verta network: compact target encoding, difficulty retargeting, and
// proof-of-work validation. Every function in this package is a pure,
// deterministic function of its inputs; any divergence between
// implementations forks the network, so the arithmetic here replicates the
// reference behavior bit for bit.
package consensus

import (
	"fmt"
	"math/big"
)

// Params holds the consensus rules of a Verta network. The fields are fixed
// at process start and never mutated; callers share a single instance.
type Params struct {
	// Name identifies the network (mainnet, testnet, regtest).
	Name string

	// PowLimit is the highest permitted target, i.e. the easiest allowed
	// difficulty, as a 256-bit magnitude.
	PowLimit *big.Int

	// PowLimitBits is PowLimit in compact form, as it appears in headers.
	PowLimitBits uint32

	// TargetTimespan is the nominal length of a retarget window in seconds.
	TargetTimespan int64

	// TargetSpacing is the nominal number of seconds between blocks.
	TargetSpacing int64

	// ForkOneHeight activates the first difficulty hard fork: the retarget
	// window shrinks to 7/8 days and the adjustment clamp tightens to
	// 99/70. Rules apply to this height inclusive.
	ForkOneHeight int64

	// ForkTwoHeight activates the second difficulty hard fork: the window
	// shrinks to 7/32 days, a 4x long window is blended in with damping,
	// and the clamp tightens to 494/453. Must be >= ForkOneHeight.
	ForkTwoHeight int64

	// AllowMinDifficulty permits minimum-difficulty blocks when the chain
	// stalls for more than twice the target spacing. Test networks only.
	AllowMinDifficulty bool

	// NoRetargeting disables difficulty adjustment entirely. Regression
	// test networks only.
	NoRetargeting bool
}

// Validate checks the structural invariants of the parameter set. It is
// called once at startup; a failure here is a deployment error.
func (p *Params) Validate() error {
	if p.PowLimit == nil || p.PowLimit.Sign() <= 0 {
		return fmt.Errorf("pow limit must be a positive 256-bit magnitude")
	}
	if p.PowLimit.BitLen() > 256 {
		return fmt.Errorf("pow limit exceeds 256 bits")
	}
	if p.TargetTimespan <= 0 {
		return fmt.Errorf("target timespan must be positive, got %d", p.TargetTimespan)
	}
	if p.TargetSpacing <= 0 {
		return fmt.Errorf("target spacing must be positive, got %d", p.TargetSpacing)
	}
	if p.ForkOneHeight > p.ForkTwoHeight {
		return fmt.Errorf("fork one height %d above fork two height %d",
			p.ForkOneHeight, p.ForkTwoHeight)
	}
	return nil
}

// hexToBig converts a hex string to a big integer. Only used on the
// hard-coded network parameters below, so errors are impossible by
// construction and treated as such.
func hexToBig(hexStr string) *big.Int {
	n, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("consensus: invalid hard-coded hex constant: " + hexStr)
	}
	return n
}

// MainNetParams defines the consensus rules for the main Verta network.
var MainNetParams = Params{
	Name:               "mainnet",
	PowLimit:           hexToBig("00000000ffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	PowLimitBits:       0x1d00ffff,
	TargetTimespan:     14 * 24 * 60 * 60, // two weeks
	TargetSpacing:      10 * 60,
	ForkOneHeight:      33120,
	ForkTwoHeight:      87948,
	AllowMinDifficulty: false,
	NoRetargeting:      false,
}

// TestNetParams defines the consensus rules for the public test network.
// It shares the mainnet schedule but allows min-difficulty blocks so the
// chain keeps moving when hashrate disappears.
var TestNetParams = Params{
	Name:               "testnet",
	PowLimit:           hexToBig("00000000ffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	PowLimitBits:       0x1d00ffff,
	TargetTimespan:     14 * 24 * 60 * 60,
	TargetSpacing:      10 * 60,
	ForkOneHeight:      2016,
	ForkTwoHeight:      4032,
	AllowMinDifficulty: true,
	NoRetargeting:      false,
}

// RegressionNetParams defines the consensus rules for local regression
// testing: an almost-unreachable pow limit and no retargeting at all.
var RegressionNetParams = Params{
	Name:               "regtest",
	PowLimit:           hexToBig("7fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"),
	PowLimitBits:       0x207fffff,
	TargetTimespan:     14 * 24 * 60 * 60,
	TargetSpacing:      10 * 60,
	ForkOneHeight:      100000000,
	ForkTwoHeight:      100000000,
	AllowMinDifficulty: true,
	NoRetargeting:      true,
}

// ParamsForNetwork returns the parameter set for a named network.
func ParamsForNetwork(name string) (*Params, error) {
	switch name {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet":
		return &TestNetParams, nil
	case "regtest":
		return &RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}
