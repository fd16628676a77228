package consensus

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// testChain is a contiguous run of headers backing chain positions in
// tests. blocks[i] describes the block at height base+i.
type testChain struct {
	base   int64
	blocks []testBlock
}

type testBlock struct {
	time int64
	bits uint32
}

type testPos struct {
	chain  *testChain
	height int64
}

func (c *testChain) at(height int64) ChainPosition {
	if height < c.base || height >= c.base+int64(len(c.blocks)) {
		return nil
	}
	return &testPos{chain: c, height: height}
}

func (c *testChain) tip() ChainPosition {
	return c.at(c.base + int64(len(c.blocks)) - 1)
}

func (p *testPos) Height() int64 { return p.height }

func (p *testPos) Time() int64 {
	return p.chain.blocks[p.height-p.chain.base].time
}

func (p *testPos) Bits() uint32 {
	return p.chain.blocks[p.height-p.chain.base].bits
}

func (p *testPos) Parent() ChainPosition {
	return p.chain.at(p.height - 1)
}

func (p *testPos) AncestorAt(height int64) ChainPosition {
	if height > p.height {
		return nil
	}
	return p.chain.at(height)
}

// uniformChain builds a chain of count blocks starting at base, with
// the block at base stamped startTime and each successor spacing
// seconds later, all carrying the same bits.
func uniformChain(base, count, startTime, spacing int64, bits uint32) *testChain {
	blocks := make([]testBlock, count)
	for i := range blocks {
		blocks[i] = testBlock{time: startTime + int64(i)*spacing, bits: bits}
	}
	return &testChain{base: base, blocks: blocks}
}

// scaleTarget mirrors the retarget arithmetic for expected values:
// decode, multiply by the observed timespan, divide by the nominal one,
// cap at the pow limit, re-encode.
func scaleTarget(t *testing.T, bits uint32, actual, nominal int64, params *Params) uint32 {
	t.Helper()
	target, negative, overflow := CompactToBig(bits)
	if negative || overflow {
		t.Fatalf("bad previous bits %08x in test vector", bits)
	}
	target.Mul(target, big.NewInt(actual))
	target.Div(target, big.NewInt(nominal))
	if target.Cmp(params.PowLimit) > 0 {
		target.Set(params.PowLimit)
	}
	return BigToCompact(target)
}

func TestNextWorkRequiredOffBoundary(t *testing.T) {
	params := &MainNetParams

	// Heights 0..99, candidate at 100, nowhere near the 2016 boundary.
	chain := uniformChain(0, 100, 1296688602, 600, 0x1c0ffff0)
	tip := chain.tip()

	got := NextWorkRequired(tip, tip.Time()+600, params)
	if got != 0x1c0ffff0 {
		t.Errorf("off-boundary bits = %08x, want unchanged %08x", got, uint32(0x1c0ffff0))
	}

	// A huge gap changes nothing on mainnet; relief is a testnet rule.
	got = NextWorkRequired(tip, tip.Time()+100*600, params)
	if got != 0x1c0ffff0 {
		t.Errorf("off-boundary bits after gap = %08x, want unchanged %08x",
			got, uint32(0x1c0ffff0))
	}
}

func TestNextWorkRequiredBaseRegime(t *testing.T) {
	params := &MainNetParams
	interval := params.TargetTimespan / params.TargetSpacing // 2016

	tests := []struct {
		name     string
		spacing  int64
		prevBits uint32
		want     func(actual int64) uint32
	}{
		{
			name:     "on schedule keeps target",
			spacing:  600,
			prevBits: 0x1c0ffff0,
			want: func(actual int64) uint32 {
				return scaleTarget(t, 0x1c0ffff0, actual, params.TargetTimespan, params)
			},
		},
		{
			name:     "fast blocks clamp to quarter timespan",
			spacing:  50, // observed 100750s, far under the 302400s floor
			prevBits: 0x1c0ffff0,
			want: func(int64) uint32 {
				return scaleTarget(t, 0x1c0ffff0, params.TargetTimespan/4,
					params.TargetTimespan, params)
			},
		},
		{
			name:     "slow blocks clamp to quadruple timespan",
			spacing:  3000, // observed 6045000s, over the 4838400s ceiling
			prevBits: 0x1c0ffff0,
			want: func(int64) uint32 {
				return scaleTarget(t, 0x1c0ffff0, params.TargetTimespan*4,
					params.TargetTimespan, params)
			},
		},
		{
			name:     "easing is capped at the pow limit",
			spacing:  3000,
			prevBits: params.PowLimitBits,
			want: func(int64) uint32 {
				return params.PowLimitBits
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Tip at interval-1 makes the candidate the first boundary.
			chain := uniformChain(0, interval, 1296688602, tt.spacing, tt.prevBits)
			tip := chain.tip()
			actual := tip.Time() - chain.at(0).Time()

			got := NextWorkRequired(tip, tip.Time()+tt.spacing, params)
			if want := tt.want(actual); got != want {
				t.Errorf("retarget bits = %08x, want %08x", got, want)
			}
		})
	}
}

func TestNextWorkRequiredForkOneForcesRetarget(t *testing.T) {
	params := &MainNetParams

	// 33120 is not a multiple of the legacy 2016 interval, yet the fork
	// activation retargets anyway, under the new 126-block window.
	if params.ForkOneHeight%2016 == 0 {
		t.Fatal("fork height accidentally on the legacy boundary")
	}

	timespan := int64(7 * 86400 / 8)
	interval := timespan / params.TargetSpacing // 126

	chain := uniformChain(params.ForkOneHeight-interval-10, interval+10,
		1400000000, 600, 0x1b0404cb)
	tip := chain.tip()
	if tip.Height() != params.ForkOneHeight-1 {
		t.Fatalf("test chain tip at %d, want %d", tip.Height(), params.ForkOneHeight-1)
	}

	first := tip.AncestorAt(tip.Height() - (interval - 1))
	actual := tip.Time() - first.Time()

	got := NextWorkRequired(tip, tip.Time()+600, params)
	want := scaleTarget(t, 0x1b0404cb, actual, timespan, params)
	if got != want {
		t.Errorf("fork retarget bits = %08x, want %08x", got, want)
	}
	if got == tip.Bits() {
		t.Error("fork activation did not retarget")
	}
}

func TestNextWorkRequiredForkTwoLongWindow(t *testing.T) {
	params := &MainNetParams

	timespan := int64(7 * 86400 / 32) // 18900
	interval := timespan / params.TargetSpacing
	longCount := interval * 4

	// Perfectly spaced blocks still move the target slightly: the
	// damping pulls the blended observation toward the nominal
	// timespan, which integer truncation left the windows short of.
	spacing := int64(600)
	chain := uniformChain(params.ForkTwoHeight-longCount-10, longCount+10,
		1500000000, spacing, 0x1a2b3c4d)
	tip := chain.tip()
	if tip.Height() != params.ForkTwoHeight-1 {
		t.Fatalf("test chain tip at %d, want %d", tip.Height(), params.ForkTwoHeight-1)
	}

	shortSpan := (interval - 1) * spacing
	longSpan := longCount * spacing / 4
	average := (shortSpan + longSpan) / 2
	damped := (average + 3*timespan) / 4

	minSpan := timespan * 453 / 494
	maxSpan := timespan * 494 / 453
	if damped < minSpan {
		damped = minSpan
	}
	if damped > maxSpan {
		damped = maxSpan
	}

	got := NextWorkRequired(tip, tip.Time()+spacing, params)
	want := scaleTarget(t, 0x1a2b3c4d, damped, timespan, params)
	if got != want {
		t.Errorf("long-window retarget bits = %08x, want %08x", got, want)
	}
}

func TestNextWorkRequiredMinDifficulty(t *testing.T) {
	params := &TestNetParams

	t.Run("stalled chain gets relief", func(t *testing.T) {
		chain := uniformChain(0, 101, 1000, 600, 0x1c0ffff0)
		tip := chain.tip()

		// More than twice the spacing since the tip.
		got := NextWorkRequired(tip, tip.Time()+2*params.TargetSpacing+1, params)
		if got != params.PowLimitBits {
			t.Errorf("relief bits = %08x, want pow limit %08x", got, params.PowLimitBits)
		}
	})

	t.Run("on-pace block skips relief run", func(t *testing.T) {
		// The last three blocks were mined at minimum difficulty; a
		// block arriving on schedule must inherit the last real bits,
		// not the relief ones.
		chain := uniformChain(0, 101, 1000, 600, 0x1c0ffff0)
		for i := 98; i <= 100; i++ {
			chain.blocks[i].bits = params.PowLimitBits
		}
		tip := chain.tip()

		got := NextWorkRequired(tip, tip.Time()+600, params)
		if got != 0x1c0ffff0 {
			t.Errorf("inherited bits = %08x, want last real %08x", got, uint32(0x1c0ffff0))
		}
	})

	t.Run("walk stops at retarget boundary", func(t *testing.T) {
		// Every block since genesis is a relief block. Height 0 is a
		// boundary, so the walk ends there and returns its bits even
		// though they are the relief bits.
		chain := uniformChain(0, 5, 1000, 600, params.PowLimitBits)
		tip := chain.tip()

		got := NextWorkRequired(tip, tip.Time()+600, params)
		if got != params.PowLimitBits {
			t.Errorf("boundary walk bits = %08x, want %08x", got, params.PowLimitBits)
		}
	})
}

func TestNextWorkRequiredNoRetargeting(t *testing.T) {
	params := &RegressionNetParams
	interval := params.TargetTimespan / params.TargetSpacing

	// A single known block right before a boundary: no ancestors are
	// ever consulted when retargeting is off.
	chain := uniformChain(interval-1, 1, 1000, 600, params.PowLimitBits)
	tip := chain.tip()

	got := NextWorkRequired(tip, tip.Time()+600, params)
	if got != params.PowLimitBits {
		t.Errorf("no-retargeting bits = %08x, want %08x", got, params.PowLimitBits)
	}
}

func TestNextWorkRequiredPanics(t *testing.T) {
	mustPanic := func(t *testing.T, name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		fn()
	}

	t.Run("nil tip", func(t *testing.T) {
		mustPanic(t, "nil tip", func() {
			NextWorkRequired(nil, 1000, &MainNetParams)
		})
	})

	t.Run("missing window ancestor", func(t *testing.T) {
		params := &MainNetParams
		interval := params.TargetTimespan / params.TargetSpacing

		// Tip right before a boundary, but the chain only stores the
		// last 10 blocks, so the window start cannot be resolved.
		chain := uniformChain(interval-10, 10, 1000, 600, 0x1c0ffff0)
		tip := chain.tip()
		mustPanic(t, "missing ancestor", func() {
			NextWorkRequired(tip, tip.Time()+600, params)
		})
	})

	t.Run("window below genesis", func(t *testing.T) {
		// A fork activating low enough that its window would reach
		// below height zero.
		params := MainNetParams
		params.ForkOneHeight = 10
		params.ForkTwoHeight = 10000000

		chain := uniformChain(0, 10, 1000, 600, 0x1c0ffff0)
		tip := chain.tip()
		mustPanic(t, "window below genesis", func() {
			NextWorkRequired(tip, tip.Time()+600, &params)
		})
	})

	t.Run("interval below one", func(t *testing.T) {
		params := MainNetParams
		params.TargetSpacing = 100000
		params.ForkOneHeight = 0
		params.ForkTwoHeight = 0

		chain := uniformChain(0, 1, 1000, 600, 0x1c0ffff0)
		tip := chain.tip()
		mustPanic(t, "interval below one", func() {
			NextWorkRequired(tip, tip.Time()+600, &params)
		})
	})
}

func TestCheckProofOfWork(t *testing.T) {
	params := &MainNetParams

	// bigToHash writes a magnitude into little-endian hash form.
	bigToHash := func(t *testing.T, n *big.Int) *chainhash.Hash {
		t.Helper()
		var hash chainhash.Hash
		b := n.Bytes()
		if len(b) > len(hash) {
			t.Fatalf("magnitude %x exceeds 256 bits", n)
		}
		for i, v := range b {
			hash[len(b)-1-i] = v
		}
		return &hash
	}

	target, _, _ := CompactToBig(0x1c0ffff0)

	t.Run("hash equal to target passes", func(t *testing.T) {
		if !CheckProofOfWork(bigToHash(t, target), 0x1c0ffff0, params) {
			t.Error("hash equal to target rejected")
		}
	})

	t.Run("hash one above target fails", func(t *testing.T) {
		above := new(big.Int).Add(target, big.NewInt(1))
		if CheckProofOfWork(bigToHash(t, above), 0x1c0ffff0, params) {
			t.Error("hash above target accepted")
		}
	})

	t.Run("zero hash passes any valid target", func(t *testing.T) {
		var zero chainhash.Hash
		if !CheckProofOfWork(&zero, params.PowLimitBits, params) {
			t.Error("zero hash rejected")
		}
	})

	t.Run("negative target fails", func(t *testing.T) {
		var zero chainhash.Hash
		if CheckProofOfWork(&zero, 0x03923456, params) {
			t.Error("negative target accepted")
		}
	})

	t.Run("overflowing target fails", func(t *testing.T) {
		var zero chainhash.Hash
		if CheckProofOfWork(&zero, 0x23000001, params) {
			t.Error("overflowing target accepted")
		}
	})

	t.Run("zero target fails", func(t *testing.T) {
		var zero chainhash.Hash
		if CheckProofOfWork(&zero, 0, params) {
			t.Error("zero target accepted")
		}
	})

	t.Run("target above pow limit fails", func(t *testing.T) {
		var zero chainhash.Hash
		if CheckProofOfWork(&zero, 0x1e00ffff, params) {
			t.Error("target easier than the pow limit accepted")
		}
	})
}

func TestRegimeSelection(t *testing.T) {
	params := &MainNetParams

	tests := []struct {
		height   int64
		timespan int64
	}{
		{0, params.TargetTimespan},
		{params.ForkOneHeight - 1, params.TargetTimespan},
		{params.ForkOneHeight, 7 * 86400 / 8},
		{params.ForkTwoHeight - 1, 7 * 86400 / 8},
		{params.ForkTwoHeight, 7 * 86400 / 32},
		{params.ForkTwoHeight + 1000000, 7 * 86400 / 32},
	}

	for _, tt := range tests {
		if got := regimeAt(params, tt.height); got.timespan != tt.timespan {
			t.Errorf("regimeAt(%d).timespan = %d, want %d",
				tt.height, got.timespan, tt.timespan)
		}
	}
}
