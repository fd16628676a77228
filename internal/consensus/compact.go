package consensus

import (
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	// bigOne is 1 as a big.Int, shared to avoid repeated allocation.
	bigOne = big.NewInt(1)

	// oneLsh256 is 1 << 256, the modulus of the 256-bit magnitude space.
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
)

// CompactToBig decodes the compact target representation used in block
// headers into a 256-bit magnitude plus its negative and overflow flags.
//
// The encoding is a base-256 floating point number packed into 32 bits:
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// N = (-1^sign) * mantissa * 256^(exponent-3)
//
// The negative flag is set when the sign bit is set and the mantissa is
// nonzero. The overflow flag is set when a nonzero mantissa shifted by the
// exponent would not fit in 256 bits. Targets are unsigned in practice, but
// both flags are part of the consensus surface: the exact exponent/mantissa
// combinations that flag overflow must match the reference network, so the
// boundary conditions below are deliberate and must not be "cleaned up".
func CompactToBig(bits uint32) (n *big.Int, negative bool, overflow bool) {
	exponent := bits >> 24
	word := bits & 0x007fffff

	// The exponent counts the bytes of the full number, with the mantissa
	// holding the top three. Shift accordingly. For exponents of three or
	// less the shift happens inside the word, and the flags below observe
	// the shifted value.
	if exponent <= 3 {
		word >>= 8 * (3 - exponent)
		n = new(big.Int).SetUint64(uint64(word))
	} else {
		n = new(big.Int).SetUint64(uint64(word))
		n.Lsh(n, uint(8*(exponent-3)))
	}

	negative = word != 0 && bits&0x00800000 != 0
	overflow = word != 0 && ((exponent > 34) ||
		(word > 0xff && exponent > 33) ||
		(word > 0xffff && exponent > 32))
	return n, negative, overflow
}

// BigToCompact encodes a 256-bit magnitude into compact form. The mantissa
// carries only 23 bits of precision, so larger magnitudes keep just their
// most significant digits. For every in-range non-negative n,
// CompactToBig(BigToCompact(n)) round-trips with both flags clear.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	// The exponent is the byte length of the magnitude. Pull the top three
	// bytes into the mantissa, shifting left for short values.
	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		// Work on a copy so the caller's value is untouched.
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// A mantissa with bit 23 set would collide with the sign bit, so slide
	// it down a byte and bump the exponent to compensate.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// HashToBig converts a block hash into the 256-bit magnitude compared
// against targets. Hashes are stored little endian while big.Int wants big
// endian, so the bytes are reversed.
func HashToBig(hash *chainhash.Hash) *big.Int {
	buf := *hash
	blen := len(buf)
	for i := 0; i < blen/2; i++ {
		buf[i], buf[blen-1-i] = buf[blen-1-i], buf[i]
	}
	return new(big.Int).SetBytes(buf[:])
}

// CalcWork returns the expected number of hashes needed to find a block at
// the given target bits, used to compare cumulative chain work. Defined as
// 2^256 / (target + 1); zero for invalid (negative or overflowing) bits.
func CalcWork(bits uint32) *big.Int {
	target, negative, overflow := CompactToBig(bits)
	if target.Sign() <= 0 || negative || overflow {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// Difficulty returns the human-readable difficulty ratio for the given
// target bits: how many times harder than the network's pow limit the
// target is. Metrics and operator output only, never consensus.
func Difficulty(bits uint32, params *Params) float64 {
	target, negative, overflow := CompactToBig(bits)
	if target.Sign() <= 0 || negative || overflow {
		return 0
	}

	ratio := new(big.Rat).SetFrac(params.PowLimit, target)
	diff, _ := ratio.Float64()
	return diff
}
