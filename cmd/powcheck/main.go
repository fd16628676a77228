// Package main implements powcheck, an operator tool for inspecting
// compact target bits and verifying block hashes against them.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vertachain/vertad/internal/consensus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("powcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	network := fs.String("network", "mainnet", "consensus network (mainnet, testnet, regtest)")
	bitsHex := fs.String("bits", "", "compact target bits as hex, e.g. 1d00ffff")
	hashStr := fs.String("hash", "", "block hash to check against the target (optional)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *bitsHex == "" {
		fmt.Fprintln(stderr, "powcheck: -bits is required")
		fs.Usage()
		return 2
	}

	params, err := consensus.ParamsForNetwork(*network)
	if err != nil {
		fmt.Fprintf(stderr, "powcheck: %v\n", err)
		return 2
	}

	bits64, err := strconv.ParseUint(*bitsHex, 16, 32)
	if err != nil {
		fmt.Fprintf(stderr, "powcheck: invalid bits %q: %v\n", *bitsHex, err)
		return 2
	}
	bits := uint32(bits64)

	target, negative, overflow := consensus.CompactToBig(bits)

	fmt.Fprintf(stdout, "network:    %s\n", params.Name)
	fmt.Fprintf(stdout, "bits:       %08x\n", bits)
	fmt.Fprintf(stdout, "target:     %064x\n", target)
	fmt.Fprintf(stdout, "difficulty: %g\n", consensus.Difficulty(bits, params))
	fmt.Fprintf(stdout, "work:       %s\n", consensus.CalcWork(bits))

	if negative {
		fmt.Fprintln(stdout, "status:     invalid (negative target)")
		return 1
	}
	if overflow {
		fmt.Fprintln(stdout, "status:     invalid (target overflows 256 bits)")
		return 1
	}
	if target.Sign() == 0 {
		fmt.Fprintln(stdout, "status:     invalid (zero target)")
		return 1
	}
	if target.Cmp(params.PowLimit) > 0 {
		fmt.Fprintf(stdout, "status:     invalid (easier than %s pow limit)\n", params.Name)
		return 1
	}

	if *hashStr == "" {
		fmt.Fprintln(stdout, "status:     valid target")
		return 0
	}

	hash, err := chainhash.NewHashFromStr(*hashStr)
	if err != nil {
		fmt.Fprintf(stderr, "powcheck: invalid hash %q: %v\n", *hashStr, err)
		return 2
	}

	if !consensus.CheckProofOfWork(hash, bits, params) {
		fmt.Fprintln(stdout, "status:     hash does NOT satisfy target")
		return 1
	}

	fmt.Fprintln(stdout, "status:     hash satisfies target")
	return 0
}
