package consensus

// ChainPosition is a read-only view of one confirmed block in the
// already-validated chain, as exposed by the chain index. Heights increase
// by exactly one along Parent links, and a position at or below any
// published height is immutable, so concurrent readers are safe without
// locking in this package.
//
// Ownership of the underlying storage stays with the chain index; positions
// are cheap non-owning handles and may be copied freely.
type ChainPosition interface {
	// Height returns the block height, non-negative, genesis at 0.
	Height() int64

	// Time returns the block timestamp in unix seconds.
	Time() int64

	// Bits returns the compact target bits from the block header.
	Bits() uint32

	// Parent returns the immediate predecessor, or nil at genesis.
	Parent() ChainPosition

	// AncestorAt returns the unique ancestor at the given height, or nil
	// if the height is outside this position's history.
	AncestorAt(height int64) ChainPosition
}
