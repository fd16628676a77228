package messaging

import "time"

// TargetUpdateMessage announces the required compact target for the next
// block extending the named tip.
type TargetUpdateMessage struct {
	Network    string    `json:"network"`
	Height     int64     `json:"height"`
	TipHash    string    `json:"tip_hash"`
	TipHeight  int64     `json:"tip_height"`
	Bits       uint32    `json:"bits"`
	Target     string    `json:"target"`
	Difficulty float64   `json:"difficulty"`
	IsRetarget bool      `json:"is_retarget"`
	ComputedAt time.Time `json:"computed_at"`
}

// RetargetEventMessage describes a difficulty adjustment at a retarget
// boundary, including the observed window that drove it.
type RetargetEventMessage struct {
	Network        string    `json:"network"`
	Height         int64     `json:"height"`
	OldBits        uint32    `json:"old_bits"`
	NewBits        uint32    `json:"new_bits"`
	OldDifficulty  float64   `json:"old_difficulty"`
	NewDifficulty  float64   `json:"new_difficulty"`
	ActualTimespan int64     `json:"actual_timespan"`
	TargetTimespan int64     `json:"target_timespan"`
	ForkActivation bool      `json:"fork_activation"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ChainTipMessage announces a newly connected best tip.
type ChainTipMessage struct {
	Network     string    `json:"network"`
	Height      int64     `json:"height"`
	Hash        string    `json:"hash"`
	PrevHash    string    `json:"prev_hash"`
	Time        int64     `json:"time"`
	Bits        uint32    `json:"bits"`
	Difficulty  float64   `json:"difficulty"`
	ConnectedAt time.Time `json:"connected_at"`
}
