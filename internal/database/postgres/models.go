package postgres

import (
	"time"
)

// Header represents one confirmed block header row
type Header struct {
	Height     int64     `db:"height"`
	Hash       string    `db:"hash"`
	PrevHash   string    `db:"prev_hash"`
	Time       int64     `db:"time"`
	Bits       int64     `db:"bits"`
	Difficulty float64   `db:"difficulty"`
	InsertedAt time.Time `db:"inserted_at"`
}

// Retarget represents one recorded difficulty adjustment
type Retarget struct {
	ID             int64     `db:"id"`
	Height         int64     `db:"height"`
	OldBits        int64     `db:"old_bits"`
	NewBits        int64     `db:"new_bits"`
	ActualTimespan int64     `db:"actual_timespan"`
	TargetTimespan int64     `db:"target_timespan"`
	ForkActivation bool      `db:"fork_activation"`
	OccurredAt     time.Time `db:"occurred_at"`
}
