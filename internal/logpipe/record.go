package logpipe

import "time"

// Record is one line per directional protocol event, tagged with the charge
// point identifier. Append-only: batched to the network sink and mirrored to
// the local file store.
type Record struct {
	ChargePointID string    `json:"cpId"`
	Direction     string    `json:"direction"`
	Raw           string    `json:"raw"`
	Timestamp     time.Time `json:"ts"`
}

// Shipping modes.
const (
	ModeBatch  = "batch"
	ModeAppend = "append"
)
