package model

import "time"

type SlotOrigin string

const (
	SlotFromRule      SlotOrigin = "rule"
	SlotFromException SlotOrigin = "exception"
)

// Slot is a generated fixed-duration window. It is never persisted.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
	Origin    SlotOrigin
	// Timezone is the IANA zone of the rule or exception the window was cut in.
	Timezone string
}
