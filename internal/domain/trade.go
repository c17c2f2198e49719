package domain

import "time"

// Fill is a realized trade recorded for audit and fan-out.
type Fill struct {
	RunID    string
	Seq      uint64 // processed-update count at which the trade happened
	OrderID  string
	Side     Side
	Price    float64
	Quantity float64
	Position float64 // net position after the fill
	Latency  time.Duration
	Time     time.Time // zero in replay runs
}

// RunReport summarizes a finished (or in-progress) run.
type RunReport struct {
	RunID          string
	Mode           string
	Symbol         string
	Processed      int64
	Malformed      int64
	Trades         int64
	Rejected       int64
	StartingEquity float64
	FinalEquity    float64
	NetPnL         float64
}
