package server

import "github.com/wesleyorama2/latprof/internal/transport"

// Utilization is the share of elapsed time the server spent handling
// packets.
type Utilization struct {
	TotalUs      float64 `json:"totalUs"`
	ProcessingUs float64 `json:"processingUs"`
	Percent      float64 `json:"percent"`
}

// IdleAccounting measures elapsed cycles from the first inbound packet.
// Until a packet arrives the baseline follows the clock, so time spent
// waiting for the first client is not counted as idle.
type IdleAccounting struct {
	start uint64
}

// NewIdleAccounting anchors the baseline at now.
func NewIdleAccounting(now uint64) *IdleAccounting {
	return &IdleAccounting{start: now}
}

// Observe is called once per tick.
func (a *IdleAccounting) Observe(now uint64, firstPacketReceived bool) {
	if !firstPacketReceived {
		a.start = now
	}
}

// Start returns the current baseline.
func (a *IdleAccounting) Start() uint64 { return a.start }

// Ratio converts the elapsed and non-idle cycles to microseconds. Processing
// time never exceeds elapsed time and the percentage stays in [0, 100].
func (a *IdleAccounting) Ratio(now, nonIdle uint64, freqGHz float64) Utilization {
	var elapsed uint64
	if now > a.start {
		elapsed = now - a.start
	}
	processing := min(nonIdle, elapsed)

	u := Utilization{
		TotalUs:      transport.ToUsec(elapsed, freqGHz),
		ProcessingUs: transport.ToUsec(processing, freqGHz),
	}
	if elapsed > 0 {
		u.Percent = float64(processing) / float64(elapsed) * 100
	}
	return u
}
