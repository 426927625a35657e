package kt

import (
	"sync/atomic"
)

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// For Prometheus integration, use NewStatsCollector.
type ClientStats struct {
	BinaryCalls uint64 // Requests written with the binary protocol
	TextCalls   uint64 // Requests written with TSV-RPC
	Gets        uint64 // Get and Seize calls
	GetHits     uint64 // Get and Seize calls that found the key
	Sets        uint64 // Set, Add, Replace and CAS calls
	Removes     uint64 // Remove calls
	Increments  uint64 // Increment and IncrementDouble calls
	Unmet       uint64 // Add, Replace and CAS calls whose condition did not hold
	Errors      uint64 // Calls that returned an error
	Timeouts    uint64 // Waits abandoned with the outcome unknown
	Orphans     uint64 // Connection failures with no pending operation
	InFlight    uint64 // Operations waiting for a response (gauge)
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordSubmit(binary bool) {
	if binary {
		atomic.AddUint64(&c.stats.BinaryCalls, 1)
	} else {
		atomic.AddUint64(&c.stats.TextCalls, 1)
	}
}

func (c *clientStatsCollector) recordGet(found bool) {
	atomic.AddUint64(&c.stats.Gets, 1)
	if found {
		atomic.AddUint64(&c.stats.GetHits, 1)
	}
}

func (c *clientStatsCollector) recordSet() {
	atomic.AddUint64(&c.stats.Sets, 1)
}

func (c *clientStatsCollector) recordRemove() {
	atomic.AddUint64(&c.stats.Removes, 1)
}

func (c *clientStatsCollector) recordIncrement() {
	atomic.AddUint64(&c.stats.Increments, 1)
}

func (c *clientStatsCollector) recordUnmet() {
	atomic.AddUint64(&c.stats.Unmet, 1)
}

func (c *clientStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *clientStatsCollector) recordTimeout() {
	atomic.AddUint64(&c.stats.Timeouts, 1)
}

func (c *clientStatsCollector) recordOrphan() {
	atomic.AddUint64(&c.stats.Orphans, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		BinaryCalls: atomic.LoadUint64(&c.stats.BinaryCalls),
		TextCalls:   atomic.LoadUint64(&c.stats.TextCalls),
		Gets:        atomic.LoadUint64(&c.stats.Gets),
		GetHits:     atomic.LoadUint64(&c.stats.GetHits),
		Sets:        atomic.LoadUint64(&c.stats.Sets),
		Removes:     atomic.LoadUint64(&c.stats.Removes),
		Increments:  atomic.LoadUint64(&c.stats.Increments),
		Unmet:       atomic.LoadUint64(&c.stats.Unmet),
		Errors:      atomic.LoadUint64(&c.stats.Errors),
		Timeouts:    atomic.LoadUint64(&c.stats.Timeouts),
		Orphans:     atomic.LoadUint64(&c.stats.Orphans),
	}
}
