// Package voicecore stats collection.
//
// The stats collector polls the transport's cumulative per-stream counters
// and converts them into instantaneous rates: outbound/inbound bitrate and
// packet loss percentage over the poll interval. It feeds the adaptive
// bitrate controller and any UI-level quality display.
package voicecore

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StreamReport is the per-stream result of one stats poll: rates derived
// from counter deltas plus the latest quality samples passed through
// verbatim.
type StreamReport struct {
	Kind StreamKind

	// BitrateKbps is the transfer rate over the last poll interval in
	// kilobits per second. Zero on the baseline poll.
	BitrateKbps float64

	// PacketLossPercent is the share of packets lost over the last poll
	// interval, in percent. Zero on the baseline poll.
	PacketLossPercent float64

	// Latest samples, surfaced unmodified.
	Jitter        time.Duration
	RoundTripTime time.Duration
	Codec         string
	FrameWidth    uint32
	FrameHeight   uint32
	FrameRate     float64

	// Timestamp is when the underlying counters were sampled.
	Timestamp time.Time
}

// statsSnapshot pairs a set of counters with the time they were observed.
type statsSnapshot struct {
	counters StreamCounters
	at       time.Time
}

// StatsCollector converts cumulative transport counters into per-interval
// rates. It keeps one baseline snapshot per stream identifier; the first
// poll for any stream establishes the baseline and reports zero rates.
type StatsCollector struct {
	mu           sync.Mutex
	source       StatsSource
	previous     map[StreamID]statsSnapshot
	timeProvider TimeProvider
}

// NewStatsCollector creates a collector reading from the given source.
func NewStatsCollector(source StatsSource) *StatsCollector {
	return &StatsCollector{
		source:       source,
		previous:     make(map[StreamID]statsSnapshot),
		timeProvider: RealTimeProvider{},
	}
}

// SetTimeProvider injects a time provider for deterministic testing.
func (sc *StatsCollector) SetTimeProvider(tp TimeProvider) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if tp != nil {
		sc.timeProvider = tp
	}
}

// Poll queries the source and returns one report per publishing stream.
//
// Missing or malformed counters are treated as absent data: a source error
// yields an empty result set, never a failure, so a flaky stats query cannot
// break the control loop. Streams seen for the first time report zero rates
// and become the baseline for the next poll.
func (sc *StatsCollector) Poll() map[StreamID]StreamReport {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	reports := make(map[StreamID]StreamReport)

	current, err := sc.source.QueryStreamStats()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Poll",
			"error":    err.Error(),
		}).Warn("Stats query failed, reporting no streams this poll")
		return reports
	}

	now := sc.timeProvider.Now()

	for id, counters := range current {
		report := StreamReport{
			Kind:          counters.Kind,
			Jitter:        counters.Jitter,
			RoundTripTime: counters.RoundTripTime,
			Codec:         counters.Codec,
			FrameWidth:    counters.FrameWidth,
			FrameHeight:   counters.FrameHeight,
			FrameRate:     counters.FrameRate,
			Timestamp:     now,
		}

		prev, seen := sc.previous[id]
		if seen {
			report.BitrateKbps = bitrateKbps(prev, counters, now)
			report.PacketLossPercent = lossPercent(prev.counters, counters)
		}
		sc.previous[id] = statsSnapshot{counters: counters, at: now}

		reports[id] = report
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Poll",
		"stream_count": len(reports),
	}).Debug("Stats poll completed")

	return reports
}

// Report retrieves a single stream's report from a poll result, returning a
// zeroed report when the stream has no publications.
func Report(reports map[StreamID]StreamReport, id StreamID) StreamReport {
	return reports[id]
}

// Reset clears all stored baselines so the next poll re-establishes fresh
// ones. Used on reconnect or noise-model switch, where cumulative counters
// may restart from zero.
func (sc *StatsCollector) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.previous = make(map[StreamID]statsSnapshot)

	logrus.WithFields(logrus.Fields{
		"function": "Reset",
	}).Debug("Stats baselines cleared")
}

// bitrateKbps derives the transfer rate from the byte-counter delta over the
// elapsed wall time. Counter regressions (transport restart) and non-positive
// intervals report zero rather than a nonsense rate.
func bitrateKbps(prev statsSnapshot, current StreamCounters, now time.Time) float64 {
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 || current.BytesTransferred < prev.counters.BytesTransferred {
		return 0
	}
	deltaBytes := current.BytesTransferred - prev.counters.BytesTransferred
	return float64(deltaBytes) * 8 / elapsed / 1000
}

// lossPercent derives packet loss over the interval from the counter deltas,
// falling back to the cumulative totals when the deltas are unusable.
func lossPercent(prev, current StreamCounters) float64 {
	if current.PacketsTransferred >= prev.PacketsTransferred && current.PacketsLost >= prev.PacketsLost {
		deltaSent := current.PacketsTransferred - prev.PacketsTransferred
		deltaLost := current.PacketsLost - prev.PacketsLost
		if deltaSent+deltaLost > 0 {
			return float64(deltaLost) / float64(deltaSent+deltaLost) * 100
		}
		return 0
	}

	total := current.PacketsTransferred + current.PacketsLost
	if total == 0 {
		return 0
	}
	return float64(current.PacketsLost) / float64(total) * 100
}
