package voicecore

import "time"

// StreamKind identifies the direction and media type of a logical stream.
type StreamKind int

const (
	// StreamAudioSend is the local outbound audio stream.
	StreamAudioSend StreamKind = iota
	// StreamVideoSend is the local outbound video stream, when active.
	StreamVideoSend
	// StreamAudioRecv is a remote participant's inbound audio stream.
	StreamAudioRecv
	// StreamVideoRecv is a remote participant's inbound video stream.
	StreamVideoRecv
)

// String returns a human-readable stream kind description.
func (k StreamKind) String() string {
	switch k {
	case StreamAudioSend:
		return "audio-send"
	case StreamVideoSend:
		return "video-send"
	case StreamAudioRecv:
		return "audio-recv"
	case StreamVideoRecv:
		return "video-recv"
	default:
		return "unknown"
	}
}

// StreamID uniquely identifies a logical stream within a session, e.g.
// "audio-send" for the local sender or "audio-recv/<participant>" for a
// remote receiver. The transport chooses the identifiers; the collector only
// uses them as map keys.
type StreamID string

// StreamCounters holds the raw cumulative counters reported by the transport
// for one logical stream. All counters are cumulative since stream creation;
// the stats collector converts them to instantaneous rates.
type StreamCounters struct {
	Kind StreamKind

	// Cumulative transfer counters.
	BytesTransferred   uint64
	PacketsTransferred uint64
	PacketsLost        uint64

	// Instantaneous quality samples, surfaced verbatim.
	Jitter        time.Duration
	RoundTripTime time.Duration

	// Codec and video geometry, where applicable.
	Codec       string
	FrameWidth  uint32
	FrameHeight uint32
	FrameRate   float64
}

// StatsSource supplies the current cumulative counters for every publishing
// stream. Implementations may block on network calls; the collector is only
// ever invoked from the control loop, never from the real-time domain.
type StatsSource interface {
	// QueryStreamStats returns counters keyed by stream identifier.
	// Streams with no publications may simply be absent from the map.
	QueryStreamStats() (map[StreamID]StreamCounters, error)
}

// Transport is the narrow view of the session/media layer the core depends
// on: per-stream statistics and an outbound encoder bitrate setter.
// Connection establishment, media routing, and encryption all live behind
// this interface and are out of scope for this package.
type Transport interface {
	StatsSource

	// SetAudioBitrate updates the outbound audio encoder target bitrate in
	// bits per second. Called from the control loop on effective changes.
	SetAudioBitrate(bitrate uint32) error
}
