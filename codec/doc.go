// Package codec wraps the Opus encode and decode edge of the voicecore
// pipeline. Encoding uses layeh.com/gopus (CGO libopus bindings), which
// exposes the live bitrate control the adaptation loop drives; decoding uses
// github.com/pion/opus, a pure Go decoder.
//
// The pipeline's internal sample format is float64 in [-1, 1]; this package
// owns the conversion to and from the int16 PCM the codecs speak.
package codec
