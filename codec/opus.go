package codec

import (
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
	"layeh.com/gopus"
)

// Voice streams run 48 kHz mono Opus at 20 ms frames.
const (
	// SampleRate is the codec sample rate in Hz.
	SampleRate = 48000
	// Channels is the channel count; voice is mono.
	Channels = 1
	// FrameSize is the number of samples per 20 ms frame.
	FrameSize = SampleRate * 20 / 1000 // 960

	// maxPacketSize bounds one encoded Opus packet. The recommended
	// maximum from RFC 6716 is well under this.
	maxPacketSize = 4000
)

// Encoder encodes mono PCM frames to Opus packets. The target bitrate can
// be changed between frames, which is how bitrate adaptation reaches the
// wire.
type Encoder struct {
	enc     *gopus.Encoder
	bitrate uint32
}

// NewEncoder creates an encoder at the given starting bitrate in bits per
// second.
func NewEncoder(bitrate uint32) (*Encoder, error) {
	if bitrate == 0 {
		return nil, fmt.Errorf("bitrate must be positive")
	}

	enc, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("creating opus encoder: %w", err)
	}
	enc.SetBitrate(int(bitrate))

	logrus.WithFields(logrus.Fields{
		"function":    "NewEncoder",
		"sample_rate": SampleRate,
		"channels":    Channels,
		"bitrate":     bitrate,
	}).Info("Opus encoder created")

	return &Encoder{enc: enc, bitrate: bitrate}, nil
}

// Encode encodes one frame of FrameSize mono int16 samples.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSize {
		return nil, fmt.Errorf("frame must be %d samples, got %d", FrameSize, len(pcm))
	}
	packet, err := e.enc.Encode(pcm, FrameSize, maxPacketSize)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return packet, nil
}

// SetBitrate retargets the encoder. Takes effect on the next frame.
func (e *Encoder) SetBitrate(bitrate uint32) error {
	if bitrate == 0 {
		return fmt.Errorf("bitrate must be positive")
	}
	e.enc.SetBitrate(int(bitrate))
	e.bitrate = bitrate

	logrus.WithFields(logrus.Fields{
		"function": "Encoder.SetBitrate",
		"bitrate":  bitrate,
	}).Debug("Encoder bitrate updated")
	return nil
}

// Bitrate returns the current target bitrate in bits per second.
func (e *Encoder) Bitrate() uint32 { return e.bitrate }

// Decoder decodes received Opus packets to mono PCM. Each remote stream
// gets its own Decoder so codec state tracks that stream's frames.
type Decoder struct {
	dec opus.Decoder
	out []byte
}

// NewDecoder creates a decoder for one incoming stream.
func NewDecoder() *Decoder {
	return &Decoder{
		dec: opus.NewDecoder(),
		// 40 ms at 48 kHz covers the largest frame the decoder emits.
		out: make([]byte, 1920*2),
	}
}

// Decode decodes one Opus packet to mono int16 samples. Stereo packets are
// downmixed by taking the left channel.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	if len(packet) == 0 {
		return nil, fmt.Errorf("empty audio packet")
	}

	bandwidth, isStereo, err := d.dec.Decode(packet, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Decoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
	}).Debug("Decoded audio packet")

	samples := bytesToPCM(d.out)
	if isStereo {
		mono := make([]int16, len(samples)/2)
		for i := range mono {
			mono[i] = samples[i*2]
		}
		return mono, nil
	}
	result := make([]int16, len(samples))
	copy(result, samples)
	return result, nil
}

// bytesToPCM converts little-endian bytes to int16 samples.
func bytesToPCM(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// FloatToPCM converts float64 samples in [-1, 1] to int16 with clipping.
func FloatToPCM(in []float64, out []int16) {
	for i, s := range in {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * 32767)
	}
}

// PCMToFloat converts int16 samples to float64 in [-1, 1].
func PCMToFloat(in []int16, out []float64) {
	for i, s := range in {
		out[i] = float64(s) / 32768
	}
}
