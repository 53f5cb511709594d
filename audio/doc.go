// Package audio implements the real-time signal path of the voicecore media
// pipeline: frame accumulation, the spectral denoising engine, the buffer
// structures that decouple the render cadence from asynchronous inference,
// and the dry/wet mixing graph.
//
// The processing flow for a hop-granular noise model:
//
//	host blocks → FrameAccumulator → (inference worker: Denoiser) →
//	RingQueue → MixGraph wet path → output
//
// and for a frame-granular model the RingQueue is replaced by the
// FrameExchange double buffer.
//
// Everything in this package is written to be callable from a real-time
// audio callback: no allocation after construction, no blocking waits, and
// only short bounded critical sections. Buffers handed to the inference
// domain transfer ownership; the two domains never mutate the same memory
// concurrently.
package audio
