// Package voicecore implements the real-time media-processing core of a
// voice-chat client: neural noise suppression for the microphone signal,
// dry/wet blending of processed and original audio, and adaptive outbound
// bitrate control driven by observed network conditions.
//
// The package deliberately excludes UI, signaling, and the transport/session
// layer itself. The transport is modeled as a narrow interface exposing
// per-stream statistics and an encoder-bitrate setter, so the core can be
// driven by any media stack.
//
// # Architecture
//
// The core spans three concurrency domains:
//
//   - The real-time rendering callback, invoked by the host audio engine at a
//     fixed cadence with fixed-size blocks. It never blocks, never awaits, and
//     touches only pre-allocated buffers.
//   - A dedicated inference worker goroutine that runs the noise-suppression
//     model asynchronously. Buffers move between domains over bounded channels
//     with exclusive ownership transfer.
//   - A control loop that polls transport statistics every two seconds and
//     drives the AIMD bitrate controller.
//
// Sub-packages:
//
//   - audio: frame accumulation, the spectral denoising engine, the
//     double-buffered frame exchange, the ring-buffer output queue, and the
//     dry/wet mixing graph.
//   - inference: the model runtime abstraction, timeout-bounded model
//     loading from local or remote asset sources, and the asynchronous
//     inference worker with drop-based backpressure.
//   - codec: Opus encode/decode adapters at the transport edge. The encoder
//     exposes SetBitrate, which is what the bitrate controller ultimately
//     drives.
//
// # Session Usage
//
// A Session ties the pieces together for one voice call:
//
//	sess, err := voicecore.NewSession(voicecore.SessionConfig{
//	    Config:    cfg,
//	    Transport: transport,
//	    Assets:    inference.DirAssetSource{Dir: "models"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sess.Init(ctx); err != nil {
//	    // fall back to unprocessed audio
//	}
//	sess.Start()
//	defer sess.Destroy()
//
//	// From the host audio engine's render callback:
//	sess.ProcessBlock(inBlock, outBlock)
//
// Sessions are fully self-contained: no process-wide state is shared between
// concurrent sessions, so multiple calls (and tests) do not interfere.
//
// # Failure Model
//
// Only initialization-phase failures (model load timeout, asset fetch errors)
// are surfaced to the caller, which should fall back to passthrough audio.
// Steady-state per-hop inference failures degrade to silence for the affected
// hop and are never surfaced. Teardown errors are logged and swallowed so
// Destroy always completes.
package voicecore
